package api

import (
	"net/http"

	"github.com/jmcleod/backdrop/ledger"
)

// AdminSummary handles GET /admin/summary.
func (a *API) AdminSummary(w http.ResponseWriter, r *http.Request) {
	all, err := a.ledger.ReadAll(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.Summarize(all, a.ledger.Clock().Now()))
}

// AdminUsers handles GET /admin/users. Users are ordered by id.
func (a *API) AdminUsers(w http.ResponseWriter, r *http.Request) {
	all, err := a.ledger.ReadAll(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}
	users, meta := page(all, parsePagination(r))
	writeJSON(w, http.StatusOK, UsersResponse{
		Users:          newUserEntries(users),
		PaginationMeta: meta,
	})
}

// AdminTop handles GET /admin/top?n=.
func (a *API) AdminTop(w http.ResponseWriter, r *http.Request) {
	n, err := parseTopN(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	all, err := a.ledger.ReadAll(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TopResponse{Users: newUserEntries(ledger.Top(all, n))})
}
