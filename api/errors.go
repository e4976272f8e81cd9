package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/backdrop/editor"
	"github.com/jmcleod/backdrop/ledger"
	"github.com/jmcleod/backdrop/storage"
)

// ErrAccessDenied is returned when a request to the operator surface does not
// carry the operator's identity.
var ErrAccessDenied = errors.New("access denied")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusForKind maps an editor error kind to its HTTP status.
func statusForKind(kind editor.Kind) int {
	switch kind {
	case editor.KindDecode, editor.KindEmptyImage, editor.KindUnknownColor:
		return http.StatusUnprocessableEntity
	case editor.KindNoActiveSession:
		return http.StatusConflict
	case editor.KindSegmentation:
		return http.StatusBadGateway
	case editor.KindUnknownIntent:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// mapError writes err as a localized JSON error. Internal errors are not
// echoed to the client.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	p := printerFor(r)
	switch {
	case errors.Is(err, ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: p.Sprintf(msgErrAccessDenied), Kind: "access_denied"})
		return
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: p.Sprintf(msgNoStats), Kind: "not_found"})
		return
	case errors.Is(err, ledger.ErrEmptyUserID):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := editor.KindOf(err)
	writeJSON(w, statusForKind(kind), ErrorResponse{Error: errorMessage(p, kind), Kind: kind.String()})
}
