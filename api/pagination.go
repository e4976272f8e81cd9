package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

var errBadTopN = errors.New("n must be a positive integer")

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// pageRequest is a window over an ordered collection.
type pageRequest struct {
	Limit  int
	Offset int
}

// parsePagination reads "limit" and "offset". Missing, malformed or
// non-positive values fall back to the defaults; limit is capped.
func parsePagination(r *http.Request) pageRequest {
	q := r.URL.Query()
	return pageRequest{
		Limit:  min(positiveParam(q, "limit", defaultPageLimit), maxPageLimit),
		Offset: positiveParam(q, "offset", 0),
	}
}

func positiveParam(q url.Values, name string, fallback int) int {
	n, err := strconv.Atoi(q.Get(name))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// page cuts items to the requested window. An offset past the end yields an
// empty page with HasMore false.
func page[T any](items []T, req pageRequest) ([]T, PaginationMeta) {
	total := len(items)
	start := min(req.Offset, total)
	end := min(start+req.Limit, total)
	return items[start:end], PaginationMeta{
		TotalCount: total,
		Limit:      req.Limit,
		Offset:     req.Offset,
		HasMore:    end < total,
	}
}

// parseTopN reads the "n" parameter of the top-users listing. Unlike the
// page window, a malformed value is an error rather than a fallback.
func parseTopN(r *http.Request) (int, error) {
	v := r.URL.Query().Get("n")
	if v == "" {
		return DefaultTopN, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errBadTopN
	}
	return min(n, maxTopN), nil
}
