package utilities

import (
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Pagination reads skip/limit query parameters, applying defaults and the
// upper bound on page size.
func Pagination(r *http.Request) (skip, limit int) {
	skip = intQuery(r, "skip", 0)
	limit = intQuery(r, "limit", defaultPageLimit)
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return skip, limit
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
