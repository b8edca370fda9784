package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100

	// keeps (page-1)*perPage far from int overflow
	maxPage = 100_000
)

type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	HasNext bool `json:"has_next"`
}

func parsePagination(r *http.Request) (limit, offset int, page int, perPage int) {
	q := r.URL.Query()
	page = 1
	perPage = defaultPerPage
	if v := q.Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = min(p, maxPage)
		}
	}
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > maxPerPage {
				n = maxPerPage
			}
			perPage = n
		}
	}
	limit = perPage
	offset = (page - 1) * perPage
	return
}

// parseSort reads sort_by and sort_order. Only fields in allowed are
// accepted; anything else falls back to def, descending.
func parseSort(r *http.Request, def string, allowed ...string) (field string, desc bool) {
	q := r.URL.Query()
	field = def
	if v := q.Get("sort_by"); v != "" {
		for _, a := range allowed {
			if v == a {
				field = v
				break
			}
		}
	}
	return field, q.Get("sort_order") != "asc"
}
