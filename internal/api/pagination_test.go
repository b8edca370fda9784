package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		page    int
		perPage int
		offset  int
	}{
		{"defaults", "", 1, defaultPerPage, 0},
		{"second page", "?page=2&per_page=10", 2, 10, 10},
		{"per_page capped", "?per_page=1000", 1, maxPerPage, 0},
		{"invalid values ignored", "?page=-3&per_page=abc", 1, defaultPerPage, 0},
		{"huge page clamped", "?page=9223372036854775807&per_page=100", maxPage, 100, (maxPage - 1) * 100},
		{"page past int range ignored", "?page=99999999999999999999", 1, defaultPerPage, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/pools"+tt.query, nil)
			limit, offset, page, perPage := parsePagination(r)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.perPage, perPage)
			assert.Equal(t, tt.perPage, limit)
			assert.Equal(t, tt.offset, offset)
			assert.GreaterOrEqual(t, offset, 0)
		})
	}
}
