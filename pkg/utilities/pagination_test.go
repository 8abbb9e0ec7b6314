package utilities

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagination(t *testing.T) {
	testCases := []struct {
		query         string
		expectedSkip  int
		expectedLimit int
	}{
		{"", 0, 10},
		{"?skip=20&limit=50", 20, 50},
		{"?skip=-5&limit=0", 0, 10},
		{"?limit=5000", 0, 100},
		{"?skip=abc&limit=xyz", 0, 10},
	}
	for _, tt := range testCases {
		r := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
		skip, limit := Pagination(r)
		assert.Equal(t, tt.expectedSkip, skip, tt.query)
		assert.Equal(t, tt.expectedLimit, limit, tt.query)
	}
}
