package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query string
		want  pageRequest
	}{
		{"", pageRequest{Limit: defaultPageLimit}},
		{"limit=25&offset=5", pageRequest{Limit: 25, Offset: 5}},
		{"limit=500", pageRequest{Limit: maxPageLimit}},
		{"limit=-1&offset=-5", pageRequest{Limit: defaultPageLimit}},
		{"limit=abc&offset=xyz", pageRequest{Limit: defaultPageLimit}},
		{"limit=0", pageRequest{Limit: defaultPageLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/admin/users?"+tt.query, nil)
			assert.Equal(t, tt.want, parsePagination(r))
		})
	}
}

func TestPage(t *testing.T) {
	ids := make([]int, 120)
	for i := range ids {
		ids[i] = i
	}

	got, meta := page(ids, pageRequest{Limit: 50})
	assert.Equal(t, ids[:50], got)
	assert.True(t, meta.HasMore)
	assert.Equal(t, 120, meta.TotalCount)

	got, meta = page(ids, pageRequest{Limit: 50, Offset: 100})
	assert.Equal(t, ids[100:], got)
	assert.False(t, meta.HasMore)

	got, meta = page(ids, pageRequest{Limit: 50, Offset: 500})
	assert.Empty(t, got)
	assert.False(t, meta.HasMore)
	assert.Equal(t, 500, meta.Offset)

	got, meta = page([]int(nil), pageRequest{Limit: 50})
	assert.Empty(t, got)
	assert.Zero(t, meta.TotalCount)
}

func TestParseTopN(t *testing.T) {
	n, err := parseTopN(httptest.NewRequest("GET", "/admin/top", nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultTopN, n)

	n, err = parseTopN(httptest.NewRequest("GET", "/admin/top?n=1000", nil))
	require.NoError(t, err)
	assert.Equal(t, maxTopN, n)

	for _, bad := range []string{"0", "-3", "ten"} {
		_, err := parseTopN(httptest.NewRequest("GET", "/admin/top?n="+bad, nil))
		assert.ErrorIs(t, err, errBadTopN, bad)
	}
}
