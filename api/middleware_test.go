package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer s3cret", "s3cret", true},
		{"bearer  s3cret ", "s3cret", true},
		{"Bearer ", "", false},
		{"Bearer    ", "", false},
		{"Basic dXNlcg==", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", tt.header)
		got, ok := bearerToken(r)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.want, string(got), "header %q", tt.header)
	}
}

func TestOperatorAuthorize(t *testing.T) {
	auth := newOperatorAuth(" admin ", "s3cret")

	request := func(user, token string) error {
		r := httptest.NewRequest("GET", "/admin/summary", nil)
		r.Header.Set(userIDHeader, user)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		return auth.authorize(r)
	}

	require.NoError(t, request("admin", "s3cret"))
	// The enclave survives repeated opens.
	require.NoError(t, request("admin", "s3cret"))
	assert.ErrorIs(t, request("admin", "wrong"), ErrAccessDenied)
	assert.ErrorIs(t, request("admin", ""), ErrAccessDenied)
	assert.ErrorIs(t, request("mallory", "s3cret"), ErrAccessDenied)

	assert.ErrorIs(t, newOperatorAuth("", "").authorize(httptest.NewRequest("GET", "/", nil)), ErrAccessDenied)

	open := newOperatorAuth("admin", "")
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(userIDHeader, "admin")
	assert.NoError(t, open.authorize(r))
}
