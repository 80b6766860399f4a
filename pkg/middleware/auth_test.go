package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

type stubValidator map[string]*auth.APIToken

func (v stubValidator) ValidateToken(_ context.Context, token string) (*auth.APIToken, error) {
	if token == "tg_broken" {
		return nil, errors.New("database unavailable")
	}
	t, ok := v[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return t, nil
}

func TestAuthMiddleware(t *testing.T) {
	validator := stubValidator{"tg_good": {ID: 1, UserID: 100}}

	var seen *auth.APIToken
	var seenUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAuthToken(r)
		seenUser = contextkeys.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		optional bool
		header   string
		want     int
		wantUser string
	}{
		{"valid token", false, "Bearer tg_good", http.StatusOK, "100"},
		{"missing header", false, "", http.StatusUnauthorized, ""},
		{"missing header optional", true, "", http.StatusOK, ""},
		{"wrong scheme", false, "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"empty token", false, "Bearer ", http.StatusUnauthorized, ""},
		{"unknown token", false, "Bearer tg_nope", http.StatusUnauthorized, ""},
		{"unknown token optional", true, "Bearer tg_nope", http.StatusUnauthorized, ""},
		{"validator failure", false, "Bearer tg_broken", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, seenUser = nil, ""
			handler := NewAuthMiddleware(validator, tt.optional).Handler(next)

			req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.wantUser, seenUser)
			if tt.wantUser != "" {
				require.NotNil(t, seen)
				assert.Equal(t, int64(100), seen.UserID)
			}
		})
	}
}

func TestAuthMiddleware_NilValidatorRejectsTokens(t *testing.T) {
	handler := NewAuthMiddleware(nil, true).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer tg_anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
