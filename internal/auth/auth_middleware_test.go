package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccessToken(t *testing.T) {
	manager := NewJWTManager("test-secret")

	token := signAccessToken(t, "test-secret", "user-1", time.Minute)

	userID, err := manager.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	expired := signAccessToken(t, "test-secret", "user-1", -time.Minute)
	_, err = manager.ValidateAccessToken(expired)
	assert.ErrorIs(t, err, ErrExpiredJWTToken)

	foreign := signAccessToken(t, "other-secret", "user-1", time.Minute)
	_, err = manager.ValidateAccessToken(foreign)
	assert.Error(t, err)

	anonymous := signAccessToken(t, "test-secret", "", time.Minute)
	_, err = manager.ValidateAccessToken(anonymous)
	assert.ErrorIs(t, err, ErrInvalidJWTToken)
}

func TestJWTAccessTokenMiddleware(t *testing.T) {
	manager := NewJWTManager("test-secret")
	token := signAccessToken(t, "test-secret", "user-1", time.Minute)

	var seen string
	handler := JWTAccessTokenMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "no bearer prefix", header: token, wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc.def.ghi", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/protected/accounts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "user-1", seen)
			} else {
				assert.Empty(t, seen)
				assert.Contains(t, rr.Body.String(), `"status":"error"`)
			}
		})
	}
}
