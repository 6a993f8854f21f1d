package middlewarectx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appjwt "github.com/iqstocker/entitlement-service/internal/lib/jwt"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestJWTMiddleware(t *testing.T) {
	maker := appjwt.NewJWTMaker("test_secret", 15*time.Minute)

	validToken, err := maker.GenerateToken("telegram-bot", "reader")
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantClient string
	}{
		{
			name:       "valid token passes and fills context",
			authHeader: "Bearer " + validToken,
			wantStatus: http.StatusOK,
			wantClient: "telegram-bot",
		},
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "header without bearer prefix",
			authHeader: validToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			authHeader: "Bearer not.a.token",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotClient string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if v, ok := r.Context().Value(Client).(string); ok {
					gotClient = v
				}
				w.WriteHeader(http.StatusOK)
			})

			handler := JWTMiddleware(maker, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/1/entitlement", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantClient != "" {
				assert.Equal(t, tt.wantClient, gotClient)
			}
		})
	}
}
