package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
)

const secret = "test-secret"

func signToken(t *testing.T, key string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func claimsFor(sub, role string, exp time.Time) Claims {
	return Claims{
		Email: sub + "@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestMiddleware(t *testing.T) {
	future := time.Now().Add(time.Hour)
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantActor  domain.Actor
	}{
		{
			name:       "valid admin",
			header:     "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, claimsFor("admin-1", "admin", future)),
			wantStatus: http.StatusOK,
			wantActor:  domain.Actor{ID: "admin-1", Email: "admin-1@example.com", Role: domain.RoleAdmin},
		},
		{
			name:       "role defaults to user",
			header:     "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, claimsFor("user-1", "", future)),
			wantStatus: http.StatusOK,
			wantActor:  domain.Actor{ID: "user-1", Email: "user-1@example.com", Role: domain.RoleUser},
		},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{
			name:       "expired",
			header:     "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, claimsFor("user-1", "user", time.Now().Add(-time.Minute))),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong key",
			header:     "Bearer " + signToken(t, "other", jwt.SigningMethodHS256, claimsFor("user-1", "user", future)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unexpected algorithm",
			header:     "Bearer " + signToken(t, secret, jwt.SigningMethodHS512, claimsFor("user-1", "user", future)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown role",
			header:     "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, claimsFor("user-1", "owner", future)),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.Actor
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ActorFrom(r)
				w.WriteHeader(http.StatusOK)
			})
			handler := Middleware(NewVerifier(secret), zap.NewNop())(next)

			req := httptest.NewRequest(http.MethodGet, "/orders/my-orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantActor, got)
			} else {
				assert.Contains(t, rec.Body.String(), `"UNAUTHORIZED"`)
			}
		})
	}
}
