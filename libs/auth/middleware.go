package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/medibook/medibook/libs/httpx"
)

// Headers set by an upstream gateway in trusted-header mode.
const (
	HeaderUserID   = "X-User-Id"
	HeaderRole     = "X-Role"
	HeaderClinicID = "X-Clinic-Id"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   string
	Role     string
	ClinicID string
}

type ctxKey int

const ctxKeyIdentity ctxKey = iota

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}

// RequireBearer verifies an HS256 bearer token.
func RequireBearer(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if !strings.HasPrefix(authHeader, "Bearer ") || token == "" {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := ParseAndVerifyHS256(token, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			id := Identity{UserID: claims.Subject, Role: claims.Role, ClinicID: claims.ClinicID}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// TrustHeaders reads the identity a gateway already verified.
func TrustHeaders() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{
				UserID:   strings.TrimSpace(r.Header.Get(HeaderUserID)),
				Role:     strings.TrimSpace(r.Header.Get(HeaderRole)),
				ClinicID: strings.TrimSpace(r.Header.Get(HeaderClinicID)),
			}
			if id.UserID == "" || id.Role == "" {
				http.Error(w, "missing identity headers", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
