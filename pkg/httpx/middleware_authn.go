package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/trustcore/pkg/jwtx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

// ErrAuthUnavailable marks an Authenticator failure that is not the
// caller's fault. AuthnMiddleware answers it with 503 instead of 401.
var ErrAuthUnavailable = errors.New("httpx: authentication unavailable")

// Authenticator turns a raw bearer token into verified claims. It is where
// revocation is checked, so it takes the request context.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (jwtx.Claims, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (jwtx.Claims, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (jwtx.Claims, error) {
	return f(ctx, token)
}

// AuthnMiddleware authenticates the bearer access token and stores its
// claims in the request context.
func AuthnMiddleware(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := a.Authenticate(ctx, raw)
			switch {
			case errors.Is(err, ErrAuthUnavailable):
				log.Error("bearer authentication unavailable", "err", err)
				WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "authentication unavailable")
				return
			case err != nil:
				writeBearerError(w, "token verification failed")
				log.Warn("jwt verify failed", "err", err)
				return
			}

			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
