package httpx

import "net/http"

// RequireAdmin rejects callers whose access token does not carry the admin
// flag. It must run after AuthnMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || !claims.IsAdmin {
			w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
			WriteError(w, http.StatusForbidden, "insufficient_scope", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
