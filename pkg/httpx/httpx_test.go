package httpx_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/trustcore/pkg/httpx"
	"github.com/aussiebroadwan/trustcore/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestIPKeyExtractorIgnoresForwardingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	req.Header.Set("X-Real-IP", "203.0.113.2")
	require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
}

func TestTrustedProxiesClientIP(t *testing.T) {
	proxies, err := httpx.ParseTrustedProxies("10.0.0.0/8, 192.168.1.1")
	require.NoError(t, err)

	cases := []struct {
		name   string
		peer   string
		xff    string
		xri    string
		want   string
		nilSet bool
	}{
		{name: "untrusted peer ignores headers", peer: "198.51.100.9:1", xff: "203.0.113.1", want: "198.51.100.9"},
		{name: "trusted peer uses forwarded client", peer: "10.1.2.3:1", xff: "203.0.113.1", want: "203.0.113.1"},
		{name: "spoofed leftmost hop is skipped", peer: "10.1.2.3:1", xff: "1.2.3.4, 203.0.113.1", want: "203.0.113.1"},
		{name: "trusted hops are walked past", peer: "192.168.1.1:1", xff: "203.0.113.1, 10.9.9.9", want: "203.0.113.1"},
		{name: "all hops trusted", peer: "10.1.2.3:1", xff: "10.0.0.7, 10.0.0.8", want: "10.0.0.7"},
		{name: "real ip fallback", peer: "10.1.2.3:1", xri: "203.0.113.2", want: "203.0.113.2"},
		{name: "no headers", peer: "10.1.2.3:1", want: "10.1.2.3"},
		{name: "nil set trusts nobody", peer: "10.1.2.3:1", xff: "203.0.113.1", want: "10.1.2.3", nilSet: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.peer
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				req.Header.Set("X-Real-IP", tc.xri)
			}
			p := proxies
			if tc.nilSet {
				p = nil
			}
			require.Equal(t, tc.want, p.ClientIP(req))
		})
	}

	t.Run("parse", func(t *testing.T) {
		p, err := httpx.ParseTrustedProxies(" ")
		require.NoError(t, err)
		require.Nil(t, p)

		_, err = httpx.ParseTrustedProxies("10.0.0.0/40")
		require.Error(t, err)
		_, err = httpx.ParseTrustedProxies("proxy.internal")
		require.Error(t, err)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler(), mw("a"), mw("b"), mw("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRateLimitMiddleware(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)

	t.Run("allowed sets headers", func(t *testing.T) {
		l := httpx.LimiterFunc(func(_ context.Context, key string) (httpx.RateDecision, error) {
			require.Equal(t, "10.0.0.1", key)
			return httpx.RateDecision{Allowed: true, Limit: 5, Remaining: 4, ResetAt: reset}, nil
		})
		h := httpx.RateLimitMiddleware(l, httpx.IPKeyExtractor)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("denied returns 429", func(t *testing.T) {
		l := httpx.LimiterFunc(func(context.Context, string) (httpx.RateDecision, error) {
			return httpx.RateDecision{Allowed: false, Limit: 5, ResetAt: reset}, nil
		})
		h := httpx.RateLimitMiddleware(l, httpx.IPKeyExtractor)(okHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("limiter error fails closed", func(t *testing.T) {
		l := httpx.LimiterFunc(func(context.Context, string) (httpx.RateDecision, error) {
			return httpx.RateDecision{}, errors.New("kv down")
		})
		h := httpx.RateLimitMiddleware(l, httpx.IPKeyExtractor)(okHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("missing key rejected", func(t *testing.T) {
		l := httpx.LimiterFunc(func(context.Context, string) (httpx.RateDecision, error) {
			t.Fatal("limiter must not be called")
			return httpx.RateDecision{}, nil
		})
		h := httpx.RateLimitMiddleware(l, func(*http.Request) string { return "" })(okHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthnAndRequireAdmin(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "test", NumKeys: 1})
	require.NoError(t, err)

	sign := func(admin bool) string {
		tok, err := km.GetSigner().Sign(jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
			Subject: "u1",
			IsAdmin: admin,
			Issuer:  "test",
			TTL:     time.Minute,
			Now:     time.Now(),
		}))
		require.NoError(t, err)
		return tok
	}

	var seenUser string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = httpx.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := httpx.Chain(inner, httpx.AuthnMiddleware(httpx.AuthenticatorFunc(
		func(_ context.Context, token string) (jwtx.Claims, error) { return km.Verifier.Verify(token) },
	)), httpx.RequireAdmin)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"non admin", "Bearer " + sign(false), http.StatusForbidden},
		{"admin", "Bearer " + sign(true), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
	require.Equal(t, "u1", seenUser)
}

func TestAuthnMiddlewareAuthenticatorFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"rejected token", errors.New("token revoked"), http.StatusUnauthorized},
		{"backend down", fmt.Errorf("%w: db closed", httpx.ErrAuthUnavailable), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := httpx.AuthenticatorFunc(func(context.Context, string) (jwtx.Claims, error) {
				return jwtx.Claims{}, tc.err
			})
			h := httpx.AuthnMiddleware(a)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer some.jwt.value")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}
