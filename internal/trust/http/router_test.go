package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	httpapi "github.com/aussiebroadwan/trustcore/internal/trust/http"
	"github.com/aussiebroadwan/trustcore/internal/trust/kv/drivers/memory"
	"github.com/aussiebroadwan/trustcore/internal/trust/provider"
	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	"github.com/aussiebroadwan/trustcore/internal/trust/store/drivers/sqlite"
	"github.com/aussiebroadwan/trustcore/pkg/cryptox"
	"github.com/aussiebroadwan/trustcore/pkg/httpx"
	"github.com/aussiebroadwan/trustcore/pkg/jwtx"
	"github.com/aussiebroadwan/trustcore/pkg/paysdk"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "trustcore-test"

type fixture struct {
	server    *httptest.Server
	store     *sqlite.Store
	tokens    *service.TokenService
	blacklist *service.BlacklistService
	apiKey    string
	secret    string
}

func newFixture(t *testing.T, rateLimit int, configure ...func(*httpapi.Router)) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "trust.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	cipher, err := cryptox.NewCipher([]byte("router test master key"))
	require.NoError(t, err)

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: testIssuer, NumKeys: 1})
	require.NoError(t, err)

	kvs := memory.New()

	tokens := &service.TokenService{KeyManager: km, Store: st, Cipher: cipher, Issuer: testIssuer}
	policy := service.DefaultFraudPolicy()
	policy.FailureThreshold = 2

	apiKey, secret, err := (&service.APIKeyService{Store: st, Cipher: cipher}).Create(ctx, "m_1")
	require.NoError(t, err)

	router := httpapi.NewRouter(km.KeySet, "test", st, kvs, slogx.Discard())
	router.TokenService = tokens
	router.SignatureVerifier = &service.SignatureVerifier{
		Store:  st,
		Cipher: cipher,
		Nonces: &service.NonceStore{KV: kvs},
	}
	router.RateLimiter = &service.RateLimiter{
		KV:      kvs,
		Default: service.RateLimitPolicy{Limit: rateLimit, Window: time.Hour},
	}
	router.FraudEngine = service.NewFraudEngine(kvs, policy, nil)
	router.Reconciler = &service.Reconciler{Store: st, Providers: provider.Registry{}}
	for _, fn := range configure {
		fn(router)
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &fixture{
		server:    srv,
		store:     st,
		tokens:    tokens,
		blacklist: &service.BlacklistService{KV: kvs},
		apiKey:    apiKey,
		secret:    secret,
	}
}

func (f *fixture) client() *paysdk.Client {
	return paysdk.NewClient(f.server.URL, f.apiKey, f.secret)
}

func (f *fixture) bearer(t *testing.T, admin bool) string {
	t.Helper()
	pair, err := f.tokens.IssueTokenPair(context.Background(), domain.Subject{UserID: "u_ops", IsAdmin: admin})
	require.NoError(t, err)
	return pair.AccessToken
}

func (f *fixture) do(t *testing.T, method, path, bearer string, form url.Values) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSystemEndpoints(t *testing.T) {
	f := newFixture(t, 100)

	t.Run("livez", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/livez", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "ok", decode[httpapi.HealthResponse](t, resp).Status)
	})

	t.Run("readyz", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/readyz", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		h := decode[httpapi.HealthResponse](t, resp)
		require.NotNil(t, h.Checks)
		require.Equal(t, "ok", h.Checks.Database)
		require.Equal(t, "ok", h.Checks.KV)
		require.Equal(t, "ok", h.Checks.Signer)
	})

	t.Run("jwks", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, decode[jwtx.JWKS](t, resp).Keys, 1)
	})

	t.Run("swagger", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/swagger/doc.json", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		require.Contains(t, string(b), "/v1/payments/check")
	})

	t.Run("readyz degrades when the database is gone", func(t *testing.T) {
		g := newFixture(t, 100)
		require.NoError(t, g.store.Close())
		resp := g.do(t, http.MethodGet, "/readyz", "", nil)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestSignedPaymentCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	res, err := f.client().CheckPayment(ctx, paysdk.PaymentCheck{IPAddress: "198.51.100.7", CPF: "98765432100", BIN: "550000", AmountCents: 1990})
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Empty(t, res.TriggeredRule)

	t.Run("blacklisted cpf is rejected", func(t *testing.T) {
		require.NoError(t, f.blacklist.Add(ctx, domain.BlacklistCPF, "123.456.789-09"))
		res, err := f.client().CheckPayment(ctx, paysdk.PaymentCheck{IPAddress: "198.51.100.8", CPF: "12345678909"})
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, string(domain.FraudRuleCPFBlacklist), res.TriggeredRule)
		require.NotEmpty(t, res.Reason)
	})

	t.Run("reported failures block the ip", func(t *testing.T) {
		c := f.client()
		require.NoError(t, c.ReportFailure(ctx, "203.0.113.50"))
		require.NoError(t, c.ReportFailure(ctx, "203.0.113.50"))

		res, err := c.CheckPayment(ctx, paysdk.PaymentCheck{IPAddress: "203.0.113.50"})
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, string(domain.FraudRuleAdaptiveIPBlock), res.TriggeredRule)
	})

	t.Run("wrong secret", func(t *testing.T) {
		c := paysdk.NewClient(f.server.URL, f.apiKey, "not-the-secret")
		_, err := c.CheckPayment(ctx, paysdk.PaymentCheck{IPAddress: "198.51.100.9"})
		var apiErr *paysdk.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		require.Equal(t, "invalid_signature", apiErr.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		c := paysdk.NewClient(f.server.URL, "ak_nope", f.secret)
		_, err := c.CheckPayment(ctx, paysdk.PaymentCheck{IPAddress: "198.51.100.9"})
		var apiErr *paysdk.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, "unknown_api_key", apiErr.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		c := f.client()
		c.Signer.Now = func() time.Time { return time.Now().Add(-time.Hour) }
		_, err := c.CheckPayment(ctx, paysdk.PaymentCheck{IPAddress: "198.51.100.9"})
		var apiErr *paysdk.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, "timestamp_out_of_window", apiErr.Code)
	})
}

func TestReplayedRequestIsRejected(t *testing.T) {
	f := newFixture(t, 100)
	body := []byte(`{"ip_address":"198.51.100.20","amount_cents":100}`)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/v1/payments/check", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, paysdk.NewRequestSigner(f.apiKey, f.secret).SignRequest(req))

	send := func() *http.Response {
		r, err := http.NewRequest(http.MethodPost, req.URL.String(), bytes.NewReader(body))
		require.NoError(t, err)
		r.Header = req.Header.Clone()
		resp, err := http.DefaultClient.Do(r)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	require.Equal(t, http.StatusOK, send().StatusCode)

	replay := send()
	require.Equal(t, http.StatusUnauthorized, replay.StatusCode)
	require.Equal(t, "replayed_nonce", decode[paysdk.APIError](t, replay).Code)

	t.Run("tampered body", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodPost, f.server.URL+"/v1/payments/check",
			strings.NewReader(`{"ip_address":"198.51.100.20","amount_cents":1}`))
		require.NoError(t, err)
		r.Header = req.Header.Clone()
		r.Header.Set(paysdk.HeaderNonce, "fresh-nonce")
		resp, err := http.DefaultClient.Do(r)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing headers", func(t *testing.T) {
		resp, err := http.Post(f.server.URL+"/v1/payments/check", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "malformed_request", decode[paysdk.APIError](t, resp).Code)
	})
}

func TestSignedEndpointsAreRateLimitedPerKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	c := f.client()

	for range 3 {
		_, err := c.CheckPayment(ctx, paysdk.PaymentCheck{IPAddress: "198.51.100.30"})
		require.NoError(t, err)
	}

	_, err := c.CheckPayment(ctx, paysdk.PaymentCheck{IPAddress: "198.51.100.30"})
	var apiErr *paysdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, "rate_limit_exceeded", apiErr.Code)
}

func TestTokenEndpoints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	pair, err := f.tokens.IssueTokenPair(ctx, domain.Subject{UserID: "u_42", Email: "ana@example.com", MerchantID: "m_1"})
	require.NoError(t, err)

	resp := f.do(t, http.MethodPost, "/v1/token/refresh", "", url.Values{"refresh_token": {pair.RefreshToken}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[httpapi.TokenResponse](t, resp)
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.Equal(t, "Bearer", rotated.TokenType)
	require.Positive(t, rotated.ExpiresIn)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	t.Run("introspect active", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/token/introspect", rotated.AccessToken, url.Values{"token": {rotated.AccessToken}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		in := decode[httpapi.IntrospectionResponse](t, resp)
		require.True(t, in.Active)
		require.Equal(t, "u_42", in.Sub)
		require.Equal(t, "m_1", in.MerchantID)
	})

	t.Run("reuse is rejected and revokes the family", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/token/refresh", "", url.Values{"refresh_token": {pair.RefreshToken}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		e := decode[paysdk.APIError](t, resp)
		require.Equal(t, "invalid_grant", e.Code)
		require.Equal(t, "refresh_token_reused", e.Description)

		resp = f.do(t, http.MethodPost, "/v1/token/refresh", "", url.Values{"refresh_token": {rotated.RefreshToken}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		admin := f.bearer(t, true)
		resp = f.do(t, http.MethodPost, "/v1/token/introspect", admin, url.Values{"token": {rotated.AccessToken}})
		require.False(t, decode[httpapi.IntrospectionResponse](t, resp).Active)
	})

	t.Run("garbage refresh", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/token/refresh", "", url.Values{"refresh_token": {"nope"}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_refresh_token", decode[paysdk.APIError](t, resp).Description)
	})

	t.Run("revoke own family", func(t *testing.T) {
		p, err := f.tokens.IssueTokenPair(ctx, domain.Subject{UserID: "u_77"})
		require.NoError(t, err)

		resp := f.do(t, http.MethodPost, "/v1/token/revoke", p.AccessToken, url.Values{})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = f.do(t, http.MethodPost, "/v1/token/refresh", "", url.Values{"refresh_token": {p.RefreshToken}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("revoking another user needs admin", func(t *testing.T) {
		p, err := f.tokens.IssueTokenPair(ctx, domain.Subject{UserID: "u_78"})
		require.NoError(t, err)
		resp := f.do(t, http.MethodPost, "/v1/token/revoke", p.AccessToken, url.Values{"user_id": {"u_42"}})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("introspect needs a bearer", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/token/introspect", "", url.Values{"token": {rotated.AccessToken}})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestReconciliationEndpoints(t *testing.T) {
	f := newFixture(t, 100)
	admin := f.bearer(t, true)

	cases := []struct {
		name   string
		method string
		path   string
		bearer string
		want   int
	}{
		{"no token", http.MethodGet, "/v1/reconciliation/2024-03-10", "", http.StatusUnauthorized},
		{"not admin", http.MethodGet, "/v1/reconciliation/2024-03-10", f.bearer(t, false), http.StatusForbidden},
		{"bad date", http.MethodGet, "/v1/reconciliation/10-03-2024", admin, http.StatusBadRequest},
		{"not yet run", http.MethodGet, "/v1/reconciliation/2024-03-10", admin, http.StatusNotFound},
		{"run", http.MethodPost, "/v1/reconciliation/2024-03-10", admin, http.StatusOK},
		{"stored", http.MethodGet, "/v1/reconciliation/2024-03-10", admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, tc.method, tc.path, tc.bearer, nil)
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}

	resp := f.do(t, http.MethodGet, "/v1/reconciliation/2024-03-10", admin, nil)
	rep := decode[domain.ReconciliationReport](t, resp)
	require.Equal(t, "2024-03-10", rep.Date)
	require.Zero(t, rep.Total)
}

func TestRevokedAccessTokenIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	pair, err := f.tokens.IssueTokenPair(ctx, domain.Subject{UserID: "u_admin_old", IsAdmin: true})
	require.NoError(t, err)
	victim, err := f.tokens.IssueTokenPair(ctx, domain.Subject{UserID: "u_victim"})
	require.NoError(t, err)

	resp := f.do(t, http.MethodPost, "/v1/reconciliation/2024-01-01", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.tokens.RevokeRefreshTokens(ctx, "u_admin_old"))

	cases := []struct {
		name   string
		method string
		path   string
		form   url.Values
	}{
		{"run reconciliation", http.MethodPost, "/v1/reconciliation/2024-01-01", nil},
		{"read reconciliation", http.MethodGet, "/v1/reconciliation/2024-01-01", nil},
		{"revoke another user", http.MethodPost, "/v1/token/revoke", url.Values{"user_id": {"u_victim"}}},
		{"introspect", http.MethodPost, "/v1/token/introspect", url.Values{"token": {victim.AccessToken}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, tc.method, tc.path, pair.AccessToken, tc.form)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Equal(t, "invalid_token", decode[paysdk.APIError](t, resp).Code)
		})
	}

	// The victim's family was not touched.
	resp = f.do(t, http.MethodPost, "/v1/token/refresh", "", url.Values{"refresh_token": {victim.RefreshToken}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("store failure is unavailable, not unauthorized", func(t *testing.T) {
		g := newFixture(t, 100)
		admin := g.bearer(t, true)
		require.NoError(t, g.store.Close())
		resp := g.do(t, http.MethodGet, "/v1/reconciliation/2024-01-01", admin, nil)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestForwardedForDoesNotEvadeIPLimit(t *testing.T) {
	refreshFrom := func(t *testing.T, f *fixture, xff string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/v1/token/refresh",
			strings.NewReader(url.Values{"refresh_token": {"nope"}}.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", xff)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode
	}

	t.Run("untrusted peer", func(t *testing.T) {
		f := newFixture(t, 2)
		var codes []int
		for i := range 6 {
			codes = append(codes, refreshFrom(t, f, fmt.Sprintf("203.0.113.%d", i+1)))
		}
		require.Equal(t, []int{400, 400, 429, 429, 429, 429}, codes)
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		proxies, err := httpx.ParseTrustedProxies("127.0.0.1, ::1")
		require.NoError(t, err)
		f := newFixture(t, 2, func(r *httpapi.Router) { r.TrustedProxies = proxies })

		require.Equal(t, http.StatusBadRequest, refreshFrom(t, f, "203.0.113.1"))
		require.Equal(t, http.StatusBadRequest, refreshFrom(t, f, "203.0.113.1"))
		require.Equal(t, http.StatusTooManyRequests, refreshFrom(t, f, "203.0.113.1"))
		require.Equal(t, http.StatusBadRequest, refreshFrom(t, f, "203.0.113.2"))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, 100)
	_, err := f.client().CheckPayment(context.Background(), paysdk.PaymentCheck{IPAddress: "198.51.100.40"})
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(b), "trust_signature_verifications_total")
	require.Contains(t, string(b), "trust_fraud_decisions_total")
}
