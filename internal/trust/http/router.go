package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	"github.com/aussiebroadwan/trustcore/internal/trust/store"
	"github.com/aussiebroadwan/trustcore/pkg/httpx"
	"github.com/aussiebroadwan/trustcore/pkg/jwtx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/aussiebroadwan/trustcore/api/trustcore" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	kv    kv.Store

	TokenService      *service.TokenService
	SignatureVerifier *service.SignatureVerifier
	RateLimiter       *service.RateLimiter
	FraudEngine       *service.FraudEngine
	Reconciler        *service.Reconciler

	// TrustedProxies decides when forwarding headers name the client. Nil
	// trusts no proxy and keys on the direct peer.
	TrustedProxies *httpx.TrustedProxies
}

func NewRouter(
	keys *jwtx.KeySet,
	buildVersion string,
	st store.Store,
	kvs kv.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		kv:           kvs,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerTokens()
	r.registerPayments()
	r.registerReconciliation()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			trustcore API
//	@version		0.1.0
//	@description	Request signing, token, fraud and reconciliation endpoints of the payment trust core.
//	@description
//	@description				Merchant endpoints are authenticated with HMAC-SHA256 request signatures.
//	@description				Operator endpoints take a bearer access token verifiable through the JWKS endpoint.
//
//	@BasePath					/
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
//
//	@securityDefinitions.apikey	SignedRequest
//	@in							header
//	@name						X-Signature
//	@description				Hex HMAC-SHA256 of the canonical request, sent with X-Api-Key, X-Timestamp and X-Nonce.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// limiter adapts the shared fixed-window limiter to httpx.
func (r *Router) limiter() httpx.Limiter {
	return httpx.LimiterFunc(func(ctx context.Context, key string) (httpx.RateDecision, error) {
		d, err := r.RateLimiter.CheckDefault(ctx, key)
		return httpx.RateDecision{
			Allowed:   d.Allowed,
			Limit:     d.Limit,
			Remaining: d.Remaining,
			ResetAt:   d.ResetAt,
		}, err
	})
}

// authn checks bearer tokens against the token family epoch, so an access
// token dies with its family instead of at expiry.
func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(httpx.AuthenticatorFunc(func(ctx context.Context, token string) (jwtx.Claims, error) {
		claims, err := r.TokenService.ValidateAccessTokenFresh(ctx, token)
		if errors.Is(err, service.ErrStorageUnavailable) {
			return jwtx.Claims{}, fmt.Errorf("%w: %w", httpx.ErrAuthUnavailable, err)
		}
		return claims, err
	}))
}

// clientIP is the rate-limit and fraud key for unauthenticated callers.
func (r *Router) clientIP(req *http.Request) string {
	return r.TrustedProxies.ClientIP(req)
}

// rateLimitBy returns the rate-limit middleware keyed by prefix plus the
// extractor's value, or a pass-through when no limiter is configured.
func (r *Router) rateLimitBy(prefix string, extract httpx.KeyExtractor) httpx.Middleware {
	if r.RateLimiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return httpx.RateLimitMiddleware(r.limiter(), func(req *http.Request) string {
		if k := extract(req); k != "" {
			return prefix + ":" + k
		}
		return ""
	})
}

func (r *Router) registerTokens() {
	tokens := &TokenHandler{TokenService: r.TokenService}

	r.Mux.Handle("POST /v1/token/refresh",
		httpx.Chain(http.HandlerFunc(tokens.HandleRefresh),
			r.rateLimitBy("ip", r.clientIP),
		),
	)
	r.Mux.Handle("POST /v1/token/revoke",
		httpx.Chain(http.HandlerFunc(tokens.HandleRevoke),
			r.authn(),
			r.rateLimitBy("user", userKey),
		),
	)
	r.Mux.Handle("POST /v1/token/introspect",
		httpx.Chain(http.HandlerFunc(tokens.HandleIntrospect),
			r.authn(),
			r.rateLimitBy("user", userKey),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json", JWKSHandler(r.keys))
}

func (r *Router) registerPayments() {
	h := &PaymentsHandler{FraudEngine: r.FraudEngine, ClientIP: r.clientIP}

	// Signature first so the limiter keys on a verified API key.
	signed := func(next http.HandlerFunc) http.Handler {
		return httpx.Chain(next,
			SignatureMiddleware(r.SignatureVerifier),
			r.rateLimitBy("ak", apiKeyKey),
		)
	}

	r.Mux.Handle("POST /v1/payments/check", signed(h.HandleCheck))
	r.Mux.Handle("POST /v1/fraud/failures", signed(h.HandleFailure))
}

func (r *Router) registerReconciliation() {
	h := &ReconciliationHandler{Reconciler: r.Reconciler}

	admin := func(next http.HandlerFunc) http.Handler {
		return httpx.Chain(next,
			r.authn(),
			httpx.RequireAdmin,
			r.rateLimitBy("user", userKey),
		)
	}

	r.Mux.Handle("GET /v1/reconciliation/{date}", admin(h.HandleGet))
	r.Mux.Handle("POST /v1/reconciliation/{date}", admin(h.HandleRun))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.kv, r.keys))
	r.Mux.Handle("GET /metrics", promhttp.Handler())
}

func userKey(r *http.Request) string {
	return httpx.UserIDFromContext(r.Context())
}

func apiKeyKey(r *http.Request) string {
	k, _ := APIKeyFromContext(r.Context())
	return k.Key
}
