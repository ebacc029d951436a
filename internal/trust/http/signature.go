package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	"github.com/aussiebroadwan/trustcore/pkg/httpx"
	"github.com/aussiebroadwan/trustcore/pkg/paysdk"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

const maxSignedBody = 1 << 20

type apiKeyCtxKey struct{}

// APIKeyFromContext returns the API key verified by SignatureMiddleware.
func APIKeyFromContext(ctx context.Context) (domain.APIKey, bool) {
	k, ok := ctx.Value(apiKeyCtxKey{}).(domain.APIKey)
	return k, ok
}

// SignatureMiddleware authenticates a merchant request by its HMAC
// signature headers. The body is buffered for hashing and handed on
// unchanged.
func SignatureMiddleware(v *service.SignatureVerifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "malformed_request", "request body too large or unreadable")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key, err := v.Verify(r.Context(), service.SignedRequest{
				APIKey:    r.Header.Get(paysdk.HeaderAPIKey),
				Timestamp: r.Header.Get(paysdk.HeaderTimestamp),
				Nonce:     r.Header.Get(paysdk.HeaderNonce),
				Method:    r.Method,
				Path:      r.URL.Path,
				Body:      body,
				Signature: r.Header.Get(paysdk.HeaderSignature),
			})
			if err != nil {
				writeSignatureError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyCtxKey{}, key)
			ctx = slogx.With(ctx, "api_key", key.Key, "merchant_id", key.MerchantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeSignatureError(w http.ResponseWriter, err error) {
	var authErr *service.AuthError
	switch {
	case errors.As(err, &authErr):
		httpx.WriteError(w, http.StatusUnauthorized, authErr.Code, "request signature rejected")
	case errors.Is(err, service.ErrStorageUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "signature verification unavailable")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "signature verification failed")
	}
}
