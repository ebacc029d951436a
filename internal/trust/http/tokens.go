package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	"github.com/aussiebroadwan/trustcore/pkg/cryptox"
	"github.com/aussiebroadwan/trustcore/pkg/httpx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

// TokenHandler serves refresh, revoke and introspection. Bodies are
// application/x-www-form-urlencoded as in RFC 6749.
type TokenHandler struct {
	TokenService *service.TokenService
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "content type must be application/x-www-form-urlencoded")
		return false
	}
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return false
	}
	return true
}

// HandleRefresh godoc
//
//	@Summary		Refresh tokens
//	@Description	Redeems a refresh token once and returns a new pair. Presenting an already used token revokes every token of its owner.
//	@Tags			Tokens
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			refresh_token	formData	string				true	"Refresh token"
//	@Success		200				{object}	TokenResponse
//	@Failure		400				{object}	httpx.ErrorResponse	"invalid_grant"
//	@Failure		503				{object}	httpx.ErrorResponse	"storage unavailable"
//	@Header			200				{string}	Cache-Control		"no-store"
//	@Router			/v1/token/refresh [post].
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	token := r.Form.Get("refresh_token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.TokenService.Refresh(r.Context(), token)
	if err != nil {
		var authErr *service.AuthError
		if errors.As(err, &authErr) {
			slogx.FromContext(r.Context()).Info("refresh rejected",
				"reason", authErr.Code,
				"token_fp", cryptox.FingerprintToken(token),
			)
			httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", authErr.Code)
			return
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "token store unavailable")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	})
}

// HandleRevoke godoc
//
//	@Summary		Revoke a token family
//	@Description	Revokes every refresh token of the caller. Admins may name another user with user_id.
//	@Tags			Tokens
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		BearerAuth
//	@Param			user_id	formData	string	false	"User to revoke (admin only)"
//	@Success		200		"revoked"
//	@Failure		401		{object}	httpx.ErrorResponse	"missing or invalid token"
//	@Failure		403		{object}	httpx.ErrorResponse	"admin required for user_id"
//	@Router			/v1/token/revoke [post].
func (h *TokenHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !parseForm(w, r) {
		return
	}

	userID := httpx.UserIDFromContext(ctx)
	if target := r.Form.Get("user_id"); target != "" && target != userID {
		claims, _ := httpx.ClaimsFromContext(ctx)
		if !claims.IsAdmin {
			httpx.WriteError(w, http.StatusForbidden, "insufficient_scope", "admin access required")
			return
		}
		userID = target
	}

	if err := h.TokenService.RevokeRefreshTokens(ctx, userID); err != nil {
		slogx.FromContext(ctx).Error("revoke token family", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "token store unavailable")
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

// HandleIntrospect godoc
//
//	@Summary		Introspect an access token
//	@Description	RFC 7662 introspection. Tokens minted before their owner's last revocation are inactive.
//	@Tags			Tokens
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		BearerAuth
//	@Param			token	formData	string					true	"Access token"
//	@Success		200		{object}	IntrospectionResponse
//	@Failure		400		{object}	httpx.ErrorResponse		"missing token"
//	@Failure		401		{object}	httpx.ErrorResponse		"missing or invalid bearer"
//	@Router			/v1/token/introspect [post].
func (h *TokenHandler) HandleIntrospect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !parseForm(w, r) {
		return
	}
	token := r.Form.Get("token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	claims, err := h.TokenService.ValidateAccessTokenFresh(ctx, token)
	if err != nil {
		slogx.FromContext(ctx).Debug("introspected token inactive", "err", err)
		httpx.WriteJSON(w, http.StatusOK, IntrospectionResponse{Active: false})
		return
	}

	resp := IntrospectionResponse{
		Active:     true,
		Sub:        claims.Subject,
		Email:      claims.Email,
		Admin:      claims.IsAdmin,
		MerchantID: claims.MerchantID,
		TokenType:  "Bearer",
		Iss:        claims.Issuer,
		Jti:        claims.ID,
	}
	if claims.ExpiresAt != nil {
		resp.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.Iat = claims.IssuedAt.Unix()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
