package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAccessTokenTTL keeps access tokens short-lived since they are
	// validated without a storage round trip.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the lifetime of an unused refresh token.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Claims are the access-token claims shared by every service that accepts
// our tokens.
type Claims struct {
	jwt.RegisteredClaims

	Email      string `json:"email,omitempty"`
	IsAdmin    bool   `json:"adm,omitempty"`
	MerchantID string `json:"mid,omitempty"`

	// Generation is the subject's token-family epoch at issue time. A token
	// whose generation is behind the stored epoch was issued before the last
	// family revocation.
	Generation int64 `json:"gen"`
}

// AccessClaimsParams collects the inputs for NewAccessClaims.
type AccessClaimsParams struct {
	Subject    string
	Email      string
	IsAdmin    bool
	MerchantID string
	Generation int64
	Issuer     string
	TTL        time.Duration
	Now        time.Time
}

// NewAccessClaims builds claims with iat/nbf at p.Now and a random jti.
func NewAccessClaims(p AccessClaimsParams) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		Email:      p.Email,
		IsAdmin:    p.IsAdmin,
		MerchantID: p.MerchantID,
		Generation: p.Generation,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer when one is expected.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}
