package domain

import "time"

// Subject is who an access or refresh token is issued to.
type Subject struct {
	UserID     string
	Email      string
	IsAdmin    bool
	MerchantID string
}

// TokenPair is what a refresh returns: a short-lived access token (JWT) and
// the next opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // always "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`
}

// RefreshToken models the stored refresh token record. The claims snapshot
// lets a refresh mint a new access token without a user lookup.
type RefreshToken struct {
	ID              string
	UserID          string
	Email           string
	IsAdmin         bool
	MerchantID      string
	SecretEncrypted string
	Epoch           int64 // family epoch at issue time
	ExpiresAt       time.Time
	ConsumedAt      *time.Time
	CreatedAt       time.Time
}

func (t RefreshToken) Subject() Subject {
	return Subject{
		UserID:     t.UserID,
		Email:      t.Email,
		IsAdmin:    t.IsAdmin,
		MerchantID: t.MerchantID,
	}
}

// Usable reports whether t may still be redeemed at now, ignoring epoch.
func (t RefreshToken) Usable(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}

// TokenFamily is the per-user revocation epoch. Tokens issued under an older
// epoch are dead.
type TokenFamily struct {
	UserID    string
	Epoch     int64
	UpdatedAt time.Time
}
