package domain

import "time"

// APIKey is a merchant credential used to sign API requests. The secret is
// the HMAC key and is only ever stored encrypted.
type APIKey struct {
	Key             string
	MerchantID      string
	SecretEncrypted string
	CreatedAt       time.Time
	RevokedAt       *time.Time
}

func (k APIKey) Revoked() bool { return k.RevokedAt != nil }
