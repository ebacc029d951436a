package http

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each dependency as "ok" or "error: ...".
type HealthChecks struct {
	Database string `json:"database"`
	KV       string `json:"kv"`
	Signer   string `json:"signer"`
}

// TokenResponse is the body of a successful refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// IntrospectionResponse follows RFC 7662. Inactive tokens carry only
// "active".
type IntrospectionResponse struct {
	Active bool `json:"active"`

	Sub        string `json:"sub,omitempty"`
	Email      string `json:"email,omitempty"`
	Admin      bool   `json:"adm,omitempty"`
	MerchantID string `json:"mid,omitempty"`
	TokenType  string `json:"token_type,omitempty"`
	Iss        string `json:"iss,omitempty"`
	Jti        string `json:"jti,omitempty"`
	Exp        int64  `json:"exp,omitempty"`
	Iat        int64  `json:"iat,omitempty"`
}

// FailureReport is the body of POST /v1/fraud/failures.
type FailureReport struct {
	IPAddress string `json:"ip_address"`
}
