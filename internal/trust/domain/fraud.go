package domain

// FraudRule names a rule in the fraud chain.
type FraudRule string

const (
	FraudRuleAdaptiveIPBlock FraudRule = "ADAPTIVE_IP_BLOCK"
	FraudRuleIPVelocity      FraudRule = "IP_VELOCITY"
	FraudRuleCPFBlacklist    FraudRule = "CPF_BLACKLIST"
	FraudRuleBINBlacklist    FraudRule = "BIN_BLACKLIST"
)

// BlacklistKind selects a denylist.
type BlacklistKind string

const (
	BlacklistCPF BlacklistKind = "cpf"
	BlacklistBIN BlacklistKind = "bin"
)

func (k BlacklistKind) Valid() bool {
	return k == BlacklistCPF || k == BlacklistBIN
}

// PaymentAttempt is what the fraud engine scores. CPF and BIN are optional.
type PaymentAttempt struct {
	IPAddress   string `json:"ip_address"`
	CPF         string `json:"cpf,omitempty"`
	BIN         string `json:"bin,omitempty"`
	AmountCents int64  `json:"amount_cents"`
}

// AntifraudResult is either an allow (no reason, no rule) or a rejection
// carrying both.
type AntifraudResult struct {
	IsAllowed       bool      `json:"allowed"`
	RejectionReason string    `json:"reason,omitempty"`
	TriggeredRule   FraudRule `json:"triggered_rule,omitempty"`
}

func Allow() AntifraudResult { return AntifraudResult{IsAllowed: true} }

func Reject(rule FraudRule, reason string) AntifraudResult {
	return AntifraudResult{RejectionReason: reason, TriggeredRule: rule}
}
