package service

var (
	SignatureVerifications = signatureVerifications
	RateLimitDecisions     = rateLimitDecisions
	FraudDecisions         = fraudDecisions
	RefreshRedemptions     = refreshRedemptions
	ReconciliationRecords  = reconciliationRecords
)
