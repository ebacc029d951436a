package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Rejection is a rule's verdict against an attempt.
type Rejection struct {
	Reason string
}

// Rule is one step of the fraud chain. Evaluate returns nil to pass.
type Rule interface {
	Name() domain.FraudRule
	Evaluate(ctx context.Context, attempt domain.PaymentAttempt) (*Rejection, error)
}

// FraudPolicy holds the tunables of the built-in rules.
type FraudPolicy struct {
	VelocityLimit  int
	VelocityWindow time.Duration

	// An IP with FailureThreshold failures inside FailureWindow is blocked
	// for BlockTTL.
	FailureThreshold int
	FailureWindow    time.Duration
	BlockTTL         time.Duration
}

func DefaultFraudPolicy() FraudPolicy {
	return FraudPolicy{
		VelocityLimit:    10,
		VelocityWindow:   10 * time.Minute,
		FailureThreshold: 5,
		FailureWindow:    15 * time.Minute,
		BlockTTL:         time.Hour,
	}
}

// FraudEngine runs Rules in order; the first rejection wins and later rules
// are not evaluated.
type FraudEngine struct {
	KV     kv.Store
	Policy FraudPolicy
	Rules  []Rule
}

// NewFraudEngine wires the built-in chain: adaptive IP block, IP velocity,
// CPF blacklist, BIN blacklist.
func NewFraudEngine(store kv.Store, policy FraudPolicy, now func() time.Time) *FraudEngine {
	e := &FraudEngine{KV: store, Policy: policy}
	blacklist := &BlacklistService{KV: store}
	velocity := &RateLimiter{KV: store, Prefix: "fraud:velocity", Now: now}

	e.Rules = []Rule{
		&adaptiveIPBlockRule{engine: e},
		&ipVelocityRule{limiter: velocity, limit: policy.VelocityLimit, window: policy.VelocityWindow},
		&cpfBlacklistRule{blacklist: blacklist},
		&binBlacklistRule{blacklist: blacklist},
	}
	return e
}

// CheckPayment scores attempt. A storage failure denies, naming the rule
// that could not be evaluated, and returns an error wrapping
// ErrStorageUnavailable.
func (e *FraudEngine) CheckPayment(ctx context.Context, attempt domain.PaymentAttempt) (domain.AntifraudResult, error) {
	ctx, span := tracer.Start(ctx, "FraudEngine.CheckPayment",
		trace.WithAttributes(attribute.Int("fraud.rules", len(e.Rules))),
	)
	defer span.End()

	log := slogx.FromContext(ctx)

	for _, rule := range e.Rules {
		rej, err := rule.Evaluate(ctx, attempt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule evaluation failed")
			fraudDecisions.WithLabelValues("error").Inc()
			log.Error("fraud rule failed; denying", "rule", rule.Name(), "ip", attempt.IPAddress, "err", err)
			return domain.Reject(rule.Name(), "fraud check unavailable"), err
		}
		if rej != nil {
			span.SetAttributes(attribute.String("fraud.rule", string(rule.Name())))
			fraudDecisions.WithLabelValues(string(rule.Name())).Inc()
			log.Warn("payment rejected by fraud rule", "rule", rule.Name(), "ip", attempt.IPAddress, "reason", rej.Reason)
			return domain.Reject(rule.Name(), rej.Reason), nil
		}
	}

	fraudDecisions.WithLabelValues("none").Inc()
	return domain.Allow(), nil
}

func failKey(ip string) string  { return "fraud:fail:" + ip }
func blockKey(ip string) string { return "fraud:block:" + ip }

// RecordFailedAttempt counts a downstream payment failure from ip. Reaching
// the threshold inside the failure window blocks the IP for BlockTTL.
func (e *FraudEngine) RecordFailedAttempt(ctx context.Context, ip string) error {
	if ip == "" {
		return fmt.Errorf("ip address is required")
	}
	n, err := e.KV.IncrWithTTL(ctx, failKey(ip), e.Policy.FailureWindow)
	if err != nil {
		return storageErr("count failed attempt", err)
	}
	if n < int64(e.Policy.FailureThreshold) {
		return nil
	}
	if err := e.KV.Set(ctx, blockKey(ip), "1", e.Policy.BlockTTL); err != nil {
		return storageErr("block ip", err)
	}
	if n == int64(e.Policy.FailureThreshold) {
		slogx.FromContext(ctx).Warn("ip blocked after repeated failures", "ip", ip, "failures", n, "block_ttl", e.Policy.BlockTTL)
	}
	return nil
}

func (e *FraudEngine) IsIPBlocked(ctx context.Context, ip string) (bool, error) {
	ok, err := e.KV.Exists(ctx, blockKey(ip))
	if err != nil {
		return false, storageErr("lookup ip block", err)
	}
	return ok, nil
}

// UnblockIP clears a block and its failure counter.
func (e *FraudEngine) UnblockIP(ctx context.Context, ip string) error {
	if err := e.KV.Del(ctx, blockKey(ip), failKey(ip)); err != nil {
		return storageErr("unblock ip", err)
	}
	slogx.FromContext(ctx).Info("ip unblocked", "ip", ip)
	return nil
}

// Screen is CheckPayment as an error: nil to proceed, a *FraudRejectedError
// naming the rule, or the storage error that caused a deny.
func (e *FraudEngine) Screen(ctx context.Context, attempt domain.PaymentAttempt) error {
	res, err := e.CheckPayment(ctx, attempt)
	if err != nil {
		return err
	}
	if !res.IsAllowed {
		return &FraudRejectedError{Rule: res.TriggeredRule, Reason: res.RejectionReason}
	}
	return nil
}

type adaptiveIPBlockRule struct {
	engine *FraudEngine
}

func (r *adaptiveIPBlockRule) Name() domain.FraudRule { return domain.FraudRuleAdaptiveIPBlock }

func (r *adaptiveIPBlockRule) Evaluate(ctx context.Context, a domain.PaymentAttempt) (*Rejection, error) {
	if a.IPAddress == "" {
		return nil, nil
	}
	blocked, err := r.engine.IsIPBlocked(ctx, a.IPAddress)
	if err != nil || !blocked {
		return nil, err
	}
	return &Rejection{Reason: "ip temporarily blocked after repeated failed payments"}, nil
}

type ipVelocityRule struct {
	limiter *RateLimiter
	limit   int
	window  time.Duration
}

func (r *ipVelocityRule) Name() domain.FraudRule { return domain.FraudRuleIPVelocity }

func (r *ipVelocityRule) Evaluate(ctx context.Context, a domain.PaymentAttempt) (*Rejection, error) {
	if a.IPAddress == "" {
		return nil, nil
	}
	err := r.limiter.Allow(ctx, a.IPAddress, r.limit, r.window)
	switch {
	case errors.Is(err, ErrRateLimited):
		return &Rejection{Reason: fmt.Sprintf("more than %d payment attempts from this ip within %s", r.limit, r.window)}, nil
	case err != nil:
		return nil, err
	}
	return nil, nil
}

type cpfBlacklistRule struct {
	blacklist *BlacklistService
}

func (r *cpfBlacklistRule) Name() domain.FraudRule { return domain.FraudRuleCPFBlacklist }

func (r *cpfBlacklistRule) Evaluate(ctx context.Context, a domain.PaymentAttempt) (*Rejection, error) {
	cpf := NormalizeCPF(a.CPF)
	if cpf == "" {
		return nil, nil
	}
	hit, err := r.blacklist.Contains(ctx, domain.BlacklistCPF, cpf)
	if err != nil || !hit {
		return nil, err
	}
	return &Rejection{Reason: "customer cpf is blacklisted"}, nil
}

type binBlacklistRule struct {
	blacklist *BlacklistService
}

func (r *binBlacklistRule) Name() domain.FraudRule { return domain.FraudRuleBINBlacklist }

// Evaluate checks the 8-digit prefix first, then the 6-digit one, so both
// legacy and extended BIN entries match.
func (r *binBlacklistRule) Evaluate(ctx context.Context, a domain.PaymentAttempt) (*Rejection, error) {
	bin := NormalizeBIN(a.BIN)
	var prefixes []string
	if len(bin) >= binLongLen {
		prefixes = append(prefixes, bin[:binLongLen])
	}
	if len(bin) >= binLen {
		prefixes = append(prefixes, bin[:binLen])
	}

	for _, p := range prefixes {
		hit, err := r.blacklist.Contains(ctx, domain.BlacklistBIN, p)
		if err != nil {
			return nil, err
		}
		if hit {
			return &Rejection{Reason: "card bin is blacklisted"}, nil
		}
	}
	return nil, nil
}
