package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

const (
	cpfLen     = 11
	binLen     = 6
	binLongLen = 8
)

// BlacklistService maintains the CPF and BIN denylists as KV sets.
type BlacklistService struct {
	KV kv.Store
}

func blacklistKey(kind domain.BlacklistKind) string {
	return "fraud:blacklist:" + string(kind)
}

// NormalizeCPF strips punctuation so "123.456.789-09" and "12345678909"
// are the same entry.
func NormalizeCPF(cpf string) string {
	return digitsOnly(cpf)
}

// NormalizeBIN returns the digits of a BIN entry.
func NormalizeBIN(bin string) string {
	return digitsOnly(bin)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalize(kind domain.BlacklistKind, value string) (string, error) {
	switch kind {
	case domain.BlacklistCPF:
		v := NormalizeCPF(value)
		if len(v) != cpfLen {
			return "", fmt.Errorf("cpf must have %d digits", cpfLen)
		}
		return v, nil
	case domain.BlacklistBIN:
		v := NormalizeBIN(value)
		if len(v) != binLen && len(v) != binLongLen {
			return "", fmt.Errorf("bin must have %d or %d digits", binLen, binLongLen)
		}
		return v, nil
	default:
		return "", fmt.Errorf("unknown blacklist kind %q", kind)
	}
}

func (s *BlacklistService) Add(ctx context.Context, kind domain.BlacklistKind, value string) error {
	v, err := normalize(kind, value)
	if err != nil {
		return err
	}
	if err := s.KV.SAdd(ctx, blacklistKey(kind), v); err != nil {
		return storageErr("blacklist add", err)
	}
	slogx.FromContext(ctx).Info("blacklist entry added", "kind", kind)
	return nil
}

func (s *BlacklistService) Remove(ctx context.Context, kind domain.BlacklistKind, value string) error {
	v, err := normalize(kind, value)
	if err != nil {
		return err
	}
	if err := s.KV.SRem(ctx, blacklistKey(kind), v); err != nil {
		return storageErr("blacklist remove", err)
	}
	slogx.FromContext(ctx).Info("blacklist entry removed", "kind", kind)
	return nil
}

// Contains checks an already-normalised value.
func (s *BlacklistService) Contains(ctx context.Context, kind domain.BlacklistKind, value string) (bool, error) {
	ok, err := s.KV.SIsMember(ctx, blacklistKey(kind), value)
	if err != nil {
		return false, storageErr("blacklist lookup", err)
	}
	return ok, nil
}

func (s *BlacklistService) List(ctx context.Context, kind domain.BlacklistKind) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown blacklist kind %q", kind)
	}
	members, err := s.KV.SMembers(ctx, blacklistKey(kind))
	if err != nil {
		return nil, storageErr("blacklist list", err)
	}
	return members, nil
}
