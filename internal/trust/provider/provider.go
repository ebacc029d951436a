// Package provider queries payment providers for their view of a payment.
// Payload formats differ per provider; clients here return the normalised
// domain.ProviderPayment shape only.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
)

// ErrNotFound means the provider has no record of the payment. It is a
// definite answer, unlike a transport failure.
var ErrNotFound = errors.New("provider: payment not found")

type Client interface {
	GetPayment(ctx context.Context, providerPaymentID string) (domain.ProviderPayment, error)
}

// Lister is implemented by providers that can enumerate their settled
// payments. Only those can surface payments missing from our ledger.
type Lister interface {
	ListSettled(ctx context.Context, from, to time.Time) ([]domain.ProviderPayment, error)
}

// Registry maps provider names, as stored on domain.Payment, to clients.
type Registry map[string]Client

func (r Registry) Get(name string) (Client, bool) {
	c, ok := r[name]
	return c, ok
}

// Names returns the registered providers in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseEndpoints parses "name=baseURL,name2=baseURL2".
func ParseEndpoints(s string) (map[string]string, error) {
	out := make(map[string]string)
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url, ok := strings.Cut(part, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("provider: bad endpoint %q, want name=url", part)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("provider: duplicate provider %q", name)
		}
		out[name] = url
	}
	return out, nil
}

// NewHTTPRegistry builds an HTTPClient per endpoint.
func NewHTTPRegistry(endpoints map[string]string, timeout time.Duration) Registry {
	reg := make(Registry, len(endpoints))
	for name, url := range endpoints {
		reg[name] = NewHTTPClient(url, timeout)
	}
	return reg
}
