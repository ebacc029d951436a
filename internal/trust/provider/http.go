package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
)

// HTTPClient talks to a provider query gateway exposing
//
//	GET {base}/payments/{id}
//	GET {base}/payments?settled_from=RFC3339&settled_to=RFC3339
//
// both returning the normalised JSON shape.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Lister = (*HTTPClient)(nil)
)

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetPayment(ctx context.Context, id string) (domain.ProviderPayment, error) {
	var out domain.ProviderPayment
	err := c.getJSON(ctx, "/payments/"+url.PathEscape(id), &out)
	return out, err
}

func (c *HTTPClient) ListSettled(ctx context.Context, from, to time.Time) ([]domain.ProviderPayment, error) {
	q := url.Values{}
	q.Set("settled_from", from.UTC().Format(time.RFC3339))
	q.Set("settled_to", to.UTC().Format(time.RFC3339))

	var out struct {
		Payments []domain.ProviderPayment `json:"payments"`
	}
	if err := c.getJSON(ctx, "/payments?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Payments, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("provider: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider: decode response: %w", err)
	}
	return nil
}
