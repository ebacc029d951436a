package paysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls the signed merchant endpoints.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Signer     *RequestSigner
}

func NewClient(baseURL, apiKey, secret string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Signer: NewRequestSigner(apiKey, secret),
	}
}

// PaymentCheck is the body of a pre-authorisation fraud check.
type PaymentCheck struct {
	IPAddress   string `json:"ip_address"`
	CPF         string `json:"cpf"`
	BIN         string `json:"bin"`
	AmountCents int64  `json:"amount_cents"`
}

// CheckResult mirrors the server's decision.
type CheckResult struct {
	Allowed       bool   `json:"allowed"`
	TriggeredRule string `json:"triggered_rule,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// CheckPayment asks the server whether a payment attempt may proceed. A fraud
// rejection is returned as a result with Allowed=false, not as an error.
func (c *Client) CheckPayment(ctx context.Context, in PaymentCheck) (*CheckResult, error) {
	var out CheckResult
	if err := c.postSigned(ctx, "/v1/payments/check", in, &out, http.StatusOK, http.StatusForbidden); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportFailure records a failed payment attempt from ip.
func (c *Client) ReportFailure(ctx context.Context, ip string) error {
	return c.postSigned(ctx, "/v1/fraud/failures", map[string]string{"ip_address": ip}, nil, http.StatusNoContent)
}

func (c *Client) postSigned(ctx context.Context, path string, in, out any, okCodes ...int) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("paysdk: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("paysdk: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.Signer.SignRequest(req); err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("paysdk: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	for _, code := range okCodes {
		if resp.StatusCode != code {
			continue
		}
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("paysdk: decode response: %w", err)
		}
		return nil
	}
	return parseErrorResponse(resp)
}
