// Package gateway wraps the payment provider's hosted-checkout API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabriko/fabriko/internal/config"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("gateway_not_configured")
	ErrNoRedirectURL = errors.New("gateway_no_redirect_url")
	ErrUnavailable   = errors.New("gateway_unavailable")
)

// CheckoutSessionRequest describes the charge the provider should collect.
type CheckoutSessionRequest struct {
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	SuccessURL  string            `json:"success_url"`
	CancelURL   string            `json:"cancel_url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Client creates hosted checkout sessions. The remote is treated as
// unreliable: every failure mode surfaces as an error the orchestrator turns
// into a structured, retryable outcome.
type Client interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error)
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func New(cfg config.BillingConfig, log *zap.Logger) Client {
	timeout := cfg.CheckoutTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(cfg.ProviderBaseURL, "/"),
		apiKey:  cfg.ProviderAPIKey,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("payment.gateway"),
	}
}

// sessionResponse covers the provider's response shapes. Different API
// versions have reported the redirect target under different keys, so
// extraction follows a single documented precedence.
type sessionResponse struct {
	URL         string `json:"url"`
	CheckoutURL string `json:"checkout_url"`
	RedirectURL string `json:"redirect_url"`
	Data        struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Precedence: url, then checkout_url, then redirect_url, then data.url.
var redirectURLExtractors = []func(sessionResponse) string{
	func(r sessionResponse) string { return r.URL },
	func(r sessionResponse) string { return r.CheckoutURL },
	func(r sessionResponse) string { return r.RedirectURL },
	func(r sessionResponse) string { return r.Data.URL },
}

func (c *httpClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("checkout session request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("checkout session rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var session sessionResponse
	if err := json.Unmarshal(respBody, &session); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, extract := range redirectURLExtractors {
		if url := strings.TrimSpace(extract(session)); url != "" {
			return url, nil
		}
	}
	return "", ErrNoRedirectURL
}
