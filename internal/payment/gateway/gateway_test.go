package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fabriko/fabriko/internal/config"
	"go.uber.org/zap"
)

func newClient(t *testing.T, serverURL string, timeout time.Duration) Client {
	t.Helper()
	return New(config.BillingConfig{
		ProviderAPIKey:  "sk_test_123",
		ProviderBaseURL: serverURL,
		CheckoutTimeout: timeout,
	}, zap.NewNop())
}

func TestCreateCheckoutSessionURLPrecedence(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"url field", `{"url":"https://pay.example/s/1"}`, "https://pay.example/s/1"},
		{"checkout_url fallback", `{"checkout_url":"https://pay.example/s/2"}`, "https://pay.example/s/2"},
		{"redirect_url fallback", `{"redirect_url":"https://pay.example/s/3"}`, "https://pay.example/s/3"},
		{"nested data.url fallback", `{"data":{"url":"https://pay.example/s/4"}}`, "https://pay.example/s/4"},
		{"url wins over fallbacks", `{"url":"https://pay.example/s/5","checkout_url":"https://pay.example/other"}`, "https://pay.example/s/5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer sk_test_123" {
					t.Errorf("missing bearer token")
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			url, err := newClient(t, server.URL, time.Second).CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
				AmountCents: 4900,
				Currency:    "USD",
			})
			if err != nil {
				t.Fatalf("create session: %v", err)
			}
			if url != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, url)
			}
		})
	}
}

func TestCreateCheckoutSessionNoURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cs_1"}`))
	}))
	defer server.Close()

	_, err := newClient(t, server.URL, time.Second).CreateCheckoutSession(context.Background(), CheckoutSessionRequest{})
	if !errors.Is(err, ErrNoRedirectURL) {
		t.Fatalf("expected ErrNoRedirectURL, got %v", err)
	}
}

func TestCreateCheckoutSessionServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL, time.Second).CreateCheckoutSession(context.Background(), CheckoutSessionRequest{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCreateCheckoutSessionTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"url":"https://pay.example/late"}`))
	}))
	defer server.Close()

	_, err := newClient(t, server.URL, 20*time.Millisecond).CreateCheckoutSession(context.Background(), CheckoutSessionRequest{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("timeout must behave like gateway failure, got %v", err)
	}
}

func TestCreateCheckoutSessionNotConfigured(t *testing.T) {
	client := New(config.BillingConfig{}, zap.NewNop())
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
