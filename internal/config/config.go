package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	HTTPAddr string

	Billing BillingConfig
}

// BillingConfig carries the payment-provider knobs consumed by the billing
// core. SkipPayment is injected here once at startup so the checkout bypass is
// auditable instead of being read ad hoc from the environment.
type BillingConfig struct {
	ProviderAPIKey  string
	ProviderBaseURL string
	WebhookSecret   string
	SkipPayment     bool
	FrontendBaseURL string
	CheckoutTimeout time.Duration
}

const defaultProviderBaseURL = "https://api.payfabric.io/v1"

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "fabriko"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "fabriko"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		Billing: BillingConfig{
			ProviderAPIKey:  strings.TrimSpace(getenv("PAYMENT_PROVIDER_API_KEY", "")),
			ProviderBaseURL: strings.TrimSpace(getenv("PAYMENT_PROVIDER_BASE_URL", defaultProviderBaseURL)),
			WebhookSecret:   strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
			SkipPayment:     getenvBool("BILLING_SKIP_PAYMENT", false),
			FrontendBaseURL: strings.TrimRight(getenv("FRONTEND_BASE_URL", "http://localhost:5173"), "/"),
			CheckoutTimeout: getenvDuration("BILLING_CHECKOUT_TIMEOUT", 15*time.Second),
		},
	}

	// The checkout bypass must never be reachable in production.
	if cfg.Environment == "production" {
		cfg.Billing.SkipPayment = false
	}

	return cfg
}

// GatewayConfigured reports whether the outbound checkout client has the
// credentials it needs. Absence degrades gracefully instead of failing startup.
func (b BillingConfig) GatewayConfigured() bool {
	return b.ProviderAPIKey != ""
}

func (b BillingConfig) WebhookSecretConfigured() bool {
	return b.WebhookSecret != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
