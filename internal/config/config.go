package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

type Config struct {
	HTTPAddr    string
	ServiceName string
	LogLevel    string

	// Connection strings carry credentials and have no defaults.
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	RabbitURL    string

	// EventsBroker: kafka | rabbitmq | none
	EventsBroker string
	// LedgerBackend: postgres | sqlite | sheets
	LedgerBackend string
	SQLitePath    string

	Razorpay Razorpay
	Stripe   Stripe
	Sheets   Sheets

	SiteURL        string
	GatewayTimeout time.Duration
	LedgerTimeout  time.Duration
	PublishTimeout time.Duration

	ExportGroup   string
	ExportQueue   string
	ExportWorkers int
}

// Secrets are left empty when unset; callers fail closed on them.
type Razorpay struct {
	KeyID       string
	KeySecret   string
	APIURL      string
	AmountMinor int64
	Currency    string
}

type Stripe struct {
	SecretKey     string
	WebhookSecret string
	APIURL        string
	AmountMinor   int64
	Currency      string
	ProductName   string
}

type Sheets struct {
	SpreadsheetID       string
	ServiceAccountEmail string
	PrivateKey          string
	Range               string
}

func Load() Config {
	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8081"),
		ServiceName:  getenv("SERVICE_NAME", "checkout-api"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "kafka:9092")),
		RabbitURL:    os.Getenv("RABBIT_URL"),

		EventsBroker:  strings.ToLower(getenv("EVENTS_BROKER", "kafka")),
		LedgerBackend: strings.ToLower(getenv("LEDGER_BACKEND", "postgres")),
		SQLitePath:    getenv("SQLITE_PATH", "ledger.db"),

		Razorpay: Razorpay{
			KeyID:       os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:   os.Getenv("RAZORPAY_KEY_SECRET"),
			APIURL:      strings.TrimRight(getenv("RAZORPAY_API_URL", "https://api.razorpay.com"), "/"),
			AmountMinor: parseInt64("RAZORPAY_AMOUNT_MINOR", 60000),
			Currency:    strings.ToUpper(getenv("RAZORPAY_CURRENCY", "INR")),
		},
		Stripe: Stripe{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			APIURL:        strings.TrimRight(getenv("STRIPE_API_URL", "https://api.stripe.com"), "/"),
			AmountMinor:   parseInt64("STRIPE_AMOUNT_MINOR", 4900),
			Currency:      strings.ToUpper(getenv("STRIPE_CURRENCY", "USD")),
			ProductName:   getenv("STRIPE_PRODUCT_NAME", "Trading Signals Membership"),
		},
		Sheets: Sheets{
			SpreadsheetID:       os.Getenv("GOOGLE_SHEET_ID"),
			ServiceAccountEmail: os.Getenv("GOOGLE_SERVICE_ACCOUNT_EMAIL"),
			PrivateKey:          normalizePrivateKey(os.Getenv("GOOGLE_PRIVATE_KEY")),
			Range:               getenv("LEDGER_SHEET_RANGE", "Sheet1!A:G"),
		},

		SiteURL:        strings.TrimRight(getenv("SITE_URL", "http://localhost:3000"), "/"),
		GatewayTimeout: parseDuration("GATEWAY_TIMEOUT", 10*time.Second),
		LedgerTimeout:  parseDuration("LEDGER_TIMEOUT", 5*time.Second),
		PublishTimeout: parseDuration("PUBLISH_TIMEOUT", 2*time.Second),

		ExportGroup:   getenv("EXPORT_GROUP", "ledger-export"),
		ExportQueue:   getenv("EXPORT_QUEUE", "ledger.export"),
		ExportWorkers: parseInt("EXPORT_WORKERS", 4),
	}
}

// Prices is the server-side price book. Values come only from configuration.
func (c Config) Prices() checkout.PriceBook {
	return checkout.PriceBook{
		checkout.GatewayRazorpay: {AmountMinor: c.Razorpay.AmountMinor, Currency: c.Razorpay.Currency},
		checkout.GatewayStripe:   {AmountMinor: c.Stripe.AmountMinor, Currency: c.Stripe.Currency},
	}
}

// RequestTimeout bounds a whole request: the slowest path makes one gateway
// call, one ledger append and one publish in sequence.
func (c Config) RequestTimeout() time.Duration {
	return c.GatewayTimeout + c.LedgerTimeout + c.PublishTimeout + 2*time.Second
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseDuration(key string, def time.Duration) time.Duration {
	if raw, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if raw, ok := os.LookupEnv(key); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

// Unparseable or non-positive amounts load as 0 so the price book rejects them.
func parseInt64(key string, def int64) int64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

// Private keys pasted into env files usually carry literal "\n" sequences.
func normalizePrivateKey(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
