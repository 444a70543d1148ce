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

	HTTPAddr string

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

	RedisAddr     string
	RedisPassword string

	// WebhookTimeout bounds the whole inbound webhook path: signature check,
	// detail fetch and ledger mutation. On expiry the handler fails so the
	// gateway retries.
	WebhookTimeout time.Duration

	Gateways GatewaysConfig

	Email EmailConfig

	DefaultPlanSlug string
}

// GatewaysConfig carries per-gateway verification and API credentials. Secrets
// are injected into the adapters at construction time; nothing reads them from
// ambient process state after startup.
type GatewaysConfig struct {
	// AllowUnverified runs gateways with no configured webhook secret in a
	// loudly-logged degraded mode instead of rejecting every delivery. It is
	// an explicit deployment choice and defaults to off.
	AllowUnverified bool

	MercadoPago GatewayConfig
	Stripe      GatewayConfig
}

// GatewayConfig configures one gateway adapter.
type GatewayConfig struct {
	WebhookSecret string
	APIBaseURL    string
	APIToken      string
}

// EmailConfig configures the best-effort SMTP notification provider.
type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "docuflow-billing"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "billing"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		WebhookTimeout: getenvDuration("WEBHOOK_TIMEOUT", 25*time.Second),

		Gateways: GatewaysConfig{
			AllowUnverified: getenvBool("WEBHOOK_ALLOW_UNVERIFIED", false),
			MercadoPago: GatewayConfig{
				WebhookSecret: strings.TrimSpace(getenv("MERCADOPAGO_WEBHOOK_SECRET", "")),
				APIBaseURL:    getenv("MERCADOPAGO_API_BASE_URL", "https://api.mercadopago.com"),
				APIToken:      strings.TrimSpace(getenv("MERCADOPAGO_ACCESS_TOKEN", "")),
			},
			Stripe: GatewayConfig{
				WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
				APIBaseURL:    getenv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
				APIToken:      strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			},
		},

		Email: EmailConfig{
			Enabled:      getenvBool("EMAIL_ENABLED", false),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@docuflow.io"),
		},

		DefaultPlanSlug: getenv("DEFAULT_PLAN_SLUG", "free"),
	}
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
