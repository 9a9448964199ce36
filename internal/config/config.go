package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Gateway names accepted in GATEWAY and in the settings row.
const (
	GatewayMercadoPago = "mercadopago"
	GatewayPagBank     = "pagbank"
)

type Config struct {
	HTTPAddr      string
	PostgresDSN   string
	RedisAddr     string
	PublicBaseURL string

	// Default gateway when the settings row does not exist yet.
	Gateway          string
	MercadoPagoToken string
	PagBankToken     string

	AdminUser     string
	AdminPassHash string // bcrypt
	JWTSecret     string

	// SMTP is optional: when empty the order-email dispatcher is disabled.
	SMTPHost  string
	SMTPPort  string
	SMTPUser  string
	SMTPPass  string
	MailFrom  string
	MailTo    string
	StoreName string

	MigrationsDir string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads .env (if present) plus the environment and validates that
// everything the payment flow depends on is actually set. Missing credentials
// must fail here, not as a silent no-op deep inside a webhook handler.
func Load() (Config, error) {
	_ = godotenv.Load() // load .env if it exists

	cfg := Config{
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		PublicBaseURL:    strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		Gateway:          getenv("GATEWAY", GatewayMercadoPago),
		MercadoPagoToken: os.Getenv("MERCADOPAGO_ACCESS_TOKEN"),
		PagBankToken:     os.Getenv("PAGBANK_TOKEN"),
		AdminUser:        os.Getenv("ADMIN_USER"),
		AdminPassHash:    os.Getenv("ADMIN_PASS_HASH"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getenv("SMTP_PORT", "587"),
		SMTPUser:         os.Getenv("SMTP_USER"),
		SMTPPass:         os.Getenv("SMTP_PASS"),
		MailFrom:         os.Getenv("MAIL_FROM"),
		MailTo:           os.Getenv("MAIL_TO"),
		StoreName:        getenv("STORE_NAME", "Fácil Material de Construção"),
		MigrationsDir:    getenv("MIGRATIONS_DIR", "migrations"),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("config: POSTGRES_DSN is required")
	}
	if cfg.PublicBaseURL == "" {
		return Config{}, fmt.Errorf("config: PUBLIC_BASE_URL is required (webhook callback URL)")
	}
	switch cfg.Gateway {
	case GatewayMercadoPago, GatewayPagBank:
	default:
		return Config{}, fmt.Errorf("config: GATEWAY must be %q or %q, got %q",
			GatewayMercadoPago, GatewayPagBank, cfg.Gateway)
	}
	if cfg.Gateway == GatewayMercadoPago && cfg.MercadoPagoToken == "" {
		return Config{}, fmt.Errorf("config: MERCADOPAGO_ACCESS_TOKEN is required for gateway %q", cfg.Gateway)
	}
	if cfg.Gateway == GatewayPagBank && cfg.PagBankToken == "" {
		return Config{}, fmt.Errorf("config: PAGBANK_TOKEN is required for gateway %q", cfg.Gateway)
	}
	if cfg.AdminUser == "" || cfg.AdminPassHash == "" {
		return Config{}, fmt.Errorf("config: ADMIN_USER and ADMIN_PASS_HASH are required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}
	return cfg, nil
}

// MailEnabled reports whether the SMTP side channel is fully configured.
func (c Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPass != "" && c.MailFrom != "" && c.MailTo != ""
}

// WebhookURL builds the callback URL registered with the provider.
func (c Config) WebhookURL(path string) string {
	return c.PublicBaseURL + path
}
