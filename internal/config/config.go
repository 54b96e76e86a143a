// Package config loads application configuration from environment
// variables. Required variables halt startup when missing; tunables fall
// back to safe defaults.
package config

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret used to verify access tokens
	RabbitURL string // AMQP broker URL for outbound facts

	ProviderName    string // payment provider slug recorded on orders
	ProviderBaseURL string // provider REST API base URL
	ProviderAPIKey  string // key for charge initiation
	WebhookSecret   string // shared HMAC secret for webhook verification

	ReservationTTL    time.Duration // seat hold lifetime
	OrderTTL          time.Duration // pending order lifetime
	CheckoutAllowance time.Duration // time budgeted between reserving and creating the order
	DefaultFeeBps     uint32        // fee used before any config row exists
	BcryptCost        int           // bcrypt cost for ticket secret hashing
}

// Load reads configuration from the environment. Missing required
// variables are fatal.
func Load() Config {
	return Config{
		Env:             must("APP_ENV"),
		Port:            must("APP_PORT"),
		DBUser:          must("DB_USER"),
		DBPass:          os.Getenv("DB_PASS"),
		DBHost:          must("DB_HOST"),
		DBPort:          must("DB_PORT"),
		DBName:          must("DB_NAME"),
		JWTSecret:       must("JWT_SECRET"),
		RabbitURL:       os.Getenv("RABBITMQ_URL"),
		ProviderName:    must("PROVIDER_NAME"),
		ProviderBaseURL: must("PROVIDER_BASE_URL"),
		ProviderAPIKey:  must("PROVIDER_API_KEY"),
		WebhookSecret:   must("PROVIDER_WEBHOOK_SECRET"),
		ReservationTTL:    envDur("RESERVATION_TTL", 10*time.Minute),
		OrderTTL:          envDur("ORDER_TTL", 8*time.Minute),
		CheckoutAllowance: envDur("CHECKOUT_ALLOWANCE", 2*time.Minute),
		DefaultFeeBps:     uint32(envInt("DEFAULT_FEE_BPS", 500)),
		BcryptCost:        envInt("BCRYPT_COST", 12),
	}
}

// Validate checks cross-field invariants. The reservation's clock
// starts at reserve time, before the order's does, so the hold must
// outlive the order by at least the checkout allowance covering that
// gap. With less headroom a payment landing near the order deadline
// finds the hold already lapsed and the finalization rolls back after
// the buyer was charged.
func (c Config) Validate() error {
	if c.ReservationTTL <= 0 || c.OrderTTL <= 0 {
		return fmt.Errorf("ttls must be positive: reservation=%s order=%s", c.ReservationTTL, c.OrderTTL)
	}
	if c.CheckoutAllowance < 0 {
		return fmt.Errorf("checkout allowance %s is negative", c.CheckoutAllowance)
	}
	if c.OrderTTL+c.CheckoutAllowance > c.ReservationTTL {
		return fmt.Errorf("order ttl %s plus checkout allowance %s exceeds reservation ttl %s", c.OrderTTL, c.CheckoutAllowance, c.ReservationTTL)
	}
	if c.DefaultFeeBps > 10_000 {
		return fmt.Errorf("default fee %d bps exceeds 100%%", c.DefaultFeeBps)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost %d outside 4..31", c.BcryptCost)
	}
	return nil
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
