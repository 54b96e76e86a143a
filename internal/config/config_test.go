package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		ReservationTTL:    10 * time.Minute,
		OrderTTL:          8 * time.Minute,
		CheckoutAllowance: 2 * time.Minute,
		DefaultFeeBps:     500,
		BcryptCost:        12,
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	shorter := validConfig()
	shorter.OrderTTL = 5 * time.Minute
	if err := shorter.Validate(); err != nil {
		t.Fatalf("Validate with shorter order ttl: %v", err)
	}
}

func TestValidateOrderTTLBoundedByReservationTTL(t *testing.T) {
	c := validConfig()
	c.OrderTTL = 15 * time.Minute
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error when order ttl exceeds reservation ttl")
	}
	if !strings.Contains(err.Error(), "exceeds reservation ttl") {
		t.Fatalf("unexpected error: %v", err)
	}

	// The reservation's clock starts before the order's, so the sum of
	// order ttl and checkout allowance must fit inside the hold even
	// when the order ttl alone would.
	c = validConfig()
	c.OrderTTL = 9 * time.Minute
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when order ttl plus allowance exceeds reservation ttl")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero reservation ttl":        func(c *Config) { c.ReservationTTL = 0 },
		"negative order ttl":          func(c *Config) { c.OrderTTL = -time.Minute; c.ReservationTTL = time.Minute },
		"negative checkout allowance": func(c *Config) { c.CheckoutAllowance = -time.Second },
		"fee over 100 percent": func(c *Config) { c.DefaultFeeBps = 10_001 },
		"bcrypt cost too low":  func(c *Config) { c.BcryptCost = 3 },
		"bcrypt cost too high": func(c *Config) { c.BcryptCost = 32 },
	}
	for name, mutate := range cases {
		c := validConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
