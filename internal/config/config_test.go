package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		JWTSecret: strings.Repeat("s", 32),
	}
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "too-short"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for JWT secret shorter than 32 chars")
	}
}

func TestValidate_TOTPKey(t *testing.T) {
	cfg := validConfig()

	cfg.TOTPKeyHex = "not-hex"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-hex TOTP key")
	}

	cfg.TOTPKeyHex = "abcd" // valid hex but only 2 bytes
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for short TOTP key")
	}

	cfg.TOTPKeyHex = strings.Repeat("ab", 32)
	if err := cfg.Validate(); err != nil {
		t.Errorf("64-char hex TOTP key should validate: %v", err)
	}
}

func TestValidate_BillingRequiresStripe(t *testing.T) {
	cfg := validConfig()
	cfg.BillingEnabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("billing enabled without Stripe key should fail validation")
	}

	cfg.StripeSecretKey = "sk_test_123"
	if err := cfg.Validate(); err != nil {
		t.Errorf("billing with test key should validate: %v", err)
	}

	cfg.StripeSecretKey = "pk_test_123"
	if err := cfg.Validate(); err == nil {
		t.Error("publishable key should be rejected as STRIPE_SECRET_KEY")
	}
}

func TestStorageConfigured(t *testing.T) {
	cfg := validConfig()
	if cfg.StorageConfigured() {
		t.Error("empty storage credentials should report unconfigured")
	}
	cfg.StorageEndpoint = "https://acct.r2.cloudflarestorage.com"
	cfg.StorageAccessKey = "ak"
	cfg.StorageSecretKey = "sk"
	if !cfg.StorageConfigured() {
		t.Error("full storage credentials should report configured")
	}
}
