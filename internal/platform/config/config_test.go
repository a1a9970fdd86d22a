package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Fatalf("expected default db port, got %d", cfg.Database.Port)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Checkout.TaxRateBasisPoints != 0 {
		t.Fatalf("expected zero tax rate, got %d", cfg.Checkout.TaxRateBasisPoints)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("SERVER_READ_TIMEOUT", "5s")
	t.Setenv("SERVER_IDLE_TIMEOUT", "90s")
	t.Setenv("CHECKOUT_TAX_RATE_BP", "800")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Database.Port != 5433 {
		t.Fatalf("expected db port override, got %d", cfg.Database.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("expected 5s read timeout, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.IdleTimeout != 90*time.Second {
		t.Fatalf("expected 90s idle timeout, got %s", cfg.Server.IdleTimeout)
	}
	if cfg.Checkout.TaxRateBasisPoints != 800 {
		t.Fatalf("expected 800bp tax rate, got %d", cfg.Checkout.TaxRateBasisPoints)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")
	t.Setenv("AUTH_TOKEN_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestLoadRejectsNegativeTaxRate(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")
	t.Setenv("CHECKOUT_TAX_RATE_BP", "-5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative tax rate")
	}
}
