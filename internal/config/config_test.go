package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SHOP_TIMEZONE", "")
	t.Setenv("ANALYTICS_CACHE_TTL_SECONDS", "")
	t.Setenv("INVOICE_TIMEOUT_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.ShopTimezone != "UTC" {
		t.Fatalf("expected default timezone UTC, got %q", cfg.ShopTimezone)
	}
	if cfg.AnalyticsCacheTTL != time.Minute {
		t.Fatalf("expected default cache TTL 1m, got %s", cfg.AnalyticsCacheTTL)
	}
	if cfg.InvoiceTimeoutSeconds != 30 {
		t.Fatalf("expected invalid timeout to fall back to 30, got %d", cfg.InvoiceTimeoutSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{ShopTimezone: "Not/AZone"}
	if loc := cfg.Location(); loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}

	cfg = Config{ShopTimezone: "Asia/Kolkata"}
	if loc := cfg.Location(); loc.String() != "Asia/Kolkata" {
		t.Fatalf("expected Asia/Kolkata, got %v", loc)
	}
}

func TestWarningsFlagRiskyConfig(t *testing.T) {
	cfg := Config{ShopTimezone: "Mars/Olympus"}
	warnings := cfg.Warnings()
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings (secret, database, timezone), got %d: %v", len(warnings), warnings)
	}

	cfg = Config{
		AuthSecret:   "0123456789abcdef0123456789abcdef",
		DatabaseURL:  "postgres://localhost/shopledger",
		ShopTimezone: "UTC",
	}
	if warnings := cfg.Warnings(); len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}
