package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// clearEnv unsets every variable the loader reads and resets viper's cached
// state so tests do not leak into each other.
func clearEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	for _, key := range []string{
		"SERVER_PORT",
		"DATABASE_URL",
		"AMQP_URL",
		"ADMIN_KEY",
		"ADMIN_JWT_SECRET",
		"FREE_ATTEMPTS",
		"LAPSE_SWEEP_SCHEDULE",
		"PLANS_JSON",
		"WALLETS_JSON",
	} {
		t.Setenv(key, "")
	}
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.FreeAttempts != 3 {
		t.Errorf("expected default free attempts 3, got %d", cfg.FreeAttempts)
	}
	if cfg.SweepSchedule != "0 * * * *" {
		t.Errorf("expected hourly sweep schedule, got %q", cfg.SweepSchedule)
	}
	if len(cfg.Plans) != 3 {
		t.Errorf("expected 3 default plans, got %d", len(cfg.Plans))
	}
	if plan, ok := cfg.Plans["12 months"]; !ok || plan.Months != 12 {
		t.Errorf("expected a default 12 month plan, got %+v", cfg.Plans)
	}
	if len(cfg.Wallets) != 0 {
		t.Errorf("expected no default wallets, got %+v", cfg.Wallets)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/camfinder")
	t.Setenv("ADMIN_KEY", "secret")
	t.Setenv("FREE_ATTEMPTS", "10")
	t.Setenv("PLANS_JSON", `{"1 month":{"months":1,"price":"5 USDT"}}`)
	t.Setenv("WALLETS_JSON", `{"usdt-trc20":"TWallet123"}`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "9001" {
		t.Errorf("expected port 9001, got %q", cfg.ServerPort)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/camfinder" {
		t.Errorf("unexpected database url %q", cfg.DatabaseURL)
	}
	if cfg.AdminKey != "secret" {
		t.Errorf("unexpected admin key %q", cfg.AdminKey)
	}
	if cfg.FreeAttempts != 10 {
		t.Errorf("expected free attempts 10, got %d", cfg.FreeAttempts)
	}
	if plan := cfg.Plans["1 month"]; plan.Price != "5 USDT" {
		t.Errorf("expected the configured plan price, got %+v", plan)
	}
	if cfg.Wallets["usdt-trc20"] != "TWallet123" {
		t.Errorf("expected the configured wallet, got %+v", cfg.Wallets)
	}
}

func TestLoadConfigRejectsMalformedPlans(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLANS_JSON", "{not json")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected an error for malformed PLANS_JSON")
	}
	if !strings.Contains(err.Error(), "PLANS_JSON") {
		t.Errorf("expected the error to name PLANS_JSON, got %v", err)
	}
}

func TestLoadConfigRejectsMalformedWallets(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALLETS_JSON", "[1,2")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected an error for malformed WALLETS_JSON")
	}
	if !strings.Contains(err.Error(), "WALLETS_JSON") {
		t.Errorf("expected the error to name WALLETS_JSON, got %v", err)
	}
}
