package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.AccessTokenTTL != 480*time.Minute {
		t.Fatalf("AccessTokenTTL = %v, want 480m", cfg.AccessTokenTTL)
	}
	if cfg.OrderCancelWindow != 60*time.Second {
		t.Fatalf("OrderCancelWindow = %v, want 60s", cfg.OrderCancelWindow)
	}
	if cfg.SweepInterval != 300*time.Second {
		t.Fatalf("SweepInterval = %v, want 300s", cfg.SweepInterval)
	}
	if cfg.ShiftSalesScope != "all" {
		t.Fatalf("ShiftSalesScope = %q, want all", cfg.ShiftSalesScope)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ORDER_CANCEL_WINDOW_SECONDS", "120")
	t.Setenv("SHIFT_SALES_SCOPE", "cash_only")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.OrderCancelWindow != 2*time.Minute {
		t.Fatalf("OrderCancelWindow = %v, want 2m", cfg.OrderCancelWindow)
	}
	if cfg.ShiftSalesScope != "cash_only" {
		t.Fatalf("ShiftSalesScope = %q, want cash_only", cfg.ShiftSalesScope)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("Address = %q, want :9090", cfg.Address())
	}
}

func TestLoadIgnoresMalformedInt(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SECONDS", "not-a-number")
	cfg := Load()
	if cfg.SweepInterval != 300*time.Second {
		t.Fatalf("SweepInterval = %v, want default 300s", cfg.SweepInterval)
	}
}
