package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Server.GRPCPort != 9091 {
		t.Fatalf("default ports = %d/%d", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	}
	if cfg.ClickHouse.Database != "backtest" {
		t.Fatalf("default database = %q", cfg.ClickHouse.Database)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GRID_HTTP_PORT", "9999")
	t.Setenv("GRID_CLICKHOUSE_ADDR", "ch.internal:9000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Fatalf("HTTP port = %d want 9999", cfg.Server.HTTPPort)
	}
	if cfg.ClickHouse.Addr != "ch.internal:9000" {
		t.Fatalf("ClickHouse addr = %q", cfg.ClickHouse.Addr)
	}

	t.Setenv("GRID_MAX_WORKERS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed integer")
	}
}
