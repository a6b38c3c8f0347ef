// Package config assembles service configuration from the environment with
// development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
)

type ServerConfig struct {
	HTTPPort int
	GRPCPort int
}

type EngineConfig struct {
	// MaxWorkers caps parallel runs in sweep endpoints; 0 means NumCPU.
	MaxWorkers int

	// ChunkSize is the bar count between cancellation checks per run.
	ChunkSize int
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type Config struct {
	Environment string
	Server      ServerConfig
	Engine      EngineConfig
	ClickHouse  ClickHouseConfig
}

// Load reads GRID_* environment variables over development defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: envStr("GRID_ENV", "dev"),
		Server: ServerConfig{
			HTTPPort: 8080,
			GRPCPort: 9091,
		},
		Engine: EngineConfig{
			ChunkSize: 100_000,
		},
		ClickHouse: ClickHouseConfig{
			Addr:     envStr("GRID_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: envStr("GRID_CLICKHOUSE_DB", "backtest"),
			Username: envStr("GRID_CLICKHOUSE_USER", "backtest"),
			Password: envStr("GRID_CLICKHOUSE_PASSWORD", ""),
		},
	}

	var err error
	if cfg.Server.HTTPPort, err = envInt("GRID_HTTP_PORT", cfg.Server.HTTPPort); err != nil {
		return nil, err
	}
	if cfg.Server.GRPCPort, err = envInt("GRID_GRPC_PORT", cfg.Server.GRPCPort); err != nil {
		return nil, err
	}
	if cfg.Engine.MaxWorkers, err = envInt("GRID_MAX_WORKERS", cfg.Engine.MaxWorkers); err != nil {
		return nil, err
	}
	if cfg.Engine.ChunkSize, err = envInt("GRID_CHUNK_SIZE", cfg.Engine.ChunkSize); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return n, nil
}
