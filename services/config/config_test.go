package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Server.GRPCPort != 9091 {
		t.Fatalf("ports = %d/%d", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	}
	if cfg.ClickHouse.Enabled() {
		t.Fatal("clickhouse must be off by default")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
environment: prod
server:
  http_port: 8081
engine:
  max_workers: 6
  performance_only: true
clickhouse:
  addr: localhost:9000
  database: research
arrow:
  compression: zstd
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "prod" || cfg.Server.HTTPPort != 8081 || cfg.Server.GRPCPort != 9091 {
		t.Fatalf("server = %+v env=%s", cfg.Server, cfg.Environment)
	}
	if cfg.Engine.MaxWorkers != 6 || !cfg.Engine.PerformanceOnly {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	// unset keys keep their defaults
	if cfg.ClickHouse.Database != "research" || cfg.ClickHouse.BarsTable != "data" {
		t.Fatalf("clickhouse = %+v", cfg.ClickHouse)
	}
	if cfg.Arrow.Compression != "zstd" || cfg.Arrow.BatchSize != 65536 {
		t.Fatalf("arrow = %+v", cfg.Arrow)
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"BACKTEST_MAX_WORKERS":     "3",
		"BACKTEST_CLICKHOUSE_ADDR": " ch:9000 ",
		"BACKTEST_METRICS_ENABLED": "false",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Engine.MaxWorkers != 3 || cfg.ClickHouse.Addr != "ch:9000" || cfg.Monitoring.Enabled {
		t.Fatalf("config = %+v", cfg)
	}

	err = Default().applyEnv(func(k string) (string, bool) {
		return "many", k == "BACKTEST_HTTP_PORT"
	})
	if err == nil || !strings.Contains(err.Error(), "BACKTEST_HTTP_PORT") {
		t.Fatalf("expected a parse error naming the variable, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"port range":       func(c *Config) { c.Server.HTTPPort = 70000 },
		"same ports":       func(c *Config) { c.Server.GRPCPort = c.Server.HTTPPort },
		"negative workers": func(c *Config) { c.Engine.MaxWorkers = -1 },
		"batch size":       func(c *Config) { c.Arrow.BatchSize = 0 },
		"compression":      func(c *Config) { c.Arrow.Compression = "gzip" },
		"clickhouse table": func(c *Config) { c.ClickHouse.Addr = "ch:9000"; c.ClickHouse.ResultsTable = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
