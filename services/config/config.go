// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
	GRPCPort int `yaml:"grpc_port"`
}

type EngineConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	// PerformanceOnly forces per-bar arrays to be dropped even for single
	// combination sweeps.
	PerformanceOnly bool `yaml:"performance_only"`
	ChunkSize       int  `yaml:"chunk_size"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	BarsTable    string `yaml:"bars_table"`
	ResultsTable string `yaml:"results_table"`
}

// Enabled reports whether a ClickHouse address is configured.
func (c ClickHouseConfig) Enabled() bool { return c.Addr != "" }

type ArrowConfig struct {
	BatchSize   int    `yaml:"batch_size"`
	Compression string `yaml:"compression"`
}

type MonitoringConfig struct {
	Namespace string `yaml:"namespace"`
	Enabled   bool   `yaml:"enabled"`
}

type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Engine      EngineConfig     `yaml:"engine"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Arrow       ArrowConfig      `yaml:"arrow"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
}

// Default is the development configuration. ClickHouse is left disabled.
func Default() *Config {
	return &Config{
		Environment: "dev",
		Server:      ServerConfig{HTTPPort: 8080, GRPCPort: 9091},
		ClickHouse: ClickHouseConfig{
			Database:     "backtest",
			Username:     "default",
			BarsTable:    "data",
			ResultsTable: "sweep_results",
		},
		Arrow:      ArrowConfig{BatchSize: 65536},
		Monitoring: MonitoringConfig{Namespace: "backtest_sweep", Enabled: true},
	}
}

// Load reads path over Default, applies BACKTEST_* environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type envOverride struct {
	key string
	set func(v string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func (c *Config) overrides() []envOverride {
	return []envOverride{
		{"BACKTEST_ENVIRONMENT", str(&c.Environment)},
		{"BACKTEST_HTTP_PORT", integer(&c.Server.HTTPPort)},
		{"BACKTEST_GRPC_PORT", integer(&c.Server.GRPCPort)},
		{"BACKTEST_MAX_WORKERS", integer(&c.Engine.MaxWorkers)},
		{"BACKTEST_CHUNK_SIZE", integer(&c.Engine.ChunkSize)},
		{"BACKTEST_PERFORMANCE_ONLY", boolean(&c.Engine.PerformanceOnly)},
		{"BACKTEST_CLICKHOUSE_ADDR", str(&c.ClickHouse.Addr)},
		{"BACKTEST_CLICKHOUSE_DATABASE", str(&c.ClickHouse.Database)},
		{"BACKTEST_CLICKHOUSE_USER", str(&c.ClickHouse.Username)},
		{"BACKTEST_CLICKHOUSE_PASSWORD", str(&c.ClickHouse.Password)},
		{"BACKTEST_CLICKHOUSE_BARS_TABLE", str(&c.ClickHouse.BarsTable)},
		{"BACKTEST_CLICKHOUSE_RESULTS_TABLE", str(&c.ClickHouse.ResultsTable)},
		{"BACKTEST_ARROW_BATCH_SIZE", integer(&c.Arrow.BatchSize)},
		{"BACKTEST_ARROW_COMPRESSION", str(&c.Arrow.Compression)},
		{"BACKTEST_METRICS_ENABLED", boolean(&c.Monitoring.Enabled)},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, o := range c.overrides() {
		v, ok := lookup(o.key)
		if !ok {
			continue
		}
		if err := o.set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", o.key, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	for _, p := range []struct {
		name string
		port int
	}{{"server.http_port", c.Server.HTTPPort}, {"server.grpc_port", c.Server.GRPCPort}} {
		if p.port <= 0 || p.port > 65535 {
			return fmt.Errorf("%s must be in 1..65535, got %d", p.name, p.port)
		}
	}
	if c.Server.HTTPPort == c.Server.GRPCPort {
		return fmt.Errorf("http and grpc ports must differ")
	}
	if c.Engine.MaxWorkers < 0 {
		return fmt.Errorf("engine.max_workers cannot be negative")
	}
	if c.Engine.ChunkSize < 0 {
		return fmt.Errorf("engine.chunk_size cannot be negative")
	}
	if c.Arrow.BatchSize <= 0 {
		return fmt.Errorf("arrow.batch_size must be positive")
	}
	switch c.Arrow.Compression {
	case "", "none", "lz4", "zstd":
	default:
		return fmt.Errorf("arrow.compression %q is not one of none, lz4, zstd", c.Arrow.Compression)
	}
	if c.ClickHouse.Enabled() {
		if c.ClickHouse.Database == "" || c.ClickHouse.BarsTable == "" || c.ClickHouse.ResultsTable == "" {
			return fmt.Errorf("clickhouse database and table names are required when clickhouse.addr is set")
		}
	}
	return nil
}
