// Package clickhouse stores bars and sweep results in ClickHouse.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"backtest-sweep/services/config"
)

// Rows is the part of driver.Rows the client reads through.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Batch is the part of driver.Batch the client writes through.
type Batch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

// Conn is the connection surface used by Client. nativeConn adapts a
// clickhouse-go connection; tests substitute a fake.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (Batch, error)
	Close() error
}

type nativeConn struct{ driver.Conn }

func (c nativeConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return c.Conn.Query(ctx, query, args...)
}

func (c nativeConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	return c.Conn.PrepareBatch(ctx, query)
}

type Client struct {
	conn   Conn
	cfg    config.ClickHouseConfig
	logger *zap.Logger
}

// NewClient opens a native protocol connection and pings it.
func NewClient(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse at %s: %w", cfg.Addr, err)
	}
	return NewClientWithConn(nativeConn{conn}, cfg, logger), nil
}

func NewClientWithConn(conn Conn, cfg config.ClickHouseConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{conn: conn, cfg: cfg, logger: logger}
}

func (c *Client) table(name string) string {
	return fmt.Sprintf("%s.%s", c.cfg.Database, name)
}

// EnsureSchema creates the database, bars table and results table if they
// are missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.cfg.Database)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	barsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol String,
			interval LowCardinality(String),
			open_time_ms UInt64,
			open Decimal128(18),
			high Decimal128(18),
			low Decimal128(18),
			close Decimal128(18),
			volume Decimal128(18),
			trades UInt64,
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, interval, open_time_ms)
	`, c.table(c.cfg.BarsTable))
	if err := c.conn.Exec(ctx, barsDDL); err != nil {
		return fmt.Errorf("failed to create bars table: %w", err)
	}

	resultsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			job_id String,
			combination UInt32,
			valid Bool,
			error String,
			%s,
			engine_version LowCardinality(String),
			config_hash String,
			data_checksum String,
			bars UInt32,
			created_at DateTime64(3)
		)
		ENGINE = MergeTree
		ORDER BY (job_id, combination)
	`, c.table(c.cfg.ResultsTable), metricColumnsDDL())
	if err := c.conn.Exec(ctx, resultsDDL); err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.conn.Close() }
