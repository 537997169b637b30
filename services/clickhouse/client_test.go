package clickhouse

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"backtest-sweep/services/config"
	"backtest-sweep/services/engine"
	"backtest-sweep/services/market"
)

type fakeRows struct {
	bars []Bar
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.bars)
}

func (r *fakeRows) Scan(dest ...any) error {
	b := r.bars[r.pos-1]
	*dest[0].(*uint64) = b.Timestamp
	for i, d := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close, b.Volume} {
		*dest[i+1].(*decimal.Decimal) = d
	}
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

type fakeBatch struct {
	conn *fakeConn
	rows [][]any
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.conn.sent = append(b.conn.sent, b.rows...)
	return nil
}

func (b *fakeBatch) Abort() error { return nil }

// fakeConn serves bars keyed by interval and records everything written.
type fakeConn struct {
	bars    map[string][]Bar
	queries []string
	execs   []string
	sent    [][]any
}

func (c *fakeConn) Query(_ context.Context, query string, args ...any) (Rows, error) {
	c.queries = append(c.queries, query)
	return &fakeRows{bars: c.bars[args[1].(string)]}, nil
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	c.execs = append(c.execs, query)
	return nil
}

func (c *fakeConn) PrepareBatch(context.Context, string) (Batch, error) {
	return &fakeBatch{conn: c}, nil
}

func (c *fakeConn) Close() error { return nil }

func testConfig() config.ClickHouseConfig {
	cfg := config.Default().ClickHouse
	cfg.Addr = "fake:9000"
	return cfg
}

func minuteBars(n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		p := decimal.NewFromInt(int64(100 + i))
		bars[i] = Bar{
			Timestamp: uint64(1672531200000 + int64(i)*60_000),
			Open:      p,
			High:      p.Add(decimal.NewFromInt(1)),
			Low:       p.Sub(decimal.NewFromInt(1)),
			Close:     p,
			Volume:    decimal.NewFromInt(10),
		}
	}
	return bars
}

func TestLoadBars(t *testing.T) {
	conn := &fakeConn{bars: map[string][]Bar{"1m": minuteBars(3)}}
	c := NewClientWithConn(conn, testConfig(), nil)

	s, err := c.LoadBars(context.Background(), "BTCUSDT", market.TF1m, 0, 1672531400000)
	if err != nil {
		t.Fatalf("LoadBars: %v", err)
	}
	if s.Len() != 3 || s.High[2] != 103 || s.Time[1] != 1672531260000 {
		t.Fatalf("series = %+v", s)
	}
	if !strings.Contains(conn.queries[0], "backtest.data FINAL") || !strings.Contains(conn.queries[0], "open_time_ms < ?") {
		t.Fatalf("query = %s", conn.queries[0])
	}

	_, err = c.LoadBars(context.Background(), "BTCUSDT", market.TF5m, 0, 0)
	if !errors.Is(err, market.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestLoadFramesResamplesMissingTimeframe(t *testing.T) {
	conn := &fakeConn{bars: map[string][]Bar{"1m": minuteBars(10)}}
	c := NewClientWithConn(conn, testConfig(), nil)

	frames, err := c.LoadFrames(context.Background(), engine.DataRequest{
		Symbol:     "BTCUSDT",
		Timeframes: []market.Timeframe{market.TF1m, market.TF5m},
	})
	if err != nil {
		t.Fatalf("LoadFrames: %v", err)
	}
	if len(frames) != 2 || frames[1].Len() != 2 || frames[1].Timeframe != market.TF5m {
		t.Fatalf("frames = %d, higher timeframe %+v", len(frames), frames[1])
	}
}

func TestInsertBars(t *testing.T) {
	conn := &fakeConn{}
	c := NewClientWithConn(conn, testConfig(), nil)
	if err := c.InsertBars(context.Background(), "MOCK", market.MockSeries(4, 1)); err != nil {
		t.Fatalf("InsertBars: %v", err)
	}
	if len(conn.sent) != 4 || conn.sent[0][0] != "MOCK" || conn.sent[0][1] != "1m" {
		t.Fatalf("sent = %v", conn.sent)
	}
}

func TestWriteResults(t *testing.T) {
	conn := &fakeConn{}
	c := NewClientWithConn(conn, testConfig(), nil)

	ok := engine.Result{ID: 0, Valid: true, Performance: engine.NewPerformanceOutput()}
	ok.Performance.MaxBalance = 12000
	bad := engine.Result{ID: 1, Performance: engine.NewPerformanceOutput(), Err: errors.New("missing indicator")}
	m := &engine.Manifest{JobID: "job", EngineVersion: engine.EngineVersion, Bars: 100}

	if err := c.WriteResults(context.Background(), m, []engine.Result{ok, bad}); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	if len(conn.sent) != 2 {
		t.Fatalf("sent %d rows", len(conn.sent))
	}
	row := conn.sent[1]
	if want := 4 + len(engine.PerformanceKeys) + 5; len(row) != want {
		t.Fatalf("row has %d columns, want %d", len(row), want)
	}
	if row[2] != false || row[3] != "missing indicator" || !math.IsNaN(row[4].(float64)) {
		t.Fatalf("invalid row = %v", row)
	}
	if conn.sent[0][4+7] != 12000.0 {
		t.Fatalf("max_balance column = %v", conn.sent[0][4+7])
	}
}

func TestEnsureSchema(t *testing.T) {
	conn := &fakeConn{}
	c := NewClientWithConn(conn, testConfig(), nil)
	if err := c.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if len(conn.execs) != 3 {
		t.Fatalf("got %d statements", len(conn.execs))
	}
	if !strings.Contains(conn.execs[2], "sharpe_ratio Float64") || !strings.Contains(conn.execs[2], "backtest.sweep_results") {
		t.Fatalf("results DDL = %s", conn.execs[2])
	}
}
