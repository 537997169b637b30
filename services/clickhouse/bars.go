package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backtest-sweep/services/engine"
	"backtest-sweep/services/market"
)

// Bar is one stored row. Prices keep the column's decimal precision until
// they are handed to the engine.
type Bar struct {
	Timestamp uint64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// LoadBars reads one symbol and timeframe. end == 0 means no upper bound.
func (c *Client) LoadBars(ctx context.Context, symbol string, tf market.Timeframe, start, end int64) (*market.BarSeries, error) {
	query := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ?`, c.table(c.cfg.BarsTable))
	args := []any{symbol, string(tf), uint64(max(start, 0))}
	if end > 0 {
		query += " AND open_time_ms < ?"
		args = append(args, uint64(end))
	}
	query += " ORDER BY open_time_ms"

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, market.ErrEmptySeries)
	}
	return toSeries(tf, bars)
}

func toSeries(tf market.Timeframe, bars []Bar) (*market.BarSeries, error) {
	n := len(bars)
	t := make([]int64, n)
	o, h, l, cl, v := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i, b := range bars {
		t[i] = int64(b.Timestamp)
		o[i] = b.Open.InexactFloat64()
		h[i] = b.High.InexactFloat64()
		l[i] = b.Low.InexactFloat64()
		cl[i] = b.Close.InexactFloat64()
		v[i] = b.Volume.InexactFloat64()
	}
	return market.NewBarSeries(tf, t, o, h, l, cl, v)
}

// LoadFrames implements engine.DataSource. Timeframes are queried
// concurrently; a higher timeframe with no stored rows is resampled from the
// base timeframe.
func (c *Client) LoadFrames(ctx context.Context, req engine.DataRequest) (market.Frames, error) {
	if len(req.Timeframes) == 0 {
		return nil, engine.ValidationError{Msg: "at least one timeframe is required"}
	}
	base, err := c.LoadBars(ctx, req.Symbol, req.Timeframes[0], req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	frames := make(market.Frames, len(req.Timeframes))
	frames[0] = base
	g, gctx := errgroup.WithContext(ctx)
	for k := 1; k < len(req.Timeframes); k++ {
		tf := req.Timeframes[k]
		g.Go(func() error {
			s, err := c.LoadBars(gctx, req.Symbol, tf, req.StartTime, req.EndTime)
			if err == nil {
				frames[k] = s
				return nil
			}
			if !errors.Is(err, market.ErrEmptySeries) {
				return err
			}
			c.logger.Debug("Resampling missing timeframe", zap.String("symbol", req.Symbol), zap.String("timeframe", string(tf)))
			if frames[k], err = market.Resample(base, tf); err != nil {
				return fmt.Errorf("failed to resample %s: %w", tf, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// InsertBars writes a series in one batch. Rewriting the same bars is
// idempotent: the table keeps the highest version per key.
func (c *Client) InsertBars(ctx context.Context, symbol string, s *market.BarSeries) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", c.table(c.cfg.BarsTable)))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	version := uint64(time.Now().UnixNano())
	for i := 0; i < s.Len(); i++ {
		err := batch.Append(
			symbol,
			string(s.Timeframe),
			uint64(s.Time[i]),
			decimal.NewFromFloat(s.Open[i]),
			decimal.NewFromFloat(s.High[i]),
			decimal.NewFromFloat(s.Low[i]),
			decimal.NewFromFloat(s.Close[i]),
			decimal.NewFromFloat(s.Volume[i]),
			uint64(0),
			version,
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append bar %d: %w", i, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send bars: %w", err)
	}
	c.logger.Info("Inserted bars", zap.String("symbol", symbol), zap.String("timeframe", string(s.Timeframe)), zap.Int("bars", s.Len()))
	return nil
}
