package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"backtest-sweep/services/engine"
)

// metric columns follow engine.PerformanceKeys; Float64 keeps NaN and Inf.
func metricColumnsDDL() string {
	cols := make([]string, len(engine.PerformanceKeys))
	for i, k := range engine.PerformanceKeys {
		cols[i] = k + " Float64"
	}
	return strings.Join(cols, ",\n\t\t\t")
}

// WriteResults implements engine.ResultSink: one row per combination.
func (c *Client) WriteResults(ctx context.Context, m *engine.Manifest, results []engine.Result) error {
	if len(results) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", c.table(c.cfg.ResultsTable)))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	created := time.UnixMilli(m.CreatedAt).UTC()
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		row := []any{m.JobID, uint32(r.ID), r.Valid, errText}
		for _, v := range r.Performance.Values() {
			row = append(row, v)
		}
		row = append(row, m.EngineVersion, m.ConfigHash, m.DataChecksum, uint32(m.Bars), created)

		if err := batch.Append(row...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append combination %d: %w", r.ID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send results: %w", err)
	}

	c.logger.Info("Persisted sweep results",
		zap.String("job_id", m.JobID),
		zap.Int("combinations", len(results)),
	)
	return nil
}
