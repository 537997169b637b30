// Package arrowpipeline streams bar series and sweep results as Apache Arrow
// IPC for columnar consumers (notebooks, DuckDB, Polars).
package arrowpipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"backtest-sweep/services/config"
	"backtest-sweep/services/engine"
	"backtest-sweep/services/market"
)

// ContentType is the media type of an IPC stream.
const ContentType = "application/vnd.apache.arrow.stream"

const (
	metaTimeframe = "timeframe"
	metaJobID     = "job_id"
	metaConfig    = "config_hash"
	metaChecksum  = "data_checksum"
)

// Pipeline handles Arrow IPC streaming
type Pipeline struct {
	config     config.ArrowConfig
	memoryPool memory.Allocator
	logger     *zap.Logger
}

// NewPipeline creates a new Arrow pipeline
func NewPipeline(cfg config.ArrowConfig, logger *zap.Logger) (*Pipeline, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	switch cfg.Compression {
	case "", "none", "lz4", "zstd":
	default:
		return nil, fmt.Errorf("unsupported compression %q", cfg.Compression)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		config:     cfg,
		memoryPool: memory.NewGoAllocator(),
		logger:     logger,
	}, nil
}

func (p *Pipeline) writerOptions(schema *arrow.Schema) []ipc.Option {
	opts := []ipc.Option{ipc.WithSchema(schema), ipc.WithAllocator(p.memoryPool)}
	switch p.config.Compression {
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	}
	return opts
}

func barsSchema(tf market.Timeframe) *arrow.Schema {
	meta := arrow.NewMetadata([]string{metaTimeframe}, []string{string(tf)})
	return arrow.NewSchema([]arrow.Field{
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
		{Name: "open", Type: arrow.PrimitiveTypes.Float64},
		{Name: "high", Type: arrow.PrimitiveTypes.Float64},
		{Name: "low", Type: arrow.PrimitiveTypes.Float64},
		{Name: "close", Type: arrow.PrimitiveTypes.Float64},
		{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	}, &meta)
}

// WriteBars writes s as an IPC stream, BatchSize rows per record batch.
func (p *Pipeline) WriteBars(w io.Writer, s *market.BarSeries) error {
	schema := barsSchema(s.Timeframe)
	writer := ipc.NewWriter(w, p.writerOptions(schema)...)

	b := array.NewRecordBuilder(p.memoryPool, schema)
	defer b.Release()

	for start := 0; start < s.Len(); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, s.Len())
		b.Field(0).(*array.Int64Builder).AppendValues(s.Time[start:end], nil)
		for k, col := range [][]float64{s.Open, s.High, s.Low, s.Close, s.Volume} {
			b.Field(k+1).(*array.Float64Builder).AppendValues(col[start:end], nil)
		}
		rec := b.NewRecord()
		err := writer.Write(rec)
		rec.Release()
		if err != nil {
			writer.Close()
			return fmt.Errorf("failed to write Arrow record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow stream: %w", err)
	}
	return nil
}

// ReadBars reads a stream produced by WriteBars.
func (p *Pipeline) ReadBars(r io.Reader) (*market.BarSeries, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(p.memoryPool))
	if err != nil {
		return nil, fmt.Errorf("failed to open Arrow stream: %w", err)
	}
	defer rdr.Release()

	schema := rdr.Schema()
	if schema.NumFields() != 6 {
		return nil, fmt.Errorf("expected 6 bar columns, got %d", schema.NumFields())
	}
	var tf market.Timeframe
	if idx := schema.Metadata().FindKey(metaTimeframe); idx >= 0 {
		tf = market.Timeframe(schema.Metadata().Values()[idx])
	}

	var t []int64
	cols := make([][]float64, 5)
	for rdr.Next() {
		rec := rdr.Record()
		ts, ok := rec.Column(0).(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("timestamp column has type %s", rec.Column(0).DataType())
		}
		t = append(t, ts.Int64Values()...)
		for k := range cols {
			f, ok := rec.Column(k + 1).(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("column %s has type %s", schema.Field(k+1).Name, rec.Column(k+1).DataType())
			}
			cols[k] = append(cols[k], f.Float64Values()...)
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("failed to read Arrow stream: %w", err)
	}
	return market.NewBarSeries(tf, t, cols[0], cols[1], cols[2], cols[3], cols[4])
}

func resultsSchema(m *engine.Manifest) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "combination", Type: arrow.PrimitiveTypes.Int32},
		{Name: "valid", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
	}
	for _, k := range engine.PerformanceKeys {
		fields = append(fields, arrow.Field{Name: k, Type: arrow.PrimitiveTypes.Float64})
	}
	var meta *arrow.Metadata
	if m != nil {
		md := arrow.NewMetadata(
			[]string{metaJobID, metaConfig, metaChecksum},
			[]string{m.JobID, m.ConfigHash, m.DataChecksum},
		)
		meta = &md
	}
	return arrow.NewSchema(fields, meta)
}

// WriteResults writes one row per combination with the performance scalars
// as Float64 columns. The manifest, when given, goes into schema metadata.
func (p *Pipeline) WriteResults(ctx context.Context, w io.Writer, m *engine.Manifest, results []engine.Result) error {
	schema := resultsSchema(m)
	writer := ipc.NewWriter(w, p.writerOptions(schema)...)

	b := array.NewRecordBuilder(p.memoryPool, schema)
	defer b.Release()

	flush := func() error {
		rec := b.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		return writer.Write(rec)
	}

	for i, r := range results {
		if err := ctx.Err(); err != nil {
			writer.Close()
			return err
		}
		b.Field(0).(*array.Int32Builder).Append(int32(r.ID))
		b.Field(1).(*array.BooleanBuilder).Append(r.Valid)
		if r.Err != nil {
			b.Field(2).(*array.StringBuilder).Append(r.Err.Error())
		} else {
			b.Field(2).(*array.StringBuilder).AppendNull()
		}
		for k, v := range r.Performance.Values() {
			b.Field(3 + k).(*array.Float64Builder).Append(v)
		}
		if (i+1)%p.config.BatchSize == 0 {
			if err := flush(); err != nil {
				writer.Close()
				return fmt.Errorf("failed to write Arrow record: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write Arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow stream: %w", err)
	}
	p.logger.Debug("Wrote Arrow results", zap.Int("combinations", len(results)))
	return nil
}
