package engine

// End-to-end API with error taxonomy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-sweep/proto"
	"backtest-sweep/services/market"
	"backtest-sweep/strategies"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e APIError) Error() string {
	if e.Details == "" {
		return e.Code + ": " + e.Message
	}
	return e.Code + ": " + e.Message + ": " + e.Details
}

func (e APIError) Proto() *proto.Error {
	return &proto.Error{Code: e.Code, Message: e.Message, Details: e.Details}
}

var (
	ErrInvalidStrategy = APIError{Code: "INVALID_STRATEGY", Message: "Unknown signal strategy"}
	ErrInvalidParams   = APIError{Code: "INVALID_PARAMS", Message: "Invalid parameters provided"}
	ErrDataNotFound    = APIError{Code: "DATA_NOT_FOUND", Message: "Required data not available"}
	ErrExecutionFailed = APIError{Code: "EXECUTION_FAILED", Message: "Sweep execution failed"}
	ErrTimeout         = APIError{Code: "TIMEOUT", Message: "Operation timed out"}
)

// ToAPIError classifies err into the API taxonomy.
func ToAPIError(err error) APIError {
	var apiErr APIError
	var valErr ValidationError
	base := ErrExecutionFailed
	switch {
	case err == nil:
		return APIError{}
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, strategies.ErrUnknownStrategy):
		base = ErrInvalidStrategy
	case errors.As(err, &valErr):
		base = ErrInvalidParams
	case errors.Is(err, ErrMissingTimeframe),
		errors.Is(err, ErrMissingInput),
		errors.Is(err, market.ErrEmptySeries):
		base = ErrDataNotFound
	case errors.Is(err, context.DeadlineExceeded):
		base = ErrTimeout
	}
	base.Details = err.Error()
	return base
}

// DataRequest selects the bars of one sweep. Timeframes[0] is the base
// timeframe.
type DataRequest struct {
	Symbol     string
	Timeframes []market.Timeframe
	StartTime  int64
	EndTime    int64
}

// DataSource loads bars for the API. services/clickhouse and the mock source
// in cmd/server implement it.
type DataSource interface {
	LoadFrames(ctx context.Context, req DataRequest) (market.Frames, error)
}

// ResultSink receives completed sweeps, e.g. for persistence.
type ResultSink interface {
	WriteResults(ctx context.Context, manifest *Manifest, results []Result) error
}

// Job is one submitted sweep.
type Job struct {
	ID        string
	Status    proto.JobStatus
	Request   proto.SweepRequest
	Manifest  *Manifest
	Frames    market.Frames
	Results   []Result
	Err       error
	Submitted time.Time
	Finished  time.Time
}

type APIService struct {
	source DataSource
	sink   ResultSink
	cfg    Config
	logger *zap.Logger
	opts   []Option

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewAPIService wires a data source into the sweep engine. sink may be nil.
func NewAPIService(source DataSource, sink ResultSink, cfg Config, logger *zap.Logger, opts ...Option) *APIService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIService{
		source: source,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		opts:   append([]Option{WithLogger(logger)}, opts...),
		jobs:   make(map[string]*Job),
	}
}

// prepare turns a request into frames, mapping and combinations.
func (api *APIService) prepare(ctx context.Context, req proto.SweepRequest) (market.Frames, *market.DataMapping, []Combination, error) {
	if len(req.Timeframes) == 0 {
		return nil, nil, nil, ValidationError{Msg: "at least one timeframe is required"}
	}
	tfs := make([]market.Timeframe, len(req.Timeframes))
	for i, s := range req.Timeframes {
		tf := market.Timeframe(s)
		if _, err := tf.Minutes(); err != nil {
			return nil, nil, nil, ValidationError{Msg: err.Error()}
		}
		tfs[i] = tf
	}

	grid := ParamSet{Indicators: req.Grid.Indicators, Backtest: req.Grid.Backtest}
	combos, err := ExpandGrid(grid, len(tfs))
	if err != nil {
		return nil, nil, nil, err
	}

	frames, err := api.source.LoadFrames(ctx, DataRequest{
		Symbol:     req.Symbol,
		Timeframes: tfs,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load bars: %w", err)
	}
	mode := market.SmoothMode(req.SmoothMode)
	for k, f := range frames {
		if frames[k], err = market.Smooth(f, mode); err != nil {
			return nil, nil, nil, ValidationError{Msg: err.Error()}
		}
	}

	var mapping *market.DataMapping
	if len(frames) > 1 {
		if mapping, err = market.BuildMapping(frames); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to align timeframes: %w", err)
		}
	}
	return frames, mapping, combos, nil
}

// RunSweep validates and loads the request synchronously, then simulates in
// the background. Poll GetResults with the returned job ID.
func (api *APIService) RunSweep(ctx context.Context, req proto.SweepRequest) proto.SweepResponse {
	frames, mapping, combos, err := api.prepare(ctx, req)
	if err != nil {
		return proto.SweepResponse{Status: proto.JobStatusFailed, Error: ToAPIError(err).Proto()}
	}

	cfg := api.cfg
	if req.Mode != "" {
		cfg.Mode = Mode(req.Mode)
	}
	orch := NewOrchestrator(cfg, api.opts...)

	job := &Job{
		ID:        uuid.New().String(),
		Status:    proto.JobStatusRunning,
		Request:   req,
		Frames:    frames,
		Submitted: time.Now(),
	}
	if job.Manifest, err = NewManifest(job.ID, orch.Config(), frames, combos); err != nil {
		return proto.SweepResponse{Status: proto.JobStatusFailed, Error: ToAPIError(err).Proto()}
	}

	api.mu.Lock()
	api.jobs[job.ID] = job
	api.mu.Unlock()

	api.wg.Add(1)
	go func() {
		defer api.wg.Done()
		// the sweep outlives the request that started it
		runCtx := context.WithoutCancel(ctx)
		results, err := orch.Run(runCtx, frames, mapping, combos)
		if err == nil && api.sink != nil {
			if werr := api.sink.WriteResults(runCtx, job.Manifest, results); werr != nil {
				api.logger.Error("Failed to persist results", zap.String("job_id", job.ID), zap.Error(werr))
			}
		}

		api.mu.Lock()
		defer api.mu.Unlock()
		job.Results = results
		job.Err = err
		job.Finished = time.Now()
		job.Status = proto.JobStatusCompleted
		if err != nil {
			job.Status = proto.JobStatusFailed
		}
	}()

	api.logger.Info("Sweep submitted", zap.String("job_id", job.ID), zap.Int("combinations", len(combos)))
	return proto.SweepResponse{JobID: job.ID, Status: job.Status, Combinations: len(combos)}
}

// Wait blocks until every submitted sweep has finished.
func (api *APIService) Wait() { api.wg.Wait() }

// Job returns a snapshot of a job.
func (api *APIService) Job(id string) (Job, bool) {
	api.mu.RLock()
	defer api.mu.RUnlock()
	job, ok := api.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (api *APIService) GetResults(id string) proto.SweepResult {
	job, ok := api.Job(id)
	if !ok {
		e := ErrDataNotFound
		e.Details = "unknown job " + id
		return proto.SweepResult{JobID: id, Status: proto.JobStatusFailed, Error: e.Proto()}
	}

	res := proto.SweepResult{JobID: id, Status: job.Status}
	if job.Status == proto.JobStatusRunning {
		return res
	}
	res.ExecutionTimeMs = job.Finished.Sub(job.Submitted).Milliseconds()
	if job.Err != nil {
		res.Error = ToAPIError(job.Err).Proto()
	}
	res.Rows = PerformanceRows(job.Results)
	if m := job.Manifest; m != nil {
		res.Manifest = &proto.RunManifest{
			JobID:         m.JobID,
			EngineVersion: m.EngineVersion,
			ConfigHash:    m.ConfigHash,
			DataChecksum:  m.DataChecksum,
			Combinations:  m.Combinations,
			Bars:          m.Bars,
			CreatedAt:     m.CreatedAt,
		}
	}
	return res
}

// GetCombination returns the trades and equity curve of one combination.
// Only combinations run in full mode keep their per-bar arrays.
func (api *APIService) GetCombination(id string, combination int) (proto.CombinationDetail, error) {
	job, ok := api.Job(id)
	if !ok {
		e := ErrDataNotFound
		e.Details = "unknown job " + id
		return proto.CombinationDetail{}, e
	}
	if combination < 0 || combination >= len(job.Results) {
		e := ErrInvalidParams
		e.Details = fmt.Sprintf("combination %d out of range", combination)
		return proto.CombinationDetail{}, e
	}
	r := job.Results[combination]
	if r.Backtest == nil {
		e := ErrDataNotFound
		e.Details = "per-bar output was not kept; rerun with mode=full"
		return proto.CombinationDetail{}, e
	}
	return Detail(id, job.Frames.Base(), r), nil
}

// PerformanceRows converts results to wire rows.
func PerformanceRows(results []Result) []proto.PerformanceRow {
	rows := make([]proto.PerformanceRow, len(results))
	for i, r := range results {
		row := proto.PerformanceRow{Combination: r.ID, Valid: r.Valid, Metrics: map[string]string{}}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		for k, v := range r.Performance.Map() {
			row.Metrics[k] = proto.Decimal(v)
		}
		rows[i] = row
	}
	return rows
}

// Detail builds the per-bar wire view of a full-mode result.
func Detail(jobID string, bars *market.BarSeries, r Result) proto.CombinationDetail {
	d := proto.CombinationDetail{JobID: jobID, Combination: r.ID}
	out := r.Backtest
	for _, t := range Trades(out) {
		side := "long"
		if !t.Long() {
			side = "short"
		}
		rec := proto.TradeRecord{
			Side:       side,
			ExitTime:   bars.Time[t.ExitBar],
			EntryPrice: proto.Decimal(t.EntryPrice),
			ExitPrice:  proto.Decimal(t.ExitPrice),
			Profit:     proto.Decimal(t.Profit),
			Reason:     t.Reason.String(),
		}
		if t.EntryBar >= 0 {
			rec.EntryTime = bars.Time[t.EntryBar]
		}
		d.Trades = append(d.Trades, rec)
	}
	d.EquityCurve = make([]proto.EquityPoint, out.Len())
	for i := range d.EquityCurve {
		d.EquityCurve[i] = proto.EquityPoint{
			Timestamp: bars.Time[i],
			Position:  int32(out.Position[i]),
			Equity:    proto.Decimal(out.Equity[i]),
			Balance:   proto.Decimal(out.Balance[i]),
			Drawdown:  proto.Decimal(out.Drawdown[i]),
		}
	}
	return d
}
