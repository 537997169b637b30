package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backtest-sweep/proto"
	"backtest-sweep/services/arrowpipeline"
	"backtest-sweep/services/config"
	"backtest-sweep/services/engine"
	"backtest-sweep/services/market"
	"backtest-sweep/services/monitoring"
	"backtest-sweep/strategies"
)

func testServer(t *testing.T) (*server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	pipeline, err := arrowpipeline.NewPipeline(cfg.Arrow, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	metrics, err := monitoring.NewMetrics(cfg.Monitoring)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	api := engine.NewAPIService(mockSource{bars: 300, seed: 1}, nil, engineConfig(cfg), nil, engine.WithRecorder(metrics))
	s := newServer(api, pipeline, metrics, zap.NewNop())
	return s, s.router()
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestSweepLifecycle(t *testing.T) {
	s, r := testServer(t)

	rec := do(r, http.MethodPost, "/api/v1/sweeps", proto.SweepRequest{
		Symbol:     "MOCK",
		Timeframes: []string{"1m", "5m"},
		Grid: proto.ParamGrid{
			Indicators: []map[string][]float64{
				{"bbands_enable": {1}, "bbands_period": {20}},
				{"sma_enable": {1}, "sma_period": {5, 10}},
			},
			Backtest: map[string][]float64{"signal_select": {float64(strategies.SignalBBandsMTFTrend)}},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status %d: %s", rec.Code, rec.Body)
	}
	var resp proto.SweepResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	s.api.Wait()

	rec = do(r, http.MethodGet, "/api/v1/sweeps/"+resp.JobID, nil)
	var res proto.SweepResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || res.Status != proto.JobStatusCompleted || len(res.Rows) != 2 {
		t.Fatalf("GET status %d: %+v", rec.Code, res)
	}

	rec = do(r, http.MethodGet, "/api/v1/sweeps/"+resp.JobID+"?format=arrow", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != arrowpipeline.ContentType {
		t.Fatalf("arrow export status %d type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	rdr, err := ipc.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("arrow body: %v", err)
	}
	var rows int64
	for rdr.Next() {
		rows += rdr.Record().NumRows()
	}
	rdr.Release()
	if rows != 2 {
		t.Fatalf("arrow export has %d rows", rows)
	}

	// two combinations run performance-only
	rec = do(r, http.MethodGet, "/api/v1/sweeps/"+resp.JobID+"/combinations/0", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("combination detail status %d", rec.Code)
	}

	rec = do(r, http.MethodGet, "/metrics", nil)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`backtest_sweep_combinations_total{valid="true"} 2`)) {
		t.Fatalf("metrics:\n%s", rec.Body)
	}
}

func TestSweepErrors(t *testing.T) {
	_, r := testServer(t)

	cases := []struct {
		method, path string
		body         any
		status       int
	}{
		{http.MethodPost, "/api/v1/sweeps", proto.SweepRequest{Timeframes: []string{"3q"}}, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/sweeps", proto.SweepRequest{
			Timeframes: []string{"1m"},
			Grid:       proto.ParamGrid{Backtest: map[string][]float64{"init_money": {0}}},
		}, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/sweeps/nope", nil, http.StatusNotFound},
		{http.MethodGet, "/api/v1/sweeps/nope?format=arrow", nil, http.StatusNotFound},
		{http.MethodGet, "/api/v1/sweeps/nope/combinations/x", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/health", nil, http.StatusOK},
	}
	for _, tc := range cases {
		if rec := do(r, tc.method, tc.path, tc.body); rec.Code != tc.status {
			t.Fatalf("%s %s: status %d, want %d: %s", tc.method, tc.path, rec.Code, tc.status, rec.Body)
		}
	}
}

func TestMockSourceBaseTimeframe(t *testing.T) {
	frames, err := mockSource{bars: 120, seed: 1}.LoadFrames(context.Background(), engine.DataRequest{Timeframes: []market.Timeframe{market.TF5m}})
	if err != nil {
		t.Fatalf("LoadFrames: %v", err)
	}
	if frames.Base().Len() != 24 || frames.Base().Timeframe != market.TF5m {
		t.Fatalf("base = %d bars of %s", frames.Base().Len(), frames.Base().Timeframe)
	}
}
