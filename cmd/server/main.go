// Package main implements the sweep service with an HTTP API, a gRPC health
// endpoint and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"backtest-sweep/services/arrowpipeline"
	"backtest-sweep/services/clickhouse"
	"backtest-sweep/services/config"
	"backtest-sweep/services/engine"
	"backtest-sweep/services/market"
	"backtest-sweep/services/monitoring"
)

const serviceName = "backtest.sweep"

// mockSource serves deterministic random-walk bars when no ClickHouse is
// configured. Higher timeframes are resampled from the base series.
type mockSource struct {
	bars int
	seed uint64
}

func (m mockSource) LoadFrames(_ context.Context, req engine.DataRequest) (market.Frames, error) {
	if len(req.Timeframes) == 0 {
		return nil, engine.ValidationError{Msg: "at least one timeframe is required"}
	}
	base := market.MockSeries(m.bars, m.seed)
	if req.Timeframes[0] != market.TF1m {
		var err error
		if base, err = market.Resample(base, req.Timeframes[0]); err != nil {
			return nil, engine.ValidationError{Msg: err.Error()}
		}
	}
	frames := market.Frames{base}
	for _, tf := range req.Timeframes[1:] {
		htf, err := market.Resample(base, tf)
		if err != nil {
			return nil, engine.ValidationError{Msg: err.Error()}
		}
		frames = append(frames, htf)
	}
	return frames, nil
}

func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.Config{Workers: cfg.Engine.MaxWorkers, ChunkSize: cfg.Engine.ChunkSize}
	if cfg.Engine.PerformanceOnly {
		ec.Mode = engine.ModePerformanceOnly
	}
	return ec
}

func main() {
	configPath := flag.String("config", os.Getenv("BACKTEST_CONFIG"), "YAML config file")
	debug := flag.Bool("debug", false, "development logging")
	mockBars := flag.Int("mock-bars", 20_000, "bars served by the mock source when clickhouse is not configured")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if *debug {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting sweep service",
		zap.String("version", engine.EngineVersion),
		zap.String("environment", cfg.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *mockBars); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Servers stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, mockBars int) error {
	var (
		source engine.DataSource = mockSource{bars: mockBars, seed: 42}
		sink   engine.ResultSink
	)
	if cfg.ClickHouse.Enabled() {
		ch, err := clickhouse.NewClient(ctx, cfg.ClickHouse, logger)
		if err != nil {
			return fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		defer ch.Close()
		if err := ch.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare ClickHouse schema: %w", err)
		}
		source, sink = ch, ch
	} else {
		logger.Warn("ClickHouse not configured, serving mock bars", zap.Int("bars", mockBars))
	}

	pipeline, err := arrowpipeline.NewPipeline(cfg.Arrow, logger)
	if err != nil {
		return fmt.Errorf("failed to create Arrow pipeline: %w", err)
	}

	var opts []engine.Option
	var metrics *monitoring.Metrics
	if cfg.Monitoring.Enabled {
		if metrics, err = monitoring.NewMetrics(cfg.Monitoring); err != nil {
			return fmt.Errorf("failed to create monitoring: %w", err)
		}
		opts = append(opts, engine.WithRecorder(metrics))
	}

	api := engine.NewAPIService(source, sink, engineConfig(cfg), logger, opts...)
	srv := newServer(api, pipeline, metrics, logger)

	// Setup gRPC server
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           srv.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers...")
		healthServer.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		// running sweeps may still be persisting results
		api.Wait()
		return err
	})
	return g.Wait()
}
