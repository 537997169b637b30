package main

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backtest-sweep/proto"
	"backtest-sweep/services/arrowpipeline"
	"backtest-sweep/services/engine"
	"backtest-sweep/services/monitoring"
)

type server struct {
	api      *engine.APIService
	pipeline *arrowpipeline.Pipeline
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

func newServer(api *engine.APIService, pipeline *arrowpipeline.Pipeline, metrics *monitoring.Metrics, logger *zap.Logger) *server {
	return &server{api: api, pipeline: pipeline, metrics: metrics, logger: logger}
}

// HTTP handlers for REST API
func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	{
		api.POST("/sweeps", s.handleSweepRequest)
		api.GET("/sweeps/:job_id", s.handleGetSweepResult)
		api.GET("/sweeps/:job_id/combinations/:n", s.handleGetCombination)
		api.GET("/health", s.handleHealthCheck)
	}
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

func statusFor(code string) int {
	switch code {
	case engine.ErrInvalidParams.Code, engine.ErrInvalidStrategy.Code:
		return http.StatusBadRequest
	case engine.ErrDataNotFound.Code:
		return http.StatusNotFound
	case engine.ErrTimeout.Code:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleSweepRequest(c *gin.Context) {
	var req proto.SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		e := engine.ErrInvalidParams
		e.Details = err.Error()
		c.JSON(http.StatusBadRequest, proto.SweepResponse{Status: proto.JobStatusFailed, Error: e.Proto()})
		return
	}

	resp := s.api.RunSweep(c.Request.Context(), req)
	if resp.Error != nil {
		s.logger.Warn("Sweep request rejected", zap.String("code", resp.Error.Code), zap.String("details", resp.Error.Details))
		c.JSON(statusFor(resp.Error.Code), resp)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// handleGetSweepResult answers JSON by default and an Arrow IPC stream of
// the performance table with ?format=arrow.
func (s *server) handleGetSweepResult(c *gin.Context) {
	jobID := c.Param("job_id")
	if c.Query("format") != "arrow" {
		res := s.api.GetResults(jobID)
		status := http.StatusOK
		if res.Status == proto.JobStatusFailed && res.Error != nil {
			status = statusFor(res.Error.Code)
		}
		c.JSON(status, res)
		return
	}

	job, ok := s.api.Job(jobID)
	if !ok {
		e := engine.ErrDataNotFound
		e.Details = "unknown job " + jobID
		c.JSON(http.StatusNotFound, gin.H{"error": e.Proto()})
		return
	}
	if job.Status == proto.JobStatusRunning {
		c.JSON(http.StatusConflict, gin.H{"job_id": jobID, "status": job.Status})
		return
	}

	var buf bytes.Buffer
	if err := s.pipeline.WriteResults(c.Request.Context(), &buf, job.Manifest, job.Results); err != nil {
		s.logger.Error("Arrow export failed", zap.String("job_id", jobID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": engine.ToAPIError(err).Proto()})
		return
	}
	c.Data(http.StatusOK, arrowpipeline.ContentType, buf.Bytes())
}

func (s *server) handleGetCombination(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		e := engine.ErrInvalidParams
		e.Details = "combination must be an integer"
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Proto()})
		return
	}
	detail, err := s.api.GetCombination(c.Param("job_id"), n)
	if err != nil {
		e := engine.ToAPIError(err)
		c.JSON(statusFor(e.Code), gin.H{"error": e.Proto()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *server) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   engine.EngineVersion,
	})
}
