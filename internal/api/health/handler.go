package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/internal/workers"
	"pulse/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// PipelineStats exposes the ingestion pipeline's health counters.
type PipelineStats interface {
	Stats() telemetry.PipelineHealth
}

// WorkerSource lists the registered background workers. Satisfied by
// the worker scheduler.
type WorkerSource interface {
	GetWorkers() []workers.Worker
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	postgres    *sqlx.DB
	clickhouse  driver.Conn
	redis       *redis.Client
	pipeline    PipelineStats
	workers     WorkerSource
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(
	log *logger.Logger,
	postgres *sqlx.DB,
	clickhouse driver.Conn,
	redis *redis.Client,
	pipeline PipelineStats,
	workerSource WorkerSource,
	serviceName string,
	version string,
) *Handler {
	return &Handler{
		log:         log,
		postgres:    postgres,
		clickhouse:  clickhouse,
		redis:       redis,
		pipeline:    pipeline,
		workers:     workerSource,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status      string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service     string                     `json:"service"`
	Version     string                     `json:"version"`
	Uptime      string                     `json:"uptime"`
	Timestamp   string                     `json:"timestamp"`
	Checks      map[string]ComponentHealth `json:"checks"`
	Pipeline    *telemetry.PipelineHealth  `json:"pipeline,omitempty"`
	Workers     map[string]WorkerStatus    `json:"workers,omitempty"`
	ErrorDetail string                     `json:"error_detail,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WorkerStatus reports one background worker's run history.
type WorkerStatus struct {
	Enabled     bool   `json:"enabled"`
	Interval    string `json:"interval"`
	LastRun     string `json:"last_run,omitempty"`
	RunCount    int64  `json:"run_count"`
	ErrorCount  int64  `json:"error_count"`
	AvgDuration string `json:"avg_duration,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// HandleLiveness returns 200 OK if service is running
// Used by Kubernetes liveness probe
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
	})
}

// HandleReadiness checks if service is ready to accept traffic
// Used by Kubernetes readiness probe
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]ComponentHealth)
	allHealthy := true

	for name, check := range h.componentChecks() {
		component := check(ctx)
		checks[name] = component
		if component.Status != "healthy" {
			allHealthy = false
		}
	}

	status := HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if !allHealthy {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		h.log.Warn("Readiness check failed", "checks", checks)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(status)
}

// HandleHealth returns detailed health status: dependency checks plus the
// ingestion pipeline counters.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := make(map[string]ComponentHealth)
	healthyCount := 0
	totalCount := 0

	for name, check := range h.componentChecks() {
		totalCount++
		component := check(ctx)
		checks[name] = component
		if component.Status == "healthy" {
			healthyCount++
		}
	}

	status := HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}

	if h.pipeline != nil {
		totalCount++
		pipeline := h.pipeline.Stats()
		status.Pipeline = &pipeline

		pipelineCheck := ComponentHealth{Status: "healthy"}
		if !pipeline.Healthy {
			pipelineCheck.Status = "unhealthy"
		} else {
			healthyCount++
		}
		checks["pipeline"] = pipelineCheck
	}

	if h.workers != nil {
		status.Workers = h.workerStatuses()
	}

	statusCode := http.StatusOK

	if healthyCount == 0 {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else if healthyCount < totalCount {
		status.Status = "degraded"
		statusCode = http.StatusOK // Still return 200 for degraded
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(status)
}

// workerStatuses snapshots the run history of every registered worker
// that reports health. Workers without statistics appear with their
// static schedule only.
func (h *Handler) workerStatuses() map[string]WorkerStatus {
	statuses := make(map[string]WorkerStatus)

	for _, w := range h.workers.GetWorkers() {
		ws := WorkerStatus{
			Enabled:  w.Enabled(),
			Interval: w.Interval().String(),
		}

		if hw, ok := w.(workers.WorkerWithHealth); ok {
			health := hw.Health()
			ws.RunCount = health.RunCount
			ws.ErrorCount = health.ErrorCount
			if !health.LastRun.IsZero() {
				ws.LastRun = health.LastRun.Format(time.RFC3339)
			}
			if health.AvgDuration > 0 {
				ws.AvgDuration = health.AvgDuration.String()
			}
			if health.LastError != nil {
				ws.LastError = health.LastError.Error()
			}
		}

		statuses[w.Name()] = ws
	}

	return statuses
}

func (h *Handler) componentChecks() map[string]func(context.Context) ComponentHealth {
	return map[string]func(context.Context) ComponentHealth{
		"postgres":   h.checkPostgres,
		"clickhouse": h.checkClickHouse,
		"redis":      h.checkRedis,
	}
}

// checkPostgres verifies PostgreSQL connectivity
func (h *Handler) checkPostgres(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.postgres.PingContext(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Error("Postgres health check failed", "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}

// checkClickHouse verifies ClickHouse connectivity
func (h *Handler) checkClickHouse(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.clickhouse.Ping(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Error("ClickHouse health check failed", "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}

// checkRedis verifies Redis connectivity
func (h *Handler) checkRedis(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.redis.Ping(ctx).Err()
	elapsed := time.Since(start)

	if err != nil {
		h.log.Error("Redis health check failed", "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}
