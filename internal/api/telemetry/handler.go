package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
	"pulse/pkg/logger"
)

// Default query parameters applied when the caller omits them.
const (
	defaultDays        = 7
	defaultHeatmapDays = 7
	defaultTop         = 10
	defaultLimit       = 20
)

// AnalyticsService is the read surface the handler serves.
type AnalyticsService interface {
	ToolOverview(ctx context.Context) (telemetry.ToolOverview, error)
	ToolTrend(ctx context.Context, days int) ([]telemetry.TrendPoint, error)
	ToolDistribution(ctx context.Context, days int) ([]telemetry.DistributionSlice, error)
	ToolSuccessRates(ctx context.Context, days int) ([]telemetry.SuccessRateEntry, error)
	ToolPerformance(ctx context.Context, days int) ([]telemetry.PerformanceEntry, error)
	ToolRanking(ctx context.Context, days, top int) ([]telemetry.RankingEntry, error)
	ToolHeatmap(ctx context.Context, days int) (telemetry.Heatmap, error)
	RecentToolUsage(ctx context.Context, limit int) ([]telemetry.ToolUsageRecord, error)
	ToolDashboard(ctx context.Context, days int) (telemetry.ToolDashboard, error)

	ClientOverview(ctx context.Context) (telemetry.ClientOverview, error)
	ClientTrend(ctx context.Context, days int) ([]telemetry.ClientTrendPoint, error)
	ClientDistribution(ctx context.Context, days int) ([]telemetry.DistributionSlice, error)
	ClientSuccessRates(ctx context.Context, days int) ([]telemetry.SuccessRateEntry, error)
	ClientPerformance(ctx context.Context, days int) ([]telemetry.ClientPerformanceEntry, error)
	ClientRanking(ctx context.Context, days, top int) ([]telemetry.RankingEntry, error)
	ClientHeatmap(ctx context.Context, days int) (telemetry.Heatmap, error)
	RecentConnections(ctx context.Context, limit int) ([]telemetry.ClientConnectionRecord, error)
	ClientDashboard(ctx context.Context, days int) (telemetry.ClientDashboard, error)

	PipelineHealth() telemetry.PipelineHealth
}

// Handler serves the read-only telemetry API
type Handler struct {
	service AnalyticsService
	log     *logger.Logger
}

func NewHandler(service AnalyticsService, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

// Register mounts all telemetry routes on the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/telemetry/tools/overview", h.handleToolOverview)
	mux.HandleFunc("GET /api/v1/telemetry/tools/trend", h.handleToolTrend)
	mux.HandleFunc("GET /api/v1/telemetry/tools/distribution", h.handleToolDistribution)
	mux.HandleFunc("GET /api/v1/telemetry/tools/success-rates", h.handleToolSuccessRates)
	mux.HandleFunc("GET /api/v1/telemetry/tools/performance", h.handleToolPerformance)
	mux.HandleFunc("GET /api/v1/telemetry/tools/ranking", h.handleToolRanking)
	mux.HandleFunc("GET /api/v1/telemetry/tools/heatmap", h.handleToolHeatmap)
	mux.HandleFunc("GET /api/v1/telemetry/tools/recent", h.handleRecentToolUsage)
	mux.HandleFunc("GET /api/v1/telemetry/tools/dashboard", h.handleToolDashboard)

	mux.HandleFunc("GET /api/v1/telemetry/clients/overview", h.handleClientOverview)
	mux.HandleFunc("GET /api/v1/telemetry/clients/trend", h.handleClientTrend)
	mux.HandleFunc("GET /api/v1/telemetry/clients/distribution", h.handleClientDistribution)
	mux.HandleFunc("GET /api/v1/telemetry/clients/success-rates", h.handleClientSuccessRates)
	mux.HandleFunc("GET /api/v1/telemetry/clients/performance", h.handleClientPerformance)
	mux.HandleFunc("GET /api/v1/telemetry/clients/ranking", h.handleClientRanking)
	mux.HandleFunc("GET /api/v1/telemetry/clients/heatmap", h.handleClientHeatmap)
	mux.HandleFunc("GET /api/v1/telemetry/clients/recent", h.handleRecentConnections)
	mux.HandleFunc("GET /api/v1/telemetry/clients/dashboard", h.handleClientDashboard)

	mux.HandleFunc("GET /api/v1/telemetry/pipeline", h.handlePipeline)
}

func (h *Handler) handleToolOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.ToolOverview(r.Context())
	h.respond(w, overview, err)
}

func (h *Handler) handleToolTrend(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	trend, err := h.service.ToolTrend(r.Context(), days)
	h.respond(w, trend, err)
}

func (h *Handler) handleToolDistribution(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	distribution, err := h.service.ToolDistribution(r.Context(), days)
	h.respond(w, distribution, err)
}

func (h *Handler) handleToolSuccessRates(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	rates, err := h.service.ToolSuccessRates(r.Context(), days)
	h.respond(w, rates, err)
}

func (h *Handler) handleToolPerformance(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	entries, err := h.service.ToolPerformance(r.Context(), days)
	h.respond(w, entries, err)
}

func (h *Handler) handleToolRanking(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}
	top, err := intParam(r, "top", defaultTop)
	if err != nil {
		h.respondError(w, err)
		return
	}

	ranking, err := h.service.ToolRanking(r.Context(), days, top)
	h.respond(w, ranking, err)
}

func (h *Handler) handleToolHeatmap(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultHeatmapDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	heatmap, err := h.service.ToolHeatmap(r.Context(), days)
	h.respond(w, heatmap, err)
}

func (h *Handler) handleRecentToolUsage(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	records, err := h.service.RecentToolUsage(r.Context(), limit)
	h.respond(w, records, err)
}

func (h *Handler) handleToolDashboard(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	dashboard, err := h.service.ToolDashboard(r.Context(), days)
	h.respond(w, dashboard, err)
}

func (h *Handler) handleClientOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.ClientOverview(r.Context())
	h.respond(w, overview, err)
}

func (h *Handler) handleClientTrend(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	trend, err := h.service.ClientTrend(r.Context(), days)
	h.respond(w, trend, err)
}

func (h *Handler) handleClientDistribution(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	distribution, err := h.service.ClientDistribution(r.Context(), days)
	h.respond(w, distribution, err)
}

func (h *Handler) handleClientSuccessRates(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	rates, err := h.service.ClientSuccessRates(r.Context(), days)
	h.respond(w, rates, err)
}

func (h *Handler) handleClientPerformance(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	performance, err := h.service.ClientPerformance(r.Context(), days)
	h.respond(w, performance, err)
}

func (h *Handler) handleClientHeatmap(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultHeatmapDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	heatmap, err := h.service.ClientHeatmap(r.Context(), days)
	h.respond(w, heatmap, err)
}

func (h *Handler) handleClientRanking(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}
	top, err := intParam(r, "top", defaultTop)
	if err != nil {
		h.respondError(w, err)
		return
	}

	ranking, err := h.service.ClientRanking(r.Context(), days, top)
	h.respond(w, ranking, err)
}

func (h *Handler) handleRecentConnections(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	records, err := h.service.RecentConnections(r.Context(), limit)
	h.respond(w, records, err)
}

func (h *Handler) handleClientDashboard(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDays)
	if err != nil {
		h.respondError(w, err)
		return
	}

	dashboard, err := h.service.ClientDashboard(r.Context(), days)
	h.respond(w, dashboard, err)
}

func (h *Handler) handlePipeline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.service.PipelineHealth(), nil)
}

// intParam parses an integer query parameter, falling back to def when the
// parameter is absent. Non-numeric values are a validation error.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name, "must be an integer", raw)
	}

	return value, nil
}

func (h *Handler) respond(w http.ResponseWriter, payload interface{}, err error) {
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

type errorBody struct {
	Error   string      `json:"error"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message,omitempty"`
	Value   interface{} `json:"value,omitempty"`
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorBody{
			Error:   "invalid parameter",
			Field:   verr.Field,
			Message: verr.Message,
			Value:   verr.Value,
		})
		return
	}

	h.log.Errorf("Telemetry API request failed: %v", err)
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(errorBody{Error: "internal server error"})
}
