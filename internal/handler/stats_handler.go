package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// StatsAPIHandler は統計情報のJSON APIハンドラー。
type StatsAPIHandler struct {
	service RequestServiceInterface
}

// NewStatsAPIHandler はStatsAPIHandlerを生成する。
func NewStatsAPIHandler(service RequestServiceInterface) *StatsAPIHandler {
	return &StatsAPIHandler{service: service}
}

// statsResponse は統計情報のJSONレスポンス。
type statsResponse struct {
	Total                int               `json:"total"`
	ByStatus             map[string]int    `json:"by_status"`
	ByCategory           map[string]int    `json:"by_category"`
	ByDepartment         map[string]int    `json:"by_department"`
	ByPriority           map[string]int    `json:"by_priority"`
	AvgResolutionSeconds float64           `json:"avg_resolution_seconds"`
	Recent               []requestResponse `json:"recent"`
}

// Stats は集計結果を返す。
// GET /api/stats
func (h *StatsAPIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := statsResponse{
		Total:                stats.Total,
		ByStatus:             make(map[string]int, len(stats.ByStatus)),
		ByCategory:           stats.ByCategory,
		ByDepartment:         stats.ByDepartment,
		ByPriority:           stats.ByPriority,
		AvgResolutionSeconds: stats.AvgResolutionSeconds,
		Recent:               make([]requestResponse, len(stats.Recent)),
	}
	for status, n := range stats.ByStatus {
		resp.ByStatus[string(status)] = n
	}
	for i, req := range stats.Recent {
		resp.Recent[i] = toRequestResponse(req)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Pinger はヘルスチェックが必要とするDB疎通確認のインターフェース。
// *sql.DBがそのまま満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health はDBへの疎通を確認して結果を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := h.db.PingContext(ctx); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
