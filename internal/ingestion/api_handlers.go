package ingestion

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/logger"
)

// StatsProvider is the read side of the pipeline the API needs.
type StatsProvider interface {
	Stats() types.Stats
}

// Handlers exposes pipeline state over the admin API.
type Handlers struct {
	stats  StatsProvider
	logger logger.Logger
}

func NewHandlers(stats StatsProvider, log logger.Logger) *Handlers {
	return &Handlers{
		stats:  stats,
		logger: logger.WithComponent(log, "pipeline_api"),
	}
}

// RegisterRoutes registers the pipeline API routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/stats", h.HandleStats).Methods("GET")

	h.logger.Debug("Pipeline routes registered")
}

// StatsResponse is the /api/v1/stats body.
type StatsResponse struct {
	types.Stats
	UptimeSeconds    float64 `json:"uptime_seconds"`
	RecordsFormatted uint64  `json:"records_formatted"`
	Dropped          uint64  `json:"dropped"`
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	s := h.stats.Stats()
	resp := StatsResponse{
		Stats:            s,
		UptimeSeconds:    s.Uptime(time.Now()).Seconds(),
		RecordsFormatted: s.RecordsFormatted(),
		Dropped:          s.Dropped(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.FromContext(r.Context()).WithError(err).Error("Failed to encode stats response")
	}
}
