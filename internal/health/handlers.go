package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zsiec/udplog/pkg/version"
)

// Response represents the health check response.
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]*Check `json:"checks,omitempty"`
}

// Handler handles health check HTTP endpoints.
type Handler struct {
	manager   *Manager
	startTime time.Time
}

// NewHandler creates a new health check handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager:   manager,
		startTime: time.Now(),
	}
}

// HandleHealth runs every checker and reports the aggregate. Degraded still
// answers 200.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := h.manager.RunChecks(ctx)
	overallStatus := h.manager.GetOverallStatus()

	response := Response{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Version:   version.Version,
		Uptime:    formatUptime(time.Since(h.startTime)),
		Checks:    checks,
	}

	h.writeJSON(w, statusCode(overallStatus), response)
}

// HandleReady reports the status of the most recent run without re-checking.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := h.manager.GetOverallStatus()

	response := struct {
		Status    Status    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Status:    overallStatus,
		Timestamp: time.Now(),
	}

	h.writeJSON(w, statusCode(overallStatus), response)
}

// HandleLive answers as long as the process serves HTTP.
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Status:    "alive",
		Timestamp: time.Now(),
	}

	h.writeJSON(w, http.StatusOK, response)
}

func statusCode(s Status) int {
	if s == StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// formatUptime renders d as e.g. "1 day 2 hours 5 seconds". Zero units are
// skipped; a duration under a second is "0 seconds".
func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	units := []struct {
		name string
		size int
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := make([]string, 0, len(units))
	for _, u := range units {
		n := total / u.size
		total %= u.size
		if n > 0 {
			parts = append(parts, formatUnit(n, u.name))
		}
	}
	if len(parts) == 0 {
		return formatUnit(0, "second")
	}
	return strings.Join(parts, " ")
}

func formatUnit(value int, unit string) string {
	if value == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(value) + " " + unit + "s"
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.manager.logger.WithError(err).Error("Failed to encode health response")
	}
}
