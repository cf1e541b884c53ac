package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/zsiec/udplog/internal/logger"
)

// requestIDMiddleware adds a unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		r.Header.Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware labels requests by route template so path cardinality
// stays bounded.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	if s.httpMetrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		rw := logger.NewResponseWriter(w)
		next.ServeHTTP(rw, r)

		status := strconv.Itoa(rw.StatusCode())
		s.httpMetrics.Requests.WithLabelValues(r.Method, path, status).Inc()
		s.httpMetrics.Duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
