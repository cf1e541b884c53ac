package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/udplog/internal/config"
	"github.com/zsiec/udplog/internal/errors"
	"github.com/zsiec/udplog/internal/health"
	"github.com/zsiec/udplog/internal/logger"
	"github.com/zsiec/udplog/internal/metrics"
)

// healthCheckInterval is how often the background health run refreshes the
// results served by /ready.
const healthCheckInterval = 15 * time.Second

// Server is the plain-HTTP admin server: health, version, metrics and the
// pipeline API.
type Server struct {
	config       *config.ServerConfig
	metricsCfg   *config.MetricsConfig
	router       *mux.Router
	httpServer   *http.Server
	listener     net.Listener
	logger       logger.Logger
	healthMgr    *health.Manager
	errorHandler *errors.ErrorHandler
	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics

	routesOnce sync.Once

	// Additional handlers can be registered
	additionalRoutes []func(*mux.Router)
}

// New creates a new admin server. reg is served on the metrics path and
// receives the HTTP middleware metrics; it may be nil when metrics are off.
func New(cfg *config.ServerConfig, metricsCfg *config.MetricsConfig, log *logrus.Entry, reg *prometheus.Registry) *Server {
	entry := log.WithField("component", "server")
	l := logger.NewLogrusAdapter(entry)

	s := &Server{
		config:           cfg,
		metricsCfg:       metricsCfg,
		router:           mux.NewRouter(),
		logger:           l,
		healthMgr:        health.NewManager(l),
		errorHandler:     errors.NewErrorHandler(entry),
		registry:         reg,
		additionalRoutes: make([]func(*mux.Router), 0),
	}
	if reg != nil {
		s.httpMetrics = metrics.NewHTTPMetrics(reg)
	}
	return s
}

// RegisterHealthChecker adds a checker to /health and /ready.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthMgr.Register(c)
}

// RegisterRoutes adds additional route handlers to the server. It must be
// called before Listen.
func (s *Server) RegisterRoutes(registerFunc func(*mux.Router)) {
	s.additionalRoutes = append(s.additionalRoutes, registerFunc)
}

// Listen binds the admin address. Binding separately from Serve surfaces a
// busy port before the pipeline is running.
func (s *Server) Listen() error {
	s.routesOnce.Do(s.setupRoutes)

	addr := net.JoinHostPort(s.config.ListenAddr, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapResourceError(err, fmt.Sprintf("admin server listen on %s", addr))
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return nil
}

// Serve runs the server until ctx is done, then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.NewInternalError("admin server not listening")
	}

	go s.healthMgr.StartPeriodicChecks(ctx, healthCheckInterval)

	s.logger.WithField("addr", s.listener.Addr().String()).Info("Starting admin server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.WrapIOError(err, "admin server failed")
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Start is Listen followed by Serve.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Shutdown gracefully shuts down the server within the configured timeout.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down admin server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown admin server: %w", err)
	}

	s.logger.Info("Admin server shutdown complete")
	return nil
}

// Addr is the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(s.metricsMiddleware)

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods("GET")
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods("GET")

	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	if s.metricsCfg != nil && s.metricsCfg.Enabled && s.registry != nil {
		s.router.Handle(s.metricsCfg.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			Registry:          s.registry,
			EnableOpenMetrics: true,
		})).Methods("GET")
	}

	for _, registerFunc := range s.additionalRoutes {
		registerFunc(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

// GetRouter returns the router with all routes installed.
func (s *Server) GetRouter() *mux.Router {
	s.routesOnce.Do(s.setupRoutes)
	return s.router
}
