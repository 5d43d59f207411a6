// Package server exposes the HTTP surface of the routing engine: inbound
// lead ingestion, the rule administration API, forwarding log/stats reads,
// and the health/metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/usecase"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

// ReadyCheck probes one dependency for the readiness endpoint.
type ReadyCheck func(ctx context.Context) error

// Server is the engine's HTTP front.
type Server struct {
	httpServer  *http.Server
	logger      *zap.Logger
	ingest      *usecase.IngestService
	rules       *usecase.RuleService
	logs        *usecase.LogService
	readyChecks map[string]ReadyCheck
}

// New builds the server with its routes mounted. readyChecks gate /ready;
// metricsEnabled mounts /metrics.
func New(port int, log *zap.Logger, ingest *usecase.IngestService, rules *usecase.RuleService, logs *usecase.LogService, readyChecks map[string]ReadyCheck, metricsEnabled bool) *Server {
	s := &Server{
		logger:      log.Named("http"),
		ingest:      ingest,
		rules:       rules,
		logs:        logs,
		readyChecks: readyChecks,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/webhook/{webhookId}", s.handleIngest)

	r.Route("/admin/scopes/{scopeId}", func(r chi.Router) {
		r.Use(s.scopeFromURL)

		r.Route("/routing-rules", func(r chi.Router) {
			r.Get("/", s.handleListRoutingRules)
			r.Post("/", s.handleCreateRoutingRule)
			r.Get("/{ruleId}", s.handleGetRoutingRule)
			r.Put("/{ruleId}", s.handleUpdateRoutingRule)
			r.Delete("/{ruleId}", s.handleDeleteRoutingRule)
		})

		r.Route("/forwarding-rules", func(r chi.Router) {
			r.Get("/", s.handleListForwardingRules)
			r.Post("/", s.handleCreateForwardingRule)
			r.Post("/bulk", s.handleCreateForwardingRuleBulk)
			r.Get("/{ruleId}", s.handleGetForwardingRule)
			r.Put("/{ruleId}", s.handleUpdateForwardingRule)
			r.Delete("/{ruleId}", s.handleDeleteForwardingRule)
		})

		r.Patch("/forwarding-toggle", s.handleForwardingToggle)
		r.Get("/forwarding-log", s.handleForwardingLog)
		r.Get("/forwarding-stats", s.handleForwardingStats)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the mounted router, used directly in tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger attaches a request-scoped logger carrying the request ID.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := chimiddleware.GetReqID(r.Context())
		ctx := scope.WithRequestID(r.Context(), reqID)
		ctx = logger.WithLogger(ctx, s.logger.With(zap.String("request_id", reqID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// scopeFromURL lifts the {scopeId} route param into the request context.
func (s *Server) scopeFromURL(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopeID := chi.URLParam(r, "scopeId")
		if scopeID == "" {
			writeError(w, http.StatusBadRequest, "missing scope ID")
			return
		}
		next.ServeHTTP(w, r.WithContext(scope.WithScopeID(r.Context(), scopeID)))
	})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "UP",
		"version": "1.0.0",
	})
}

// handleReady runs the dependency checks and reports per-dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	details := make(map[string]string, len(s.readyChecks))
	status := http.StatusOK
	ready := "READY"
	for name, check := range s.readyChecks {
		if err := check(r.Context()); err != nil {
			details[name] = err.Error()
			status = http.StatusServiceUnavailable
			ready = "NOT_READY"
			continue
		}
		details[name] = "ok"
	}
	details["timestamp"] = utils.FormatISO8601(utils.Now())
	utils.WriteJSONResponse(w, status, map[string]interface{}{
		"status":  ready,
		"details": details,
	})
}
