// Package api exposes the suggestion cache, its retention policy and its
// metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/soilsense/soilsense/pkg/models"
	"github.com/soilsense/soilsense/pkg/suggest"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// recentEventsLimit is the number of events returned with the JSON metrics.
const recentEventsLimit = 20

// Suggester is the suggestion cache.
type Suggester interface {
	GetOrCreate(ctx context.Context, reading models.SensorReading, rodID, plantType string) (suggest.Result, error)
}

// Retention is the cleanup service.
type Retention interface {
	Start()
	Stop()
	Configure(patch models.CleanupPatch) error
	Config() models.CleanupConfig
	Status() models.CleanupStatus
	RunCleanup(ctx context.Context) (models.CleanupStats, error)
	CleanupRod(ctx context.Context, rodID string, keep int) (int64, error)
	ClearAll(ctx context.Context) (models.CleanupStats, error)
	CacheStats(ctx context.Context) (models.CacheStats, error)
}

// Metrics is the performance monitor.
type Metrics interface {
	prometheus.Collector
	GetMetrics() models.CacheMetrics
	GetRecentEvents(limit int) []models.PerformanceEvent
	GetRodMetrics(rodID string) models.RodMetrics
	ResetMetrics()
	SummaryReport() string
}

// Server is the soilsense HTTP API.
type Server struct {
	listen    string
	suggester Suggester
	retention Retention
	metrics   Metrics
	logger    *zap.Logger
	registry  *prometheus.Registry
	router    *mux.Router
	now       func() time.Time
}

// New creates a Server with every route registered. A nil logger disables logging.
func New(listen string, s Suggester, r Retention, m Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m,
	)

	srv := &Server{
		listen:    listen,
		suggester: s,
		retention: r,
		metrics:   m,
		logger:    logger.Named("api"),
		registry:  reg,
		router:    mux.NewRouter(),
		now:       time.Now,
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	httpMetrics := newHTTPMetrics(s.registry)
	s.router.Use(requestID, s.accessLog(httpMetrics), bodyLimit(maxBodyBytes))

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/suggestions", s.handleSuggestions).Methods(http.MethodPost)
	api.HandleFunc("/cache-cleanup", s.handleCleanupStatus).Methods(http.MethodGet)
	api.HandleFunc("/cache-cleanup", s.handleCleanupAction).Methods(http.MethodPost)
	api.HandleFunc("/cache-cleanup", s.handleClearAll).Methods(http.MethodDelete)
	api.HandleFunc("/cache-metrics", s.handleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/cache-metrics", s.handleResetMetrics).Methods(http.MethodDelete)
	api.HandleFunc("/cache-metrics/rods/{rodId}", s.handleRodMetrics).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down gracefully when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("soilsense api listening", zap.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error"`
	Details      string   `json:"details,omitempty"`
	ValidActions []string `json:"validActions,omitempty"`
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorBody{Error: message})
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, message string, err error) {
	s.logger.Error(message, zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: message, Details: err.Error()})
}
