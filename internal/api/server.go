// Package api exposes a small read-mostly HTTP API over running and
// persisted scans.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/internal/infra/storage/reports"
	"github.com/ahrav/buenobot/pkg/common/logger"
	"github.com/ahrav/buenobot/pkg/common/otel"
)

// DefaultListLimit bounds GET /v1/scans when no limit is given.
const DefaultListLimit = 20

// ScanService launches and inspects running scans.
type ScanService interface {
	Start(ctx context.Context, req appscanning.ScanRequest) (string, error)
	Snapshot(id string) (scanning.Report, error)
	Cancel(id string) error
	Active() []string
}

// ReportReader reads persisted reports.
type ReportReader interface {
	Get(ctx context.Context, id string) (scanning.Report, error)
	List(ctx context.Context, limit int) ([]reports.IndexEntry, error)
}

// Config carries the server address and the defaults applied to launched
// scans.
type Config struct {
	Addr     string
	Build    string
	Defaults appscanning.ScanRequest
}

type Server struct {
	cfg      Config
	scans    ScanService
	reports  ReportReader
	validate *validator.Validate
	router   *chi.Mux
	handler  http.Handler

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics APIMetrics
}

func NewServer(
	cfg Config,
	scans ScanService,
	store ReportReader,
	metrics APIMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
) *Server {
	r := chi.NewRouter()

	s := &Server{
		cfg:      cfg,
		scans:    scans,
		reports:  store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   r,
		logger:   log.With("component", "status_api"),
		tracer:   tracer,
		metrics:  metrics,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)

	s.routes()
	s.handler = otelhttp.NewHandler(r, "status_api")
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			ctx := r.Context()
			route := r.URL.Path
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			s.metrics.IncRequestsTotal(ctx, r.Method, route, ww.Status())
			s.metrics.ObserveRequestDuration(ctx, r.Method, route, elapsed)
			s.logger.Info(ctx, "Request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", elapsed,
				"trace_id", otel.GetTraceID(ctx),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/scans", s.handleListScans)
		r.Post("/scans", s.handleStartScan)
		r.Get("/scans/{id}", s.handleGetScan)
		r.Post("/scans/{id}/cancel", s.handleCancelScan)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(ctx, "failed to encode response", "error", err)
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	s.writeJSON(ctx, w, status, errorResponse{Error: msg})
}

type healthResponse struct {
	Status      string `json:"status"`
	Build       string `json:"build,omitempty"`
	ActiveScans int    `json:"active_scans"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r.Context(), w, http.StatusOK, healthResponse{
		Status:      "ok",
		Build:       s.cfg.Build,
		ActiveScans: len(s.scans.Active()),
	})
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(ctx, w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.reports.List(ctx, limit)
	if err != nil {
		s.logger.Error(ctx, "failed to list reports", "error", err)
		s.writeError(ctx, w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []reports.IndexEntry{}
	}
	s.writeJSON(ctx, w, http.StatusOK, entries)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if snap, err := s.scans.Snapshot(id); err == nil {
		s.writeJSON(ctx, w, http.StatusOK, snap)
		return
	}

	rep, err := s.reports.Get(ctx, id)
	switch {
	case err == nil:
		s.writeJSON(ctx, w, http.StatusOK, rep)
	case errors.Is(err, reports.ErrReportNotFound):
		s.writeError(ctx, w, http.StatusNotFound, "scan not found")
	default:
		s.logger.Error(ctx, "failed to load report", "scan_id", id, "error", err)
		s.writeError(ctx, w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := s.scans.Cancel(id); err != nil {
		if errors.Is(err, appscanning.ErrScanNotFound) {
			s.writeError(ctx, w, http.StatusNotFound, "scan is not running")
			return
		}
		s.writeError(ctx, w, http.StatusInternalServerError, "internal error")
		return
	}
	s.logger.Info(ctx, "scan cancellation requested", "scan_id", id)
	w.WriteHeader(http.StatusAccepted)
}

type startRequest struct {
	Profile     string     `json:"profile" validate:"required,oneof=quick full"`
	Environment string     `json:"environment,omitempty"`
	BaseURL     string     `json:"base_url,omitempty" validate:"omitempty,url"`
	WorkDir     string     `json:"work_dir,omitempty"`
	Commit      string     `json:"commit,omitempty"`
	Trigger     string     `json:"trigger,omitempty"`
	AI          *aiRequest `json:"ai,omitempty"`
}

type aiRequest struct {
	Mode   string `json:"mode,omitempty" validate:"omitempty,oneof=quick standard deep"`
	Engine string `json:"engine,omitempty"`
}

type startResponse struct {
	ScanID string `json:"scan_id"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.IncScanRequestsTotal(ctx)

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncScanRequestErrors(ctx, "decode")
		s.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.metrics.IncScanRequestErrors(ctx, "validation")
		s.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.scans.Start(ctx, s.toScanRequest(req))
	if err != nil {
		s.metrics.IncScanRequestErrors(ctx, "start")
		s.logger.Error(ctx, "failed to start scan", "error", err)
		s.writeError(ctx, w, http.StatusConflict, err.Error())
		return
	}

	s.logger.Info(ctx, "scan started", "scan_id", id, "profile", req.Profile)
	s.writeJSON(ctx, w, http.StatusAccepted, startResponse{ScanID: id})
}

func (s *Server) toScanRequest(req startRequest) appscanning.ScanRequest {
	d := s.cfg.Defaults
	out := appscanning.ScanRequest{
		Profile:     appscanning.Profile(req.Profile),
		Environment: req.Environment,
		BaseURL:     req.BaseURL,
		WorkDir:     req.WorkDir,
		Commit:      req.Commit,
		Trigger:     req.Trigger,
		AI:          d.AI,
	}
	if out.Environment == "" {
		out.Environment = d.Environment
	}
	if out.BaseURL == "" {
		out.BaseURL = d.BaseURL
	}
	if out.WorkDir == "" {
		out.WorkDir = d.WorkDir
	}
	if out.Commit == "" {
		out.Commit = d.Commit
	}
	if out.Trigger == "" {
		out.Trigger = "api"
	}
	if req.AI != nil {
		out.AI = &appscanning.EnrichOptions{
			Mode:        analysis.ParseMode(req.AI.Mode),
			ForceEngine: req.AI.Engine,
		}
	}
	return out
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.NewStdLogger(s.logger, logger.LevelError),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting server", "addr", server.Addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
