// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loom_autopublisher/generator"
	"loom_autopublisher/ledger"
	"loom_autopublisher/pipeline"
)

const (
	defaultRunTimeout   = 10 * time.Minute
	defaultListLimit    = 50
	maxRequestBodyBytes = 4 << 20
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// History reads recorded runs.
type History interface {
	Get(ctx context.Context, runID string) (*ledger.Run, error)
	List(ctx context.Context, limit int) ([]*ledger.Run, error)
}

// Server exposes runs, synthesis and run history over HTTP.
type Server struct {
	runner     Runner
	synth      pipeline.ContentSynthesizer
	history    History
	style      generator.BrandStyle
	logger     *slog.Logger
	runTimeout time.Duration
	metrics    http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithBrandStyle sets the stylesheet passed to every synthesis.
func WithBrandStyle(style generator.BrandStyle) Option {
	return func(s *Server) { s.style = style }
}

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunTimeout bounds each POST /api/runs request.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

// WithMetricsHandler replaces the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New builds a server. history may be nil, in which case the run history
// endpoints answer 404.
func New(runner Runner, synth pipeline.ContentSynthesizer, history History, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, errors.New("pipeline runner required")
	}
	if synth == nil {
		return nil, errors.New("synthesizer required")
	}
	s := &Server{
		runner:     runner,
		synth:      synth,
		history:    history,
		logger:     slog.Default(),
		runTimeout: defaultRunTimeout,
		metrics:    promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Routes returns the API handler wrapped in request logging.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.handleRunCreate)
	mux.HandleFunc("GET /api/runs", s.handleRunList)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunGet)
	mux.HandleFunc("POST /api/synthesize", s.handleSynthesize)
	mux.Handle("GET /metrics", s.metrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return logMiddleware(s.logger, mux)
}

// --- Handlers ---

type runCreateReq struct {
	ShareURL   string   `json:"share_url"`
	Transcript string   `json:"transcript"`
	DryRun     bool     `json:"dry_run"`
	Intro      *bool    `json:"intro"`
	Profiles   []string `json:"profiles"`
}

type synthesizeReq struct {
	Transcript string `json:"transcript"`
}

type synthesizeResp struct {
	Content generator.ContentRecord `json:"content"`
}

type errorResp struct {
	Error string `json:"error"`
	RunID string `json:"run_id,omitempty"`
}

func (s *Server) handleRunCreate(w http.ResponseWriter, r *http.Request) {
	var req runCreateReq
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ShareURL) == "" && strings.TrimSpace(req.Transcript) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "share_url or transcript is required"})
		return
	}

	preq := pipeline.Request{
		RunID:      uuid.NewString(),
		ShareURL:   strings.TrimSpace(req.ShareURL),
		BrandStyle: s.style,
		WithIntro:  req.Intro == nil || *req.Intro,
		Profiles:   req.Profiles,
	}
	if req.Transcript != "" {
		preq.Transcript = generator.RawTranscript(req.Transcript)
	}
	if req.DryRun {
		preq.DryRun = pipeline.AllDryRun()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	out, err := s.runner.Run(ctx, preq)
	if err != nil {
		writeJSON(w, statusFor(err), errorResp{Error: err.Error(), RunID: preq.RunID})
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if runs == nil {
		runs = []*ledger.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	run, err := s.history.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, ledger.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "run not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeReq
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	rec, err := s.synth.Synthesize(ctx, generator.RawTranscript(req.Transcript), s.style)
	if err != nil {
		writeJSON(w, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, synthesizeResp{Content: rec})
}

// --- Helpers ---

func statusFor(err error) int {
	switch {
	case errors.Is(err, generator.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
