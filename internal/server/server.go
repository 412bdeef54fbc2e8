// Package server exposes the normalizer over HTTP.
//
// Routes:
//
//	POST /v1/normalize  {"text": "..."} or {"texts": ["...", ...]}
//	POST /v1/classify   {"text": "..."}
//	GET  /healthz, GET /readyz
//	GET  /metrics       (when a metrics handler is configured)
//
// Until an [Engine] is installed with [Server.SetEngine] the API routes answer
// 503, so the process can report liveness while grammars are still building.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/MrWong99/textnorm/internal/health"
	"github.com/MrWong99/textnorm/internal/normalize"
	"github.com/MrWong99/textnorm/internal/observe"
)

// defaultMaxBody caps request bodies.
const defaultMaxBody = 1 << 20

// errNotReady is reported while no engine is installed.
var errNotReady = errors.New("grammars are not built yet")

// Engine is the normalization backend served by [Server].
type Engine interface {
	Normalize(ctx context.Context, text string) (string, error)
	NormalizeList(ctx context.Context, lines []string, workers int) ([]string, error)
	Classify(ctx context.Context, text string) ([]normalize.Token, error)
}

var _ Engine = (*normalize.Normalizer)(nil)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithMaxBody sets the request body limit in bytes.
func WithMaxBody(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithWorkers sets the concurrency for batch requests. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Server) {
		s.workers = n
	}
}

// Server routes HTTP requests to an [Engine]. It is safe for concurrent use.
type Server struct {
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	maxBody        int64
	workers        int

	mu     sync.RWMutex
	engine Engine
}

// New creates a Server. Health routes are served by h; request metrics go to m.
func New(h *health.Handler, m *observe.Metrics, opts ...Option) *Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	s := &Server{health: h, metrics: m, maxBody: defaultMaxBody}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetEngine installs the engine; API routes start answering.
func (s *Server) SetEngine(e Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = e
}

func (s *Server) current() Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Handler returns the routed handler wrapped with tracing, metrics and
// request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/normalize", s.handleNormalize)
	mux.HandleFunc("POST /v1/classify", s.handleClassify)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

// ── Request / response bodies ────────────────────────────────────────────────

type normalizeRequest struct {
	Text  *string  `json:"text,omitempty"`
	Texts []string `json:"texts,omitempty"`
}

type normalizeResponse struct {
	Normalized     *string  `json:"normalized,omitempty"`
	NormalizedList []string `json:"normalized_list,omitempty"`
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Tokens []normalize.Token `json:"tokens"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	e := s.current()
	if e == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errNotReady)
		return
	}
	var req normalizeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	switch {
	case req.Text != nil && req.Texts != nil:
		s.writeError(w, r, http.StatusBadRequest, errors.New(`set either "text" or "texts", not both`))
	case req.Text != nil:
		out, err := e.Normalize(r.Context(), *req.Text)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, normalizeResponse{Normalized: &out})
	case req.Texts != nil:
		out, err := e.NormalizeList(r.Context(), req.Texts, s.workers)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, normalizeResponse{NormalizedList: out})
	default:
		s.writeError(w, r, http.StatusBadRequest, errors.New(`one of "text" or "texts" is required`))
	}
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	e := s.current()
	if e == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errNotReady)
		return
	}
	var req classifyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	tokens, err := e.Classify(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if tokens == nil {
		tokens = []normalize.Token{}
	}
	writeJSON(w, http.StatusOK, classifyResponse{Tokens: tokens})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), CorrelationID: observe.CorrelationID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}
