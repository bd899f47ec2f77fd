package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/straja-ai/entityshield/internal/anonymize"
	"github.com/straja-ai/entityshield/internal/audit"
	"github.com/straja-ai/entityshield/internal/auth"
	"github.com/straja-ai/entityshield/internal/config"
	"github.com/straja-ai/entityshield/internal/console"
	"github.com/straja-ai/entityshield/internal/redact"
	"github.com/straja-ai/entityshield/internal/spans"
)

// Anonymizer is the pipeline the HTTP layer drives.
type Anonymizer interface {
	Process(ctx context.Context, text string) (*anonymize.Result, error)
	Legend() []spans.LegendEntry
}

// Server wraps the HTTP server components for EntityShield.
type Server struct {
	mux          *http.ServeMux
	cfg          *config.Config
	anonymizer   Anonymizer
	auth         *auth.Auth
	audit        *audit.Emitter
	metrics      *Metrics
	registry     *prometheus.Registry
	maxBodyBytes int64
}

// Option customizes a Server.
type Option func(*Server)

// WithAuth requires a known bearer API key on /v1 endpoints once any
// key is configured.
func WithAuth(a *auth.Auth) Option {
	return func(s *Server) { s.auth = a }
}

// WithAudit emits one audit event per anonymize request.
func WithAudit(em *audit.Emitter) Option {
	return func(s *Server) { s.audit = em }
}

// WithMetrics registers Prometheus collectors on reg and serves them on
// /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
		s.metrics = NewMetrics(reg)
	}
}

// New registers the API routes for svc.
func New(cfg *config.Config, svc Anonymizer, opts ...Option) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		cfg:          cfg,
		anonymizer:   svc,
		maxBodyBytes: cfg.Server.MaxRequestBodyBytes,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = 64 << 10
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("/v1/anonymize", s.metrics.instrument("anonymize", s.handleAnonymize))
	s.mux.HandleFunc("/v1/categories", s.metrics.instrument("categories", s.handleCategories))
	if s.metrics != nil {
		registerAudit(s.registry, s.audit)
		s.mux.Handle("/metrics", s.metrics.handler)
	}
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/robots.txt", handleRobots)
	s.mux.Handle("/console", console.Handler())
	s.mux.Handle("/console/", console.Handler())
	return s
}

// Handler exposes the routed mux, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server on the configured address until ctx is
// cancelled, then shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		redact.Logf("EntityShield running on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		redact.Logf("shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

const robotsTxt = "User-agent: *\nDisallow: /\n"

func handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(console.RobotsTagHeader, console.RobotsTagValue)
	_, _ = w.Write([]byte(robotsTxt))
}

type anonymizeRequest struct {
	Text string `json:"text"`
}

type anonymizeResponse struct {
	Entities    []spans.EntitySpan `json:"entities"`
	Highlighted string             `json:"highlighted"`
	Anonymized  string             `json:"anonymized"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	requestID := requestIDFrom(r)
	w.Header().Set(requestIDHeader, requestID)
	params := audit.BuildParams{
		RequestID: requestID,
		Backend:   s.cfg.Classifier.Backend,
	}
	defer func() {
		params.Total = time.Since(start)
		s.audit.Emit(audit.BuildEvent(params))
	}()

	client, ok := s.authenticate(w, r)
	if !ok {
		params.Outcome = audit.OutcomeUnauthorized
		return
	}
	params.ClientID = client.ID

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var reqBody anonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		params.Outcome = audit.OutcomeRejected
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", "invalid_request_error")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body", "invalid_request_error")
		return
	}
	params.InputChars = utf8.RuneCountInString(reqBody.Text)

	res, err := s.anonymizer.Process(r.Context(), reqBody.Text)
	switch {
	case err == nil:
	case errors.Is(err, anonymize.ErrEmptyText):
		params.Outcome = audit.OutcomeRejected
		writeError(w, http.StatusBadRequest, "Inserisci un testo valido", "invalid_request_error")
		return
	case errors.Is(err, anonymize.ErrTextTooLong):
		params.Outcome = audit.OutcomeRejected
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Text exceeds the limit of %d characters", s.cfg.Server.MaxTextChars), "invalid_request_error")
		return
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		params.Outcome = audit.OutcomeCancelled
		writeError(w, http.StatusServiceUnavailable, "Request cancelled", "timeout_error")
		return
	case errors.Is(err, anonymize.ErrClassifier):
		params.Outcome = audit.OutcomeClassifierError
		redact.Logf("anonymize: request=%s classifier error: %v", requestID, err)
		writeError(w, http.StatusBadGateway, "Entity classifier error", "classifier_error")
		return
	default:
		params.Outcome = audit.OutcomeInternalError
		redact.Logf("anonymize: request=%s internal error: %v", requestID, err)
		writeError(w, http.StatusInternalServerError, "Internal error", "internal_error")
		return
	}

	params.Outcome = audit.OutcomeOK
	params.Entities = res.Entities
	params.Inference = res.Timings.Inference
	params.Render = res.Timings.Aggregate + res.Timings.Render
	s.metrics.countEntities(audit.CountCategories(res.Entities))

	redact.Logf("anonymize: request=%s entities=%d inference=%s render=%s total=%s",
		requestID, len(res.Entities), res.Timings.Inference, res.Timings.Render, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(anonymizeResponse{
		Entities:    res.Entities,
		Highlighted: res.Highlighted,
		Anonymized:  res.Anonymized,
	}); err != nil {
		redact.Logf("failed to write response: %v", err)
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.anonymizer.Legend()); err != nil {
		redact.Logf("failed to write categories: %v", err)
	}
}

// authenticate resolves the bearer key to a client. With auth disabled
// every request passes as an anonymous client. On failure a 401 has
// already been written.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (auth.Client, bool) {
	if !s.auth.Enabled() {
		return auth.Client{}, true
	}
	token, ok := auth.ParseBearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid API key", "authentication_error")
		return auth.Client{}, false
	}
	client, ok := s.auth.Lookup(token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid API key", "authentication_error")
		return auth.Client{}, false
	}
	return client, true
}

const requestIDHeader = "X-Request-ID"

// requestIDFrom reuses a caller-supplied request id when it is short and
// printable ASCII, otherwise generates one.
func requestIDFrom(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > 128 {
		return audit.NewRequestID()
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return audit.NewRequestID()
		}
	}
	return id
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Message: message,
			Type:    typ,
		},
	})
}
