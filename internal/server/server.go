package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/go-nowledge-encoder/internal/config"
	"github.com/example/go-nowledge-encoder/internal/encoder"
	"github.com/example/go-nowledge-encoder/internal/metrics"
)

// RequestIDHeader carries the caller's request id, echoed back on responses.
const RequestIDHeader = "X-Request-ID"

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Encoder turns text into token ids. *encoder.Encoder satisfies it.
type Encoder interface {
	Encode(text string) ([]uint32, error)
	Ready() bool
	ModelID() string
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes int
	cacheSize    int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	gatherer     prometheus.Gatherer
}

func defaultOptions() options {
	return options{
		maxTextBytes: 1 << 20,
		cacheSize:    0,
		logger:       slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /encode.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithCacheSize keeps the ids of the n most recently encoded texts in memory.
// Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records request metrics into m and serves g on GET /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(o *options) {
		o.metrics = m
		o.gatherer = g
	}
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	enc   Encoder
	opts  options
	cache *idsCache
	log   *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /ready, POST
// /encode and, when metrics are configured, /metrics.
func NewHandler(enc Encoder, optFns ...Option) (http.Handler, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cache, err := newIDsCache(opts.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create encode cache: %w", err)
	}

	h := &handler{
		enc:   enc,
		opts:  opts,
		cache: cache,
		log:   opts.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.HandleFunc("/encode", h.handleEncode)
	if opts.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.gatherer, promhttp.HandlerOpts{}))
	}
	return mux, nil
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
		"model":   h.enc.ModelID(),
	})
}

// handleReady reports whether the tokenizer has been loaded. It never
// triggers the load itself.
func (h *handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !h.enc.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"model":  h.enc.ModelID(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"model":  h.enc.ModelID(),
	})
}

type encodeRequest struct {
	Text *string `json:"text"`
}

type encodeResponse struct {
	IDs   []uint32 `json:"ids"`
	Count int      `json:"count"`
}

// bodyOverhead is the room left for the JSON envelope around the text.
const bodyOverhead = 4096

func (h *handler) handleEncode(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	w.Header().Set(RequestIDHeader, reqID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		h.opts.metrics.RecordEncode(metrics.StatusBadRequest, 0, 0)
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.opts.maxTextBytes)+bodyOverhead)

	var req encodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.opts.metrics.RecordEncode(metrics.StatusTooLarge, 0, 0)
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
			return
		}
		h.opts.metrics.RecordEncode(metrics.StatusBadRequest, 0, 0)
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	// An empty string is valid input; only a missing field is rejected.
	if req.Text == nil {
		h.opts.metrics.RecordEncode(metrics.StatusBadRequest, 0, 0)
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}
	text := *req.Text

	if len(text) > h.opts.maxTextBytes {
		h.opts.metrics.RecordEncode(metrics.StatusTooLarge, 0, 0)
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	start := time.Now()
	ids, cached := h.cache.Get(text)
	var err error
	if cached {
		h.opts.metrics.RecordCacheHit()
	} else {
		ids, err = h.enc.Encode(text)
	}
	duration := time.Since(start)

	if err != nil {
		status, label := http.StatusInternalServerError, metrics.StatusEncodeError
		switch {
		case errors.Is(err, encoder.ErrInit):
			status, label = http.StatusServiceUnavailable, metrics.StatusInitFailed
		case errors.Is(err, encoder.ErrEncode):
			status = http.StatusUnprocessableEntity
		}
		h.opts.metrics.RecordEncode(label, 0, duration)
		h.log.ErrorContext(r.Context(), "encode failed",
			slog.String("request_id", reqID),
			slog.Int("text_len", len(text)),
			slog.Int64("duration_ms", duration.Milliseconds()),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())
		return
	}

	if !cached {
		h.cache.Add(text, ids)
	}
	if ids == nil {
		ids = []uint32{}
	}

	h.opts.metrics.RecordEncode(metrics.StatusOK, len(ids), duration)
	h.log.InfoContext(r.Context(), "encode complete",
		slog.String("request_id", reqID),
		slog.Int("text_len", len(text)),
		slog.Int("tokens", len(ids)),
		slog.Bool("cached", cached),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)

	writeJSON(w, http.StatusOK, encodeResponse{IDs: ids, Count: len(ids)})
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server wires the handler into net/http.Server with graceful shutdown.
// ---------------------------------------------------------------------------

// Warmer is implemented by encoders that can load their tokenizer ahead of
// the first request.
type Warmer interface {
	Warm() error
}

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	enc             Encoder
	opts            []Option
	shutdownTimeout time.Duration
	log             *slog.Logger
}

// New builds a server from cfg. Handler options derived from cfg come first,
// so opts can override them.
func New(cfg config.Config, enc Encoder, opts ...Option) *Server {
	shutdown := cfg.Server.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}

	s := &Server{
		cfg:             cfg,
		enc:             enc,
		shutdownTimeout: shutdown,
		log:             slog.Default(),
	}
	s.opts = append(s.opts,
		WithMaxTextBytes(cfg.Server.MaxTextBytes),
		WithCacheSize(cfg.Server.CacheSize),
	)
	s.opts = append(s.opts, opts...)

	// Share the handler's logger for lifecycle messages.
	resolved := defaultOptions()
	for _, fn := range s.opts {
		fn(&resolved)
	}
	s.log = resolved.logger

	return s
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Warm loads the tokenizer now if the encoder supports it.
func (s *Server) Warm() error {
	w, ok := s.enc.(Warmer)
	if !ok {
		return nil
	}
	start := time.Now()
	if err := w.Warm(); err != nil {
		return fmt.Errorf("warm tokenizer: %w", err)
	}
	s.log.Info("tokenizer warmed",
		slog.String("model", s.enc.ModelID()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Server.Warm {
		if err := s.Warm(); err != nil {
			return err
		}
	}

	h, err := NewHandler(s.enc, s.opts...)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.log.Info("listening",
		slog.String("addr", s.cfg.Server.ListenAddr),
		slog.String("model", s.enc.ModelID()),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// CheckHealth checks GET /health on addr. An address without a scheme is
// treated as plain HTTP.
func CheckHealth(ctx context.Context, addr string) error {
	base := addr
	if !strings.Contains(base, "://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
