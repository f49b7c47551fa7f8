// Package api provides the HTTP server for VantaLoop.
//
// It exposes the SMS webhook, the web intake form endpoint, triage and
// register management, comment summaries, media transcription and the
// weekly digest.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vantaloop/VantaLoop/internal/digest"
	"github.com/vantaloop/VantaLoop/internal/flow"
	"github.com/vantaloop/VantaLoop/internal/store"
	"github.com/vantaloop/VantaLoop/internal/triage"
	"github.com/vantaloop/VantaLoop/internal/webhook"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultRequestTimeout bounds a single request's work.
	DefaultRequestTimeout = 30 * time.Second

	maxWebhookBodyBytes = 64 << 10
	maxJSONBodyBytes    = 1 << 20

	requestIDHeader = "X-Request-ID"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	AI          digest.Completer
	Transcriber digest.Transcriber
	ErrorReply  string
}

// Option defines a functional option for configuring the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAI enables AI digests and comment summaries.
func WithAI(ai digest.Completer) Option {
	return func(o *Opts) { o.AI = ai }
}

// WithTranscriber enables POST /api/transcribe.
func WithTranscriber(t digest.Transcriber) Option {
	return func(o *Opts) { o.Transcriber = t }
}

// WithErrorReply overrides the SMS reply sent when a message cannot be processed.
func WithErrorReply(text string) Option {
	return func(o *Opts) { o.ErrorReply = text }
}

// Server wires the HTTP routes to the intake flow, triage and digest services.
type Server struct {
	addr       string
	st         store.Store
	adapter    *webhook.Adapter
	triage     *triage.Service
	digests    *digest.Generator
	summarizer *digest.Summarizer
	media      *digest.MediaAnalyzer
	handler    http.Handler
}

// NewServer creates a Server backed by st.
func NewServer(st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	var adapterOpts []webhook.Option
	if cfg.ErrorReply != "" {
		adapterOpts = append(adapterOpts, webhook.WithErrorReply(cfg.ErrorReply))
	}

	s := &Server{
		addr:       cfg.Addr,
		st:         st,
		adapter:    webhook.NewAdapter(flow.NewEngine(st, st), adapterOpts...),
		triage:     triage.NewService(st),
		digests:    digest.NewGenerator(st, cfg.AI),
		summarizer: digest.NewSummarizer(st, cfg.AI),
		media:      digest.NewMediaAnalyzer(cfg.Transcriber, cfg.AI),
	}
	s.handler = withRequestLogging(s.routes())
	return s
}

// Digests returns the digest generator shared with the weekly delivery job.
func (s *Server) Digests() *digest.Generator {
	return s.digests
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /api/sms/webhook", s.smsWebhookHandler)

	mux.HandleFunc("POST /api/intake", s.submitIntakeHandler)
	mux.HandleFunc("GET /api/intake", s.listIntakeHandler)
	mux.HandleFunc("GET /api/intake/{id}", s.getIntakeHandler)
	mux.HandleFunc("POST /api/intake/{id}/triage", s.triageHandler)

	mux.HandleFunc("GET /api/register", s.listRegisterHandler)
	mux.HandleFunc("GET /api/register/{id}", s.getRegisterItemHandler)
	mux.HandleFunc("PATCH /api/register/{id}", s.updateRegisterItemHandler)
	mux.HandleFunc("POST /api/register/{id}/comments", s.addCommentHandler)
	mux.HandleFunc("POST /api/register/{id}/comments/summary", s.summarizeCommentsHandler)

	mux.HandleFunc("POST /api/transcribe", s.transcribeHandler)
	mux.HandleFunc("GET /api/digest", s.digestHandler)
	return mux
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       DefaultRequestTimeout,
		WriteTimeout:      DefaultRequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLogging tags each request with a correlation id and logs its outcome.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		ctx, cancel := context.WithTimeout(r.Context(), DefaultRequestTimeout)
		defer cancel()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		slog.Debug("Server: request handled",
			"method", r.Method, "path", r.URL.Path, "status", rec.status,
			"requestID", reqID, "elapsed", time.Since(start))
	})
}
