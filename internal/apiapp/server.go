package apiapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phillip-england/navigator/internal/lawflow"
	"github.com/phillip-england/navigator/internal/middleware"
	"github.com/phillip-england/navigator/internal/nlp"
	"github.com/phillip-england/navigator/internal/paperwork"
	"github.com/phillip-england/navigator/internal/schema"
	"github.com/phillip-england/navigator/internal/store"
	"github.com/phillip-england/navigator/internal/timeline"
	"github.com/phillip-england/navigator/internal/wellness"
)

const (
	maxBodyBytes   = 8 << 20
	maxUploadBytes = 10 << 20
)

type Config struct {
	Addr            string
	DSN             string
	PDFTemplatePath string
	RateLimitRPS    float64
	RateLimitBurst  int
	RedisURL        string
	TrustedProxies  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// EventStore persists the timeline.
type EventStore interface {
	ListEvents(ctx context.Context) ([]timeline.Event, error)
	ReplaceEvents(ctx context.Context, events []timeline.Event) error
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Events     EventStore
	Catalog    *lawflow.Catalog
	Intents    *nlp.Intents
	Translator *nlp.Translator
	Bot        *wellness.Bot
	Paperwork  paperwork.Generator
	Schemas    *schema.Registry
	Logger     *slog.Logger
	Limiter    middleware.Limiter

	// Proxies allowed to name the client for rate limiting.
	TrustedProxies *middleware.TrustedProxies
}

type server struct {
	events     EventStore
	catalog    *lawflow.Catalog
	intents    *nlp.Intents
	translator *nlp.Translator
	bot        *wellness.Bot
	paperwork  paperwork.Generator
	schemas    *schema.Registry
	logger     *slog.Logger
}

// NewHandler builds the API routes behind the standard middleware. Nil
// collaborators other than Events fall back to the built-in defaults.
func NewHandler(d Deps) http.Handler {
	s := &server{
		events:     d.Events,
		catalog:    d.Catalog,
		intents:    d.Intents,
		translator: d.Translator,
		bot:        d.Bot,
		paperwork:  d.Paperwork,
		schemas:    d.Schemas,
		logger:     d.Logger,
	}
	if s.catalog == nil {
		s.catalog = lawflow.Default()
	}
	if s.intents == nil {
		s.intents = nlp.DefaultIntents()
	}
	if s.translator == nil {
		s.translator = nlp.NewTranslator()
	}
	if s.bot == nil {
		s.bot = wellness.NewBot()
	}
	if s.schemas == nil {
		s.schemas = schema.MustLoad()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.health)
	mux.HandleFunc("/api/immigration", s.immigration)
	mux.HandleFunc("/api/fill_form", s.fillForm)
	mux.HandleFunc("/api/wellness", s.wellness)
	mux.HandleFunc("/api/wellness/greeting", s.wellnessGreeting)
	mux.HandleFunc("/api/translate", s.translate)
	mux.HandleFunc("/api/chat", s.chat)
	mux.HandleFunc("/api/timeline", s.timelineHandler)
	mux.HandleFunc("/api/timeline/import", s.timelineImport)
	mux.HandleFunc("/api/visas", s.visaTypes)
	mux.HandleFunc("/api/visas/stages", s.visaStages)
	mux.HandleFunc("/api/documents", s.documents)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	csp := middleware.CSP(
		"default-src 'none'",
		"frame-ancestors 'none'",
	)
	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.AccessLog(s.logger),
	}
	if d.Limiter != nil {
		chain = append(chain, middleware.RateLimit(d.Limiter, s.logger, d.TrustedProxies))
	}
	chain = append(chain, middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		ContentSecurityPolicy: csp,
		NoStore:               true,
	}))
	return middleware.Chain(mux, chain...)
}

// Run opens the store, seeds the default timeline and serves until ctx is done.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := store.Open(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	seeded, err := db.Seed(ctx, timeline.Defaults())
	if err != nil {
		return fmt.Errorf("seed timeline: %w", err)
	}
	if seeded {
		logger.Info("seeded default timeline")
	}

	schemas, err := schema.Load()
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	handler := NewHandler(Deps{
		Events:    db,
		Schemas:   schemas,
		Paperwork: paperwork.Generator{TemplatePath: cfg.PDFTemplatePath},
		Logger:    logger,
		Limiter:   limiter,

		TrustedProxies: trusted,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "url", "http://localhost"+cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newLimiter(ctx context.Context, cfg Config, logger *slog.Logger) (middleware.Limiter, func(), error) {
	if cfg.RateLimitRPS <= 0 {
		return nil, func() {}, nil
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	if cfg.RedisURL != "" {
		limiter, client, err := middleware.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitRPS, burst)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, requests will not be limited until it recovers", "error", err)
		}
		return limiter, func() { _ = client.Close() }, nil
	}
	limiter := middleware.NewLocalLimiter(cfg.RateLimitRPS, burst)
	sweepCtx, cancel := context.WithCancel(ctx)
	go limiter.RunSweeper(sweepCtx, time.Minute)
	return limiter, cancel, nil
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody validates the request body against kind and decodes it into dst.
// It writes the error response itself and reports whether decoding worked.
func (s *server) decodeBody(w http.ResponseWriter, r *http.Request, kind schema.Kind, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if _, err := s.schemas.Validate(kind, body); err != nil {
		var invalid *schema.Error
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, invalid.Error())
			return false
		}
		s.logger.Error("schema validation failed", "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, "unable to validate request")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *server) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	s.logger.ErrorContext(r.Context(), message, "error", err, "request_id", middleware.RequestIDFrom(r.Context()))
	writeError(w, http.StatusInternalServerError, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
