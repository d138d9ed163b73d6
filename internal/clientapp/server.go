package clientapp

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phillip-england/navigator/internal/formbridge"
	"github.com/phillip-england/navigator/internal/lawflow"
	"github.com/phillip-england/navigator/internal/middleware"
	"github.com/phillip-england/navigator/internal/nlp"
)

const (
	maxFormBytes  = 1 << 20
	maxProxyBytes = 12 << 20

	defaultUpstreamTimeout = 30 * time.Second
)

type Config struct {
	Addr         string
	APIBaseURL   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type pageData struct {
	VisaTypes     []string
	Languages     []nlp.Language
	DefaultTarget string
}

//go:embed templates/index.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

type server struct {
	apiBaseURL string
	apiClient  *http.Client
	logger     *slog.Logger
	page       []byte
}

// NewHandler renders the page once and returns the client routes.
func NewHandler(cfg Config, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	page, err := renderPage()
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	s := &server{
		apiBaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		apiClient:  &http.Client{Timeout: upstreamTimeout(cfg.WriteTimeout)},
		logger:     logger,
		page:       page,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexPage)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	mux.HandleFunc("/bridge/", s.bridgeRoute)
	mux.HandleFunc("/api/", s.apiProxy)

	csp := middleware.CSP(
		"default-src 'self'",
		"style-src 'self'",
		"img-src 'self' data:",
		"script-src 'self'",
		"connect-src 'self'",
		"frame-ancestors 'none'",
	)
	return middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.AccessLog(logger),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	), nil
}

// upstreamTimeout keeps API calls inside the server's write deadline.
func upstreamTimeout(writeTimeout time.Duration) time.Duration {
	switch {
	case writeTimeout <= 0:
		return defaultUpstreamTimeout
	case writeTimeout > 2*time.Second:
		return writeTimeout - time.Second
	default:
		return writeTimeout / 2
	}
}

func Run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	handler, err := NewHandler(cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("client listening", "url", "http://localhost"+cfg.Addr, "api", cfg.APIBaseURL)
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

// Page returns the rendered navigator page.
func Page() ([]byte, error) {
	return renderPage()
}

func renderPage() ([]byte, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	catalog := lawflow.Default()
	var visaTypes []string
	for _, country := range catalog.CountryCodes() {
		visaTypes = append(visaTypes, catalog.VisaTypes(country)...)
	}
	data := pageData{
		VisaTypes:     visaTypes,
		Languages:     nlp.NewTranslator().Languages(),
		DefaultTarget: "es",
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *server) indexPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.page)
}

// bridgeRoute runs one trigger server-side against a fresh copy of the page
// and returns the updated page. Submit triggers take their form values from
// the posted body.
func (s *server) bridgeRoute(w http.ResponseWriter, r *http.Request) {
	trigger := strings.TrimPrefix(r.URL.Path, "/bridge/")

	page, err := formbridge.ParsePage(bytes.NewReader(s.page))
	if err != nil {
		s.logger.Error("parse page", "error", err)
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	bridge, err := formbridge.New(page, s.apiBaseURL, formbridge.DefaultBindings(),
		formbridge.WithHTTPClient(s.apiClient),
		formbridge.WithLogger(s.logger),
		formbridge.WithHeader(middleware.RequestIDHeader, middleware.RequestIDFrom(r.Context())),
		formbridge.WithHeader(middleware.ForwardedForHeader, middleware.ForwardedFor(r)),
	)
	if err != nil {
		s.logger.Error("bind page", "error", err)
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}

	binding, ok := bridge.Binding(trigger)
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch binding.Kind {
	case formbridge.Click:
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
	default:
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		form, err := bridge.Form(trigger)
		if err != nil {
			s.logger.Error("bridge form", "trigger", trigger, "error", err)
			http.Error(w, "page unavailable", http.StatusInternalServerError)
			return
		}
		if err := form.Fill(r.PostForm); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
	}

	status := http.StatusOK
	if err := bridge.Dispatch(r.Context(), trigger, &formbridge.SubmitEvent{}); err != nil {
		status = http.StatusBadGateway
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.logger.Error("render page", "error", err)
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *server) apiProxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	apiReq, err := http.NewRequestWithContext(r.Context(), r.Method, s.apiBaseURL+r.URL.RequestURI(), bytes.NewReader(body))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "upstream request failed")
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		apiReq.Header.Set("Content-Type", ct)
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		apiReq.Header.Set("Accept", accept)
	}
	apiReq.Header.Set(middleware.RequestIDHeader, middleware.RequestIDFrom(r.Context()))
	apiReq.Header.Set(middleware.ForwardedForHeader, middleware.ForwardedFor(r))

	apiResp, err := s.apiClient.Do(apiReq)
	if err != nil {
		s.logger.WarnContext(r.Context(), "api unavailable", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusBadGateway, "upstream service unavailable")
		return
	}
	defer apiResp.Body.Close()

	respBody, err := io.ReadAll(apiResp.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "upstream response failed")
		return
	}

	for _, key := range []string{"Content-Type", "Retry-After"} {
		if v := apiResp.Header.Get(key); v != "" {
			w.Header().Set(key, v)
		}
	}
	w.WriteHeader(apiResp.StatusCode)
	_, _ = w.Write(respBody)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
