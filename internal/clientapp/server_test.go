package clientapp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillip-england/navigator/internal/apiapp"
	"github.com/phillip-england/navigator/internal/formbridge"
	"github.com/phillip-england/navigator/internal/logging"
	"github.com/phillip-england/navigator/internal/middleware"
	"github.com/phillip-england/navigator/internal/store"
	"github.com/phillip-england/navigator/internal/timeline"
	"github.com/phillip-england/navigator/internal/wellness"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Seed(context.Background(), timeline.Defaults())
	require.NoError(t, err)

	api := httptest.NewServer(apiapp.NewHandler(apiapp.Deps{
		Events: db,
		Bot:    wellness.NewSeededBot(7),
		Logger: logging.Discard(),
	}))
	t.Cleanup(api.Close)
	return api
}

func newClient(t *testing.T, apiURL string) http.Handler {
	t.Helper()
	h, err := NewHandler(Config{APIBaseURL: apiURL + "/"}, logging.Discard())
	require.NoError(t, err)
	return h
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func parsed(t *testing.T, rec *httptest.ResponseRecorder) *formbridge.Page {
	t.Helper()
	page, err := formbridge.ParsePage(rec.Body)
	require.NoError(t, err)
	return page
}

func text(t *testing.T, page *formbridge.Page, id string) string {
	t.Helper()
	el, err := page.Element(id)
	require.NoError(t, err)
	return el.Text()
}

func TestPageCarriesEveryBinding(t *testing.T) {
	raw, err := Page()
	require.NoError(t, err)
	page, err := formbridge.ParsePage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	_, err = formbridge.New(page, "http://api.test", formbridge.DefaultBindings())
	require.NoError(t, err)
	_, err = page.Element(formbridge.ErrorElementID)
	require.NoError(t, err)

	form, err := page.Element("translate-form")
	require.NoError(t, err)
	sub, err := form.FormValues()
	require.NoError(t, err)
	lang, _ := sub.Get("language")
	assert.Equal(t, "es", lang)
}

func TestIndexAndStatic(t *testing.T) {
	h := newClient(t, "http://api.test")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="immigration-form"`)
	assert.Contains(t, rec.Body.String(), `<option value="H-1B">H-1B</option>`)
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "script-src 'self'")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/static/script.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `endpoint: "/api/fill_form"`)
	assert.Contains(t, rec.Body.String(), `el.textContent = shown(data.translation)`)
	assert.Contains(t, rec.Body.String(), `return value === null ? "" : String(value);`)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, serve(h, httptest.NewRequest(http.MethodGet, "/missing", nil)).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, httptest.NewRequest(http.MethodPost, "/", nil)).Code)
}

func TestBridgeSubmit(t *testing.T) {
	api := newAPI(t)
	h := newClient(t, api.URL)

	rec := serve(h, postForm("/bridge/immigration-form", url.Values{
		"nationality":  {"Canada"},
		"current_visa": {"F1"},
		"target_visa":  {"H1B"},
		"occupation":   {"Engineer"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	page := parsed(t, rec)
	assert.Contains(t, text(t, page, "immigration-result"), `"feedback": "Eligibility check for H1B"`)

	errEl, err := page.Element(formbridge.ErrorElementID)
	require.NoError(t, err)
	_, hidden := errEl.Attr("hidden")
	assert.True(t, hidden)

	form, err := page.Element("immigration-form")
	require.NoError(t, err)
	sub, err := form.FormValues()
	require.NoError(t, err)
	nationality, _ := sub.Get("nationality")
	assert.Equal(t, "Canada", nationality)
}

func TestBridgeSubmitSurfacesAPIErrors(t *testing.T) {
	api := newAPI(t)
	h := newClient(t, api.URL)

	rec := serve(h, postForm("/bridge/immigration-form", url.Values{"nationality": {"Canada"}}))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	page := parsed(t, rec)

	assert.Equal(t, "", text(t, page, "immigration-result"))
	msg := text(t, page, formbridge.ErrorElementID)
	assert.True(t, strings.HasPrefix(msg, "POST /api/immigration: 400 Bad Request"), msg)

	errEl, _ := page.Element(formbridge.ErrorElementID)
	trigger, _ := errEl.Attr("data-trigger")
	assert.Equal(t, "immigration-form", trigger)
}

func TestBridgeTranslateAndTimeline(t *testing.T) {
	api := newAPI(t)
	h := newClient(t, api.URL)

	rec := serve(h, postForm("/bridge/translate-form", url.Values{"text": {"hello"}, "language": {"es"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hola (translated)", text(t, parsed(t, rec), "translate-result"))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/bridge/load-timeline", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(text(t, parsed(t, rec), "timeline"), "[\n  {\n    \"task\": \"Submit I-130\""))
}

func TestBridgeRouting(t *testing.T) {
	h := newClient(t, "http://api.test")

	assert.Equal(t, http.StatusNotFound, serve(h, httptest.NewRequest(http.MethodGet, "/bridge/nope", nil)).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, httptest.NewRequest(http.MethodGet, "/bridge/wellness-form", nil)).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, postForm("/bridge/load-timeline", nil)).Code)
}

func TestAPIProxyForwardsRequest(t *testing.T) {
	var got *http.Request
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer upstream.Close()
	h := newClient(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPut, "/api/timeline?x=1", strings.NewReader(`{"events":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rec := serve(h, req)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/api/timeline?x=1", got.URL.RequestURI())
	assert.Equal(t, `{"events":[]}`, gotBody)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "req-123", got.Header.Get(middleware.RequestIDHeader))
	assert.Equal(t, "192.0.2.1", got.Header.Get(middleware.ForwardedForHeader))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestAPIProxyAgainstAPI(t *testing.T) {
	api := newAPI(t)
	h := newClient(t, api.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`{"text":"hello","language":"es"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"translation":"hola (translated)"`)
}

func TestAPIProxyUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	apiURL := upstream.URL
	upstream.Close()

	rec := serve(newClient(t, apiURL), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"upstream service unavailable"}`, rec.Body.String())
}

func newLimitedAPI(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "limited.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	trusted, err := middleware.ParseTrustedProxies([]string{"127.0.0.1", "::1"})
	require.NoError(t, err)

	api := httptest.NewServer(apiapp.NewHandler(apiapp.Deps{
		Events:         db,
		Logger:         logging.Discard(),
		Limiter:        middleware.NewLocalLimiter(0.001, 1),
		TrustedProxies: trusted,
	}))
	t.Cleanup(api.Close)
	return api
}

func TestAPIRateLimitIsPerBrowser(t *testing.T) {
	h := newClient(t, newLimitedAPI(t).URL)

	health := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = remote
		return serve(h, req).Code
	}
	assert.Equal(t, http.StatusOK, health("203.0.113.1:5000"))
	assert.Equal(t, http.StatusOK, health("198.51.100.7:5000"))
	assert.Equal(t, http.StatusTooManyRequests, health("203.0.113.1:5001"))

	translate := func(remote string) *httptest.ResponseRecorder {
		req := postForm("/bridge/translate-form", url.Values{"text": {"hello"}, "language": {"es"}})
		req.RemoteAddr = remote
		return serve(h, req)
	}
	rec := translate("192.0.2.50:6000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hola (translated)", text(t, parsed(t, rec), "translate-result"))

	rec = translate("192.0.2.50:6001")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, text(t, parsed(t, rec), formbridge.ErrorElementID), "429 Too Many Requests")
}

func TestUpstreamTimeoutFitsWriteTimeout(t *testing.T) {
	assert.Equal(t, defaultUpstreamTimeout, upstreamTimeout(0))
	assert.Equal(t, 29*time.Second, upstreamTimeout(30*time.Second))
	assert.Equal(t, 9*time.Second, upstreamTimeout(10*time.Second))
	assert.Equal(t, time.Second, upstreamTimeout(2*time.Second))
}
