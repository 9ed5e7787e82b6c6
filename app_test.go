package visitgrid

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var csrfField = regexp.MustCompile(`name="_csrf" value="([^"]+)"`)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "data", "analytics.db")
	cfg.AdminPassword = "hunter2"
	cfg.SessionSecret = testSecret
	cfg.LoginAttempts = 2

	pinned := time.Date(2024, time.March, 15, 15, 40, 0, 0, time.UTC)
	a := New(cfg, WithClock(func() time.Time { return pinned }))
	require.NoError(t, a.Init())
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// browser replays cookies between requests against a single App.
type browser struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, a *App) *browser {
	return &browser{t: t, app: a, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.app.Echo.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) login(password string) *httptest.ResponseRecorder {
	b.t.Helper()
	page := b.get("/admin/")
	require.Equal(b.t, http.StatusOK, page.Code)
	m := csrfField.FindStringSubmatch(page.Body.String())
	require.Len(b.t, m, 2, "login form carries a csrf token")
	return b.postForm("/admin/login/", url.Values{"password": {password}, "_csrf": {m[1]}})
}

func TestAdminLoginFlow(t *testing.T) {
	b := newBrowser(t, newTestApp(t))

	rec := b.get("/admin/analytics/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/", rec.Header().Get("Location"))

	rec = b.login("hunter2")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/analytics/", rec.Header().Get("Location"))

	rec = b.get("/admin/analytics/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<option value="last_7_days">`)

	rec = b.get("/admin/analytics/api/heatmap?preset=today")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cells"`)

	rec = b.get("/admin/")
	assert.Equal(t, http.StatusSeeOther, rec.Code, "logged-in admins skip the form")
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	b := newBrowser(t, newTestApp(t))

	rec := b.login("wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid password")

	b.login("wrong")
	rec = b.login("hunter2")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "limit applies after repeated failures")
}

func TestLoginRequiresCSRF(t *testing.T) {
	b := newBrowser(t, newTestApp(t))
	rec := b.postForm("/admin/login/", url.Values{"password": {"hunter2"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAnalyticsAPIRequiresAuth(t *testing.T) {
	b := newBrowser(t, newTestApp(t))
	rec := b.get("/admin/analytics/api/timeseries?range=7d")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", strings.Split(rec.Header().Get("Content-Type"), ";")[0])
	assert.Contains(t, rec.Body.String(), "login required")
}

func TestCollectSkipsCSRF(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/analytics/collect", strings.NewReader(`{"path":"/"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36")
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	a := newTestApp(t)
	b := newBrowser(t, a)

	rec := b.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = b.get("/public/tracker.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/analytics/collect")

	rec = b.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "visitgrid_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestUnknownPageRendersHTMLError(t *testing.T) {
	b := newBrowser(t, newTestApp(t))
	rec := b.get("/nowhere/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>404</h1>")
}

func TestCloseIsIdempotent(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
