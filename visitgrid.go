// Package visitgrid is a privacy-first visit analytics server built with Go,
// Echo and templ. It collects page views and serves gap-free time-series
// charts, a weekly hour-of-day heatmap and a country choropleth.
//
// The pure view logic lives in the timegrid, window, heatmap and intensity
// packages; this package wires storage, sessions and HTTP around them.
package visitgrid

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eringen/visitgrid/analytics"
	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/internal/logging"
)

// App is the central visitgrid application. It wires together the store,
// the analytics handler, sessions and middleware.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Store     *analytics.Store
	Analytics *analytics.Handler
	Registry  *prometheus.Registry

	loginLimiter *LoginLimiter
	stopCleanup  func()
	customRoutes []func(*App)
	now          func() time.Time
}

// New creates an App. Call Init (or Start) before serving.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:   cfg,
		Echo:     echo.New(),
		Registry: prometheus.NewRegistry(),
		now:      time.Now,
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true
	a.Echo.JSONSerializer = goccyJSONSerializer{}

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init opens the store, picks the data source and mounts middleware and
// routes. It does not listen.
func (a *App) Init() error {
	if err := a.Config.Validate(); err != nil {
		return fmt.Errorf("visitgrid: %w", err)
	}
	loc, err := a.Config.Location()
	if err != nil {
		return fmt.Errorf("visitgrid: %w", err)
	}
	heatPalette, _ := a.Config.Heatmap.Palette(intensity.HeatmapPalette)
	countryPalette, _ := a.Config.Choropleth.Palette(intensity.ChoroplethPalette)

	if dir := filepath.Dir(a.Config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("visitgrid: create data dir: %w", err)
		}
	}
	store, err := analytics.NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("visitgrid: init store: %w", err)
	}
	a.Store = store
	if err := analytics.InitSalt(context.Background(), store); err != nil {
		return fmt.Errorf("visitgrid: init salt: %w", err)
	}
	if a.Config.RetentionDays > 0 {
		a.stopCleanup = store.StartCleanupScheduler(a.Config.RetentionDays, a.Config.CleanupInterval)
	}

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []analytics.HandlerOption{
		analytics.WithLocation(loc),
		analytics.WithPalettes(heatPalette, countryPalette),
		analytics.WithCacheTTL(a.Config.CacheTTL),
		analytics.WithCollectLimit(a.Config.CollectLimit, time.Minute),
		analytics.WithMetrics(a.Registry),
		analytics.WithClock(a.now),
	}
	client, err := a.Config.UpstreamClient()
	if err != nil {
		return fmt.Errorf("visitgrid: %w", err)
	}
	if client != nil {
		logging.Info().Str("url", a.Config.Upstream.URL).Msg("reading views from upstream analytics API")
		opts = append(opts, analytics.WithSource(client))
	}
	a.Analytics = analytics.NewHandler(store, opts...)
	a.loginLimiter = NewLoginLimiter(a.Config.LoginAttempts, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the app and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	logging.Info().Str("addr", a.Config.Addr).Str("timezone", a.Config.Timezone).Msg("visitgrid listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	return errors.Join(err, a.Close())
}

func (a *App) setupRoutes() {
	e := a.Echo

	assets, _ := fs.Sub(EmbeddedAssets, "embedded")
	e.GET("/public/tracker.js", echo.WrapHandler(http.StripPrefix("/public/", http.FileServer(http.FS(assets)))))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: a.Registry}))
	e.GET("/", func(c echo.Context) error { return c.Redirect(http.StatusSeeOther, "/admin/analytics/") })

	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	a.Analytics.RegisterRoutes(e, e.Group(""), requireAdmin)
}

// Close releases the store and stops background work.
func (a *App) Close() error {
	if a.stopCleanup != nil {
		a.stopCleanup()
		a.stopCleanup = nil
	}
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
