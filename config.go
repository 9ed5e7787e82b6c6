package visitgrid

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/eringen/visitgrid/analytics/upstream"
	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/internal/logging"
)

// EnvPrefix prefixes every environment override. A double underscore selects
// a nested key: VISITGRID_UPSTREAM__URL sets upstream.url.
const EnvPrefix = "VISITGRID_"

// SiteConfig holds all configuration for a visitgrid server.
type SiteConfig struct {
	Name string `koanf:"name"` // Dashboard title (default "Analytics")
	Addr string `koanf:"addr"` // Listen address (default ":3000")

	DatabasePath string `koanf:"database_path"` // SQLite path (default "data/analytics.db")

	AdminPassword string `koanf:"admin_password"` // Required: admin login password
	SessionSecret string `koanf:"session_secret"` // Required: session encryption secret
	CookieSecure  bool   `koanf:"cookie_secure"`  // Set true for HTTPS
	LoginAttempts int    `koanf:"login_attempts"` // Failed logins per IP per minute (default 5)

	Timezone        string        `koanf:"timezone"`         // Default viewer timezone (default "UTC")
	CacheTTL        time.Duration `koanf:"cache_ttl"`        // Composed view memo TTL (default 1m, negative disables)
	RetentionDays   int           `koanf:"retention_days"`   // Raw visit retention (default 365)
	CleanupInterval time.Duration `koanf:"cleanup_interval"` // Retention sweep period (default 24h)
	CollectLimit    int           `koanf:"collect_limit"`    // Collect requests per IP per minute (default 60)

	Upstream   UpstreamConfig `koanf:"upstream"`
	Heatmap    PaletteConfig  `koanf:"heatmap"`
	Choropleth PaletteConfig  `koanf:"choropleth"`
	Log        logging.Config `koanf:"log"`
}

// UpstreamConfig points the views at an external analytics API instead of
// the local store. An empty URL keeps the local store.
type UpstreamConfig struct {
	URL              string        `koanf:"url"`
	Token            string        `koanf:"token"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
}

// PaletteConfig overrides an intensity palette. Zero fields keep the default.
type PaletteConfig struct {
	Low         string  `koanf:"low"`  // hex colour for the smallest non-zero value
	High        string  `koanf:"high"` // hex colour for the maximum
	MinSize     float64 `koanf:"min_size"`
	MaxSize     float64 `koanf:"max_size"`
	BaseOpacity float64 `koanf:"base_opacity"`
}

// DefaultConfig returns the configuration used before file and environment
// overrides are applied.
func DefaultConfig() SiteConfig {
	var c SiteConfig
	c.setDefaults()
	return c
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Analytics"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/analytics.db"
	}
	if c.LoginAttempts == 0 {
		c.LoginAttempts = 5
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Minute
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 365
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = 24 * time.Hour
	}
	if c.CollectLimit == 0 {
		c.CollectLimit = 60
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 10 * time.Second
	}
	if c.Upstream.FailureThreshold == 0 {
		c.Upstream.FailureThreshold = 5
	}
	if c.Upstream.OpenTimeout == 0 {
		c.Upstream.OpenTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log = logging.DefaultConfig()
	}
}

// LoadConfig layers struct defaults, the optional YAML file at path and
// VISITGRID_* environment variables, in that order of precedence.
func LoadConfig(path string) (SiteConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return SiteConfig{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return SiteConfig{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return SiteConfig{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg SiteConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// envKey maps VISITGRID_UPSTREAM__FAILURE_THRESHOLD to upstream.failure_threshold.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks the settings a server needs before it starts.
func (c SiteConfig) Validate() error {
	var errs []error
	if c.AdminPassword == "" {
		errs = append(errs, errors.New("admin_password is required"))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("session_secret is required"))
	} else if len(c.SessionSecret) < 32 {
		errs = append(errs, errors.New("session_secret must be at least 32 bytes"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.RetentionDays < 0 {
		errs = append(errs, errors.New("retention_days must not be negative"))
	}
	if _, err := c.Heatmap.Palette(intensity.HeatmapPalette); err != nil {
		errs = append(errs, fmt.Errorf("heatmap palette: %w", err))
	}
	if _, err := c.Choropleth.Palette(intensity.ChoroplethPalette); err != nil {
		errs = append(errs, fmt.Errorf("choropleth palette: %w", err))
	}
	return errors.Join(errs...)
}

// Location loads the default viewer timezone.
func (c SiteConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// UpstreamClient returns the external API client, or nil when none is
// configured.
func (c SiteConfig) UpstreamClient() (*upstream.Client, error) {
	if c.Upstream.URL == "" {
		return nil, nil
	}
	return upstream.New(upstream.Config{
		BaseURL:          c.Upstream.URL,
		Token:            c.Upstream.Token,
		Timeout:          c.Upstream.Timeout,
		FailureThreshold: c.Upstream.FailureThreshold,
		OpenTimeout:      c.Upstream.OpenTimeout,
	})
}

// Palette applies the overrides in p to base.
func (p PaletteConfig) Palette(base intensity.Palette) (intensity.Palette, error) {
	out := base
	if p.Low != "" {
		c, err := intensity.ParseHex(p.Low)
		if err != nil {
			return base, fmt.Errorf("low: %w", err)
		}
		out.Low = c
	}
	if p.High != "" {
		c, err := intensity.ParseHex(p.High)
		if err != nil {
			return base, fmt.Errorf("high: %w", err)
		}
		out.High = c
	}
	if p.MinSize > 0 {
		out.MinSize = p.MinSize
		out.Empty.Size = p.MinSize
	}
	if p.MaxSize > 0 {
		out.MaxSize = p.MaxSize
	}
	if p.BaseOpacity > 0 {
		out.BaseOpacity = min(p.BaseOpacity, 1)
	}
	if out.MaxSize < out.MinSize {
		return base, fmt.Errorf("max_size %.1f below min_size %.1f", out.MaxSize, out.MinSize)
	}
	return out, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are mounted.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithClock replaces time.Now for every time-dependent view.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
