package analytics

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/eringen/visitgrid/analytics/templates"
	"github.com/eringen/visitgrid/heatmap"
	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/internal/logging"
	"github.com/eringen/visitgrid/render"
	"github.com/eringen/visitgrid/timegrid"
	"github.com/eringen/visitgrid/window"
)

// Country headers set by CDNs and reverse proxies, in preference order.
var countryHeaders = []string{"CF-IPCountry", "X-Country-Code"}

// Handler serves visit collection and the analytics views.
type Handler struct {
	store          *Store
	source         Source
	collectLimiter *Limiter
	metrics        *Metrics

	series    *ResultCache[SeriesResponse]
	heatmaps  *ResultCache[heatmap.View]
	heatmapP  intensity.Palette
	countryP  intensity.Palette
	location  *time.Location
	pngLayout render.PNGOptions
	now       func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSource reads the views from src instead of the local store.
func WithSource(src Source) HandlerOption {
	return func(h *Handler) { h.source = src }
}

// WithPalettes sets the heatmap and choropleth palettes.
func WithPalettes(heat, country intensity.Palette) HandlerOption {
	return func(h *Handler) { h.heatmapP, h.countryP = heat, country }
}

// WithLocation sets the timezone used when a request names none.
func WithLocation(loc *time.Location) HandlerOption {
	return func(h *Handler) { h.location = loc }
}

// WithCacheTTL sets how long composed views are memoized. Zero disables.
func WithCacheTTL(ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		h.series = NewResultCache[SeriesResponse](ttl)
		h.heatmaps = NewResultCache[heatmap.View](ttl)
	}
}

// WithCollectLimit allows events collect requests per IP per duration.
func WithCollectLimit(events int, per time.Duration) HandlerOption {
	return func(h *Handler) { h.collectLimiter = NewLimiter(events, per) }
}

// WithMetrics registers the handler's collectors with reg.
func WithMetrics(reg prometheus.Registerer) HandlerOption {
	return func(h *Handler) { h.metrics = NewMetrics(reg) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a handler over store. Without options it reads from the
// store, renders in UTC, caches for a minute and allows 60 collect requests
// per IP per minute.
func NewHandler(store *Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:          store,
		source:         store,
		collectLimiter: NewLimiter(60, time.Minute),
		series:         NewResultCache[SeriesResponse](time.Minute),
		heatmaps:       NewResultCache[heatmap.View](time.Minute),
		heatmapP:       intensity.HeatmapPalette,
		countryP:       intensity.ChoroplethPalette,
		location:       time.UTC,
		pngLayout:      render.DefaultPNGOptions,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return h
}

// Collect records a page view sent by the tracking script.
func (h *Handler) Collect(c echo.Context) error {
	ip := c.RealIP()
	if !h.collectLimiter.Allow(ip) {
		h.metrics.collected.WithLabelValues("limited").Inc()
		return c.NoContent(http.StatusTooManyRequests)
	}
	if c.Request().Header.Get("DNT") == "1" {
		h.metrics.collected.WithLabelValues("dnt").Inc()
		return c.NoContent(http.StatusNoContent)
	}

	var req CollectRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "Invalid request")
	}
	if err := validate.Struct(&req); err != nil {
		return c.String(http.StatusBadRequest, "Invalid request")
	}

	ctx := c.Request().Context()
	log := logging.Ctx(ctx)
	now := h.now().UTC()
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request().UserAgent()
	}

	if bot := ExtractBotName(userAgent); bot != "" {
		h.metrics.collected.WithLabelValues("bot").Inc()
		if err := h.store.SaveBotVisit(ctx, &BotVisit{
			BotName:   bot,
			IPHash:    HashIP(ip),
			UserAgent: userAgent,
			Path:      req.Path,
			Timestamp: now,
		}); err != nil {
			log.Error().Err(err).Msg("save bot visit")
		}
		return c.NoContent(http.StatusNoContent)
	}

	visitorID := GenerateVisitorID(ip, userAgent)

	// A positive duration is the unload beacon of a view already stored.
	if req.DurationSec > 0 {
		h.metrics.collected.WithLabelValues("duration").Inc()
		if err := h.store.UpdateVisitDuration(ctx, visitorID, req.Path, req.DurationSec); err != nil {
			log.Error().Err(err).Msg("update visit duration")
		}
		return c.NoContent(http.StatusNoContent)
	}

	browser, os, device := ParseUserAgent(userAgent)
	visit := &Visit{
		VisitorID:  visitorID,
		SessionID:  sessionID(visitorID, now),
		IPHash:     HashIP(ip),
		Browser:    browser,
		OS:         os,
		Device:     device,
		Path:       req.Path,
		Referrer:   CleanReferrer(req.Referrer),
		ScreenSize: req.ScreenSize,
		Country:    countryFrom(c.Request().Header),
		Timestamp:  now,
	}
	if err := h.store.SaveVisit(ctx, visit); err != nil {
		log.Error().Err(err).Msg("save visit")
	}
	h.metrics.collected.WithLabelValues("visit").Inc()
	return c.NoContent(http.StatusNoContent)
}

func countryFrom(header http.Header) string {
	for _, name := range countryHeaders {
		if code := NormalizeCountry(header.Get(name)); code != "" {
			return code
		}
	}
	return ""
}

// SeriesResponse is the time-series chart payload.
type SeriesResponse struct {
	Range      timegrid.Mode          `json:"range"`
	Timezone   string                 `json:"timezone"`
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Points     []timegrid.SeriesPoint `json:"points"`
	ShowLabels []bool                 `json:"show_labels"`
	Totals     timegrid.Values        `json:"totals"`
}

// TimeSeries returns the gap-free bucket series for the requested range.
func (h *Handler) TimeSeries(c echo.Context) error {
	var q seriesQuery
	if err := h.bindQuery(c, &q); err != nil {
		return err
	}
	loc, err := loadLocation(q.TZ, h.location)
	if err != nil {
		return badRequest(err)
	}
	mode, opts, known, err := q.gridSpec(loc)
	if err != nil {
		return badRequest(err)
	}
	if !known {
		logging.Ctx(c.Request().Context()).Warn().Str("range", q.Range).Msg("unknown range, using 30d")
	}

	resp, err := h.composeSeries(c, mode, opts, h.now().In(loc))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) composeSeries(c echo.Context, mode timegrid.Mode, opts timegrid.Options, now time.Time) (SeriesResponse, error) {
	from, to := timegrid.Span(mode, now, opts)
	points, err := h.source.TimeSeries(c.Request().Context(), from, to)
	if err != nil {
		return SeriesResponse{}, h.sourceFailure(c, "timeseries", err)
	}

	fp, err := Fingerprint(points)
	if err != nil {
		return SeriesResponse{}, err
	}
	key := Key(fp, string(mode), anchorKey(opts), from.Format(time.RFC3339), to.Format(time.RFC3339), now.Location().String())
	if cached, ok := h.series.Get(key); ok {
		h.metrics.cacheResult("timeseries", true)
		return cached, nil
	}
	h.metrics.cacheResult("timeseries", false)

	timer := prometheus.NewTimer(h.metrics.compute.WithLabelValues("timeseries"))
	buckets := timegrid.Build(points, mode, now, opts)
	resp := SeriesResponse{
		Range:    mode,
		Timezone: now.Location().String(),
		From:     from,
		To:       to,
		Points:   timegrid.Compose(buckets, mode),
		ShowLabels: lo.Times(len(buckets), func(i int) bool {
			return timegrid.ShowLabel(buckets, i, mode, opts.AnchoredToHourStart)
		}),
		Totals: timegrid.Totals(buckets),
	}
	timer.ObserveDuration()

	h.series.Put(key, resp)
	return resp, nil
}

func anchorKey(opts timegrid.Options) string {
	if !opts.AnchoredToHourStart {
		return "midnight"
	}
	return "hour"
}

// HeatmapResponse is the weekly heatmap payload.
type HeatmapResponse struct {
	Timezone string `json:"timezone"`
	Filter   string `json:"filter"`
	heatmap.View
}

// Heatmap returns the styled 7x24 grid with the filter's visibility mask.
func (h *Handler) Heatmap(c echo.Context) error {
	view, filter, loc, err := h.heatmapView(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, HeatmapResponse{Timezone: loc.String(), Filter: filter.Key(), View: view})
}

// HeatmapFragment renders the heatmap as an SVG fragment for htmx.
func (h *Handler) HeatmapFragment(c echo.Context) error {
	view, _, loc, err := h.heatmapView(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	return templates.HeatmapFragment(view, loc.String()).Render(c.Request().Context(), c.Response())
}

// HeatmapPNG renders the heatmap as a PNG image.
func (h *Handler) HeatmapPNG(c echo.Context) error {
	view, filter, loc, err := h.heatmapView(c)
	if err != nil {
		return err
	}
	layout := h.pngLayout
	layout.Title = "Visitors by hour, week of " + view.WeekStart.Format(time.DateOnly) + " (" + loc.String() + ")"
	if filter != nil {
		layout.Title += ", " + filter.Key()
	}

	var buf bytes.Buffer
	if err := render.HeatmapPNG(&buf, view, layout); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (h *Handler) heatmapView(c echo.Context) (heatmap.View, *window.Filter, *time.Location, error) {
	var q heatmapQuery
	if err := h.bindQuery(c, &q); err != nil {
		return heatmap.View{}, nil, nil, err
	}
	loc, err := loadLocation(q.TZ, h.location)
	if err != nil {
		return heatmap.View{}, nil, nil, badRequest(err)
	}
	filter, err := q.filter()
	if err != nil {
		return heatmap.View{}, nil, nil, badRequest(err)
	}

	now := h.now().In(loc)
	matrix, err := h.source.Weekly(c.Request().Context(), now)
	if err != nil {
		return heatmap.View{}, nil, nil, h.sourceFailure(c, "weekly", err)
	}

	fp, err := Fingerprint(matrix)
	if err != nil {
		return heatmap.View{}, nil, nil, err
	}
	// Visibility depends on now, so presets are keyed by the hour they resolve in.
	key := Key(fp, filter.Key(), window.FloorHour(now).Format(time.RFC3339), loc.String())
	if view, ok := h.heatmaps.Get(key); ok {
		h.metrics.cacheResult("heatmap", true)
		return view, filter, loc, nil
	}
	h.metrics.cacheResult("heatmap", false)

	timer := prometheus.NewTimer(h.metrics.compute.WithLabelValues("heatmap"))
	view := heatmap.Compose(matrix, filter, now, h.heatmapP)
	timer.ObserveDuration()
	if view.Dropped > 0 {
		h.metrics.dropped.Add(float64(view.Dropped))
	}

	h.heatmaps.Put(key, view)
	return view, filter, loc, nil
}

// LocationsResponse is the choropleth payload.
type LocationsResponse struct {
	Range     timegrid.Mode            `json:"range"`
	From      time.Time                `json:"from"`
	To        time.Time                `json:"to"`
	Countries []intensity.CountryStyle `json:"countries"`
}

// Locations returns per-country visitor counts with choropleth styles.
func (h *Handler) Locations(c echo.Context) error {
	var q seriesQuery
	if err := h.bindQuery(c, &q); err != nil {
		return err
	}
	loc, err := loadLocation(q.TZ, h.location)
	if err != nil {
		return badRequest(err)
	}
	mode, opts, _, err := q.gridSpec(loc)
	if err != nil {
		return badRequest(err)
	}

	from, to := timegrid.Span(mode, h.now().In(loc), opts)
	counts, err := h.source.Countries(c.Request().Context(), from, to)
	if err != nil {
		return h.sourceFailure(c, "countries", err)
	}
	return c.JSON(http.StatusOK, LocationsResponse{
		Range:     mode,
		From:      from,
		To:        to,
		Countries: intensity.Choropleth(counts, h.countryP),
	})
}

// Realtime returns the visitors seen in the last five minutes.
func (h *Handler) Realtime(c echo.Context) error {
	n, err := h.store.RealtimeVisitors(c.Request().Context(), h.now())
	if err != nil {
		return h.sourceFailure(c, "realtime", err)
	}
	return c.JSON(http.StatusOK, map[string]int{"visitors": n})
}

// Dashboard renders the admin analytics page.
func (h *Handler) Dashboard(c echo.Context) error {
	presets := lo.Map(window.Presets(), func(p window.Preset, _ int) string { return string(p) })
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return templates.Dashboard(h.location.String(), presets, h.now().In(h.location), token).
		Render(c.Request().Context(), c.Response())
}

func (h *Handler) bindQuery(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, dst); err != nil {
		return badRequest(err)
	}
	if err := validate.Struct(dst); err != nil {
		return badRequest(err)
	}
	return nil
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
}

func (h *Handler) sourceFailure(c echo.Context, op string, err error) error {
	h.metrics.sourceError.WithLabelValues(op).Inc()
	logging.Ctx(c.Request().Context()).Error().Err(err).Str("op", op).Msg("analytics source failed")
	code := http.StatusInternalServerError
	if errors.Is(err, ErrSourceUnavailable) {
		code = http.StatusServiceUnavailable
	}
	return echo.NewHTTPError(code, http.StatusText(code)).SetInternal(err)
}

// RegisterRoutes mounts the public collect endpoint on public and the admin
// views under /admin/analytics behind auth.
func (h *Handler) RegisterRoutes(e *echo.Echo, public *echo.Group, auth echo.MiddlewareFunc) {
	public.POST("/api/analytics/collect", h.Collect)

	admin := e.Group("/admin/analytics", auth)
	admin.GET("", h.Dashboard)
	admin.GET("/", h.Dashboard)
	admin.GET("/api/timeseries", h.TimeSeries)
	admin.GET("/api/heatmap", h.Heatmap)
	admin.GET("/api/locations", h.Locations)
	admin.GET("/api/realtime", h.Realtime)
	admin.GET("/fragments/heatmap", h.HeatmapFragment)
	admin.GET("/heatmap.png", h.HeatmapPNG)
}
