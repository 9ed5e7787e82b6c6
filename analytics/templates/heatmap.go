// Package templates renders the analytics HTML fragments and admin pages.
// Components are plain templ.ComponentFuncs; no templ code generation is
// involved.
package templates

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/eringen/visitgrid/heatmap"
	"github.com/eringen/visitgrid/intensity"
)

// Heatmap SVG geometry, in pixels.
const (
	cellPitch   = 20
	labelWidth  = 36
	labelHeight = 18
	hiddenAlpha = 0.12
)

var dayNames = [heatmap.Days]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// HeatmapFragment renders view as an inline SVG grid, Sunday on top. Cells
// outside the active filter are drawn faded but keep their tooltip counts.
func HeatmapFragment(view heatmap.View, timezone string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		width := labelWidth + heatmap.Hours*cellPitch
		height := labelHeight + heatmap.Days*cellPitch
		p := &printer{w: w}

		p.printf(`<figure class="heatmap" data-max="%d" data-visible="%d">`, view.MaxVisitors, view.Visible)
		p.printf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d" role="img" aria-label="Visitors by weekday and hour">`,
			width, height, width, height)

		for h := 0; h < heatmap.Hours; h += 3 {
			p.printf(`<text x="%d" y="12" font-size="10" text-anchor="middle">%02d</text>`,
				labelWidth+h*cellPitch+cellPitch/2, h)
		}
		for d, name := range dayNames {
			p.printf(`<text x="0" y="%d" font-size="10">%s</text>`, labelHeight+d*cellPitch+cellPitch/2+4, name)
		}

		for _, c := range view.Cells {
			opacity := c.Style.Opacity
			class := "cell"
			if !c.Visible {
				opacity = hiddenAlpha
				class = "cell cell-hidden"
			}
			cx := labelWidth + c.Hour*cellPitch + cellPitch/2
			cy := labelHeight + c.Day*cellPitch + cellPitch/2
			p.printf(`<circle class="%s" cx="%d" cy="%d" r="%.1f" fill="%s" fill-opacity="%.2f"><title>%s %02d:00 &middot; %d visitors</title></circle>`,
				class, cx, cy, c.Style.Size/2, c.Style.Color.Hex(), opacity, dayNames[c.Day], c.Hour, c.Visitors)
		}

		p.printf(`</svg>`)
		p.printf(`<figcaption>Week of %s (%s)</figcaption>`,
			templ.EscapeString(view.WeekStart.Format("Jan 2, 2006")), templ.EscapeString(timezone))
		p.printf(`</figure>`)
		return p.err
	})
}

// LocationsFragment renders per-country styles as a table, in input order.
func LocationsFragment(rows []intensity.CountryStyle) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		if len(rows) == 0 {
			p.printf(`<p class="empty">No location data for this range.</p>`)
			return p.err
		}
		p.printf(`<table class="locations"><thead><tr><th>Country</th><th>Visitors</th></tr></thead><tbody>`)
		for _, r := range rows {
			p.printf(`<tr><td><span class="swatch" style="background:%s;opacity:%.2f"></span>%s</td><td>%d</td></tr>`,
				r.Style.Color.Hex(), r.Style.Opacity, templ.EscapeString(r.CountryCode), r.VisitorCount)
		}
		p.printf(`</tbody></table>`)
		return p.err
	})
}

// Dashboard is the admin page shell. The heatmap fragment is loaded with
// htmx so the filter selector can swap it in place.
func Dashboard(timezone string, presets []string, now time.Time, csrfToken string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		tz := templ.EscapeString(timezone)
		p.printf(`<!doctype html><html lang="en"><head><meta charset="utf-8"><title>Analytics</title>`)
		p.printf(`<script src="https://unpkg.com/htmx.org@2.0.4"></script></head><body>`)
		p.printf(`<header><h1>Analytics</h1><form method="post" action="/admin/logout/">`)
		p.printf(`<input type="hidden" name="_csrf" value="%s"><button>Log out</button></form></header>`, templ.EscapeString(csrfToken))
		p.printf(`<section><label>Filter <select name="preset" hx-get="/admin/analytics/fragments/heatmap?tz=%s" hx-target="#heatmap">`, tz)
		p.printf(`<option value="">All week</option>`)
		for _, preset := range presets {
			p.printf(`<option value="%s">%s</option>`, templ.EscapeString(preset), templ.EscapeString(preset))
		}
		p.printf(`</select></label>`)
		p.printf(`<div id="heatmap" hx-get="/admin/analytics/fragments/heatmap?tz=%s" hx-trigger="load"></div>`, tz)
		p.printf(`<a href="/admin/analytics/heatmap.png?tz=%s" download>Download PNG</a></section>`, tz)
		p.printf(`<footer>Rendered %s</footer></body></html>`, templ.EscapeString(now.Format(time.RFC1123)))
		return p.err
	})
}

// Login renders the admin login form.
func Login(showError bool, csrfToken string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<!doctype html><html lang="en"><head><meta charset="utf-8"><title>Sign in</title></head><body>`)
		if showError {
			p.printf(`<p class="error">Invalid password.</p>`)
		}
		p.printf(`<form method="post" action="/admin/login/">`)
		p.printf(`<input type="hidden" name="_csrf" value="%s">`, templ.EscapeString(csrfToken))
		p.printf(`<input type="password" name="password" autocomplete="current-password" required>`)
		p.printf(`<button type="submit">Sign in</button></form></body></html>`)
		return p.err
	})
}

// ErrorPage renders a minimal status page.
func ErrorPage(code int, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<!doctype html><html lang="en"><head><meta charset="utf-8"><title>%d</title></head>`, code)
		p.printf(`<body><h1>%d</h1><p>%s</p></body></html>`, code, templ.EscapeString(message))
		return p.err
	})
}

// printer keeps the first write error so components can print freely.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
