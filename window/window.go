// Package window resolves dashboard date filters (named presets or explicit
// start/end pairs) into concrete instant ranges relative to "now".
//
// Presets are resolved on every call and never cached: the same preset names a
// different range a minute later.
package window

import (
	"errors"
	"strings"
	"time"
)

// ErrInvertedWindow is returned when an explicit window ends before it starts.
var ErrInvertedWindow = errors.New("window: end is before start")

// Preset is a named, relative date range.
type Preset string

const (
	Today       Preset = "today"
	Yesterday   Preset = "yesterday"
	Last24Hours Preset = "last_24_hours"
	ThisWeek    Preset = "this_week"
	Last7Days   Preset = "last_7_days"
	ThisMonth   Preset = "this_month"
	Last30Days  Preset = "last_30_days"
	ThisYear    Preset = "this_year"
)

// Range is a closed instant interval [Start, End].
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end] shares at least one instant with r.
func (r Range) Overlaps(start, end time.Time) bool {
	return !start.After(r.End) && !end.Before(r.Start)
}

type presetRule struct {
	resolve func(now time.Time) Range
	// dayLevel presets are narrow enough for per-cell heatmap masking.
	dayLevel bool
}

var presets = map[Preset]presetRule{
	Today: {dayLevel: true, resolve: func(now time.Time) Range {
		return Range{Start: StartOfDay(now), End: now}
	}},
	Yesterday: {dayLevel: true, resolve: func(now time.Time) Range {
		today := StartOfDay(now)
		return Range{Start: today.AddDate(0, 0, -1), End: today.Add(-time.Nanosecond)}
	}},
	Last24Hours: {dayLevel: true, resolve: func(now time.Time) Range {
		return Range{Start: now.Add(-24 * time.Hour), End: now}
	}},
	ThisWeek: {dayLevel: true, resolve: func(now time.Time) Range {
		return Range{Start: StartOfWeek(now), End: now}
	}},
	Last7Days: {dayLevel: true, resolve: func(now time.Time) Range {
		return Range{Start: StartOfDay(now).AddDate(0, 0, -6), End: now}
	}},
	ThisMonth: {resolve: func(now time.Time) Range {
		return Range{Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), End: now}
	}},
	Last30Days: {resolve: func(now time.Time) Range {
		return Range{Start: StartOfDay(now).AddDate(0, 0, -29), End: now}
	}},
	ThisYear: {resolve: func(now time.Time) Range {
		return Range{Start: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), End: now}
	}},
}

var presetAliases = map[string]Preset{
	"24h":        Last24Hours,
	"last24h":    Last24Hours,
	"week":       ThisWeek,
	"thisweek":   ThisWeek,
	"7d":         Last7Days,
	"last7days":  Last7Days,
	"month":      ThisMonth,
	"thismonth":  ThisMonth,
	"30d":        Last30Days,
	"last30days": Last30Days,
	"year":       ThisYear,
	"thisyear":   ThisYear,
}

// ParsePreset normalises a preset name. The second result is false for names
// outside the resolution table; the returned Preset still carries the input so
// callers can log it.
func ParsePreset(s string) (Preset, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if _, ok := presets[Preset(key)]; ok {
		return Preset(key), true
	}
	if p, ok := presetAliases[strings.ReplaceAll(key, "_", "")]; ok {
		return p, true
	}
	return Preset(key), false
}

// Presets returns every preset in the resolution table.
func Presets() []Preset {
	return []Preset{Today, Yesterday, Last24Hours, ThisWeek, Last7Days, ThisMonth, Last30Days, ThisYear}
}

// Filter is either a preset or an explicit start/end pair.
type Filter struct {
	Preset Preset
	Start  time.Time
	End    time.Time
}

// ForPreset returns a preset filter.
func ForPreset(p Preset) *Filter {
	return &Filter{Preset: p}
}

// Explicit returns a filter over [start, end].
func Explicit(start, end time.Time) (*Filter, error) {
	if end.Before(start) {
		return nil, ErrInvertedWindow
	}
	return &Filter{Start: start, End: end}, nil
}

// IsExplicit reports whether the filter carries its own start/end.
func (f *Filter) IsExplicit() bool {
	return f.Preset == "" && !f.Start.IsZero() && !f.End.IsZero()
}

// Resolve turns the filter into a concrete range. It returns false for unknown
// presets and malformed explicit windows.
func (f *Filter) Resolve(now time.Time) (Range, bool) {
	if f == nil {
		return Range{}, false
	}
	if f.IsExplicit() {
		if f.End.Before(f.Start) {
			return Range{}, false
		}
		return Range{Start: f.Start, End: f.End}, true
	}
	rule, ok := presets[f.Preset]
	if !ok {
		return Range{}, false
	}
	return rule.resolve(now), true
}

// DayLevel reports whether the filter is narrow enough to mask individual
// heatmap hours. Month and year presets are not.
func (f *Filter) DayLevel() bool {
	if f == nil {
		return false
	}
	if f.IsExplicit() {
		return true
	}
	return presets[f.Preset].dayLevel
}

// Key identifies the filter for memoization.
func (f *Filter) Key() string {
	switch {
	case f == nil:
		return "all"
	case f.IsExplicit():
		return f.Start.UTC().Format(time.RFC3339Nano) + "/" + f.End.UTC().Format(time.RFC3339Nano)
	default:
		return string(f.Preset)
	}
}
