package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eringen/visitgrid/timegrid"
	"github.com/eringen/visitgrid/window"
)

// ErrInvalidTimezone is returned for a timezone the tz database does not know.
var ErrInvalidTimezone = errors.New("invalid timezone")

// ErrRangeTooLong is returned for a custom range spanning more than
// timegrid.MaxCustomDays calendar days.
var ErrRangeTooLong = fmt.Errorf("custom range longer than %d days", timegrid.MaxCustomDays)

var validate = validator.New(validator.WithRequiredStructEnabled())

// seriesQuery selects a time-series range.
type seriesQuery struct {
	Range string `query:"range" validate:"omitempty,max=32"`
	TZ    string `query:"tz" validate:"omitempty,timezone"`
	Start string `query:"start" validate:"omitempty,datetime=2006-01-02"`
	End   string `query:"end" validate:"omitempty,datetime=2006-01-02,required_with=Start"`
}

// heatmapQuery selects the heatmap's visibility filter.
type heatmapQuery struct {
	Preset string `query:"preset" validate:"omitempty,max=32"`
	TZ     string `query:"tz" validate:"omitempty,timezone"`
	Start  string `query:"start" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00,required_with=End"`
	End    string `query:"end" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00,required_with=Start"`
}

// CollectRequest is the body of the collect endpoint.
type CollectRequest struct {
	Path        string `json:"path" validate:"max=2048"`
	Referrer    string `json:"referrer" validate:"max=2048"`
	ScreenSize  string `json:"screen_size" validate:"max=32"`
	UserAgent   string `json:"user_agent" validate:"max=512"`
	DurationSec int    `json:"duration_sec" validate:"min=0,max=86400"`
}

// loadLocation resolves name, falling back to def when name is empty.
func loadLocation(name string, def *time.Location) (*time.Location, error) {
	if name == "" {
		return def, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// gridSpec turns the query into a grid mode and options. Unknown ranges fall
// back to the 30-day grid and report false; "today" selects the
// midnight-anchored day.
func (q seriesQuery) gridSpec(loc *time.Location) (timegrid.Mode, timegrid.Options, bool, error) {
	raw := strings.ToLower(strings.TrimSpace(q.Range))
	if raw == "" {
		raw = string(timegrid.Mode30d)
	}
	mode, known := timegrid.ParseMode(raw)
	opts := timegrid.Options{AnchoredToHourStart: raw != "today"}
	if mode != timegrid.ModeCustom {
		return mode, opts, known, nil
	}
	if q.Start == "" {
		return timegrid.Mode30d, opts, false, nil
	}
	start, err := time.ParseInLocation(time.DateOnly, q.Start, loc)
	if err != nil {
		return mode, opts, known, fmt.Errorf("start: %w", err)
	}
	end, err := time.ParseInLocation(time.DateOnly, q.End, loc)
	if err != nil {
		return mode, opts, known, fmt.Errorf("end: %w", err)
	}
	if end.Before(start) {
		return mode, opts, known, window.ErrInvertedWindow
	}
	if timegrid.CustomDays(start, end, loc) > timegrid.MaxCustomDays {
		return mode, opts, known, ErrRangeTooLong
	}
	opts.Start, opts.End = start, end
	return mode, opts, known, nil
}

// filter builds the visibility filter. An explicit window wins over a preset;
// neither means no filter.
func (q heatmapQuery) filter() (*window.Filter, error) {
	if q.Start != "" {
		start, err := time.Parse(time.RFC3339, q.Start)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, q.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		return window.Explicit(start, end)
	}
	if q.Preset == "" {
		return nil, nil
	}
	// Unknown presets are kept; they resolve to nothing and show every cell.
	p, _ := window.ParsePreset(q.Preset)
	return window.ForPreset(p), nil
}
