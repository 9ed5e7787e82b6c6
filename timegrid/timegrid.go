// Package timegrid turns sparse, irregularly timestamped visit points into a
// dense, gap-free, timezone-correct bucket grid for time-series charts.
//
// The viewer's timezone is the location of the now argument. Grid length and
// boundaries depend only on the mode, now and options, never on the points.
package timegrid

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/eringen/visitgrid/internal/logging"
	"github.com/eringen/visitgrid/window"
)

// Mode is the declared range of a time-series chart.
type Mode string

const (
	Mode24h        Mode = "24h"
	Mode7dRolling  Mode = "7d-rolling"
	Mode7dCalendar Mode = "7d-calendar"
	Mode30d        Mode = "30d"
	ModeCustom     Mode = "custom"
)

const (
	anchoredHourBuckets = 25
	todayHourBuckets    = 23
	weekDays            = 7
	monthDays           = 30
)

// MaxCustomDays bounds ModeCustom. Longer ranges fall back to Mode30d.
const MaxCustomDays = 366

var modeAliases = map[string]Mode{
	"24h":         Mode24h,
	"today":       Mode24h,
	"7d":          Mode7dRolling,
	"7d-rolling":  Mode7dRolling,
	"last7days":   Mode7dRolling,
	"week":        Mode7dCalendar,
	"7d-calendar": Mode7dCalendar,
	"thisweek":    Mode7dCalendar,
	"30d":         Mode30d,
	"month":       Mode30d,
	"custom":      ModeCustom,
}

// ParseMode maps a query value onto a Mode. Unknown values return Mode30d and
// false.
func ParseMode(s string) (Mode, bool) {
	m, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Mode30d, false
	}
	return m, true
}

// Hourly reports whether the mode uses one-hour buckets.
func (m Mode) Hourly() bool { return m == Mode24h }

// TimePoint is one externally produced sample.
type TimePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Visitors  int       `json:"visitors"`
	Views     int       `json:"views"`
}

// Values are the per-series sums held by a bucket.
type Values struct {
	Visitors int `json:"visitors"`
	Views    int `json:"views"`
}

// Bucket is one fixed time slot of the grid.
type Bucket struct {
	Start     time.Time `json:"bucket_start"`
	Label     string    `json:"label"`
	HourOfDay int       `json:"hour_of_day"`
	Values    Values    `json:"values"`
}

// Options tune grid construction.
type Options struct {
	// AnchoredToHourStart selects the 25-bucket rolling day in Mode24h. When
	// false Mode24h renders "today": midnight through 22:00.
	AnchoredToHourStart bool

	// Start and End bound ModeCustom, inclusive by calendar day.
	Start time.Time
	End   time.Time
}

// Build produces the complete, ordered bucket grid for mode and merges points
// into it by summation. Points outside the grid are ignored.
func Build(points []TimePoint, mode Mode, now time.Time, opts Options) []Bucket {
	loc := now.Location()
	starts, step := grid(mode, now, opts)

	buckets := lo.Map(starts, func(start time.Time, _ int) Bucket {
		local := start.In(loc)
		return Bucket{
			Start:     local,
			Label:     FormatLabel(local, mode),
			HourOfDay: local.Hour(),
		}
	})
	if len(buckets) == 0 {
		return buckets
	}

	first := buckets[0].Start
	last := buckets[len(buckets)-1].Start
	for _, p := range points {
		ts := p.Timestamp.In(loc)
		if ts.Before(first) || !ts.Before(step(last)) {
			continue
		}
		i := locate(buckets, ts, step)
		if i < 0 {
			continue
		}
		buckets[i].Values.Visitors += p.Visitors
		buckets[i].Values.Views += p.Views
	}
	return buckets
}

// Span returns the half-open interval [from, to) covered by the grid Build
// would produce for mode. Callers use it to bound the points they fetch.
func Span(mode Mode, now time.Time, opts Options) (from, to time.Time) {
	starts, step := grid(mode, now, opts)
	return starts[0], step(starts[len(starts)-1])
}

// grid returns the bucket starts for mode and the function advancing a start
// to the end of its bucket.
func grid(mode Mode, now time.Time, opts Options) ([]time.Time, func(time.Time) time.Time) {
	hourStep := func(t time.Time) time.Time { return t.Add(time.Hour) }
	dayStep := func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }

	switch mode {
	case Mode24h:
		if opts.AnchoredToHourStart {
			end := window.FloorHour(now)
			start := end.Add(-24 * time.Hour)
			return hours(start, anchoredHourBuckets), hourStep
		}
		return hours(window.StartOfDay(now), todayHourBuckets), hourStep
	case Mode7dCalendar:
		return days(window.StartOfWeek(now), weekDays), dayStep
	case Mode7dRolling:
		return days(window.StartOfDay(now).AddDate(0, 0, -(weekDays-1)), weekDays), dayStep
	case Mode30d:
		return days(window.StartOfDay(now).AddDate(0, 0, -(monthDays-1)), monthDays), dayStep
	case ModeCustom:
		if n := CustomDays(opts.Start, opts.End, now.Location()); n > 0 && n <= MaxCustomDays {
			return days(window.StartOfDay(opts.Start.In(now.Location())), n), dayStep
		}
		logging.Warn().Time("start", opts.Start).Time("end", opts.End).Msg("custom range unusable, using 30d grid")
		return grid(Mode30d, now, opts)
	default:
		logging.Warn().Str("mode", string(mode)).Msg("unknown range mode, using 30d grid")
		return grid(Mode30d, now, opts)
	}
}

func hours(start time.Time, n int) []time.Time {
	return lo.Times(n, func(i int) time.Time {
		return start.Add(time.Duration(i) * time.Hour)
	})
}

// days steps by calendar day so DST transitions keep buckets on local midnight.
func days(start time.Time, n int) []time.Time {
	return lo.Times(n, func(i int) time.Time {
		return start.AddDate(0, 0, i)
	})
}

// CustomDays counts the calendar days in loc touched by [start, end],
// inclusive. Zero or inverted bounds give 0.
func CustomDays(start, end time.Time, loc *time.Location) int {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	s, e := start.In(loc), end.In(loc)
	first := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	return int((last.Unix()-first.Unix())/86400) + 1
}

// locate finds the bucket whose half-open interval [start, step(start))
// contains ts. Buckets are ascending, so a binary search suffices.
func locate(buckets []Bucket, ts time.Time, step func(time.Time) time.Time) int {
	low, high := 0, len(buckets)-1
	for low <= high {
		mid := (low + high) / 2
		start := buckets[mid].Start
		switch {
		case ts.Before(start):
			high = mid - 1
		case !ts.Before(step(start)):
			low = mid + 1
		default:
			return mid
		}
	}
	return -1
}
