package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/eringen/visitgrid/heatmap"
	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/timegrid"
)

// Source supplies the raw inputs of the three views. The local Store and the
// upstream API client both implement it.
type Source interface {
	// TimeSeries returns sparse points with timestamps in [from, to).
	TimeSeries(ctx context.Context, from, to time.Time) ([]timegrid.TimePoint, error)
	// Weekly returns the 7x24 matrix for the Sunday-start week containing
	// now, bucketed in now's location.
	Weekly(ctx context.Context, now time.Time) (heatmap.WeeklyMatrix, error)
	// Countries returns visitor counts per country in [from, to).
	Countries(ctx context.Context, from, to time.Time) ([]intensity.CountryCount, error)
}

var _ Source = (*Store)(nil)

// ErrSourceUnavailable marks a source that cannot currently serve reads, such
// as an upstream API behind an open circuit breaker.
var ErrSourceUnavailable = errors.New("analytics source unavailable")
