package heatmap

import (
	"time"

	"github.com/eringen/visitgrid/internal/logging"
	"github.com/eringen/visitgrid/window"
)

// Mask flags the cells inside the active filter: mask[day][hour].
type Mask [Days][Hours]bool

// AllVisible returns a mask with every cell set.
func AllVisible() Mask {
	var m Mask
	for d := range m {
		for h := range m[d] {
			m[d][h] = true
		}
	}
	return m
}

// Count returns the number of visible cells.
func (m Mask) Count() int {
	n := 0
	for d := range m {
		for h := range m[d] {
			if m[d][h] {
				n++
			}
		}
	}
	return n
}

// Visibility computes which cells of the current Sunday-start week overlap
// filter. Cell (d, h) covers [startOfWeek(now)+d days+h hours, +1h) in now's
// location and is visible when it shares any instant with the resolved range.
//
// A nil filter, an unresolvable one, or a preset wider than a week shows every
// cell.
func Visibility(filter *window.Filter, now time.Time) Mask {
	if filter == nil {
		return AllVisible()
	}
	if !filter.DayLevel() {
		if _, ok := filter.Resolve(now); !ok {
			logging.Warn().Str("filter", filter.Key()).Msg("heatmap: unknown date filter, showing all cells")
		}
		return AllVisible()
	}
	rng, ok := filter.Resolve(now)
	if !ok {
		logging.Warn().Str("filter", filter.Key()).Msg("heatmap: unresolvable date filter, showing all cells")
		return AllVisible()
	}

	var mask Mask
	week := window.StartOfWeek(now)
	for d := range Days {
		dayStart := week.AddDate(0, 0, d)
		dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond)
		if !rng.Overlaps(dayStart, dayEnd) {
			continue
		}
		for h := range Hours {
			cellStart := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), h, 0, 0, 0, dayStart.Location())
			cellEnd := cellStart.Add(time.Hour - time.Nanosecond)
			mask[d][h] = rng.Overlaps(cellStart, cellEnd)
		}
	}
	return mask
}
