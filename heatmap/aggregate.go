// Package heatmap re-indexes the weekly 7x24 visitor matrix, computes which
// cells fall inside the active date filter, and composes the styled grid.
//
// Day index 0 is always Sunday. The matrix is a canonical calendar week and is
// never reinterpreted from the date range that was requested when fetching it.
package heatmap

import (
	"github.com/samber/lo"

	"github.com/eringen/visitgrid/internal/logging"
)

const (
	Days  = 7
	Hours = 24
)

// WeeklyMatrix holds visitor counts: matrix[day][hour], day 0 = Sunday.
type WeeklyMatrix [][]int

// Cell is one (day-of-week, hour-of-day) position.
type Cell struct {
	Day      int  `json:"day"`
	Hour     int  `json:"hour"`
	Visitors int  `json:"visitors"`
	Visible  bool `json:"visible"`
}

// CellCount is a sparse matrix entry as some upstream APIs return it.
type CellCount struct {
	Day      int `json:"day"`
	Hour     int `json:"hour"`
	Visitors int `json:"visitors"`
}

// Aggregation is the re-indexed matrix.
type Aggregation struct {
	Lookup      [Days][Hours]int
	Cells       []Cell
	MaxVisitors int
	// Dropped counts cells discarded for bad indices or negative counts.
	Dropped int
}

// Aggregate re-indexes matrix into a day -> hour -> count lookup. Rows past
// Saturday, hours past 23 and negative counts are discarded per cell and
// logged; they never abort the aggregation. MaxVisitors is at least 1. An
// empty matrix yields no cells.
func Aggregate(matrix WeeklyMatrix) Aggregation {
	agg := Aggregation{MaxVisitors: 1}
	if len(matrix) == 0 {
		return agg
	}

	for day, row := range matrix {
		if day >= Days {
			agg.Dropped += len(row)
			logging.Warn().Int("day", day).Int("cells", len(row)).Msg("heatmap: dropping row outside Sunday..Saturday")
			continue
		}
		for hour, v := range row {
			switch {
			case hour >= Hours:
				agg.Dropped++
				logging.Warn().Int("day", day).Int("hour", hour).Msg("heatmap: dropping cell outside 0..23")
			case v < 0:
				agg.Dropped++
				logging.Warn().Int("day", day).Int("hour", hour).Int("visitors", v).Msg("heatmap: treating negative count as zero")
			default:
				agg.Lookup[day][hour] = v
			}
		}
	}

	agg.Cells = make([]Cell, 0, Days*Hours)
	for day := range Days {
		for hour := range Hours {
			agg.Cells = append(agg.Cells, Cell{Day: day, Hour: hour, Visitors: agg.Lookup[day][hour], Visible: true})
		}
	}
	agg.MaxVisitors = max(lo.MaxBy(agg.Cells, func(a, b Cell) bool { return a.Visitors > b.Visitors }).Visitors, 1)
	return agg
}

// FromCells builds a matrix from sparse entries. Entries with a day outside
// 0..6 or an hour outside 0..23 are rejected; the second result counts them.
// Repeated entries for the same cell are summed.
func FromCells(cells []CellCount) (WeeklyMatrix, int) {
	matrix := make(WeeklyMatrix, Days)
	for d := range matrix {
		matrix[d] = make([]int, Hours)
	}
	rejected := 0
	for _, c := range cells {
		if c.Day < 0 || c.Day >= Days || c.Hour < 0 || c.Hour >= Hours {
			rejected++
			logging.Warn().Int("day", c.Day).Int("hour", c.Hour).Msg("heatmap: rejecting cell with out-of-range index")
			continue
		}
		matrix[c.Day][c.Hour] += c.Visitors
	}
	return matrix, rejected
}

// Visitors returns the count at (day, hour), or 0 for out-of-range indices.
func (a Aggregation) Visitors(day, hour int) int {
	if day < 0 || day >= Days || hour < 0 || hour >= Hours {
		return 0
	}
	return a.Lookup[day][hour]
}
