package heatmap

import (
	"time"

	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/window"
)

// StyledCell is a cell ready for a renderer.
type StyledCell struct {
	Cell
	Style intensity.Style `json:"style"`
}

// View is the full heatmap handed to the rendering layer.
type View struct {
	Cells       []StyledCell `json:"cells"`
	MaxVisitors int          `json:"max_visitors"`
	Visible     int          `json:"visible_cells"`
	WeekStart   time.Time    `json:"week_start"`
	Dropped     int          `json:"dropped_cells"`
}

// Grid composes all 168 cells, Sunday 00:00 first, from agg and mask. The grid
// is fully shaped even when agg has no cells; masked-out cells keep their
// counts and styles.
func Grid(agg Aggregation, mask Mask, palette intensity.Palette) []StyledCell {
	maxVisitors := float64(max(agg.MaxVisitors, 1))
	cells := make([]StyledCell, 0, Days*Hours)
	for d := range Days {
		for h := range Hours {
			v := agg.Visitors(d, h)
			cells = append(cells, StyledCell{
				Cell:  Cell{Day: d, Hour: h, Visitors: v, Visible: mask[d][h]},
				Style: palette.Map(float64(v), maxVisitors),
			})
		}
	}
	return cells
}

// Compose runs the whole heatmap pipeline: aggregate, mask, style.
func Compose(matrix WeeklyMatrix, filter *window.Filter, now time.Time, palette intensity.Palette) View {
	agg := Aggregate(matrix)
	mask := Visibility(filter, now)
	return View{
		Cells:       Grid(agg, mask, palette),
		MaxVisitors: agg.MaxVisitors,
		Visible:     mask.Count(),
		WeekStart:   window.StartOfWeek(now),
		Dropped:     agg.Dropped,
	}
}
