package heatmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/window"
)

func emptyMatrix() WeeklyMatrix {
	m := make(WeeklyMatrix, Days)
	for d := range m {
		m[d] = make([]int, Hours)
	}
	return m
}

// Friday 2024-03-15 15:00.
var friday = time.Date(2024, time.March, 15, 15, 0, 0, 0, time.UTC)

func TestAggregateSingleCell(t *testing.T) {
	m := emptyMatrix()
	m[3][14] = 42

	agg := Aggregate(m)

	assert.Equal(t, 42, agg.MaxVisitors)
	require.Len(t, agg.Cells, 168)
	nonZero := 0
	for _, c := range agg.Cells {
		if c.Visitors != 0 {
			nonZero++
			assert.Equal(t, 3, c.Day)
			assert.Equal(t, 14, c.Hour)
			assert.Equal(t, 42, c.Visitors)
		}
	}
	assert.Equal(t, 1, nonZero)
	assert.Equal(t, 42, agg.Visitors(3, 14))
	assert.Equal(t, 0, agg.Dropped)
}

func TestAggregateEmpty(t *testing.T) {
	for _, m := range []WeeklyMatrix{nil, {}} {
		agg := Aggregate(m)
		assert.Equal(t, 1, agg.MaxVisitors)
		assert.Empty(t, agg.Cells)
	}
}

func TestAggregateAllZeroFloorsMax(t *testing.T) {
	agg := Aggregate(emptyMatrix())
	assert.Equal(t, 1, agg.MaxVisitors)
	assert.Len(t, agg.Cells, 168)
}

func TestAggregateDropsCorruptCells(t *testing.T) {
	m := emptyMatrix()
	m[0][5] = 7
	m[2] = append(m[2], 99, 99) // hours 24 and 25
	m[4][1] = -3
	m = append(m, []int{1000, 1000})

	agg := Aggregate(m)

	assert.Equal(t, 5, agg.Dropped)
	assert.Equal(t, 7, agg.MaxVisitors)
	assert.Equal(t, 7, agg.Visitors(0, 5))
	assert.Equal(t, 0, agg.Visitors(4, 1))
	assert.Equal(t, 0, agg.Visitors(7, 0))
}

func TestAggregateShortRows(t *testing.T) {
	agg := Aggregate(WeeklyMatrix{{1, 2}, nil, {0, 0, 9}})
	require.Len(t, agg.Cells, 168)
	assert.Equal(t, 9, agg.MaxVisitors)
	assert.Equal(t, 2, agg.Visitors(0, 1))
	assert.Equal(t, 0, agg.Visitors(6, 23))
}

func TestFromCells(t *testing.T) {
	m, rejected := FromCells([]CellCount{
		{Day: 0, Hour: 0, Visitors: 1},
		{Day: 0, Hour: 0, Visitors: 2},
		{Day: 6, Hour: 23, Visitors: 5},
		{Day: 7, Hour: 1, Visitors: 9},
		{Day: -1, Hour: 1, Visitors: 9},
		{Day: 2, Hour: 24, Visitors: 9},
	})
	assert.Equal(t, 3, rejected)
	assert.Equal(t, 3, m[0][0])
	assert.Equal(t, 5, m[6][23])
}

func TestVisibilityNoFilter(t *testing.T) {
	assert.Equal(t, 168, Visibility(nil, friday).Count())
}

func TestVisibilityToday(t *testing.T) {
	mask := Visibility(window.ForPreset(window.Today), friday)

	for d := range Days {
		for h := range Hours {
			want := d == int(time.Friday) && h <= 15
			assert.Equal(t, want, mask[d][h], "day %d hour %d", d, h)
		}
	}
	assert.Equal(t, 16, mask.Count())
}

func TestVisibilityPartialOverlap(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	now := friday.In(kolkata)

	// The window opens at 00:00 UTC, which is 05:30 in Kolkata: the 05:00 cell
	// spans 23:30-00:30 UTC around the boundary.
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	f, err := window.Explicit(start, start.Add(3*time.Hour))
	require.NoError(t, err)

	mask := Visibility(f, now)

	fri := int(time.Friday)
	assert.False(t, mask[fri][4], "04:00-05:00 IST lies entirely before the window")
	assert.True(t, mask[fri][5], "partial overlap counts as visible")
	assert.True(t, mask[fri][8], "08:00-09:00 IST contains the window end")
	assert.False(t, mask[fri][9], "09:00 IST starts after the window end")
	assert.Equal(t, 4, mask.Count())
}

func TestVisibilityCellEndingAtWindowStart(t *testing.T) {
	// Thursday 23:00-24:00 ends exactly where "today" begins; it is not visible.
	mask := Visibility(window.ForPreset(window.Today), friday)
	assert.False(t, mask[int(time.Thursday)][23])
}

func TestVisibilityThisWeek(t *testing.T) {
	mask := Visibility(window.ForPreset(window.ThisWeek), friday)
	// Sunday..Thursday full days, Friday 0..15.
	assert.Equal(t, 5*24+16, mask.Count())
	assert.False(t, mask[int(time.Saturday)][0])
}

func TestVisibilityWidePresetsShowAll(t *testing.T) {
	for _, p := range []window.Preset{window.ThisMonth, window.Last30Days, window.ThisYear, "fortnight"} {
		assert.Equal(t, 168, Visibility(window.ForPreset(p), friday).Count(), string(p))
	}
}

func TestVisibilityWindowOutsideWeek(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	f, err := window.Explicit(start, start.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, Visibility(f, friday).Count())
}

func TestVisibilityIsIdempotent(t *testing.T) {
	f := window.ForPreset(window.Last24Hours)
	assert.Equal(t, Visibility(f, friday), Visibility(f, friday))
}

func TestComposeDayIdentityIgnoresFilter(t *testing.T) {
	m := emptyMatrix()
	m[0][9] = 11 // Sunday
	m[6][9] = 22 // Saturday

	midweek, err := window.Explicit(
		time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	for _, f := range []*window.Filter{nil, window.ForPreset(window.Today), midweek} {
		view := Compose(m, f, friday, intensity.HeatmapPalette)
		require.Len(t, view.Cells, 168)
		sunday := view.Cells[0*Hours+9]
		saturday := view.Cells[6*Hours+9]
		assert.Equal(t, 0, sunday.Day)
		assert.Equal(t, 11, sunday.Visitors)
		assert.Equal(t, 6, saturday.Day)
		assert.Equal(t, 22, saturday.Visitors)
		assert.Equal(t, 22, view.MaxVisitors)
	}
}

func TestComposeEmptyMatrixIsFullyShaped(t *testing.T) {
	view := Compose(nil, window.ForPreset(window.Today), friday, intensity.HeatmapPalette)

	require.Len(t, view.Cells, 168)
	assert.Equal(t, 1, view.MaxVisitors)
	assert.Equal(t, 16, view.Visible)
	for _, c := range view.Cells {
		assert.Equal(t, 0, c.Visitors)
		assert.Equal(t, intensity.HeatmapPalette.Empty, c.Style)
	}
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), view.WeekStart)
}

func TestGridMaskedCellsKeepData(t *testing.T) {
	m := emptyMatrix()
	m[1][3] = 5
	view := Compose(m, window.ForPreset(window.Today), friday, intensity.HeatmapPalette)

	cell := view.Cells[1*Hours+3]
	assert.False(t, cell.Visible)
	assert.Equal(t, 5, cell.Visitors)
	assert.Equal(t, intensity.HeatmapPalette.High, cell.Style.Color)
}
