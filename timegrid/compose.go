package timegrid

import (
	"time"

	"github.com/samber/lo"
)

// SeriesPoint is the record a time-series chart consumes.
type SeriesPoint struct {
	Label    string    `json:"label"`
	Key      time.Time `json:"key"`
	Visitors int       `json:"visitors"`
	Views    int       `json:"views"`
}

// FormatLabel renders the x-axis label for a bucket start, in its own location.
func FormatLabel(t time.Time, mode Mode) string {
	switch mode {
	case Mode24h:
		return t.Format("15:04")
	case Mode7dCalendar, Mode7dRolling:
		return t.Format("Mon, Jan 2")
	default:
		return t.Format("Jan 2")
	}
}

// Compose maps buckets one-to-one onto chart records. Output order is bucket
// order.
func Compose(buckets []Bucket, mode Mode) []SeriesPoint {
	return lo.Map(buckets, func(b Bucket, _ int) SeriesPoint {
		label := b.Label
		if label == "" {
			label = FormatLabel(b.Start, mode)
		}
		return SeriesPoint{
			Label:    label,
			Key:      b.Start,
			Visitors: b.Values.Visitors,
			Views:    b.Values.Views,
		}
	})
}

// ShowLabel reports whether bucket i gets a visible x-axis label. In Mode24h
// only even hours are labelled, except that an hour-anchored series always
// labels both ends so the wraparound hour reads at either side. Daily modes
// label every bucket.
func ShowLabel(buckets []Bucket, i int, mode Mode, anchored bool) bool {
	if i < 0 || i >= len(buckets) {
		return false
	}
	if !mode.Hourly() {
		return true
	}
	if anchored && (i == 0 || i == len(buckets)-1) {
		return true
	}
	return buckets[i].HourOfDay%2 == 0
}

// Totals sums every bucket.
func Totals(buckets []Bucket) Values {
	return Values{
		Visitors: lo.SumBy(buckets, func(b Bucket) int { return b.Values.Visitors }),
		Views:    lo.SumBy(buckets, func(b Bucket) int { return b.Values.Views }),
	}
}
