package timegrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeKeepsBucketOrder(t *testing.T) {
	now := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)
	buckets := Build([]TimePoint{
		{Timestamp: time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), Visitors: 4, Views: 6},
	}, Mode7dCalendar, now, Options{})

	series := Compose(buckets, Mode7dCalendar)

	require.Len(t, series, len(buckets))
	for i := range series {
		assert.Equal(t, buckets[i].Start, series[i].Key)
		if i > 0 {
			assert.True(t, series[i].Key.After(series[i-1].Key))
		}
	}
	assert.Equal(t, "Sun, Mar 10", series[0].Label)
	assert.Equal(t, 4, series[3].Visitors)
	assert.Equal(t, 6, series[3].Views)
}

func TestFormatLabel(t *testing.T) {
	ts := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, "14:00", FormatLabel(ts, Mode24h))
	assert.Equal(t, "Fri, Mar 15", FormatLabel(ts, Mode7dRolling))
	assert.Equal(t, "Fri, Mar 15", FormatLabel(ts, Mode7dCalendar))
	assert.Equal(t, "Mar 15", FormatLabel(ts, Mode30d))
	assert.Equal(t, "Mar 15", FormatLabel(ts, ModeCustom))
}

func TestComposeFillsMissingLabel(t *testing.T) {
	b := []Bucket{{Start: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}}
	assert.Equal(t, "09:00", Compose(b, Mode24h)[0].Label)
}

func TestShowLabelAnchored24h(t *testing.T) {
	// 25 buckets from 13:00 yesterday to 13:00 today: both ends are odd hours.
	now := time.Date(2024, 3, 15, 13, 10, 0, 0, time.UTC)
	buckets := Build(nil, Mode24h, now, Options{AnchoredToHourStart: true})
	require.Len(t, buckets, 25)

	assert.True(t, ShowLabel(buckets, 0, Mode24h, true))
	assert.True(t, ShowLabel(buckets, 24, Mode24h, true))
	assert.True(t, ShowLabel(buckets, 1, Mode24h, true))  // 14:00
	assert.False(t, ShowLabel(buckets, 2, Mode24h, true)) // 15:00

	assert.False(t, ShowLabel(buckets, 0, Mode24h, false))
	assert.False(t, ShowLabel(buckets, -1, Mode24h, true))
	assert.False(t, ShowLabel(buckets, 25, Mode24h, true))
}

func TestShowLabelToday(t *testing.T) {
	now := time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)
	buckets := Build(nil, Mode24h, now, Options{})
	for i, b := range buckets {
		assert.Equal(t, b.HourOfDay%2 == 0, ShowLabel(buckets, i, Mode24h, false), "hour %d", b.HourOfDay)
	}
}

func TestShowLabelDailyModes(t *testing.T) {
	now := time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)
	buckets := Build(nil, Mode30d, now, Options{})
	for i := range buckets {
		assert.True(t, ShowLabel(buckets, i, Mode30d, false))
	}
}
