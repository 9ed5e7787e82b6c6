package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/visitgrid/intensity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func saveVisit(t *testing.T, s *Store, visitor, country string, at time.Time) {
	t.Helper()
	require.NoError(t, s.SaveVisit(context.Background(), &Visit{
		VisitorID: visitor,
		SessionID: sessionID(visitor, at),
		IPHash:    "h",
		Browser:   "Firefox",
		OS:        "Linux",
		Device:    "Desktop",
		Path:      "/",
		Country:   country,
		Timestamp: at,
	}))
}

func utc(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestStoreSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetSetting(ctx, "k", "one"))
	require.NoError(t, s.SetSetting(ctx, "k", "two"))
	v, err = s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", v)

	ver, err := s.GetSetting(ctx, "schema_version")
	require.NoError(t, err)
	assert.Equal(t, "2", ver)
}

func TestStoreReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	saveVisit(t, s, "a", "DE", utc(15, 10, 0))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	counts, err := s.Countries(context.Background(), utc(15, 0, 0), utc(16, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []intensity.CountryCount{{CountryCode: "DE", VisitorCount: 1}}, counts)
}

func TestStoreTimeSeriesGroupsQuarterHours(t *testing.T) {
	s := newTestStore(t)
	saveVisit(t, s, "a", "", utc(15, 10, 5))
	saveVisit(t, s, "a", "", utc(15, 10, 10))
	saveVisit(t, s, "b", "", utc(15, 10, 10))
	saveVisit(t, s, "a", "", utc(15, 10, 50))
	saveVisit(t, s, "c", "", utc(15, 12, 0)) // at the exclusive end

	points, err := s.TimeSeries(context.Background(), utc(15, 10, 0), utc(15, 12, 0))
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, utc(15, 10, 0), points[0].Timestamp)
	assert.Equal(t, 2, points[0].Visitors)
	assert.Equal(t, 3, points[0].Views)
	assert.Equal(t, utc(15, 10, 45), points[1].Timestamp)
	assert.Equal(t, 1, points[1].Visitors)
}

func TestStoreWeeklyCountsDistinctVisitorsInViewerZone(t *testing.T) {
	s := newTestStore(t)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// Saturday 2024-03-09 20:30 UTC is Sunday 05:30 in Tokyo.
	saveVisit(t, s, "a", "", time.Date(2024, 3, 9, 20, 30, 0, 0, time.UTC))
	saveVisit(t, s, "a", "", time.Date(2024, 3, 9, 20, 40, 0, 0, time.UTC))
	saveVisit(t, s, "b", "", time.Date(2024, 3, 9, 20, 50, 0, 0, time.UTC))
	// Previous week in Tokyo.
	saveVisit(t, s, "c", "", time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC))

	m, err := s.Weekly(context.Background(), utc(15, 15, 0).In(tokyo))
	require.NoError(t, err)
	require.Len(t, m, 7)
	assert.Equal(t, 2, m[0][5])

	total := 0
	for _, row := range m {
		require.Len(t, row, 24)
		for _, v := range row {
			total += v
		}
	}
	assert.Equal(t, 2, total)
}

func TestStoreCountriesBusiestFirst(t *testing.T) {
	s := newTestStore(t)
	saveVisit(t, s, "a", "DE", utc(15, 9, 0))
	saveVisit(t, s, "b", "US", utc(15, 9, 0))
	saveVisit(t, s, "c", "US", utc(15, 9, 0))
	saveVisit(t, s, "c", "US", utc(15, 9, 30))
	saveVisit(t, s, "d", "", utc(15, 9, 0))

	counts, err := s.Countries(context.Background(), utc(15, 0, 0), utc(16, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []intensity.CountryCount{
		{CountryCode: "US", VisitorCount: 2},
		{CountryCode: "DE", VisitorCount: 1},
	}, counts)
}

func TestStoreUpdateVisitDurationTouchesLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveVisit(t, s, "a", "", utc(15, 9, 0))
	saveVisit(t, s, "a", "", utc(15, 9, 30))

	require.NoError(t, s.UpdateVisitDuration(ctx, "a", "/", 42))

	var first, latest int
	require.NoError(t, s.db.QueryRow(`SELECT duration_sec FROM visits WHERE ts = ?`, utc(15, 9, 0).Unix()).Scan(&first))
	require.NoError(t, s.db.QueryRow(`SELECT duration_sec FROM visits WHERE ts = ?`, utc(15, 9, 30).Unix()).Scan(&latest))
	assert.Equal(t, 0, first)
	assert.Equal(t, 42, latest)
}

func TestStoreCleanupOldVisits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := utc(15, 12, 0)
	saveVisit(t, s, "old", "", now.AddDate(0, 0, -40))
	saveVisit(t, s, "new", "", now.AddDate(0, 0, -1))
	require.NoError(t, s.SaveBotVisit(ctx, &BotVisit{BotName: "Googlebot", IPHash: "h", UserAgent: "googlebot", Path: "/", Timestamp: now.AddDate(0, 0, -90)}))

	n, err := s.CleanupOldVisits(ctx, now, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	points, err := s.TimeSeries(ctx, now.AddDate(0, 0, -100), now)
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestStoreRealtimeVisitors(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	saveVisit(t, s, "a", "", now.Add(-time.Minute))
	saveVisit(t, s, "b", "", now.Add(-10*time.Minute))

	n, err := s.RealtimeVisitors(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
