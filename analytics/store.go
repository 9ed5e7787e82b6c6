package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eringen/visitgrid/heatmap"
	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/internal/logging"
	"github.com/eringen/visitgrid/timegrid"
	"github.com/eringen/visitgrid/window"
)

// pointResolution is the width of the slots TimeSeries groups visits into.
// Fifteen minutes divides every real-world UTC offset, so each slot falls in
// exactly one local hour.
const pointResolution = 15 * 60

// Store persists visits in sqlite. Timestamps are unix seconds (UTC).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the analytics database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			visitor_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			ip_hash TEXT NOT NULL,
			browser TEXT NOT NULL,
			os TEXT NOT NULL,
			device TEXT NOT NULL,
			path TEXT NOT NULL,
			referrer TEXT NOT NULL DEFAULT '',
			screen_size TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL,
			duration_sec INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS bot_visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bot_name TEXT NOT NULL,
			ip_hash TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			path TEXT NOT NULL,
			ts INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_visits_ts ON visits(ts);
		CREATE INDEX IF NOT EXISTS idx_visits_visitor_path ON visits(visitor_id, path);
		CREATE INDEX IF NOT EXISTS idx_bot_visits_ts ON bot_visits(ts);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 2

// migrate applies incremental schema migrations tracked in the settings table.
func (s *Store) migrate(ctx context.Context) error {
	verStr, err := s.GetSetting(ctx, "schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version := 0
	if verStr != "" {
		if version, err = strconv.Atoi(verStr); err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}

	if version < 2 {
		// v2: country code for the location view.
		_, err := s.db.ExecContext(ctx, `ALTER TABLE visits ADD COLUMN country TEXT NOT NULL DEFAULT ''`)
		if err != nil && !strings.Contains(err.Error(), "duplicate column") {
			return fmt.Errorf("add country column: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_visits_country ON visits(country, ts)`); err != nil {
			return fmt.Errorf("index country: %w", err)
		}
	}

	if version == currentSchemaVersion {
		return nil
	}
	return s.SetSetting(ctx, "schema_version", strconv.Itoa(currentSchemaVersion))
}

// GetSetting returns the value stored under key, or "" when absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetSetting upserts a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// SaveVisit stores a new visit.
func (s *Store) SaveVisit(ctx context.Context, v *Visit) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO visits (visitor_id, session_id, ip_hash, browser, os, device, path, referrer, screen_size, country, ts, duration_sec)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VisitorID, v.SessionID, v.IPHash, v.Browser, v.OS, v.Device, v.Path,
		v.Referrer, v.ScreenSize, v.Country, v.Timestamp.Unix(), v.DurationSec)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	v.ID, _ = res.LastInsertId()
	return nil
}

// UpdateVisitDuration sets the duration of the visitor's latest view of path.
func (s *Store) UpdateVisitDuration(ctx context.Context, visitorID, path string, durationSec int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE visits SET duration_sec = ?
		 WHERE id = (SELECT id FROM visits WHERE visitor_id = ? AND path = ? ORDER BY ts DESC, id DESC LIMIT 1)`,
		durationSec, visitorID, path)
	if err != nil {
		return fmt.Errorf("update visit duration: %w", err)
	}
	return nil
}

// SaveBotVisit stores a crawler hit.
func (s *Store) SaveBotVisit(ctx context.Context, bv *BotVisit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_visits (bot_name, ip_hash, user_agent, path, ts) VALUES (?, ?, ?, ?, ?)`,
		bv.BotName, bv.IPHash, bv.UserAgent, bv.Path, bv.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("insert bot visit: %w", err)
	}
	return nil
}

// TimeSeries returns visit points in [from, to), one per fifteen-minute slot
// that saw traffic. Visitors are distinct per slot; a visitor active in two
// slots of the same bucket is counted twice once the points are summed.
func (s *Store) TimeSeries(ctx context.Context, from, to time.Time) ([]timegrid.TimePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT (ts / ?) * ? AS slot, COUNT(DISTINCT visitor_id), COUNT(*)
		 FROM visits WHERE ts >= ? AND ts < ?
		 GROUP BY slot ORDER BY slot`,
		pointResolution, pointResolution, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query time series: %w", err)
	}
	defer rows.Close()

	var points []timegrid.TimePoint
	for rows.Next() {
		var slot int64
		var p timegrid.TimePoint
		if err := rows.Scan(&slot, &p.Visitors, &p.Views); err != nil {
			return nil, fmt.Errorf("scan time series: %w", err)
		}
		p.Timestamp = time.Unix(slot, 0).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// Weekly returns distinct visitors per (weekday, hour) for the Sunday-start
// week containing now, bucketed in now's location.
func (s *Store) Weekly(ctx context.Context, now time.Time) (heatmap.WeeklyMatrix, error) {
	loc := now.Location()
	start := window.StartOfWeek(now)
	end := start.AddDate(0, 0, heatmap.Days)

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, visitor_id FROM visits WHERE ts >= ? AND ts < ?`, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query weekly visits: %w", err)
	}
	defer rows.Close()

	var seen [heatmap.Days][heatmap.Hours]map[string]struct{}
	for rows.Next() {
		var ts int64
		var visitor string
		if err := rows.Scan(&ts, &visitor); err != nil {
			return nil, fmt.Errorf("scan weekly visit: %w", err)
		}
		local := time.Unix(ts, 0).In(loc)
		d, h := int(local.Weekday()), local.Hour()
		if seen[d][h] == nil {
			seen[d][h] = make(map[string]struct{})
		}
		seen[d][h][visitor] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	matrix := make(heatmap.WeeklyMatrix, heatmap.Days)
	for d := range matrix {
		matrix[d] = make([]int, heatmap.Hours)
		for h := range matrix[d] {
			matrix[d][h] = len(seen[d][h])
		}
	}
	return matrix, nil
}

// Countries returns distinct visitors per country in [from, to), busiest
// first. Visits without a country are omitted.
func (s *Store) Countries(ctx context.Context, from, to time.Time) ([]intensity.CountryCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT country, COUNT(DISTINCT visitor_id) AS visitors
		 FROM visits WHERE ts >= ? AND ts < ? AND country != ''
		 GROUP BY country ORDER BY visitors DESC, country`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query countries: %w", err)
	}
	defer rows.Close()

	counts := []intensity.CountryCount{}
	for rows.Next() {
		var c intensity.CountryCount
		if err := rows.Scan(&c.CountryCode, &c.VisitorCount); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// RealtimeVisitors returns the distinct visitors seen in the five minutes
// before now.
func (s *Store) RealtimeVisitors(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT visitor_id) FROM visits WHERE ts >= ?`,
		now.Add(-5*time.Minute).Unix()).Scan(&n)
	return n, err
}

// CleanupOldVisits deletes visits and bot visits older than retentionDays
// before now. It returns the number of rows removed.
func (s *Store) CleanupOldVisits(ctx context.Context, now time.Time, retentionDays int) (int64, error) {
	cutoff := now.UTC().AddDate(0, 0, -retentionDays).Unix()
	var total int64
	for _, table := range []string{"visits", "bot_visits"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE ts < ?`, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// StartCleanupScheduler runs CleanupOldVisits every interval until the
// returned stop function is called.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	log := logging.WithComponent("retention")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := s.CleanupOldVisits(context.Background(), time.Now(), retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("cleanup failed")
					continue
				}
				if n > 0 {
					log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("old visits removed")
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
