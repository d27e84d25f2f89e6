package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/trackfinder/internal/monitoring"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUnknownRun is returned when exporting into a run that was never begun.
var ErrUnknownRun = errors.New("unknown run")

// Store is a SQLite-backed result store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// connection pragmas. Call MigrateUp before use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Exporters on several goroutines share this single connection.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for read-only tooling such as tailsql.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back every migration.
func (s *Store) MigrateDown() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logf: monitoring.Prefixed("[migrate] ")}
	return m, nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct {
	logf func(format string, v ...interface{})
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logf(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Run is one stored processing run.
type Run struct {
	ID         string
	Label      string
	ConfigJSON string
}

// BeginRun registers a new run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, label string, configJSON []byte) (string, error) {
	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}
	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tf_runs (run_id, label, config_json) VALUES (?, ?, ?)`,
		id, label, string(configJSON)); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Runs lists stored runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, label, config_json FROM tf_runs ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Label, &r.ConfigJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Export stores one cycle result under runID. Exporting the same event
// twice replaces the earlier record.
func (s *Store) Export(ctx context.Context, runID string, r pipeline.Result) error {
	statsJSON, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tf_runs WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrUnknownRun)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tf_events WHERE run_id = ? AND event_id = ?`, runID, r.EventID); err != nil {
		return err
	}
	st := r.Stats
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tf_events (run_id, event_id, aborted, abort_reason, hits, segments, candidates,
			tracks, rounds, overlapping, overlap_mode, residual_overlap, stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.EventID, r.Aborted, r.AbortReason, st.Hits, st.Segments, st.Candidates,
		len(r.Tracks), st.Rounds, st.Overlapping, st.OverlapMode, st.ResidualOverlap, string(statsJSON)); err != nil {
		return fmt.Errorf("insert event %d: %w", r.EventID, err)
	}

	trackStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tf_tracks (run_id, event_id, track_id, pass, quality, pt, charge, radius, n_hits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer trackStmt.Close()
	hitStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tf_track_hits (run_id, event_id, track_id, seq, measurement, layer, sector, detector, x, y, z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer hitStmt.Close()

	for _, t := range r.Tracks {
		if _, err := trackStmt.ExecContext(ctx, runID, r.EventID, t.ID, t.Pass, t.Quality, t.PT, t.Charge, t.Radius, len(t.Hits)); err != nil {
			return fmt.Errorf("insert track %d: %w", t.ID, err)
		}
		for seq, h := range t.Hits {
			if _, err := hitStmt.ExecContext(ctx, runID, r.EventID, t.ID, seq, h.Measurement, h.Layer, h.Sector,
				h.Detector.String(), h.Position.X, h.Position.Y, h.Position.Z); err != nil {
				return fmt.Errorf("insert hit %d of track %d: %w", seq, t.ID, err)
			}
		}
	}
	return tx.Commit()
}

// Tracks returns the stored tracks of one event in track ID order.
func (s *Store) Tracks(ctx context.Context, runID string, eventID int64) ([]pipeline.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, pass, quality, pt, charge, radius
		FROM tf_tracks WHERE run_id = ? AND event_id = ? ORDER BY track_id`, runID, eventID)
	if err != nil {
		return nil, err
	}
	var out []pipeline.Track
	for rows.Next() {
		t := pipeline.Track{EventID: eventID}
		if err := rows.Scan(&t.ID, &t.Pass, &t.Quality, &t.PT, &t.Charge, &t.Radius); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		hs, err := s.trackHits(ctx, runID, eventID, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Hits = hs
	}
	return out, nil
}

func (s *Store) trackHits(ctx context.Context, runID string, eventID int64, trackID int) ([]pipeline.TrackHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT measurement, layer, sector, detector, x, y, z
		FROM tf_track_hits WHERE run_id = ? AND event_id = ? AND track_id = ? ORDER BY seq`,
		runID, eventID, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pipeline.TrackHit
	for rows.Next() {
		var h pipeline.TrackHit
		var det string
		if err := rows.Scan(&h.Measurement, &h.Layer, &h.Sector, &det, &h.Position.X, &h.Position.Y, &h.Position.Z); err != nil {
			return nil, err
		}
		if h.Detector, err = hits.ParseDetector(det); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// EventRecord is the stored summary of one cycle.
type EventRecord struct {
	EventID     int64
	Aborted     bool
	AbortReason string
	Stats       pipeline.Stats
}

// EventStats returns the stored event records of a run in event order.
func (s *Store) EventStats(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, aborted, abort_reason, stats_json
		FROM tf_events WHERE run_id = ? ORDER BY event_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var statsJSON string
		if err := rows.Scan(&rec.EventID, &rec.Aborted, &rec.AbortReason, &statsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(statsJSON), &rec.Stats); err != nil {
			return nil, fmt.Errorf("decode stats of event %d: %w", rec.EventID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Exporter binds the store to one run.
func (s *Store) Exporter(runID string) pipeline.Exporter {
	return runExporter{s: s, runID: runID}
}

type runExporter struct {
	s     *Store
	runID string
}

func (e runExporter) Export(ctx context.Context, r pipeline.Result) error {
	return e.s.Export(ctx, e.runID, r)
}
