// Package sqlite persists decoded lightproc records and lock-acquisition
// events to a local SQLite database, so a capture session can be replayed
// or queried after the fact without re-running the disambiguator.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/asymingt/libsurvive/internal/lightproc"
	"github.com/asymingt/libsurvive/internal/monitoring"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode switches migrations to read from the on-disk migrations/
// directory instead of the embedded copy, for hot-reloading during local
// development.
var DevMode = false

func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/storage/sqlite/migrations"), nil
	}
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sub-filesystem for embedded migrations: %w", err)
	}
	return subFS, nil
}

// Store wraps a *sql.DB and implements lightproc.Sink, so it can be wired
// directly in place of any other sink.
type Store struct {
	*sql.DB
}

var _ lightproc.Sink = (*Store)(nil)

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return nil
}

// Open opens (creating if necessary) the SQLite database at path,
// applies pragmas, and baselines a fresh database at the latest
// migration version using the embedded schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(db); err != nil {
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	store := &Store{db}

	var hasMigrationsTable bool
	err = db.QueryRow(`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name='schema_migrations'`).Scan(&hasMigrationsTable)
	if err != nil {
		return nil, fmt.Errorf("check for schema_migrations table: %w", err)
	}
	if hasMigrationsTable {
		return store, nil
	}

	var tableCount int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`).Scan(&tableCount)
	if err != nil {
		return nil, fmt.Errorf("count existing tables: %w", err)
	}
	if tableCount > 0 {
		return nil, fmt.Errorf("database %q has tables but no schema_migrations: refusing to guess its version", path)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("apply schema.sql: %w", err)
	}
	monitoring.Logf("storage: initialised fresh database at %s", path)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return nil, err
	}
	latest, err := latestMigrationVersion(migrationsFS)
	if err != nil {
		return nil, fmt.Errorf("determine latest migration version: %w", err)
	}
	if err := store.baselineAtVersion(latest); err != nil {
		return nil, fmt.Errorf("baseline fresh database at version %d: %w", latest, err)
	}

	return store, nil
}

// Emit implements lightproc.Sink by appending the record to
// lightproc_records. Errors are logged, not returned, since the tracker
// calls Emit synchronously and must not block on storage trouble.
func (s *Store) Emit(r lightproc.Record) {
	_, err := s.Exec(
		`INSERT INTO lightproc_records (object, sensor_id, acode, offset_in_phase, timestamp, length, lh, recorded_unix_nanos)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Object, r.SensorID, r.Acode, r.OffsetInPhase, r.Timestamp, r.Length, r.LH, time.Now().UnixNano(),
	)
	if err != nil {
		monitoring.Logf("storage: failed to persist lightproc record for %s: %v", r.Object, err)
	}
}

// RecordLock persists a lock-acquisition event for later inspection.
func (s *Store) RecordLock(object, mode string, phase int, modOffset uint32) error {
	_, err := s.Exec(
		`INSERT INTO lock_events (object, mode, phase, mod_offset, occurred_unix_nanos) VALUES (?, ?, ?, ?, ?)`,
		object, mode, phase, modOffset, time.Now().UnixNano(),
	)
	return err
}

// RecentRecords returns the most recent lightproc records for an object,
// newest first.
func (s *Store) RecentRecords(object string, limit int) ([]lightproc.Record, error) {
	rows, err := s.Query(
		`SELECT object, sensor_id, acode, offset_in_phase, timestamp, length, lh
		 FROM lightproc_records WHERE object = ? ORDER BY id DESC LIMIT ?`,
		object, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []lightproc.Record
	for rows.Next() {
		var r lightproc.Record
		if err := rows.Scan(&r.Object, &r.SensorID, &r.Acode, &r.OffsetInPhase, &r.Timestamp, &r.Length, &r.LH); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// OffsetStats summarises the spread of OffsetInPhase across an object's
// recent sweep records, used to flag a tracker whose decoded geometry is
// noisier than usual.
type OffsetStats struct {
	Count     int
	P50Offset float64
	P95Offset float64
	MaxOffset float64
}

// RecentOffsetStats computes percentile statistics over the most recent
// sweep records (SensorID >= 0) for an object.
func (s *Store) RecentOffsetStats(object string, limit int) (*OffsetStats, error) {
	rows, err := s.Query(
		`SELECT offset_in_phase FROM lightproc_records
		 WHERE object = ? AND sensor_id >= 0 ORDER BY id DESC LIMIT ?`,
		object, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offsets []float64
	for rows.Next() {
		var o int32
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		offsets = append(offsets, math.Abs(float64(o)))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return &OffsetStats{}, nil
	}

	sort.Float64s(offsets)
	return &OffsetStats{
		Count:     len(offsets),
		P50Offset: stat.Quantile(0.5, stat.Empirical, offsets, nil),
		P95Offset: stat.Quantile(0.95, stat.Empirical, offsets, nil),
		MaxOffset: offsets[len(offsets)-1],
	}, nil
}

// AttachAdminRoutes mounts a tailsql live-query console for this database
// under /debug/, the same debugging surface the rest of the stack exposes
// over its own sqlite stores.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("storage: failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://lighthouse.db", s.DB, &tailsql.DBOptions{
		Label: "Lighthouse disambiguator DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
}
