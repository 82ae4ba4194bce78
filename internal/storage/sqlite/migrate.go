package sqlite

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// newMigrate builds a migrate.Migrate bound to this store's connection.
// The returned instance must not be Close()'d: sqlite.WithInstance wraps
// our own *sql.DB, and Close on the migrate driver would close it too.
func (s *Store) newMigrate(migrationsFS fs.FS) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("iofs source driver: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite migrate driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
}

// MigrateUp applies every pending migration.
func (s *Store) MigrateUp() error {
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return err
	}
	m, err := s.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Version returns the current migration version and dirty flag. Returns
// 0, false, nil if no migrations have ever been applied.
func (s *Store) Version() (version uint, dirty bool, err error) {
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return 0, false, err
	}
	m, err := s.newMigrate(migrationsFS)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) baselineAtVersion(version uint) error {
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return err
	}
	m, err := s.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	return m.Force(int(version))
}

// latestMigrationVersion scans the migrations filesystem for the highest
// numbered *.up.sql file, since golang-migrate itself only exposes this
// through a running migrate.Migrate instance.
func latestMigrationVersion(migrationsFS fs.FS) (uint, error) {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return 0, err
	}
	var versions []uint
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, uint(v))
	}
	if len(versions) == 0 {
		return 0, fmt.Errorf("no migrations found")
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions[len(versions)-1], nil
}
