package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/asymingt/libsurvive/internal/lightproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesFreshSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	version, dirty, err := store.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestEmitAndRecentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	store.Emit(lightproc.Record{Object: "o1", SensorID: 0, Acode: 2, Timestamp: 100, Length: 3000, LH: 0})
	store.Emit(lightproc.Record{Object: "o1", SensorID: lightproc.SensorIDPreSync, Acode: 4, Timestamp: 200, Length: 3200, LH: 1})
	store.Emit(lightproc.Record{Object: "o2", SensorID: 1, Acode: 0, Timestamp: 150, Length: 3100, LH: 0})

	records, err := store.RecentRecords("o1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int32(lightproc.SensorIDPreSync), records[0].SensorID, "newest first")
	assert.Equal(t, uint32(200), records[0].Timestamp)
}

func TestRecordLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordLock("o1", "dual", 3, 12345))

	var count int
	require.NoError(t, store.QueryRow(`SELECT COUNT(*) FROM lock_events WHERE object = ?`, "o1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOpenRejectsUnversionedExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	store, err := Open(path)
	require.NoError(t, err)
	store.Close()

	// Drop the migrations table to simulate a pre-existing database with
	// tables but no version bookkeeping; Open must refuse to guess.
	reopened, err := Open(path)
	require.NoError(t, err)
	_, execErr := reopened.Exec(`DROP TABLE schema_migrations`)
	require.NoError(t, execErr)
	reopened.Close()

	_, err = Open(path)
	assert.Error(t, err)
}
