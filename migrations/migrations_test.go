package migrations

import (
	"database/sql"
	"io/fs"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSource(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite3"} {
		t.Run(driver, func(t *testing.T) {
			files, err := Source(driver)
			require.NoError(t, err)

			ups, err := fs.Glob(files, "*.up.sql")
			require.NoError(t, err)
			downs, err := fs.Glob(files, "*.down.sql")
			require.NoError(t, err)
			assert.Len(t, ups, 3)
			assert.Len(t, downs, 3)
		})
	}

	_, err := Source("oracle")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestApply_SQLite(t *testing.T) {
	db := openSQLite(t)

	require.NoError(t, Apply(db, "sqlite3"))

	for _, table := range []string{"pubsub_topic", "pubsub_subscription", "pubsub_message"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	version, dirty, err := Version(db, "sqlite3")
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	// A second run is a no-op.
	require.NoError(t, Apply(db, "sqlite3"))
	require.NoError(t, db.Ping(), "Apply must not close the handle")
}

func TestVersion_Unmigrated(t *testing.T) {
	db := openSQLite(t)

	version, dirty, err := Version(db, "sqlite3")
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}
