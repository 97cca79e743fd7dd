// Package dbtest provisions throwaway databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/hbomb79/Stash/internal/database"
	"github.com/stretchr/testify/require"
)

// Config returns a sqlite database config pointing at a fresh file
// inside the test's temporary directory.
func Config(t *testing.T) database.DatabaseConfig {
	return database.DatabaseConfig{
		Driver: database.DriverSqlite,
		Path:   filepath.Join(t.TempDir(), "stash.db"),
	}
}

// NewManager connects (and migrates) a new sqlite database which is
// closed automatically when the test completes.
func NewManager(t *testing.T) *database.Manager {
	return Connect(t, Config(t))
}

func Connect(t *testing.T, config database.DatabaseConfig) *database.Manager {
	db := database.New()
	require.NoError(t, db.Connect(config), "failed to connect test database")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// CountRows returns the number of rows in the table that match the id given.
func CountRows(t *testing.T, db *database.Manager, table string, id string) int {
	var count int
	err := db.GetSqlxDb().Get(&count, db.GetSqlxDb().Rebind(`SELECT COUNT(*) FROM `+table+` WHERE id=?`), id)
	require.NoError(t, err)

	return count
}
