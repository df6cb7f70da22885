package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyMigrations_CreatesSchema(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	req.NoError(NewMigrationManager(db).ApplyMigrations())

	for _, table := range []string{"users", "workspaces", "channels", "messages"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		req.NoError(err, "table %s missing", table)
	}
}

func TestApplyMigrations_IsIdempotent(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	manager := NewMigrationManager(db)
	req.NoError(manager.ApplyMigrations())
	req.NoError(manager.ApplyMigrations())

	var applied int
	req.NoError(db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	req.Equal(len(migrations), applied)
}

func TestConfigValidate(t *testing.T) {
	req := require.New(t)

	req.NoError(DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.DatabasePath = ""
	req.Error(bad.Validate())

	bad = DefaultConfig()
	bad.MaxConnections = 0
	req.Error(bad.Validate())
}
