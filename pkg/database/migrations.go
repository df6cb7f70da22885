package database

import (
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are applied in order; member and reaction lists are stored as
// JSON text columns, deserialized by the manager.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "users table",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id              TEXT PRIMARY KEY,
				email           TEXT NOT NULL UNIQUE,
				username        TEXT NOT NULL,
				password_hash   TEXT NOT NULL DEFAULT '',
				bio             TEXT NOT NULL DEFAULT '',
				profile_picture TEXT NOT NULL DEFAULT '',
				status          TEXT NOT NULL DEFAULT 'offline'
					CHECK (status IN ('online', 'offline', 'away', 'busy')),
				last_seen       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				is_active       INTEGER NOT NULL DEFAULT 1,
				created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		`,
	},
	{
		Version:     "002",
		Description: "workspaces and channels",
		SQL: `
			CREATE TABLE IF NOT EXISTS workspaces (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				owner_id   TEXT NOT NULL REFERENCES users(id),
				member_ids TEXT NOT NULL DEFAULT '[]',
				is_active  INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_workspaces_owner ON workspaces(owner_id);

			CREATE TABLE IF NOT EXISTS channels (
				id           TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL REFERENCES workspaces(id),
				name         TEXT NOT NULL,
				description  TEXT NOT NULL DEFAULT '',
				type         TEXT NOT NULL DEFAULT 'public'
					CHECK (type IN ('public', 'private')),
				created_by   TEXT NOT NULL REFERENCES users(id),
				member_ids   TEXT NOT NULL DEFAULT '[]',
				is_active    INTEGER NOT NULL DEFAULT 1,
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_channels_workspace ON channels(workspace_id);
		`,
	},
	{
		Version:     "003",
		Description: "messages table",
		SQL: `
			CREATE TABLE IF NOT EXISTS messages (
				id           TEXT PRIMARY KEY,
				channel_id   TEXT NOT NULL REFERENCES channels(id),
				workspace_id TEXT NOT NULL REFERENCES workspaces(id),
				sender_id    TEXT NOT NULL REFERENCES users(id),
				content      TEXT NOT NULL,
				type         TEXT NOT NULL DEFAULT 'text'
					CHECK (type IN ('text', 'file', 'image', 'system')),
				reply_to     TEXT,
				file_url     TEXT NOT NULL DEFAULT '',
				file_name    TEXT NOT NULL DEFAULT '',
				file_size    INTEGER NOT NULL DEFAULT 0,
				reactions    TEXT NOT NULL DEFAULT '[]',
				is_edited    INTEGER NOT NULL DEFAULT 0,
				edited_at    DATETIME,
				is_deleted   INTEGER NOT NULL DEFAULT 0,
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_messages_channel_time ON messages(channel_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_messages_workspace ON messages(workspace_id);
		`,
	},
}

// MigrationManager applies pending migrations in version order, tracking
// state in schema_migrations.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies every migration not yet recorded. Each migration
// runs in its own transaction together with its version bookkeeping.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w",
				migration.Version, migration.Description, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version) VALUES (?)`, migration.Version,
	); err != nil {
		return err
	}
	return tx.Commit()
}
