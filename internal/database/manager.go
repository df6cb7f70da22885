package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	dbconfig "teamcollab/pkg/database"
	"teamcollab/pkg/types"
)

// Manager implements interfaces.Store over sqlite. Writes are serialized
// through a single goroutine; reads run concurrently under WAL.
type Manager struct {
	db           *sql.DB
	log          zerolog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and migrations, and starts
// the writer goroutine.
func NewManager(cfg *dbconfig.Config, log zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite pragmas: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	m := &Manager{
		db:           db,
		log:          log.With().Str("component", "store").Logger(),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.log.Warn().Err(err).Msg("write failed, retrying in 5 seconds")
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					m.log.Error().Err(err).Msg("write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.log.Debug().Msg("write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// Users

// CreateUser inserts a new account. A duplicate email surfaces the sqlite
// unique constraint error.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, email, username, password_hash, bio, profile_picture, status, last_seen, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			user.ID, user.Email, user.Username, user.PasswordHash,
			user.Bio, user.ProfilePicture, user.Status, user.LastSeen,
			user.IsActive, user.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetUserByID(ctx context.Context, userID string) (*types.User, error) {
	return m.getUser(ctx, `WHERE id = ?`, userID)
}

func (m *Manager) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return m.getUser(ctx, `WHERE email = ?`, email)
}

func (m *Manager) getUser(ctx context.Context, where string, arg any) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, bio, profile_picture, status, last_seen, is_active, created_at
		FROM users `+where, arg)

	var user types.User
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.Bio, &user.ProfilePicture, &user.Status, &user.LastSeen,
		&user.IsActive, &user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// UpdateUserStatus persists a presence transition.
func (m *Manager) UpdateUserStatus(ctx context.Context, userID, status string, lastSeen time.Time) error {
	if !types.IsValidStatus(status) {
		return types.ErrValidationFailed
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE users SET status = ?, last_seen = ? WHERE id = ?`,
			status, lastSeen, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update user status: %w", err)
		}
		return nil
	})
}

// Workspaces

func (m *Manager) CreateWorkspace(ctx context.Context, workspace *types.Workspace) error {
	if err := workspace.Validate(); err != nil {
		return err
	}
	memberIDs, err := json.Marshal(workspace.MemberIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal member IDs: %w", err)
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO workspaces (id, name, owner_id, member_ids, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			workspace.ID, workspace.Name, workspace.OwnerID,
			string(memberIDs), workspace.IsActive, workspace.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert workspace: %w", err)
		}
		return nil
	})
}

// GetUserWorkspaces returns all active workspaces where userID is a member.
func (m *Manager) GetUserWorkspaces(ctx context.Context, userID string) ([]*types.Workspace, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, owner_id, member_ids, is_active, created_at
		FROM workspaces
		WHERE is_active = 1
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var workspaces []*types.Workspace
	for rows.Next() {
		workspace, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		if lo.Contains(workspace.MemberIDs, userID) {
			workspaces = append(workspaces, workspace)
		}
	}
	return workspaces, rows.Err()
}

// VerifyWorkspaceMembership reports whether userID is in the workspace's
// member list.
func (m *Manager) VerifyWorkspaceMembership(ctx context.Context, workspaceID, userID string) (bool, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT member_ids FROM workspaces WHERE id = ? AND is_active = 1`, workspaceID)

	var memberIDsJSON string
	if err := row.Scan(&memberIDsJSON); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to query workspace: %w", err)
	}

	var memberIDs []string
	if err := json.Unmarshal([]byte(memberIDsJSON), &memberIDs); err != nil {
		return false, fmt.Errorf("failed to unmarshal member IDs: %w", err)
	}
	return lo.Contains(memberIDs, userID), nil
}

// Channels

func (m *Manager) CreateChannel(ctx context.Context, channel *types.Channel) error {
	if err := channel.Validate(); err != nil {
		return err
	}
	memberIDs, err := json.Marshal(channel.MemberIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal member IDs: %w", err)
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO channels (id, workspace_id, name, description, type, created_by, member_ids, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			channel.ID, channel.WorkspaceID, channel.Name, channel.Description,
			channel.Type, channel.CreatedBy, string(memberIDs),
			channel.IsActive, channel.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert channel: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetChannel(ctx context.Context, channelID string) (*types.Channel, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, description, type, created_by, member_ids, is_active, created_at
		FROM channels WHERE id = ?
	`, channelID)
	return scanChannelRow(row)
}

// VerifyChannelAccess returns the channel when it is active and either public
// or has userID in its member set.
func (m *Manager) VerifyChannelAccess(ctx context.Context, channelID, userID string) (*types.Channel, error) {
	channel, err := m.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !channel.IsActive {
		return nil, types.ErrNotFound
	}
	if channel.Type != types.ChannelTypePublic && !lo.Contains(channel.MemberIDs, userID) {
		return nil, types.ErrNotFound
	}
	return channel, nil
}

// Messages

func (m *Manager) CreateMessage(ctx context.Context, message *types.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	reactions, err := marshalReactions(message.Reactions)
	if err != nil {
		return err
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, channel_id, workspace_id, sender_id, content, type,
				reply_to, file_url, file_name, file_size, reactions, is_edited, edited_at, is_deleted, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			message.ID, message.ChannelID, message.WorkspaceID, message.SenderID,
			message.Content, message.Type, message.ReplyTo,
			message.FileURL, message.FileName, message.FileSize,
			reactions, message.IsEdited, message.EditedAt,
			message.IsDeleted, message.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetMessageByID(ctx context.Context, messageID string) (*types.Message, error) {
	row := m.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, messageID)
	message, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	return message, nil
}

// SaveMessage persists mutable message state (reactions, edits, deletion).
func (m *Manager) SaveMessage(ctx context.Context, message *types.Message) error {
	reactions, err := marshalReactions(message.Reactions)
	if err != nil {
		return err
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE messages
			SET content = ?, reactions = ?, is_edited = ?, edited_at = ?, is_deleted = ?
			WHERE id = ?
		`,
			message.Content, reactions, message.IsEdited,
			message.EditedAt, message.IsDeleted, message.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}
		return nil
	})
}

// GetChannelMessages returns one page of a channel's history, newest first,
// excluding deleted messages. Page numbering starts at 1.
func (m *Manager) GetChannelMessages(ctx context.Context, channelID string, page, limit int) ([]*types.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	rows, err := m.db.QueryContext(ctx, messageSelect+`
		WHERE m.channel_id = ? AND m.is_deleted = 0
		ORDER BY m.created_at DESC
		LIMIT ? OFFSET ?
	`, channelID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel messages: %w", err)
	}
	return collectMessages(rows)
}

// SearchMessages finds workspace messages containing the query,
// case-insensitively, newest first, capped at 50.
func (m *Manager) SearchMessages(ctx context.Context, workspaceID, query string) ([]*types.Message, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := m.db.QueryContext(ctx, messageSelect+`
		WHERE m.workspace_id = ? AND m.is_deleted = 0 AND m.content LIKE ? ESCAPE '\'
		ORDER BY m.created_at DESC
		LIMIT 50
	`, workspaceID, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return collectMessages(rows)
}

// HealthCheck validates connectivity and a basic read.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := m.db.QueryContext(ctx, `SELECT COUNT(*) FROM users LIMIT 1`); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer goroutine and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

// Row scanning helpers

// messageSelect joins the sender row so broadcast payloads carry display
// fields without a second query.
const messageSelect = `
	SELECT m.id, m.channel_id, m.workspace_id, m.sender_id,
		COALESCE(u.username, ''), COALESCE(u.profile_picture, ''),
		m.content, m.type, m.reply_to, m.file_url, m.file_name, m.file_size,
		m.reactions, m.is_edited, m.edited_at, m.is_deleted, m.created_at
	FROM messages m
	LEFT JOIN users u ON u.id = m.sender_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var message types.Message
	var replyTo sql.NullString
	var editedAt sql.NullTime
	var reactionsJSON string

	err := row.Scan(
		&message.ID, &message.ChannelID, &message.WorkspaceID, &message.SenderID,
		&message.SenderName, &message.SenderAvatar,
		&message.Content, &message.Type, &replyTo,
		&message.FileURL, &message.FileName, &message.FileSize,
		&reactionsJSON, &message.IsEdited, &editedAt,
		&message.IsDeleted, &message.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	if replyTo.Valid {
		message.ReplyTo = &replyTo.String
	}
	if editedAt.Valid {
		message.EditedAt = &editedAt.Time
	}
	if err := json.Unmarshal([]byte(reactionsJSON), &message.Reactions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
	}
	return &message, nil
}

func collectMessages(rows *sql.Rows) ([]*types.Message, error) {
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func scanWorkspace(rows *sql.Rows) (*types.Workspace, error) {
	var workspace types.Workspace
	var memberIDsJSON string

	err := rows.Scan(
		&workspace.ID, &workspace.Name, &workspace.OwnerID,
		&memberIDsJSON, &workspace.IsActive, &workspace.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	if err := json.Unmarshal([]byte(memberIDsJSON), &workspace.MemberIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member IDs: %w", err)
	}
	return &workspace, nil
}

func scanChannelRow(row rowScanner) (*types.Channel, error) {
	var channel types.Channel
	var memberIDsJSON string

	err := row.Scan(
		&channel.ID, &channel.WorkspaceID, &channel.Name, &channel.Description,
		&channel.Type, &channel.CreatedBy, &memberIDsJSON,
		&channel.IsActive, &channel.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan channel: %w", err)
	}
	if err := json.Unmarshal([]byte(memberIDsJSON), &channel.MemberIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member IDs: %w", err)
	}
	return &channel, nil
}

func marshalReactions(reactions []types.Reaction) (string, error) {
	if reactions == nil {
		reactions = []types.Reaction{}
	}
	data, err := json.Marshal(reactions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal reactions: %w", err)
	}
	return string(data), nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
