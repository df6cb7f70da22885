package interfaces

import (
	"context"
	"time"

	"teamcollab/pkg/types"
)

// Store is the persistence collaborator. The relay treats it as an external
// service: every call is an await point and failures are recovered at the
// action boundary, not propagated to the connection.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *types.User) error
	GetUserByID(ctx context.Context, userID string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	UpdateUserStatus(ctx context.Context, userID, status string, lastSeen time.Time) error

	// Workspaces
	CreateWorkspace(ctx context.Context, workspace *types.Workspace) error
	GetUserWorkspaces(ctx context.Context, userID string) ([]*types.Workspace, error)
	VerifyWorkspaceMembership(ctx context.Context, workspaceID, userID string) (bool, error)

	// Channels
	CreateChannel(ctx context.Context, channel *types.Channel) error
	GetChannel(ctx context.Context, channelID string) (*types.Channel, error)
	// VerifyChannelAccess returns the channel when it is active and either
	// public or has userID in its member set; types.ErrNotFound otherwise.
	VerifyChannelAccess(ctx context.Context, channelID, userID string) (*types.Channel, error)

	// Messages
	CreateMessage(ctx context.Context, message *types.Message) error
	GetMessageByID(ctx context.Context, messageID string) (*types.Message, error)
	SaveMessage(ctx context.Context, message *types.Message) error
	GetChannelMessages(ctx context.Context, channelID string, page, limit int) ([]*types.Message, error)
	SearchMessages(ctx context.Context, workspaceID, query string) ([]*types.Message, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
