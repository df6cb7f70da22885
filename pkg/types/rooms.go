package types

import "fmt"

// RoomKind tags the namespace a room belongs to. A tagged key rather than
// plain string concatenation prevents collisions between workspace and
// channel identifiers.
type RoomKind string

const (
	RoomKindWorkspace RoomKind = "workspace"
	RoomKindChannel   RoomKind = "channel"
)

// RoomKey names a broadcast group a connection can join or leave. Rooms are
// derived on demand; they are not stored entities.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

// WorkspaceRoom returns the room key for a workspace's broadcast group.
func WorkspaceRoom(workspaceID string) RoomKey {
	return RoomKey{Kind: RoomKindWorkspace, ID: workspaceID}
}

// ChannelRoom returns the room key for a channel's broadcast group.
func ChannelRoom(channelID string) RoomKey {
	return RoomKey{Kind: RoomKindChannel, ID: channelID}
}

func (k RoomKey) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.ID)
}
