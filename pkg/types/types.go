package types

import (
	"time"
)

// User presence states. The database row is the source of truth; the
// in-memory registry only triggers transitions.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
	StatusBusy    = "busy"
)

// Message content types.
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)

// Channel visibility.
const (
	ChannelTypePublic  = "public"
	ChannelTypePrivate = "private"
)

// User is an account in the collaboration system.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profilePicture"`
	Status         string    `json:"status"`
	LastSeen       time.Time `json:"lastSeen"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Workspace groups channels and members. Membership is a flat user ID list;
// the owner is always a member.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	MemberIDs []string  `json:"memberIds"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Channel is a conversation inside a workspace. Public channels are readable
// by any workspace member; private channels only by the member list.
type Channel struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	CreatedBy   string    `json:"createdBy"`
	MemberIDs   []string  `json:"memberIds"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Reaction is one emoji entry on a message. Emoji values are unique within a
// message's reaction list.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// Message is a persisted chat message, including the sender display fields
// resolved at creation time so broadcasts need no extra lookup.
type Message struct {
	ID           string     `json:"id"`
	ChannelID    string     `json:"channelId"`
	WorkspaceID  string     `json:"workspaceId"`
	SenderID     string     `json:"senderId"`
	SenderName   string     `json:"senderName"`
	SenderAvatar string     `json:"senderAvatar"`
	Content      string     `json:"content"`
	Type         string     `json:"type"`
	ReplyTo      *string    `json:"replyTo,omitempty"`
	FileURL      string     `json:"fileUrl,omitempty"`
	FileName     string     `json:"fileName,omitempty"`
	FileSize     int64      `json:"fileSize,omitempty"`
	Reactions    []Reaction `json:"reactions"`
	IsEdited     bool       `json:"isEdited"`
	EditedAt     *time.Time `json:"editedAt,omitempty"`
	IsDeleted    bool       `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ToggleReaction flips userID's presence on the emoji's reaction entry:
// present -> removed (entry dropped when its user list empties),
// absent -> appended, no entry -> new entry created. Applying the same
// toggle twice restores the prior reaction list.
func (m *Message) ToggleReaction(emoji, userID string) {
	for i := range m.Reactions {
		if m.Reactions[i].Emoji != emoji {
			continue
		}
		for j, u := range m.Reactions[i].Users {
			if u == userID {
				users := append(m.Reactions[i].Users[:j], m.Reactions[i].Users[j+1:]...)
				if len(users) == 0 {
					m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
				} else {
					m.Reactions[i].Users = users
				}
				return
			}
		}
		m.Reactions[i].Users = append(m.Reactions[i].Users, userID)
		return
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, Users: []string{userID}})
}

// IsValidStatus reports whether s is a known presence state.
func IsValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway, StatusBusy:
		return true
	default:
		return false
	}
}

// IsValidMessageType reports whether t is a known message content type.
func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeImage, MessageTypeSystem:
		return true
	default:
		return false
	}
}

// IsValidChannelType reports whether t is a known channel visibility.
func IsValidChannelType(t string) bool {
	return t == ChannelTypePublic || t == ChannelTypePrivate
}
