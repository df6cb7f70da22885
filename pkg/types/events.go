package types

import (
	"encoding/json"
	"time"
)

// Client-emitted event names.
const (
	EventSendMessage  = "sendMessage"
	EventJoinChannel  = "joinChannel"
	EventLeaveChannel = "leaveChannel"
	EventTyping       = "typing"
	EventAddReaction  = "addReaction"
)

// Server-emitted event names.
const (
	EventNewMessage        = "newMessage"
	EventJoinedChannel     = "joinedChannel"
	EventLeftChannel       = "leftChannel"
	EventUserTyping        = "userTyping"
	EventReactionAdded     = "reactionAdded"
	EventUserStatusChanged = "userStatusChanged"
	EventError             = "error"
)

// ClientEvent is the inbound frame envelope. Payload decoding is deferred to
// the handler for the named event.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the outbound frame envelope.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// SendMessagePayload creates a message in a channel.
type SendMessagePayload struct {
	Content   string  `json:"content" validate:"required"`
	ChannelID string  `json:"channelId" validate:"required"`
	Type      string  `json:"type,omitempty"`
	ReplyTo   *string `json:"replyTo,omitempty"`
	FileURL   string  `json:"fileUrl,omitempty"`
	FileName  string  `json:"fileName,omitempty"`
	FileSize  int64   `json:"fileSize,omitempty"`
}

// JoinChannelPayload requests membership in a channel's room.
type JoinChannelPayload struct {
	ChannelID string `json:"channelId" validate:"required"`
}

// LeaveChannelPayload leaves a channel's room.
type LeaveChannelPayload struct {
	ChannelID string `json:"channelId" validate:"required"`
}

// TypingPayload announces a typing indicator change.
type TypingPayload struct {
	ChannelID string `json:"channelId" validate:"required"`
	IsTyping  bool   `json:"isTyping"`
}

// AddReactionPayload toggles an emoji reaction on a message.
type AddReactionPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

// ChannelAck acknowledges a join or leave to the requesting connection only.
type ChannelAck struct {
	ChannelID string `json:"channelId"`
}

// UserTypingEvent fans out to the channel room, excluding the sender.
type UserTypingEvent struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
	IsTyping  bool   `json:"isTyping"`
}

// ReactionAddedEvent carries the full post-toggle reaction list.
type ReactionAddedEvent struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

// UserStatusChangedEvent is broadcast globally on presence transitions.
type UserStatusChangedEvent struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// ErrorEvent is only ever delivered to the offending connection.
type ErrorEvent struct {
	Message string `json:"message"`
}
