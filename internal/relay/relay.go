package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"teamcollab/internal/websocket"
	"teamcollab/pkg/interfaces"
	"teamcollab/pkg/types"
)

// Relay accepts inbound client actions, validates them against the
// persistence service, executes the mutation, and fans the resulting event
// out to exactly the rooms that should see it. It implements
// websocket.EventSink.
//
// Errors after the connection is established are recovered here: converted
// to an error event for the offending connection only, never broadcast, and
// never fatal to the connection.
type Relay struct {
	registry *websocket.Registry
	store    interfaces.Store
	presence *Presence
	limiter  *RateLimiter
	validate *validator.Validate
	log      zerolog.Logger
}

// NewRelay creates the event relay.
func NewRelay(registry *websocket.Registry, store interfaces.Store, presence *Presence, messageRateLimit int, log zerolog.Logger) *Relay {
	return &Relay{
		registry: registry,
		store:    store,
		presence: presence,
		limiter:  NewRateLimiter(messageRateLimit),
		validate: validator.New(),
		log:      log.With().Str("component", "relay").Logger(),
	}
}

// RunCleanup drops expired rate limiter windows on the given interval until
// the context is cancelled. Run it on its own goroutine.
func (r *Relay) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.limiter.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// OnConnect announces presence and joins the user's workspace rooms.
func (r *Relay) OnConnect(ctx context.Context, conn *websocket.Connection, first bool) {
	r.presence.Connected(ctx, conn, first)
	r.joinWorkspaceRooms(ctx, conn)
}

// OnDisconnect announces the offline transition when the user's last
// connection is gone.
func (r *Relay) OnDisconnect(ctx context.Context, conn *websocket.Connection, userID string, last bool) {
	r.presence.Disconnected(ctx, conn, userID, last)
}

// OnEvent dispatches one client action. Unknown event names are dropped.
func (r *Relay) OnEvent(ctx context.Context, conn *websocket.Connection, event types.ClientEvent) {
	switch event.Event {
	case types.EventSendMessage:
		r.handleSendMessage(ctx, conn, event.Data)
	case types.EventJoinChannel:
		r.handleJoinChannel(ctx, conn, event.Data)
	case types.EventLeaveChannel:
		r.handleLeaveChannel(conn, event.Data)
	case types.EventTyping:
		r.handleTyping(conn, event.Data)
	case types.EventAddReaction:
		r.handleAddReaction(ctx, conn, event.Data)
	default:
		r.log.Debug().Str("event", event.Event).Msg("unknown client event dropped")
	}
}

// joinWorkspaceRooms queries the user's workspace memberships and joins the
// matching rooms. Membership is derived once, at connect time; mid-session
// changes do not re-join or leave. A persistence failure degrades to a
// connected session with zero rooms rather than closing the connection.
func (r *Relay) joinWorkspaceRooms(ctx context.Context, conn *websocket.Connection) {
	workspaces, err := r.store.GetUserWorkspaces(ctx, conn.UserID())
	if err != nil {
		r.log.Warn().Err(err).
			Str("user_id", conn.UserID()).
			Msg("workspace lookup failed, continuing with no workspace rooms")
		return
	}

	rooms := lo.Map(workspaces, func(w *types.Workspace, _ int) types.RoomKey {
		return types.WorkspaceRoom(w.ID)
	})
	for _, room := range rooms {
		r.registry.JoinRoom(conn.ID(), room)
	}
}

func (r *Relay) handleSendMessage(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	userID, ok := r.registry.Resolve(conn.ID())
	if !ok {
		return
	}

	var payload types.SendMessagePayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, err)
		return
	}
	if payload.Type == "" {
		payload.Type = types.MessageTypeText
	}

	if !r.limiter.Allow(userID) {
		r.sendError(conn, ErrRateLimited)
		return
	}

	channel, err := r.store.VerifyChannelAccess(ctx, payload.ChannelID, userID)
	if err != nil {
		r.sendError(conn, err)
		return
	}
	member, err := r.store.VerifyWorkspaceMembership(ctx, channel.WorkspaceID, userID)
	if err != nil {
		r.sendError(conn, err)
		return
	}
	if !member {
		r.sendError(conn, types.ErrAccessDenied)
		return
	}

	sender, err := r.store.GetUserByID(ctx, userID)
	if err != nil {
		r.sendError(conn, err)
		return
	}

	message := &types.Message{
		ID:           uuid.New().String(),
		ChannelID:    channel.ID,
		WorkspaceID:  channel.WorkspaceID,
		SenderID:     userID,
		SenderName:   sender.Username,
		SenderAvatar: sender.ProfilePicture,
		Content:      payload.Content,
		Type:         payload.Type,
		ReplyTo:      payload.ReplyTo,
		FileURL:      payload.FileURL,
		FileName:     payload.FileName,
		FileSize:     payload.FileSize,
		Reactions:    []types.Reaction{},
		CreatedAt:    time.Now(),
	}

	if err := r.store.CreateMessage(ctx, message); err != nil {
		r.sendError(conn, err)
		return
	}

	// All channel members across the workspace receive the message.
	r.broadcastRoom(types.WorkspaceRoom(channel.WorkspaceID), types.EventNewMessage, message)
}

func (r *Relay) handleAddReaction(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	userID, ok := r.registry.Resolve(conn.ID())
	if !ok {
		return
	}

	var payload types.AddReactionPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, err)
		return
	}

	message, err := r.store.GetMessageByID(ctx, payload.MessageID)
	if err != nil {
		r.sendError(conn, err)
		return
	}

	message.ToggleReaction(payload.Emoji, userID)

	if err := r.store.SaveMessage(ctx, message); err != nil {
		r.sendError(conn, err)
		return
	}

	r.broadcastRoom(types.WorkspaceRoom(message.WorkspaceID), types.EventReactionAdded, types.ReactionAddedEvent{
		MessageID: message.ID,
		Reactions: message.Reactions,
	})
}

func (r *Relay) handleTyping(conn *websocket.Connection, data json.RawMessage) {
	userID, ok := r.registry.Resolve(conn.ID())
	if !ok {
		return
	}

	var payload types.TypingPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, err)
		return
	}

	// No persistence; relayed to the channel room, never echoed to the
	// sender.
	r.broadcastRoomExcept(types.ChannelRoom(payload.ChannelID), conn.ID(), types.EventUserTyping, types.UserTypingEvent{
		UserID:    userID,
		ChannelID: payload.ChannelID,
		IsTyping:  payload.IsTyping,
	})
}

func (r *Relay) handleJoinChannel(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	userID, ok := r.registry.Resolve(conn.ID())
	if !ok {
		return
	}

	var payload types.JoinChannelPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, err)
		return
	}

	channel, err := r.store.VerifyChannelAccess(ctx, payload.ChannelID, userID)
	if err != nil {
		r.sendError(conn, err)
		return
	}
	member, err := r.store.VerifyWorkspaceMembership(ctx, channel.WorkspaceID, userID)
	if err != nil {
		r.sendError(conn, err)
		return
	}
	if !member {
		r.sendError(conn, types.ErrAccessDenied)
		return
	}

	r.registry.JoinRoom(conn.ID(), types.ChannelRoom(channel.ID))
	_ = conn.WriteEvent(types.EventJoinedChannel, types.ChannelAck{ChannelID: channel.ID})
}

// handleLeaveChannel is an unconditional leave: no authorization check, ack
// to the requester only.
func (r *Relay) handleLeaveChannel(conn *websocket.Connection, data json.RawMessage) {
	var payload types.LeaveChannelPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, err)
		return
	}

	r.registry.LeaveRoom(conn.ID(), types.ChannelRoom(payload.ChannelID))
	_ = conn.WriteEvent(types.EventLeftChannel, types.ChannelAck{ChannelID: payload.ChannelID})
}

func (r *Relay) decode(data json.RawMessage, payload any) error {
	if err := json.Unmarshal(data, payload); err != nil {
		return types.ErrValidationFailed
	}
	if err := r.validate.Struct(payload); err != nil {
		return types.ErrValidationFailed
	}
	return nil
}

// sendError reports a failure to the offending connection only. Persistence
// failures are indistinguishable from validation failures at this boundary;
// the connection always stays alive.
func (r *Relay) sendError(conn *websocket.Connection, err error) {
	if writeErr := conn.WriteEvent(types.EventError, types.ErrorEvent{Message: errorMessage(err)}); writeErr != nil {
		r.log.Debug().Err(writeErr).Str("conn_id", conn.ID()).Msg("error event delivery failed")
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return "channel or message not found, or access denied"
	case errors.Is(err, types.ErrAccessDenied):
		return "you are not a member of this workspace"
	case errors.Is(err, types.ErrValidationFailed):
		return "invalid payload"
	case errors.Is(err, ErrRateLimited):
		return "message rate limit exceeded"
	default:
		return "request could not be processed"
	}
}

// broadcastRoom delivers one event to every connection currently joined to
// the room. Order across connections is unspecified; each gets exactly one
// delivery attempt.
func (r *Relay) broadcastRoom(room types.RoomKey, event string, data any) {
	for _, conn := range r.registry.RoomConnections(room) {
		if err := conn.WriteEvent(event, data); err != nil {
			r.log.Debug().Err(err).
				Stringer("room", room).
				Str("conn_id", conn.ID()).
				Msg("room delivery failed")
		}
	}
}

func (r *Relay) broadcastRoomExcept(room types.RoomKey, exceptConnID, event string, data any) {
	for _, conn := range r.registry.RoomConnections(room) {
		if conn.ID() == exceptConnID {
			continue
		}
		if err := conn.WriteEvent(event, data); err != nil {
			r.log.Debug().Err(err).
				Stringer("room", room).
				Str("conn_id", conn.ID()).
				Msg("room delivery failed")
		}
	}
}
