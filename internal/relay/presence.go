package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"teamcollab/internal/websocket"
	"teamcollab/pkg/interfaces"
	"teamcollab/pkg/types"
)

// Presence tracks online/offline transitions. A user is online while at
// least one of their connections is registered; only the first connection
// fires the online transition and only the last disconnect fires the offline
// one, so multi-tab sessions stay quiet in between.
type Presence struct {
	registry *websocket.Registry
	store    interfaces.Store
	log      zerolog.Logger
}

// NewPresence creates the presence broadcaster.
func NewPresence(registry *websocket.Registry, store interfaces.Store, log zerolog.Logger) *Presence {
	return &Presence{
		registry: registry,
		store:    store,
		log:      log.With().Str("component", "presence").Logger(),
	}
}

// Connected handles a newly registered connection. When it is the user's
// first, the persisted status flips to online and every other connection in
// the system is notified. A persistence failure is logged and the broadcast
// still goes out; the next transition overwrites the stale row.
func (p *Presence) Connected(ctx context.Context, conn *websocket.Connection, first bool) {
	if !first {
		return
	}
	p.transition(ctx, conn.UserID(), conn.ID(), types.StatusOnline)
}

// Disconnected handles an unregistered connection. The offline transition
// fires only when no other connection for the user remains.
func (p *Presence) Disconnected(ctx context.Context, conn *websocket.Connection, userID string, last bool) {
	if !last {
		return
	}
	p.transition(ctx, userID, conn.ID(), types.StatusOffline)
}

func (p *Presence) transition(ctx context.Context, userID, exceptConnID, status string) {
	now := time.Now()
	if err := p.store.UpdateUserStatus(ctx, userID, status, now); err != nil {
		p.log.Warn().Err(err).
			Str("user_id", userID).
			Str("status", status).
			Msg("presence persistence failed")
	}

	event := types.UserStatusChangedEvent{
		UserID:   userID,
		Status:   status,
		LastSeen: now,
	}
	for _, conn := range p.registry.Connections() {
		if conn.ID() == exceptConnID {
			continue
		}
		if err := conn.WriteEvent(types.EventUserStatusChanged, event); err != nil {
			p.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("presence delivery failed")
		}
	}

	p.log.Info().Str("user_id", userID).Str("status", status).Msg("presence transition")
}
