package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"teamcollab/pkg/interfaces"
	"teamcollab/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Mirrors the permissive CORS policy of the HTTP layer.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventSink receives connection lifecycle and client action events. The relay
// implements it; the indirection keeps transport handling free of routing
// logic.
type EventSink interface {
	// OnConnect runs after registration; first reports whether this is the
	// user's first live connection.
	OnConnect(ctx context.Context, conn *Connection, first bool)
	// OnDisconnect runs after removal from the registry; last reports
	// whether the user has no remaining connections.
	OnDisconnect(ctx context.Context, conn *Connection, userID string, last bool)
	// OnEvent handles one decoded client action.
	OnEvent(ctx context.Context, conn *Connection, event types.ClientEvent)
}

// Options carries transport tuning knobs.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// Handler authenticates websocket handshakes and pumps client frames into
// the event sink.
type Handler struct {
	registry *Registry
	verifier interfaces.TokenVerifier
	sink     EventSink
	opts     Options
	log      zerolog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(registry *Registry, verifier interfaces.TokenVerifier, sink EventSink, opts Options, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		verifier: verifier,
		sink:     sink,
		opts:     opts,
		log:      log.With().Str("component", "gateway").Logger(),
	}
}

// HandleWebSocket upgrades a connection after verifying its bearer
// credential. Absent or invalid credentials are fatal: the request is
// rejected before any registry entry or room join exists, and no event is
// emitted.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(uuid.New().String(), identity.UserID, wsConn, h.opts.BufferSize, h.opts.WriteTimeout)

	first, err := h.registry.Register(conn)
	if err != nil {
		h.log.Warn().Err(err).Msg("connection registration failed")
		_ = conn.Close()
		return
	}

	h.log.Info().
		Str("user_id", identity.UserID).
		Str("conn_id", conn.ID()).
		Bool("first", first).
		Msg("user connected")

	// The request context dies when this handler returns; the sink outlives
	// it, so it gets the same background context as the other callbacks.
	h.sink.OnConnect(context.Background(), conn, first)

	go h.handleConnection(conn)
}

// bearerToken extracts the credential from the handshake: the token query
// parameter, or an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// handleConnection runs the read pump with heartbeat monitoring, dispatching
// each frame to the sink. Cleanup on exit removes the connection from the
// registry and, when it was the user's last, triggers the offline
// transition.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		userID, last, ok := h.registry.Unregister(conn.ID())
		_ = conn.Close()
		if ok {
			h.log.Info().
				Str("user_id", userID).
				Str("conn_id", conn.ID()).
				Bool("last", last).
				Msg("user disconnected")
			h.sink.OnDisconnect(context.Background(), conn, userID, last)
		}
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event types.ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			_ = conn.WriteEvent(types.EventError, types.ErrorEvent{Message: "malformed event frame"})
			continue
		}

		h.sink.OnEvent(context.Background(), conn, event)
	}
}
