package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"teamcollab/internal/websocket"
	"teamcollab/pkg/types"
)

// fakeStore is an in-memory Store for relay tests.
type fakeStore struct {
	mu             sync.Mutex
	users          map[string]*types.User
	workspaces     map[string]*types.Workspace
	channels       map[string]*types.Channel
	messages       map[string]*types.Message
	statusUpdates  []string
	failWorkspaces bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]*types.User),
		workspaces: make(map[string]*types.Workspace),
		channels:   make(map[string]*types.Channel),
		messages:   make(map[string]*types.Message),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, user *types.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, types.ErrNotFound
}

func (f *fakeStore) UpdateUserStatus(_ context.Context, userID, status string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, userID+":"+status)
	return nil
}

func (f *fakeStore) CreateWorkspace(_ context.Context, workspace *types.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workspaces[workspace.ID] = workspace
	return nil
}

func (f *fakeStore) GetUserWorkspaces(_ context.Context, userID string) ([]*types.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWorkspaces {
		return nil, errors.New("store unavailable")
	}
	var out []*types.Workspace
	for _, ws := range f.workspaces {
		if lo.Contains(ws.MemberIDs, userID) {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (f *fakeStore) VerifyWorkspaceMembership(_ context.Context, workspaceID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[workspaceID]
	if !ok {
		return false, nil
	}
	return lo.Contains(ws.MemberIDs, userID), nil
}

func (f *fakeStore) CreateChannel(_ context.Context, channel *types.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channel.ID] = channel
	return nil
}

func (f *fakeStore) GetChannel(_ context.Context, channelID string) (*types.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	channel, ok := f.channels[channelID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return channel, nil
}

func (f *fakeStore) VerifyChannelAccess(_ context.Context, channelID, userID string) (*types.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	channel, ok := f.channels[channelID]
	if !ok || !channel.IsActive {
		return nil, types.ErrNotFound
	}
	if channel.Type != types.ChannelTypePublic && !lo.Contains(channel.MemberIDs, userID) {
		return nil, types.ErrNotFound
	}
	return channel, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, message *types.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[message.ID] = message
	return nil
}

func (f *fakeStore) GetMessageByID(_ context.Context, messageID string) (*types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	message, ok := f.messages[messageID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return message, nil
}

func (f *fakeStore) SaveMessage(_ context.Context, message *types.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[message.ID] = message
	return nil
}

func (f *fakeStore) GetChannelMessages(_ context.Context, _ string, _, _ int) ([]*types.Message, error) {
	return nil, nil
}

func (f *fakeStore) SearchMessages(_ context.Context, _, _ string) ([]*types.Message, error) {
	return nil, nil
}

func (f *fakeStore) HealthCheck(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                        { return nil }

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// testHarness bundles a relay with its registry and store.
type testHarness struct {
	relay    *Relay
	registry *websocket.Registry
	store    *fakeStore
}

func newHarness(t *testing.T, store *fakeStore) *testHarness {
	t.Helper()
	registry := websocket.NewRegistry()
	presence := NewPresence(registry, store, zerolog.Nop())
	return &testHarness{
		relay:    NewRelay(registry, store, presence, 100, zerolog.Nop()),
		registry: registry,
		store:    store,
	}
}

var testUpgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one connected test user: the server-side connection wrapper plus
// the raw client socket for observing delivered frames.
type client struct {
	conn *websocket.Connection
	ws   *gorilla.Conn
}

// connect registers a new connection for userID and runs the connect
// lifecycle, exactly as the gateway would.
func (h *testHarness) connect(t *testing.T, connID, userID string) *client {
	t.Helper()

	serverConns := make(chan *gorilla.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConns <- wsConn
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	clientWS, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientWS.Close() })

	var serverWS *gorilla.Conn
	select {
	case serverWS = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side connection")
	}

	conn := websocket.NewConnection(connID, userID, serverWS, 16, time.Second)
	t.Cleanup(func() { conn.Close() })

	first, err := h.registry.Register(conn)
	require.NoError(t, err)
	h.relay.OnConnect(context.Background(), conn, first)

	return &client{conn: conn, ws: clientWS}
}

// disconnect runs the disconnect lifecycle for a client.
func (h *testHarness) disconnect(c *client) {
	userID, last, ok := h.registry.Unregister(c.conn.ID())
	c.conn.Close()
	if ok {
		h.relay.OnDisconnect(context.Background(), c.conn, userID, last)
	}
}

func (h *testHarness) send(c *client, event, payload string) {
	h.relay.OnEvent(context.Background(), c.conn, types.ClientEvent{
		Event: event,
		Data:  json.RawMessage(payload),
	})
}

// awaitEvent reads frames until one with the given name arrives, skipping
// unrelated traffic such as presence announcements.
func awaitEvent(t *testing.T, c *client, name string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, c.ws.SetReadDeadline(deadline))
		_, data, err := c.ws.ReadMessage()
		require.NoError(t, err)

		var frame struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Event == name {
			return frame.Data
		}
	}
	t.Fatalf("event %q not received before deadline", name)
	return nil
}

// assertNoEvent drains the socket briefly and fails if the named event shows
// up.
func assertNoEvent(t *testing.T, c *client, name string) {
	t.Helper()

	_ = c.ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Event string `json:"event"`
		}
		if json.Unmarshal(data, &frame) == nil && frame.Event == name {
			t.Fatalf("unexpected event %q delivered", name)
		}
	}
}

func seedWorkspace(store *fakeStore) {
	store.users["alice"] = &types.User{ID: "alice", Username: "Alice", Email: "alice@example.com", IsActive: true}
	store.users["bob"] = &types.User{ID: "bob", Username: "Bob", Email: "bob@example.com", IsActive: true}
	store.workspaces["acme"] = &types.Workspace{
		ID: "acme", Name: "Acme", OwnerID: "alice",
		MemberIDs: []string{"alice", "bob"}, IsActive: true,
	}
	store.channels["general"] = &types.Channel{
		ID: "general", WorkspaceID: "acme", Name: "general",
		Type: types.ChannelTypePublic, CreatedBy: "alice",
		MemberIDs: []string{"alice", "bob"}, IsActive: true,
	}
	store.channels["secret"] = &types.Channel{
		ID: "secret", WorkspaceID: "acme", Name: "secret",
		Type: types.ChannelTypePrivate, CreatedBy: "alice",
		MemberIDs: []string{"alice"}, IsActive: true,
	}
}

func TestRelay_ConnectJoinsWorkspaceRooms(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	c := h.connect(t, "c1", "alice")

	conns := h.registry.RoomConnections(types.WorkspaceRoom("acme"))
	req.Len(conns, 1)
	req.Equal(c.conn.ID(), conns[0].ID())
}

func TestRelay_ConnectSurvivesWorkspaceLookupFailure(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	store.failWorkspaces = true
	h := newHarness(t, store)

	h.connect(t, "c1", "alice")

	// Session exists but has no workspace rooms.
	req.Equal(1, h.registry.Stats()["connections"])
	req.Empty(h.registry.RoomConnections(types.WorkspaceRoom("acme")))
}

func TestRelay_PresenceFiresOncePerTransition(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	observer := h.connect(t, "c-bob", "bob")

	// First connection announces online.
	first := h.connect(t, "c1", "alice")
	data := awaitEvent(t, observer, types.EventUserStatusChanged)
	req.Equal("alice", data["userId"])
	req.Equal(types.StatusOnline, data["status"])

	// Second connection for the same user is silent.
	second := h.connect(t, "c2", "alice")
	assertNoEvent(t, observer, types.EventUserStatusChanged)

	// Dropping one of two connections is silent.
	h.disconnect(first)
	assertNoEvent(t, observer, types.EventUserStatusChanged)

	// Dropping the last announces offline.
	h.disconnect(second)
	data = awaitEvent(t, observer, types.EventUserStatusChanged)
	req.Equal("alice", data["userId"])
	req.Equal(types.StatusOffline, data["status"])
}

func TestRelay_SendMessageBroadcastsToWorkspace(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")
	bob := h.connect(t, "c-bob", "bob")

	h.send(alice, types.EventSendMessage, `{"channelId":"general","content":"hello there"}`)

	// Sender and other workspace members both receive the broadcast.
	for _, c := range []*client{alice, bob} {
		data := awaitEvent(t, c, types.EventNewMessage)
		req.Equal("hello there", data["content"])
		req.Equal("alice", data["senderId"])
		req.Equal("Alice", data["senderName"])
		req.Equal("general", data["channelId"])
	}

	req.Equal(1, store.messageCount())
}

func TestRelay_SendMessageToPrivateChannelDenied(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")
	bob := h.connect(t, "c-bob", "bob")

	h.send(bob, types.EventSendMessage, `{"channelId":"secret","content":"let me in"}`)

	// The offender gets an error; nothing is broadcast or persisted.
	data := awaitEvent(t, bob, types.EventError)
	req.NotEmpty(data["message"])
	assertNoEvent(t, alice, types.EventNewMessage)
	req.Equal(0, store.messageCount())
}

func TestRelay_SendMessageInvalidPayload(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")

	h.send(alice, types.EventSendMessage, `{"channelId":"general"}`)

	data := awaitEvent(t, alice, types.EventError)
	req.NotEmpty(data["message"])
	req.Equal(0, store.messageCount())
}

func TestRelay_UnresolvedConnectionIsSilentlyDropped(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")
	h.registry.Unregister(alice.conn.ID())

	h.send(alice, types.EventSendMessage, `{"channelId":"general","content":"ghost"}`)

	assertNoEvent(t, alice, types.EventError)
	assertNoEvent(t, alice, types.EventNewMessage)
	req.Equal(0, store.messageCount())
}

func TestRelay_JoinChannelAcksRequesterOnly(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")
	bob := h.connect(t, "c-bob", "bob")

	h.send(alice, types.EventJoinChannel, `{"channelId":"general"}`)

	data := awaitEvent(t, alice, types.EventJoinedChannel)
	req.Equal("general", data["channelId"])
	assertNoEvent(t, bob, types.EventJoinedChannel)

	req.Len(h.registry.RoomConnections(types.ChannelRoom("general")), 1)
}

func TestRelay_JoinPrivateChannelDenied(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	bob := h.connect(t, "c-bob", "bob")

	h.send(bob, types.EventJoinChannel, `{"channelId":"secret"}`)

	data := awaitEvent(t, bob, types.EventError)
	req.NotEmpty(data["message"])
	req.Empty(h.registry.RoomConnections(types.ChannelRoom("secret")))
}

func TestRelay_TypingExcludesSender(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")
	bob := h.connect(t, "c-bob", "bob")

	h.send(alice, types.EventJoinChannel, `{"channelId":"general"}`)
	h.send(bob, types.EventJoinChannel, `{"channelId":"general"}`)
	awaitEvent(t, alice, types.EventJoinedChannel)
	awaitEvent(t, bob, types.EventJoinedChannel)

	h.send(alice, types.EventTyping, `{"channelId":"general","isTyping":true}`)

	data := awaitEvent(t, bob, types.EventUserTyping)
	req.Equal("alice", data["userId"])
	req.Equal(true, data["isTyping"])
	assertNoEvent(t, alice, types.EventUserTyping)
}

func TestRelay_LeaveChannelStopsDelivery(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")
	bob := h.connect(t, "c-bob", "bob")

	h.send(alice, types.EventJoinChannel, `{"channelId":"general"}`)
	h.send(bob, types.EventJoinChannel, `{"channelId":"general"}`)
	awaitEvent(t, alice, types.EventJoinedChannel)
	awaitEvent(t, bob, types.EventJoinedChannel)

	h.send(bob, types.EventLeaveChannel, `{"channelId":"general"}`)
	data := awaitEvent(t, bob, types.EventLeftChannel)
	req.Equal("general", data["channelId"])

	h.send(alice, types.EventTyping, `{"channelId":"general","isTyping":true}`)
	assertNoEvent(t, bob, types.EventUserTyping)
}

func TestRelay_AddReactionTogglesAndBroadcasts(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	store.messages["m1"] = &types.Message{
		ID: "m1", ChannelID: "general", WorkspaceID: "acme",
		SenderID: "bob", Content: "hi", Type: types.MessageTypeText,
		Reactions: []types.Reaction{},
	}
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")
	bob := h.connect(t, "c-bob", "bob")

	h.send(alice, types.EventAddReaction, `{"messageId":"m1","emoji":"👍"}`)

	data := awaitEvent(t, bob, types.EventReactionAdded)
	req.Equal("m1", data["messageId"])
	reactions := data["reactions"].([]any)
	req.Len(reactions, 1)

	// Toggling again clears the reaction for everyone.
	h.send(alice, types.EventAddReaction, `{"messageId":"m1","emoji":"👍"}`)
	data = awaitEvent(t, bob, types.EventReactionAdded)
	req.Empty(data["reactions"])
}

func TestRelay_AddReactionUnknownMessage(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")

	h.send(alice, types.EventAddReaction, `{"messageId":"missing","emoji":"👍"}`)

	data := awaitEvent(t, alice, types.EventError)
	req.NotEmpty(data["message"])
}

func TestRelay_UnknownEventIsDropped(t *testing.T) {
	store := newFakeStore()
	seedWorkspace(store)
	h := newHarness(t, store)

	alice := h.connect(t, "c-alice", "alice")

	h.send(alice, "selfDestruct", `{}`)

	assertNoEvent(t, alice, types.EventError)
}

func TestRelay_MessageRateLimit(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seedWorkspace(store)

	registry := websocket.NewRegistry()
	presence := NewPresence(registry, store, zerolog.Nop())
	h := &testHarness{
		relay:    NewRelay(registry, store, presence, 1, zerolog.Nop()),
		registry: registry,
		store:    store,
	}

	alice := h.connect(t, "c-alice", "alice")

	h.send(alice, types.EventSendMessage, `{"channelId":"general","content":"first"}`)
	awaitEvent(t, alice, types.EventNewMessage)

	h.send(alice, types.EventSendMessage, `{"channelId":"general","content":"second"}`)
	data := awaitEvent(t, alice, types.EventError)
	req.Contains(data["message"], "rate limit")
	req.Equal(1, store.messageCount())
}
