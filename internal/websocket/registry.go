package websocket

import (
	"sync"

	"teamcollab/pkg/types"
)

// Registry is the session registry: it owns the connection→user mapping,
// per-user connection sets, and room membership in both directions. All
// mutation happens under one mutex so handlers running on different
// goroutines observe atomic transitions.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Connection            // connID -> connection
	userConns map[string]map[string]*Connection // userID -> connID -> connection
	rooms     map[types.RoomKey]map[string]*Connection
	connRooms map[string]map[types.RoomKey]struct{}
}

// NewRegistry creates an empty registry. Constructed at service start and
// torn down with the process; never a package-level singleton.
func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*Connection),
		userConns: make(map[string]map[string]*Connection),
		rooms:     make(map[types.RoomKey]map[string]*Connection),
		connRooms: make(map[string]map[types.RoomKey]struct{}),
	}
}

// Register stores an authenticated connection and reports whether it is the
// user's first live connection. Multiple connections per user are expected
// (multi-device); there is no uniqueness constraint on the user.
func (r *Registry) Register(conn *Connection) (first bool, err error) {
	if conn == nil {
		return false, ErrNilConnection
	}
	userID := conn.UserID()
	if userID == "" {
		return false, ErrConnectionNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID()] = conn
	if r.userConns[userID] == nil {
		r.userConns[userID] = make(map[string]*Connection)
	}
	first = len(r.userConns[userID]) == 0
	r.userConns[userID][conn.ID()] = conn
	r.connRooms[conn.ID()] = make(map[types.RoomKey]struct{})

	return first, nil
}

// Unregister removes a connection and all of its room memberships. Idempotent:
// unregistering an unknown connection reports ok=false and mutates nothing.
// last reports whether this was the user's final live connection.
func (r *Registry) Unregister(connID string) (userID string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.conns[connID]
	if !exists {
		return "", false, false
	}
	userID = conn.UserID()

	delete(r.conns, connID)

	for room := range r.connRooms[connID] {
		delete(r.rooms[room], connID)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.connRooms, connID)

	if userSet := r.userConns[userID]; userSet != nil {
		delete(userSet, connID)
		if len(userSet) == 0 {
			delete(r.userConns, userID)
			last = true
		}
	}

	return userID, last, true
}

// Resolve looks up the user owning a connection. Pure lookup, no side
// effects; unknown or already-removed connections return ok=false and the
// caller drops the event silently.
func (r *Registry) Resolve(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.conns[connID]
	if !exists {
		return "", false
	}
	return conn.UserID(), true
}

// JoinRoom adds a connection to a room. Joining an unknown connection is a
// no-op (the connection raced a disconnect).
func (r *Registry) JoinRoom(connID string, room types.RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.conns[connID]
	if !exists {
		return
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]*Connection)
	}
	r.rooms[room][connID] = conn
	r.connRooms[connID][room] = struct{}{}
}

// LeaveRoom removes a connection from a room. Always permitted; leaving a
// room the connection is not in is a no-op.
func (r *Registry) LeaveRoom(connID string, room types.RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, exists := r.rooms[room]; exists {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, exists := r.connRooms[connID]; exists {
		delete(rooms, room)
	}
}

// RoomConnections returns the connections currently joined to a room. The
// slice is a snapshot; every member gets exactly one delivery attempt.
func (r *Registry) RoomConnections(room types.RoomKey) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.rooms[room]))
	for _, conn := range r.rooms[room] {
		conns = append(conns, conn)
	}
	return conns
}

// Connections returns a snapshot of every live connection.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Stats returns registry counters for the stats endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"connections":  len(r.conns),
		"online_users": len(r.userConns),
		"active_rooms": len(r.rooms),
	}
}
