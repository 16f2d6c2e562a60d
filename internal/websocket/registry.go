package websocket

import "sync"

// Registry tracks live connections and their room subscriptions. Pure
// connection bookkeeping; session semantics live in the session registry.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection            // connID -> connection
	rooms map[string]map[string]*Connection // room -> connID -> connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		rooms: make(map[string]map[string]*Connection),
	}
}

// Register tracks a new connection.
func (r *Registry) Register(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Unregister removes a connection and every room subscription it holds.
// Idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, conn.ID())
	for room, members := range r.rooms {
		delete(members, conn.ID())
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Get returns a connection by ID.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// JoinRoom subscribes a registered connection to a room.
func (r *Registry) JoinRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]*Connection)
	}
	r.rooms[room][connID] = conn
}

// LeaveRoom removes a connection from a room, dropping empty room maps.
func (r *Registry) LeaveRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// RoomConnections returns the connections currently subscribed to a room.
func (r *Registry) RoomConnections(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	conns := make([]*Connection, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	return conns
}

// Stats reports connection and subscribed-room counts.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"connections": len(r.conns),
		"rooms":       len(r.rooms),
	}
}
