// Package registry owns the in-memory session state: which identity is in
// which room right now. It is the single source of truth for presence;
// other components reference sessions by lookup and never hold copies.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"chatrelay/pkg/types"
)

// sessionKey identifies a session by normalized name and room. At most one
// session exists per key.
type sessionKey struct {
	name string
	room string
}

// Registry implements interfaces.SessionRegistry with a mutex-guarded map.
// All operations are synchronous and in-memory; the lock is never held
// across I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*types.Session
	nextSeq  uint64
	log      zerolog.Logger
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[sessionKey]*types.Session),
		log:      log.With().Str("component", "registry").Logger(),
	}
}

func keyOf(name, room string) sessionKey {
	return sessionKey{name: types.Normalize(name), room: types.Normalize(room)}
}

// Add registers a session for (name, room). A join with an already
// registered normalized identity returns the existing session untouched
// with alreadyExists=true; sessions are never updated in place.
func (r *Registry) Add(connID, name, room string) (*types.Session, bool) {
	key := keyOf(name, room)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[key]; ok {
		return existing, true
	}

	r.nextSeq++
	session := &types.Session{
		ConnID:   connID,
		Name:     name,
		Room:     key.room,
		JoinedAt: time.Now(),
		Seq:      r.nextSeq,
	}
	r.sessions[key] = session

	r.log.Debug().Str("name", name).Str("room", key.room).Msg("session added")
	return session, false
}

// Rebind moves an existing session to a new connection, returning the
// previous connection ID. No-op when no session exists or it already
// belongs to connID.
func (r *Registry) Rebind(name, room, connID string) (string, bool) {
	key := keyOf(name, room)

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[key]
	if !ok || session.ConnID == connID {
		return "", false
	}
	prev := session.ConnID
	session.ConnID = connID

	r.log.Debug().Str("name", session.Name).Str("room", session.Room).Msg("session rebound")
	return prev, true
}

// Find looks a session up by normalized (name, room).
func (r *Registry) Find(name, room string) (*types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[keyOf(name, room)]
	return session, ok
}

// Remove deletes exactly the session matching both normalized name and
// room, returning its pre-removal value. A same-room session under a
// different name is never affected.
func (r *Registry) Remove(name, room string) (*types.Session, bool) {
	key := keyOf(name, room)

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[key]
	if !ok {
		return nil, false
	}
	delete(r.sessions, key)

	r.log.Debug().Str("name", session.Name).Str("room", session.Room).Msg("session removed")
	return session, true
}

// RoomUsers returns the room's sessions in insertion order.
func (r *Registry) RoomUsers(room string) []*types.Session {
	normRoom := types.Normalize(room)

	r.mu.RLock()
	var members []*types.Session
	for key, session := range r.sessions {
		if key.room == normRoom {
			members = append(members, session)
		}
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool { return members[i].Seq < members[j].Seq })
	return members
}

// ActiveRooms returns the distinct rooms with at least one live session,
// sorted.
func (r *Registry) ActiveRooms() []string {
	r.mu.RLock()
	rooms := make([]string, 0, len(r.sessions))
	for key := range r.sessions {
		rooms = append(rooms, key.room)
	}
	r.mu.RUnlock()

	rooms = lo.Uniq(rooms)
	sort.Strings(rooms)
	return rooms
}

// Stats reports session and room counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]struct{}, len(r.sessions))
	for key := range r.sessions {
		rooms[key.room] = struct{}{}
	}
	return map[string]int{
		"sessions": len(r.sessions),
		"rooms":    len(rooms),
	}
}
