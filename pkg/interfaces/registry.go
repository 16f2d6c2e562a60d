package interfaces

import "chatrelay/pkg/types"

// SessionRegistry owns all live session state. Name and room arguments are
// compared in normalized form (trim + lowercase); no other component may
// hold its own copy of session state.
type SessionRegistry interface {
	// Add registers a session for (name, room). If one already exists for
	// the normalized pair it is returned untouched with alreadyExists=true
	// and nothing is inserted. Add never fails.
	Add(connID, name, room string) (session *types.Session, alreadyExists bool)

	// Rebind moves an existing session to a new connection, returning the
	// previous connection ID. Used when an identity reappears on a fresh
	// transport.
	Rebind(name, room, connID string) (prevConnID string, ok bool)

	// Find looks a session up by normalized (name, room).
	Find(name, room string) (*types.Session, bool)

	// Remove deletes exactly the session matching both normalized name and
	// normalized room, returning its pre-removal value. Sessions sharing
	// only the room are never touched.
	Remove(name, room string) (*types.Session, bool)

	// RoomUsers returns the room's sessions in insertion order.
	RoomUsers(room string) []*types.Session

	// ActiveRooms returns the distinct rooms with at least one live
	// session, sorted.
	ActiveRooms() []string
}
