// Package broadcast delivers outbound events to room-scoped sets of
// WebSocket connections.
package broadcast

import (
	"github.com/rs/zerolog"

	"chatrelay/internal/websocket"
	"chatrelay/pkg/types"
)

// Broadcaster implements interfaces.Broadcaster over the connection
// registry. Delivery is fire-and-forget: a failed or full connection is
// logged and skipped, fan-out to the rest continues.
type Broadcaster struct {
	registry *websocket.Registry
	log      zerolog.Logger
}

// New creates a broadcaster over the given connection registry.
func New(registry *websocket.Registry, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      log.With().Str("component", "broadcast").Logger(),
	}
}

// Join subscribes a connection to a room's broadcast scope.
func (b *Broadcaster) Join(connID, room string) {
	b.registry.JoinRoom(connID, room)
}

// Leave removes a connection from a room's broadcast scope.
func (b *Broadcaster) Leave(connID, room string) {
	b.registry.LeaveRoom(connID, room)
}

// Evict unsubscribes a connection from a room and clears its session
// identity, leaving the transport open and unaffiliated. Used when the
// identity has been rebound to another connection.
func (b *Broadcaster) Evict(connID, room string) {
	b.registry.LeaveRoom(connID, room)
	if conn, ok := b.registry.Get(connID); ok {
		conn.ClearIdentity()
	}
	b.log.Info().Str("conn", connID).Str("room", room).Msg("connection evicted")
}

// ToRoom delivers an event to every member of a room.
func (b *Broadcaster) ToRoom(room string, event types.Event) {
	for _, conn := range b.registry.RoomConnections(room) {
		b.deliver(conn, room, event)
	}
}

// ToRoomExceptSender delivers an event to every room member except the
// sending connection.
func (b *Broadcaster) ToRoomExceptSender(room, senderConnID string, event types.Event) {
	for _, conn := range b.registry.RoomConnections(room) {
		if conn.ID() == senderConnID {
			continue
		}
		b.deliver(conn, room, event)
	}
}

// ToConn delivers an event to a single connection. Unknown connections
// are a no-op; the client may have disconnected mid-operation.
func (b *Broadcaster) ToConn(connID string, event types.Event) {
	conn, ok := b.registry.Get(connID)
	if !ok {
		b.log.Debug().Str("conn", connID).Str("event", event.Event).Msg("recipient gone")
		return
	}
	b.deliver(conn, "", event)
}

func (b *Broadcaster) deliver(conn *websocket.Connection, room string, event types.Event) {
	if err := conn.WriteJSON(event); err != nil {
		b.log.Warn().Err(err).
			Str("conn", conn.ID()).
			Str("room", room).
			Str("event", event.Event).
			Msg("delivery failed")
	}
}
