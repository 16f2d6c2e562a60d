package interfaces

import "chatrelay/pkg/types"

// Broadcaster delivers outbound events to connections by room scope.
// Delivery is best-effort and fire-and-forget: no acknowledgment, no retry.
// Per-connection send order equals delivery order; nothing is guaranteed
// across connections.
type Broadcaster interface {
	// Join subscribes a connection to a room's broadcast scope.
	Join(connID, room string)

	// Leave removes a connection from a room's broadcast scope.
	Leave(connID, room string)

	// Evict removes a connection from a room and clears its session
	// identity, leaving the transport open and unaffiliated.
	Evict(connID, room string)

	// ToRoom delivers an event to every member of a room.
	ToRoom(room string, event types.Event)

	// ToRoomExceptSender delivers an event to every room member except the
	// sending connection.
	ToRoomExceptSender(room, senderConnID string, event types.Event)

	// ToConn delivers an event to a single connection.
	ToConn(connID string, event types.Event)
}
