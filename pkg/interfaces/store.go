package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// EventStore is the durable side of the relay: append-only persistence of
// chat events plus the two queries the protocol needs. The relay treats the
// store as best-effort; a failed append never blocks or rolls back a
// broadcast already issued.
type EventStore interface {
	// Append persists one chat event. Implementations must not leave
	// partial writes behind on failure.
	Append(ctx context.Context, event *types.ChatEvent) error

	// HistoryByRoom returns every event persisted for a room in creation
	// order, oldest first.
	HistoryByRoom(ctx context.Context, room string) ([]*types.ChatEvent, error)

	// DistinctRooms returns every room value ever persisted, sorted.
	DistinctRooms(ctx context.Context) ([]string, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources.
	Close() error
}
