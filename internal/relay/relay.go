// Package relay implements the per-connection protocol state machine:
// join, active messaging, leave and disconnect, orchestrating the session
// registry, the event store and the room broadcaster per inbound event.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"chatrelay/internal/config"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Relay coordinates the three stateful collaborators. It holds no session
// state of its own; everything lives in the registry and the store.
//
// Delivery is live-first: broadcasts are issued before and independent of
// persistence, so a store failure degrades history, never presence or
// messaging.
type Relay struct {
	registry     interfaces.SessionRegistry
	store        interfaces.EventStore
	broadcaster  interfaces.Broadcaster
	greeting     config.GreetingConfig
	storeTimeout time.Duration
	log          zerolog.Logger
}

// New wires the relay state machine.
func New(
	registry interfaces.SessionRegistry,
	store interfaces.EventStore,
	broadcaster interfaces.Broadcaster,
	cfg *config.Config,
	log zerolog.Logger,
) *Relay {
	return &Relay{
		registry:     registry,
		store:        store,
		broadcaster:  broadcaster,
		greeting:     cfg.Greeting,
		storeTimeout: cfg.Database.Timeout,
		log:          log.With().Str("component", "relay").Logger(),
	}
}

// Join handles Connected -> Joined. The joiner gets a greeting and the
// room history; the rest of the room gets a system notice and everyone
// gets the refreshed membership list. History is fetched before the join
// notice is persisted so the joiner's own arrival is not part of it.
func (r *Relay) Join(ctx context.Context, connID string, p types.JoinPayload) {
	session, alreadyExists := r.registry.Add(connID, p.Name, p.Room)
	room := session.Room

	if alreadyExists && session.ConnID != connID {
		// Same identity on a new transport: the session moves over and
		// the old connection is evicted, so its later disconnect does not
		// tear the session down.
		if prev, ok := r.registry.Rebind(p.Name, p.Room, connID); ok {
			r.broadcaster.Evict(prev, room)
			r.log.Info().Str("name", session.Name).Str("room", room).Msg("session rebound to new connection")
		}
	}

	r.broadcaster.Join(connID, room)

	greeting := fmt.Sprintf(r.greeting.FirstJoin, session.Name)
	if alreadyExists {
		greeting = fmt.Sprintf(r.greeting.Rejoin, session.Name)
	}
	r.broadcaster.ToConn(connID, types.NewChatMessage(types.AdminUser, greeting))

	notice := session.Name + " has joined"
	r.broadcaster.ToRoomExceptSender(room, connID, types.NewChatMessage(types.AdminUser, notice))
	r.broadcaster.ToRoom(room, types.NewRoomUsers(r.roomUserNames(room)))

	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	history, err := r.store.HistoryByRoom(sctx, room)
	cancel()
	if err != nil {
		r.log.Error().Err(err).Str("room", room).Msg("history fetch failed")
		r.broadcaster.ToConn(connID, types.NewError(types.ErrCodeHistoryUnavailable, "message history is unavailable"))
		history = nil
	}
	r.broadcaster.ToConn(connID, types.NewHistory(history))

	r.append(ctx, &types.ChatEvent{User: types.AdminUser, Room: room, Message: notice})

	r.log.Info().
		Str("name", session.Name).
		Str("room", room).
		Bool("rejoin", alreadyExists).
		Msg("joined room")
}

// SendMessage handles active messaging. The message goes to the whole
// room, sender included, so the sender observes its own message through
// the same path as everyone else. An unregistered identity is dropped as
// a no-op.
func (r *Relay) SendMessage(ctx context.Context, connID string, p types.SendMessagePayload) {
	session, ok := r.registry.Find(p.Params.Name, p.Params.Room)
	if !ok {
		r.log.Warn().
			Str("name", p.Params.Name).
			Str("room", p.Params.Room).
			Msg("sendMessage from unregistered session dropped")
		return
	}

	r.broadcaster.ToRoom(session.Room, types.NewChatMessage(session.Name, p.Message))
	r.append(ctx, &types.ChatEvent{User: session.Name, Room: session.Room, Message: p.Message})

	r.log.Info().Str("name", session.Name).Str("room", session.Room).Msg("message sent")
}

// LeftRoom handles Joined -> Left on an explicit client event.
func (r *Relay) LeftRoom(ctx context.Context, connID string, p types.LeftRoomPayload) {
	r.leave(ctx, connID, p.Params.Name, p.Params.Room, "leftRoom")
}

// Disconnect reclaims a joined connection's session when the transport
// closes without a leftRoom, so presence never goes stale.
func (r *Relay) Disconnect(ctx context.Context, connID, name, room string) {
	r.leave(ctx, connID, name, room, "disconnect")
}

func (r *Relay) leave(ctx context.Context, connID, name, room, cause string) {
	session, ok := r.registry.Remove(name, room)
	if !ok {
		r.log.Warn().
			Str("name", name).
			Str("room", room).
			Str("cause", cause).
			Msg("leave for unregistered session dropped")
		return
	}

	r.broadcaster.Leave(connID, session.Room)

	notice := session.Name + " has left"
	r.broadcaster.ToRoom(session.Room, types.NewChatMessage(types.AdminUser, notice))
	r.broadcaster.ToRoom(session.Room, types.NewRoomUsers(r.roomUserNames(session.Room)))

	r.append(ctx, &types.ChatEvent{User: types.AdminUser, Room: session.Room, Message: notice})

	r.log.Info().
		Str("name", session.Name).
		Str("room", session.Room).
		Str("cause", cause).
		Msg("left room")
}

// ListRooms answers a listRoom query with the persisted distinct-room set,
// to the requester only. The reply survives restarts and covers rooms
// whose members have all since left.
func (r *Relay) ListRooms(ctx context.Context, connID string) {
	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	rooms, err := r.store.DistinctRooms(sctx)
	cancel()
	if err != nil {
		r.log.Error().Err(err).Msg("room list query failed")
		r.broadcaster.ToConn(connID, types.NewError(types.ErrCodeRoomsUnavailable, "room list is unavailable"))
		return
	}

	r.broadcaster.ToConn(connID, types.NewRoomList(rooms))
}

// append persists a chat event under a bounded timeout. Failures are
// logged and swallowed: the live broadcast already went out and is not
// rolled back.
func (r *Relay) append(ctx context.Context, event *types.ChatEvent) {
	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	if err := r.store.Append(sctx, event); err != nil {
		r.log.Error().Err(err).
			Str("user", event.User).
			Str("room", event.Room).
			Msg("append failed, live delivery unaffected")
	}
}

func (r *Relay) roomUserNames(room string) []string {
	return lo.Map(r.registry.RoomUsers(room), func(s *types.Session, _ int) string {
		return s.Name
	})
}
