package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestConn() *Connection {
	return NewConnection(nil, 8, time.Second)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	conn := newTestConn()
	r.Register(conn)

	got, ok := r.Get(conn.ID())
	req.True(ok)
	req.Same(conn, got)

	_, ok = r.Get("nope")
	req.False(ok)
}

func TestRegistryRoomMembership(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	a, b, c := newTestConn(), newTestConn(), newTestConn()
	r.Register(a)
	r.Register(b)
	r.Register(c)

	r.JoinRoom(a.ID(), "r1")
	r.JoinRoom(b.ID(), "r1")
	r.JoinRoom(c.ID(), "r2")

	req.Len(r.RoomConnections("r1"), 2)
	req.Len(r.RoomConnections("r2"), 1)
	req.Empty(r.RoomConnections("r3"))

	r.LeaveRoom(a.ID(), "r1")
	members := r.RoomConnections("r1")
	req.Len(members, 1)
	req.Equal(b.ID(), members[0].ID())
}

func TestRegistryJoinRoom_UnknownConnection(t *testing.T) {
	r := NewRegistry()
	r.JoinRoom("ghost", "r1")
	require.Empty(t, r.RoomConnections("r1"))
}

func TestRegistryUnregister_RemovesRoomSubscriptions(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	a, b := newTestConn(), newTestConn()
	r.Register(a)
	r.Register(b)
	r.JoinRoom(a.ID(), "r1")
	r.JoinRoom(b.ID(), "r1")

	r.Unregister(a)

	_, ok := r.Get(a.ID())
	req.False(ok)
	members := r.RoomConnections("r1")
	req.Len(members, 1)
	req.Equal(b.ID(), members[0].ID())

	// Idempotent.
	r.Unregister(a)
	r.Unregister(nil)
}

func TestRegistryStats(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	a, b := newTestConn(), newTestConn()
	r.Register(a)
	r.Register(b)
	r.JoinRoom(a.ID(), "r1")
	r.JoinRoom(b.ID(), "r2")

	stats := r.Stats()
	req.Equal(2, stats["connections"])
	req.Equal(2, stats["rooms"])
}
