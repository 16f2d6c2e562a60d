package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionIDsAreUnique(t *testing.T) {
	a, b := newTestConn(), newTestConn()
	require.NotEqual(t, a.ID(), b.ID())
}

func TestConnectionIdentity(t *testing.T) {
	req := require.New(t)
	c := newTestConn()

	_, _, joined := c.Identity()
	req.False(joined)

	c.SetIdentity("Alice", "general")
	name, room, joined := c.Identity()
	req.True(joined)
	req.Equal("Alice", name)
	req.Equal("general", room)

	c.ClearIdentity()
	_, _, joined = c.Identity()
	req.False(joined)
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	c := NewConnection(nil, 1, time.Second)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestWriteJSONAfterClose(t *testing.T) {
	c := NewConnection(nil, 1, time.Second)
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.WriteJSON(map[string]string{"k": "v"}), ErrConnectionClosed)
}
