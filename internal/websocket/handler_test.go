package websocket_test

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/broadcast"
	"chatrelay/internal/config"
	"chatrelay/internal/registry"
	"chatrelay/internal/relay"
	"chatrelay/internal/store"
	"chatrelay/internal/websocket"
	"chatrelay/pkg/types"
)

// newRelayServer stands up the full server stack on an httptest listener:
// real registry, broadcaster, relay and a temp-file SQLite store.
func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zerolog.Nop()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "chatrelay.db")

	eventStore, err := store.Open(cfg.Database.Path, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eventStore.Close() })

	sessions := registry.New(log)
	conns := websocket.NewRegistry()
	broadcaster := broadcast.New(conns, log)
	stateMachine := relay.New(sessions, eventStore, broadcaster, cfg, log)
	handler := websocket.NewHandler(conns, stateMachine, cfg.WebSocket, log)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *gorilla.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(frame)))
}

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *gorilla.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame wireFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func expectNothing(t *testing.T, conn *gorilla.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func chatData(t *testing.T, frame wireFrame) types.ChatMessageData {
	t.Helper()
	var data types.ChatMessageData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	return data
}

func TestJoinScenario(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)

	alice := dial(t, srv)
	send(t, alice, `{"event":"join","data":{"name":"alice","room":"general"}}`)

	greeting := readFrame(t, alice)
	req.Equal("message", greeting.Event)
	req.Equal(types.ChatMessageData{User: "Admin", Message: "Hey my love alice"}, chatData(t, greeting))

	users := readFrame(t, alice)
	req.Equal("room", users.Event)
	req.JSONEq(`{"users":["alice"]}`, string(users.Data))

	history := readFrame(t, alice)
	req.Equal("messageHistory", history.Event)
	req.JSONEq(`{"messages":[]}`, string(history.Data))

	// Let alice's join notice reach the store before bob replays history.
	time.Sleep(100 * time.Millisecond)

	bob := dial(t, srv)
	send(t, bob, `{"event":"join","data":{"name":"bob","room":"general"}}`)

	// Alice sees bob arrive.
	notice := readFrame(t, alice)
	req.Equal(types.ChatMessageData{User: "Admin", Message: "bob has joined"}, chatData(t, notice))
	users = readFrame(t, alice)
	req.JSONEq(`{"users":["alice","bob"]}`, string(users.Data))

	// Bob gets greeting, membership and a history containing alice's join.
	greeting = readFrame(t, bob)
	req.Equal(types.ChatMessageData{User: "Admin", Message: "Hey my love bob"}, chatData(t, greeting))
	users = readFrame(t, bob)
	req.JSONEq(`{"users":["alice","bob"]}`, string(users.Data))
	history = readFrame(t, bob)

	var historyData types.HistoryData
	req.NoError(json.Unmarshal(history.Data, &historyData))
	req.Len(historyData.Messages, 1)
	req.Equal("alice has joined", historyData.Messages[0].Message)
}

func TestSendMessageReachesWholeRoom(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)

	alice := dial(t, srv)
	send(t, alice, `{"event":"join","data":{"name":"alice","room":"r1"}}`)
	drainJoin(t, alice)

	bob := dial(t, srv)
	send(t, bob, `{"event":"join","data":{"name":"bob","room":"r1"}}`)
	drainJoin(t, bob)
	readFrame(t, alice) // bob has joined
	readFrame(t, alice) // membership update

	send(t, alice, `{"event":"sendMessage","data":{"message":"hi","params":{"name":"alice","room":"r1"}}}`)

	// Sender included in the broadcast.
	req.Equal(types.ChatMessageData{User: "alice", Message: "hi"}, chatData(t, readFrame(t, alice)))
	req.Equal(types.ChatMessageData{User: "alice", Message: "hi"}, chatData(t, readFrame(t, bob)))
}

func TestRoomIsolation(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)

	alice := dial(t, srv)
	send(t, alice, `{"event":"join","data":{"name":"alice","room":"r1"}}`)
	drainJoin(t, alice)

	carol := dial(t, srv)
	send(t, carol, `{"event":"join","data":{"name":"carol","room":"r2"}}`)
	drainJoin(t, carol)

	send(t, alice, `{"event":"sendMessage","data":{"message":"secret","params":{"name":"alice","room":"r1"}}}`)
	req.Equal(types.ChatMessageData{User: "alice", Message: "secret"}, chatData(t, readFrame(t, alice)))

	// Nothing crosses the room boundary.
	expectNothing(t, carol)
}

func TestLeftRoomNotifiesRemaining(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)

	alice := dial(t, srv)
	send(t, alice, `{"event":"join","data":{"name":"alice","room":"r1"}}`)
	drainJoin(t, alice)

	bob := dial(t, srv)
	send(t, bob, `{"event":"join","data":{"name":"bob","room":"r1"}}`)
	drainJoin(t, bob)
	readFrame(t, alice)
	readFrame(t, alice)

	send(t, bob, `{"event":"leftRoom","data":{"params":{"name":"bob","room":"r1"}}}`)

	req.Equal(types.ChatMessageData{User: "Admin", Message: "bob has left"}, chatData(t, readFrame(t, alice)))
	users := readFrame(t, alice)
	req.JSONEq(`{"users":["alice"]}`, string(users.Data))
}

func TestJoinWhileJoinedLeavesOldRoom(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)

	alice := dial(t, srv)
	send(t, alice, `{"event":"join","data":{"name":"alice","room":"r1"}}`)
	drainJoin(t, alice)

	// A second join under a different room leaves r1 first; no trace of
	// alice may remain there.
	send(t, alice, `{"event":"join","data":{"name":"alice","room":"r2"}}`)
	greeting := readFrame(t, alice)
	req.Equal(types.ChatMessageData{User: "Admin", Message: "Hey my love alice"}, chatData(t, greeting))
	users := readFrame(t, alice)
	req.JSONEq(`{"users":["alice"]}`, string(users.Data))
	readFrame(t, alice) // history

	req.NoError(alice.Close())
	time.Sleep(100 * time.Millisecond)

	obs := dial(t, srv)
	send(t, obs, `{"event":"join","data":{"name":"obs","room":"r1"}}`)
	readFrame(t, obs) // greeting
	users = readFrame(t, obs)
	req.JSONEq(`{"users":["obs"]}`, string(users.Data))
}

func TestRejoinFromNewConnectionTakesOver(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)

	first := dial(t, srv)
	send(t, first, `{"event":"join","data":{"name":"alice","room":"r1"}}`)
	drainJoin(t, first)
	time.Sleep(100 * time.Millisecond)

	second := dial(t, srv)
	send(t, second, `{"event":"join","data":{"name":"alice","room":"r1"}}`)

	greeting := readFrame(t, second)
	req.Equal(types.ChatMessageData{User: "Admin", Message: "alice, here you go again"}, chatData(t, greeting))
	users := readFrame(t, second)
	req.JSONEq(`{"users":["alice"]}`, string(users.Data))
	readFrame(t, second) // history

	// The evicted connection sees none of it.
	expectNothing(t, first)
	req.NoError(first.Close())
	time.Sleep(100 * time.Millisecond)

	// The session survives the old transport's disconnect.
	send(t, second, `{"event":"sendMessage","data":{"message":"still here","params":{"name":"alice","room":"r1"}}}`)
	req.Equal(types.ChatMessageData{User: "alice", Message: "still here"}, chatData(t, readFrame(t, second)))
}

func TestDisconnectCleansUpPresence(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)

	alice := dial(t, srv)
	send(t, alice, `{"event":"join","data":{"name":"alice","room":"r1"}}`)
	drainJoin(t, alice)

	bob := dial(t, srv)
	send(t, bob, `{"event":"join","data":{"name":"bob","room":"r1"}}`)
	drainJoin(t, bob)
	readFrame(t, alice)
	readFrame(t, alice)

	// Bob's transport dies without a leftRoom.
	req.NoError(bob.Close())

	req.Equal(types.ChatMessageData{User: "Admin", Message: "bob has left"}, chatData(t, readFrame(t, alice)))
	users := readFrame(t, alice)
	req.JSONEq(`{"users":["alice"]}`, string(users.Data))
}

func TestListRoom(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)

	alice := dial(t, srv)
	send(t, alice, `{"event":"join","data":{"name":"alice","room":"zebra"}}`)
	drainJoin(t, alice)

	carol := dial(t, srv)
	send(t, carol, `{"event":"join","data":{"name":"carol","room":"aqua"}}`)
	drainJoin(t, carol)

	// Give both join notices time to persist.
	time.Sleep(100 * time.Millisecond)

	send(t, carol, `{"event":"listRoom"}`)
	reply := readFrame(t, carol)
	req.Equal("message", reply.Event)
	req.JSONEq(`{"rooms":["aqua","zebra"]}`, string(reply.Data))

	// Reply goes to the requester only.
	expectNothing(t, alice)
}

func TestMalformedFramesRejected(t *testing.T) {
	req := require.New(t)
	srv := newRelayServer(t)
	conn := dial(t, srv)

	errData := func(frame wireFrame) types.ErrorData {
		req.Equal("error", frame.Event)
		var data types.ErrorData
		req.NoError(json.Unmarshal(frame.Data, &data))
		return data
	}

	send(t, conn, `not json at all`)
	req.Equal(types.ErrCodeBadPayload, errData(readFrame(t, conn)).Code)

	send(t, conn, `{"event":"join"}`)
	req.Equal(types.ErrCodeBadPayload, errData(readFrame(t, conn)).Code)

	send(t, conn, `{"event":"join","data":{"name":"alice"}}`)
	req.Equal(types.ErrCodeBadPayload, errData(readFrame(t, conn)).Code)

	send(t, conn, `{"event":"join","data":{"name":"  ","room":"r1"}}`)
	req.Equal(types.ErrCodeBadPayload, errData(readFrame(t, conn)).Code)

	send(t, conn, `{"event":"teleport","data":{}}`)
	req.Equal(types.ErrCodeUnknownEvent, errData(readFrame(t, conn)).Code)

	send(t, conn, `{"data":{"name":"alice","room":"r1"}}`)
	req.Equal(types.ErrCodeUnknownEvent, errData(readFrame(t, conn)).Code)

	// The connection survives all of it.
	send(t, conn, `{"event":"join","data":{"name":"alice","room":"r1"}}`)
	greeting := readFrame(t, conn)
	req.Equal("message", greeting.Event)
}

// drainJoin consumes the three frames every joiner receives: greeting,
// membership, history.
func drainJoin(t *testing.T, conn *gorilla.Conn) {
	t.Helper()
	readFrame(t, conn)
	readFrame(t, conn)
	readFrame(t, conn)
}
