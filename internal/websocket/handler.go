package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/config"
	"chatrelay/pkg/types"
)

// EventHandler receives decoded, validated client events. Implemented by
// the relay state machine.
type EventHandler interface {
	Join(ctx context.Context, connID string, p types.JoinPayload)
	SendMessage(ctx context.Context, connID string, p types.SendMessagePayload)
	LeftRoom(ctx context.Context, connID string, p types.LeftRoomPayload)
	ListRooms(ctx context.Context, connID string)
	Disconnect(ctx context.Context, connID, name, room string)
}

// Handler upgrades HTTP requests to WebSocket connections and pumps
// inbound frames into the event handler.
type Handler struct {
	registry *Registry
	events   EventHandler
	cfg      config.WebSocketConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(registry *Registry, events EventHandler, cfg config.WebSocketConfig, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		events:   events,
		cfg:      cfg,
		log:      log.With().Str("component", "websocket").Logger(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// Relay carries no credentials; origin policy is left to the
			// deployment's proxy layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and starts the connection's read loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	conn := NewConnection(ws, h.cfg.BufferSize, h.cfg.WriteTimeout)
	h.registry.Register(conn)
	h.log.Info().Str("conn", conn.ID()).Str("remote", r.RemoteAddr).Msg("connection opened")

	go h.readLoop(conn)
}

// readLoop reads and dispatches frames until the transport closes, then
// reclaims the connection's session. One connection's failure never
// affects another's.
func (h *Handler) readLoop(conn *Connection) {
	defer func() {
		if name, room, joined := conn.Identity(); joined {
			h.events.Disconnect(context.Background(), conn.ID(), name, room)
		}
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.log.Info().Str("conn", conn.ID()).Msg("connection closed")
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("conn", conn.ID()).Msg("read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.dispatch(conn, data)
	}
}

// dispatch decodes one inbound frame and routes it to the event handler.
// Malformed frames are rejected with a client-visible error event and
// never reach the state machine.
func (h *Handler) dispatch(conn *Connection, data []byte) {
	ctx := context.Background()

	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.reject(conn, types.ErrCodeBadPayload, "malformed event frame")
		return
	}

	switch env.Event {
	case types.EventJoin:
		var p types.JoinPayload
		if err := decodePayload(env.Data, &p); err != nil {
			h.reject(conn, types.ErrCodeBadPayload, err.Error())
			return
		}
		if name, room, joined := conn.Identity(); joined &&
			(types.Normalize(name) != types.Normalize(p.Name) || room != types.Normalize(p.Room)) {
			// Joining under a new identity leaves the old one first, so
			// the connection never holds two sessions.
			h.events.Disconnect(ctx, conn.ID(), name, room)
		}
		h.events.Join(ctx, conn.ID(), p)
		conn.SetIdentity(p.Name, types.Normalize(p.Room))

	case types.EventSendMessage:
		var p types.SendMessagePayload
		if err := decodePayload(env.Data, &p); err != nil {
			h.reject(conn, types.ErrCodeBadPayload, err.Error())
			return
		}
		h.events.SendMessage(ctx, conn.ID(), p)

	case types.EventLeftRoom:
		var p types.LeftRoomPayload
		if err := decodePayload(env.Data, &p); err != nil {
			h.reject(conn, types.ErrCodeBadPayload, err.Error())
			return
		}
		h.events.LeftRoom(ctx, conn.ID(), p)
		if name, room, joined := conn.Identity(); joined &&
			types.Normalize(name) == types.Normalize(p.Params.Name) &&
			room == types.Normalize(p.Params.Room) {
			conn.ClearIdentity()
		}

	case types.EventListRoom:
		h.events.ListRooms(ctx, conn.ID())

	default:
		h.log.Debug().Str("conn", conn.ID()).Str("event", env.Event).Msg("unknown event")
		h.reject(conn, types.ErrCodeUnknownEvent, "unknown event: "+env.Event)
	}
}

func (h *Handler) reject(conn *Connection, code, message string) {
	if err := conn.WriteJSON(types.NewError(code, message)); err != nil {
		h.log.Debug().Err(err).Str("conn", conn.ID()).Msg("failed to send error event")
	}
}

type validatable interface {
	Validate() error
}

func decodePayload[P validatable](data json.RawMessage, p P) error {
	if len(data) == 0 {
		return types.ErrNoPayload
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return p.Validate()
}
