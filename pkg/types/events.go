package types

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// Inbound event names (client -> server).
const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventLeftRoom    = "leftRoom"
	EventListRoom    = "listRoom"
)

// Outbound event names (server -> client).
const (
	EventMessage        = "message"
	EventMessageHistory = "messageHistory"
	EventRoom           = "room"
	EventError          = "error"
)

// Error codes carried by EventError payloads.
const (
	ErrCodeBadPayload         = "bad_payload"
	ErrCodeUnknownEvent       = "unknown_event"
	ErrCodeHistoryUnavailable = "history_unavailable"
	ErrCodeRoomsUnavailable   = "rooms_unavailable"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the inbound wire frame. Data is decoded per Event into one
// of the typed payloads below; an empty or unknown Event is rejected by
// dispatch, so the envelope itself carries no validation rules.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomParams identifies a session by display name and room.
type RoomParams struct {
	Name string `json:"name" validate:"required,max=64"`
	Room string `json:"room" validate:"required,max=64"`
}

// JoinPayload is the data of a join event.
type JoinPayload struct {
	Name string `json:"name" validate:"required,max=64"`
	Room string `json:"room" validate:"required,max=64"`
}

// SendMessagePayload is the data of a sendMessage event.
type SendMessagePayload struct {
	Message string     `json:"message" validate:"required,max=4096"`
	Params  RoomParams `json:"params" validate:"required"`
}

// LeftRoomPayload is the data of a leftRoom event.
type LeftRoomPayload struct {
	Params RoomParams `json:"params" validate:"required"`
}

// Validate rejects payloads whose name or room is absent or blank after
// normalization. Whitespace-only values would otherwise collapse to the
// empty registry key.
func (p *JoinPayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return validateIdentity(p.Name, p.Room)
}

func (p *SendMessagePayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return validateIdentity(p.Params.Name, p.Params.Room)
}

func (p *LeftRoomPayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return validateIdentity(p.Params.Name, p.Params.Room)
}

func validateIdentity(name, room string) error {
	if Normalize(name) == "" {
		return ErrEmptyName
	}
	if Normalize(room) == "" {
		return ErrEmptyRoom
	}
	return nil
}

// Event is an outbound server-to-client frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ChatMessageData is the data of a message event carrying a chat line.
type ChatMessageData struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// RoomListData is the data of a message event answering listRoom.
type RoomListData struct {
	Rooms []string `json:"rooms"`
}

// RoomUsersData is the data of a room membership event.
type RoomUsersData struct {
	Users []string `json:"users"`
}

// HistoryData is the data of a messageHistory event.
type HistoryData struct {
	Messages []*ChatEvent `json:"messages"`
}

// ErrorData is the data of an error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewChatMessage(user, message string) Event {
	return Event{Event: EventMessage, Data: ChatMessageData{User: user, Message: message}}
}

func NewRoomList(rooms []string) Event {
	if rooms == nil {
		rooms = []string{}
	}
	return Event{Event: EventMessage, Data: RoomListData{Rooms: rooms}}
}

func NewRoomUsers(users []string) Event {
	if users == nil {
		users = []string{}
	}
	return Event{Event: EventRoom, Data: RoomUsersData{Users: users}}
}

func NewHistory(messages []*ChatEvent) Event {
	if messages == nil {
		messages = []*ChatEvent{}
	}
	return Event{Event: EventMessageHistory, Data: HistoryData{Messages: messages}}
}

func NewError(code, message string) Event {
	return Event{Event: EventError, Data: ErrorData{Code: code, Message: message}}
}
