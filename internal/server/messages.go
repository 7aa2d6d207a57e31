package server

import (
	"encoding/json"
	"time"

	"github.com/npezzotti/go-chatroom/internal/types"
)

const (
	EventRoomJoin         = "room.join"
	EventMessage          = "message"
	EventMessageError     = "message.error"
	EventUserConnected    = "user.connected"
	EventUserDisconnected = "user.disconnected"
	EventShowRoom         = "show.room"
)

// ClientMessage is a frame received from a socket.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerMessage is a frame sent to sockets. RoomId restricts local delivery
// to the sockets joined to that room; SkipClient excludes one socket.
type ServerMessage struct {
	Event      string  `json:"event"`
	Data       any     `json:"data"`
	RoomId     string  `json:"-"`
	SkipClient *Client `json:"-"`
}

type MessageError struct {
	Error string `json:"error"`
}

func NewChatMessage(msg types.Message) *ServerMessage {
	return &ServerMessage{
		Event:  EventMessage,
		Data:   msg,
		RoomId: msg.RoomId,
	}
}

func UserConnected(user types.UserPresence, skip *Client) *ServerMessage {
	return &ServerMessage{
		Event:      EventUserConnected,
		Data:       user,
		SkipClient: skip,
	}
}

func UserDisconnected(user types.UserPresence) *ServerMessage {
	return &ServerMessage{
		Event: EventUserDisconnected,
		Data:  user,
	}
}

func ShowRoom(room types.RoomDescriptor, skip *Client) *ServerMessage {
	return &ServerMessage{
		Event:      EventShowRoom,
		Data:       room,
		SkipClient: skip,
	}
}

func ErrInvalidMessage(reason string) *ServerMessage {
	return &ServerMessage{
		Event: EventMessageError,
		Data:  MessageError{Error: reason},
	}
}

func ErrInternalError() *ServerMessage {
	return &ServerMessage{
		Event: EventMessageError,
		Data:  MessageError{Error: "failed to process message"},
	}
}

func ErrServiceUnavailable() *ServerMessage {
	return &ServerMessage{
		Event: EventMessageError,
		Data:  MessageError{Error: "service unavailable"},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
