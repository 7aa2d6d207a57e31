package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is an opaque user or room identifier. Clients may send it as a JSON
// string or number; it is always marshaled back as a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s", string(b))
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("invalid id %s", string(b))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type User struct {
	Id        ID        `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// UserPresence is the snapshot carried by user.connected and
// user.disconnected events and returned by the online listing.
type UserPresence struct {
	Id       ID     `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Message is a chat message as stored in the feed and sent over the wire.
// Date is a unix timestamp in milliseconds assigned by the originating client
// or instance.
type Message struct {
	Id      string `json:"id,omitempty"`
	From    ID     `json:"from"`
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
	Date    int64  `json:"date"`
	Read    bool   `json:"read,omitempty"`
}

type RoomDescriptor struct {
	Id    string   `json:"id"`
	Names []string `json:"names"`
}

type ConversationMessage struct {
	Content   string `json:"content"`
	Sender    ID     `json:"sender"`
	Receiver  ID     `json:"receiver,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Read      bool   `json:"read"`
}

type Conversation struct {
	RoomId       string               `json:"roomId"`
	Participants []ID                 `json:"participants"`
	LastMessage  *ConversationMessage `json:"lastMessage"`
	UnreadCount  map[ID]int           `json:"unreadCount"`
}
