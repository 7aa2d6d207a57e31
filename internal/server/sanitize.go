package server

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/npezzotti/go-chatroom/internal/rooms"
	"github.com/npezzotti/go-chatroom/internal/types"
)

var ErrValidation = errors.New("invalid message")

// sanitize normalizes the body to NFC and escapes HTML so it can be rendered
// verbatim by clients.
func sanitize(body string) string {
	return html.EscapeString(norm.NFC.String(strings.TrimSpace(body)))
}

// validateMessage checks the shape of an inbound message and that it was
// sent by the socket's user. Private room keys are rewritten to their
// canonical order.
func validateMessage(msg *types.Message, sender types.ID) error {
	if msg.From == "" || msg.RoomId == "" || strings.TrimSpace(msg.Message) == "" {
		return fmt.Errorf("%w: from, roomId and message are required", ErrValidation)
	}
	if msg.From != sender {
		return fmt.Errorf("%w: sender does not match session user", ErrValidation)
	}

	if !rooms.IsPrivateKey(msg.RoomId) {
		return nil
	}

	a, b, err := rooms.ParsePrivateKey(msg.RoomId)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if a == b {
		return fmt.Errorf("%w: %v", ErrValidation, rooms.ErrSameUser)
	}
	if msg.From != a && msg.From != b {
		return fmt.Errorf("%w: sender is not a participant of %q", ErrValidation, msg.RoomId)
	}
	msg.RoomId = rooms.DerivePrivateKey(a, b)

	return nil
}

// receiverOf returns the other participant of a canonical private room key.
func receiverOf(roomKey string, sender types.ID) types.ID {
	a, b, _ := rooms.ParsePrivateKey(roomKey)
	if sender == a {
		return b
	}
	return a
}
