package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/npezzotti/go-chatroom/internal/types"
)

func Test_sanitize(t *testing.T) {
	tcases := []struct {
		in, out string
	}{
		{"hi", "hi"},
		{"  hi  ", "hi"},
		{"<script>alert('x')</script>", "&lt;script&gt;alert(&#39;x&#39;)&lt;/script&gt;"},
		{"a & b", "a &amp; b"},
		// decomposed e + combining acute becomes the composed form
		{"café", "café"},
	}

	for _, tc := range tcases {
		assert.Equal(t, tc.out, sanitize(tc.in), "sanitize(%q)", tc.in)
	}
}

func Test_validateMessage(t *testing.T) {
	tcases := []struct {
		name   string
		msg    types.Message
		sender types.ID
		room   string
		err    bool
	}{
		{
			name:   "group message",
			msg:    types.Message{From: "1", RoomId: "0", Message: "hi"},
			sender: "1",
			room:   "0",
		},
		{
			name:   "private message is canonicalized",
			msg:    types.Message{From: "10", RoomId: "10:2", Message: "hi"},
			sender: "10",
			room:   "2:10",
		},
		{
			name:   "missing body",
			msg:    types.Message{From: "1", RoomId: "0"},
			sender: "1",
			err:    true,
		},
		{
			name:   "forged sender",
			msg:    types.Message{From: "2", RoomId: "0", Message: "hi"},
			sender: "1",
			err:    true,
		},
		{
			name:   "same user private room",
			msg:    types.Message{From: "1", RoomId: "1:1", Message: "hi"},
			sender: "1",
			err:    true,
		},
		{
			name:   "empty participant",
			msg:    types.Message{From: "1", RoomId: "1:", Message: "hi"},
			sender: "1",
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.msg
			err := validateMessage(&msg, tc.sender)
			if tc.err {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.room, msg.RoomId)
		})
	}
}

func Test_receiverOf(t *testing.T) {
	assert.Equal(t, types.ID("2"), receiverOf("1:2", "1"))
	assert.Equal(t, types.ID("1"), receiverOf("1:2", "2"))
}
