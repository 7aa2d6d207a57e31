package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-chatroom/internal/bridge"
	"github.com/npezzotti/go-chatroom/internal/rooms"
	"github.com/npezzotti/go-chatroom/internal/types"
)

// idempotencyTTL bounds how long a client supplied message id is remembered.
const idempotencyTTL = 24 * time.Hour

func idempotencyKey(id string) string {
	return "msg:" + id
}

func (cs *ChatServer) handleJoinEvent(c *Client, data json.RawMessage) {
	var roomId types.ID
	if err := json.Unmarshal(data, &roomId); err != nil || roomId == "" {
		c.queueMessage(ErrInvalidMessage("room.join requires a room id"))
		return
	}

	id, err := rooms.CanonicalRoomId(roomId.String())
	if err != nil {
		c.queueMessage(ErrInvalidMessage(err.Error()))
		return
	}

	cs.joinRoom(c, id)
}

// handleMessage runs the inbound message pipeline: validate, deduplicate,
// sanitize, append to the feed, record durably, emit locally and publish.
// Any failure is reported to the sending socket only.
func (cs *ChatServer) handleMessage(c *Client, data json.RawMessage) {
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.queueMessage(ErrInvalidMessage("invalid message format"))
		return
	}

	if err := validateMessage(&msg, c.user.Id); err != nil {
		c.log.Info("rejected message", "err", err)
		c.queueMessage(ErrInvalidMessage(err.Error()))
		return
	}

	ctx, cancel := cs.storeContext()
	defer cancel()

	if msg.Id != "" {
		fresh, err := cs.kv.SetNX(ctx, idempotencyKey(msg.Id), "1", idempotencyTTL)
		if err != nil {
			c.log.Error("idempotency check failed", "message_id", msg.Id, "err", err)
			c.queueMessage(ErrServiceUnavailable())
			return
		}
		if !fresh {
			c.log.Debug("dropping duplicate message", "message_id", msg.Id)
			return
		}
	}

	if msg.Date == 0 {
		msg.Date = cs.now().UnixMilli()
	}
	msg.Message = sanitize(msg.Message)
	msg.Read = false

	if err := cs.record(ctx, c, msg); err != nil {
		c.log.Error("failed to record message", "room_id", msg.RoomId, "err", err)
		cs.releaseMessageId(c, msg.Id)
		c.queueMessage(ErrInternalError())
		return
	}

	cs.broadcast(NewChatMessage(msg))
	cs.stats.Incr("NumMessages")
	cs.publish(ctx, EventMessage, msg)
}

// releaseMessageId forgets a claimed message id so that a retry of a failed
// message is processed instead of dropped as a duplicate.
func (cs *ChatServer) releaseMessageId(c *Client, id string) {
	if id == "" {
		return
	}

	ctx, cancel := cs.storeContext()
	defer cancel()
	if err := cs.kv.Del(ctx, idempotencyKey(id)); err != nil {
		c.log.Error("failed to release message id", "message_id", id, "err", err)
	}
}

// record appends the message to the feed and then writes it to the durable
// store. The two writes are independent; a durable failure leaves the feed
// entry in place.
func (cs *ChatServer) record(ctx context.Context, c *Client, msg types.Message) error {
	if err := cs.feed.Append(ctx, msg.RoomId, msg); err != nil {
		return err
	}

	if !rooms.IsPrivateKey(msg.RoomId) {
		return cs.store.RecordGroupMessage(ctx, msg.RoomId, msg)
	}

	receiver := receiverOf(msg.RoomId, msg.From)
	if err := cs.store.RecordPrivateMessage(ctx, msg.From, receiver, msg.RoomId, msg); err != nil {
		return err
	}

	cs.announcePrivateRoom(ctx, c, msg.From, receiver)
	return nil
}

// announcePrivateRoom indexes the private room for both participants and
// emits show.room the first time the room receives a message.
func (cs *ChatServer) announcePrivateRoom(ctx context.Context, c *Client, sender, receiver types.ID) {
	key, _, err := cs.rooms.EnsurePrivateRoom(ctx, sender, receiver)
	if err != nil {
		c.log.Error("failed to index private room", "err", err)
		return
	}

	first, err := cs.rooms.Announce(ctx, key)
	if err != nil {
		c.log.Error("failed to announce private room", "room_id", key, "err", err)
		return
	}
	if !first {
		return
	}

	desc, err := cs.rooms.PrivateDescriptor(ctx, key)
	if err != nil {
		c.log.Error("failed to describe private room", "room_id", key, "err", err)
		return
	}

	cs.broadcast(ShowRoom(desc, c))
	cs.publish(ctx, EventShowRoom, desc)
}

// HandleRemote re-emits an event published by another instance to the local
// sockets. Chat messages go to the room's local group, every other event to
// all sockets.
func (cs *ChatServer) HandleRemote(env bridge.Envelope) {
	msg, err := decodeRemote(env)
	if err != nil {
		cs.log.Warn("dropping remote event", "server_id", env.ServerId, "event", env.Type, "err", err)
		return
	}
	cs.broadcast(msg)
}

func decodeRemote(env bridge.Envelope) (*ServerMessage, error) {
	switch env.Type {
	case EventMessage:
		var msg types.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, err
		}
		if msg.RoomId == "" {
			return nil, errors.New("message without room")
		}
		return NewChatMessage(msg), nil
	case EventUserConnected, EventUserDisconnected:
		var user types.UserPresence
		if err := json.Unmarshal(env.Data, &user); err != nil {
			return nil, err
		}
		if user.Id == "" {
			return nil, errors.New("presence event without user")
		}
		if env.Type == EventUserConnected {
			return UserConnected(user, nil), nil
		}
		return UserDisconnected(user), nil
	case EventShowRoom:
		var room types.RoomDescriptor
		if err := json.Unmarshal(env.Data, &room); err != nil {
			return nil, err
		}
		if room.Id == "" {
			return nil, errors.New("room event without id")
		}
		return ShowRoom(room, nil), nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
