// Package feed is the shared, timestamp-ordered message log of each room.
// Reads are oldest first: offset 0 is the earliest message in the room.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/types"
)

// Key is the shared-store key of a room's feed.
func Key(roomId string) string {
	return "room:" + roomId
}

// entry wraps a message with a unique id so that two appends of an
// identical message are stored as two members of the sorted set.
type entry struct {
	EntryId string        `json:"entry_id"`
	Message types.Message `json:"message"`
}

type Feed struct {
	kv kv.Store
}

func New(s kv.Store) *Feed {
	return &Feed{kv: s}
}

func (f *Feed) Append(ctx context.Context, roomId string, msg types.Message) error {
	data, err := json.Marshal(entry{EntryId: uuid.NewString(), Message: msg})
	if err != nil {
		return fmt.Errorf("marshal feed entry: %w", err)
	}

	if err := f.kv.ZAdd(ctx, Key(roomId), float64(msg.Date), string(data)); err != nil {
		return fmt.Errorf("append to feed: %w", err)
	}
	return nil
}

// Read returns up to size messages starting at offset, oldest first.
func (f *Feed) Read(ctx context.Context, roomId string, offset, size int) ([]types.Message, error) {
	if size <= 0 {
		return []types.Message{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	start := int64(offset)
	stop := int64(-1)
	if int64(size) <= math.MaxInt64-start {
		stop = start + int64(size) - 1
	}

	members, err := f.kv.ZRange(ctx, Key(roomId), start, stop)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	msgs := make([]types.Message, 0, len(members))
	for _, m := range members {
		var e entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("decode feed entry: %w", err)
		}
		msgs = append(msgs, e.Message)
	}
	return msgs, nil
}

// Count returns the number of messages in the room's feed. Callers wanting
// the latest n messages read from offset Count-n.
func (f *Feed) Count(ctx context.Context, roomId string) (int, error) {
	n, err := f.kv.ZCard(ctx, Key(roomId))
	if err != nil {
		return 0, fmt.Errorf("count feed: %w", err)
	}
	return int(n), nil
}
