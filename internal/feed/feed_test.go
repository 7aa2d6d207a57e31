package feed

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_AppendRead(t *testing.T) {
	ctx := context.Background()
	f := New(kv.NewMemoryStore())

	msg := types.Message{From: "1", RoomId: "0", Message: "hi", Date: 1000}
	require.NoError(t, f.Append(ctx, "0", msg))

	msgs, err := f.Read(ctx, "0", 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, []types.Message{msg}, msgs)
}

func TestFeed_ReadOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	f := New(kv.NewMemoryStore())

	// appended out of order, read back by date
	for _, date := range []int64{5, 1, 4, 2, 3} {
		require.NoError(t, f.Append(ctx, "0", types.Message{
			From:    "1",
			RoomId:  "0",
			Message: fmt.Sprintf("m%d", date),
			Date:    date,
		}))
	}

	tcases := []struct {
		name     string
		offset   int
		size     int
		expected []string
	}{
		{name: "first page", offset: 0, size: 2, expected: []string{"m1", "m2"}},
		{name: "second page", offset: 2, size: 2, expected: []string{"m3", "m4"}},
		{name: "partial page", offset: 4, size: 2, expected: []string{"m5"}},
		{name: "past the end", offset: 10, size: 2, expected: []string{}},
		{name: "zero size", offset: 0, size: 0, expected: []string{}},
		{name: "negative offset", offset: -3, size: 1, expected: []string{"m1"}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msgs, err := f.Read(ctx, "0", tc.offset, tc.size)
			assert.NoError(t, err)

			bodies := make([]string, 0, len(msgs))
			for _, m := range msgs {
				bodies = append(bodies, m.Message)
			}
			assert.Equal(t, tc.expected, bodies)

			again, err := f.Read(ctx, "0", tc.offset, tc.size)
			assert.NoError(t, err)
			assert.Equal(t, msgs, again, "expected repeated reads to be stable")
		})
	}
}

func TestFeed_ReadHugeSize(t *testing.T) {
	ctx := context.Background()
	f := New(kv.NewMemoryStore())

	for date := int64(1); date <= 4; date++ {
		require.NoError(t, f.Append(ctx, "0", types.Message{From: "1", RoomId: "0", Message: "m", Date: date}))
	}

	msgs, err := f.Read(ctx, "0", 2, math.MaxInt)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "expected every message from the offset onward")
	assert.Equal(t, int64(3), msgs[0].Date)
	assert.Equal(t, int64(4), msgs[1].Date)
}

func TestFeed_NoDeduplication(t *testing.T) {
	ctx := context.Background()
	f := New(kv.NewMemoryStore())

	msg := types.Message{From: "1", RoomId: "0", Message: "retry", Date: 1000}
	require.NoError(t, f.Append(ctx, "0", msg))
	require.NoError(t, f.Append(ctx, "0", msg))

	n, err := f.Count(ctx, "0")
	assert.NoError(t, err)
	assert.Equal(t, 2, n, "expected both appends to be kept")

	msgs, err := f.Read(ctx, "0", 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, []types.Message{msg, msg}, msgs)
}

func TestFeed_EmptyRoom(t *testing.T) {
	f := New(kv.NewMemoryStore())

	msgs, err := f.Read(context.Background(), "missing", 0, 20)
	assert.NoError(t, err)
	assert.Empty(t, msgs)

	n, err := f.Count(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Zero(t, n)
}
