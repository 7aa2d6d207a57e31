package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-chatroom/internal/bridge"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/feed"
	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/presence"
	"github.com/npezzotti/go-chatroom/internal/rooms"
	"github.com/npezzotti/go-chatroom/internal/stats"
	"github.com/npezzotti/go-chatroom/internal/testutil"
	"github.com/npezzotti/go-chatroom/internal/types"
)

type stubDirectory map[types.ID]string

func (d stubDirectory) Username(_ context.Context, id types.ID) (string, error) {
	name, ok := d[id]
	if !ok {
		return "", errors.New("user not found")
	}
	return name, nil
}

var testUsers = stubDirectory{"1": "alice", "2": "bob", "3": "carol"}

// testInstance is one chat server wired to a shared store and transport.
type testInstance struct {
	cs       *ChatServer
	kv       kv.Store
	db       *database.MockGoChatRepository
	feed     *feed.Feed
	presence *presence.Store
	su       *stats.MockStatsUpdater
}

func newTestInstance(t *testing.T, id string, store kv.Store, tr bridge.Transport) *testInstance {
	t.Helper()

	su := stats.NewPermissiveMock()
	db := &database.MockGoChatRepository{}
	logger := testutil.TestLogger(t)

	inst := &testInstance{
		kv:       store,
		db:       db,
		feed:     feed.New(store),
		presence: presence.NewStore(store),
		su:       su,
	}

	cs, err := NewChatServer(logger, Options{
		KV:           store,
		Presence:     inst.presence,
		Rooms:        rooms.NewIndex(store, testUsers),
		Feed:         inst.feed,
		Store:        db,
		Bridge:       bridge.New(id, "", tr, logger, su),
		StoreTimeout: time.Second,
	}, su)
	require.NoError(t, err)
	cs.now = func() time.Time { return time.UnixMilli(5000) }
	inst.cs = cs

	return inst
}

// start runs the hub and subscribes it to the bridge until the test ends.
func (inst *testInstance) start(t *testing.T) *testInstance {
	t.Helper()
	cs := inst.cs

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := cs.bridge.Subscribe(ctx, cs.HandleRemote)
	require.NoError(t, err)

	go cs.Run()
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		cs.Shutdown(shutdownCtx)
		cancel()
		<-sub.Done()
	})

	return inst
}

func newSingleInstance(t *testing.T) *testInstance {
	return newTestInstance(t, "instance-a", kv.NewMemoryStore(), bridge.NewMemoryTransport()).start(t)
}

func newTestClient(t *testing.T, cs *ChatServer, id types.ID) *Client {
	return &Client{
		chatServer: cs,
		log:        testutil.TestLogger(t),
		user:       types.User{Id: id, Username: testUsers[id]},
		send:       make(chan *ServerMessage, 64),
		rooms:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

// connect registers a new socket for the user and waits for the hub.
func connect(t *testing.T, cs *ChatServer, id types.ID) *Client {
	t.Helper()
	c := newTestClient(t, cs, id)
	require.True(t, cs.RegisterClient(c))
	return c
}

// frame feeds one raw frame through the socket's dispatcher.
func frame(c *Client, raw string) {
	c.dispatch([]byte(raw))
}

// waitFor reads the client's queue until a message for event arrives.
func waitFor(t *testing.T, c *Client, event string) *ServerMessage {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case msg := <-c.send:
			if msg.Event == event {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", event)
			return nil
		}
	}
}

// countEvents drains the client's queue for a while and counts event.
func countEvents(c *Client, event string, d time.Duration) int {
	n := 0
	timeout := time.After(d)
	for {
		select {
		case msg := <-c.send:
			if msg.Event == event {
				n++
			}
		case <-timeout:
			return n
		}
	}
}
