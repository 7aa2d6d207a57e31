package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-chatroom/internal/stats"
	"github.com/npezzotti/go-chatroom/internal/testutil"
)

type recorder struct {
	mu   sync.Mutex
	envs []Envelope
}

func (r *recorder) handle(env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func (r *recorder) snapshot() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.envs))
	copy(out, r.envs)
	return out
}

func newBridge(t *testing.T, id string, tr Transport) *Bridge {
	return New(id, "", tr, testutil.TestLogger(t), stats.NewPermissiveMock())
}

// exercises a transport with two bridges on it: each remote event must reach
// the other instance once and never come back to its origin
func runCrossInstance(t *testing.T, tr Transport) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newBridge(t, "instance-a", tr)
	b := newBridge(t, "instance-b", tr)

	var recA, recB recorder
	subA, err := a.Subscribe(ctx, recA.handle)
	require.NoError(t, err)
	defer subA.Close()
	subB, err := b.Subscribe(ctx, recB.handle)
	require.NoError(t, err)
	defer subB.Close()

	payload := map[string]string{"from": "1", "roomId": "0", "message": "hi"}
	require.NoError(t, a.Publish(ctx, "message", payload))

	require.Eventually(t, func() bool {
		return len(recB.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// give a stray duplicate time to show up
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, recB.snapshot(), 1)
	assert.Empty(t, recA.snapshot())

	got := recB.snapshot()[0]
	assert.Equal(t, "instance-a", got.ServerId)
	assert.Equal(t, "message", got.Type)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(got.Data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestBridge_MemoryTransport(t *testing.T) {
	runCrossInstance(t, NewMemoryTransport())
}

func TestBridge_RedisTransport(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	runCrossInstance(t, NewRedisTransport(client))
}

func TestBridge_NatsTransport(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)

	tr := NewNatsTransport(nc)
	defer tr.Close()

	runCrossInstance(t, tr)
}

func TestBridge_Dispatch(t *testing.T) {
	tcases := []struct {
		name      string
		data      string
		delivered bool
		metric    string
	}{
		{
			name:      "remote event",
			data:      `{"serverId":"other","type":"user.connected","data":{"id":"1"}}`,
			delivered: true,
			metric:    "NumRemoteEvents",
		},
		{
			name:   "own event",
			data:   `{"serverId":"self","type":"user.connected","data":{"id":"1"}}`,
			metric: "NumDroppedSelfEvents",
		},
		{
			name: "undecodable",
			data: `not json`,
		},
		{
			name: "missing type",
			data: `{"serverId":"other","data":{}}`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			su := &stats.MockStatsUpdater{}
			su.On("RegisterMetric", "NumPublishedEvents").Once()
			su.On("RegisterMetric", "NumRemoteEvents").Once()
			su.On("RegisterMetric", "NumDroppedSelfEvents").Once()
			if tc.metric != "" {
				su.On("Incr", tc.metric).Once()
			}

			b := New("self", "", NewMemoryTransport(), testutil.TestLogger(t), su)

			var rec recorder
			b.dispatch([]byte(tc.data), rec.handle)

			if tc.delivered {
				assert.Len(t, rec.snapshot(), 1)
			} else {
				assert.Empty(t, rec.snapshot())
			}
			su.AssertExpectations(t)
		})
	}
}

func TestBridge_SubscribeStopsOnContextCancel(t *testing.T) {
	tr := NewMemoryTransport()
	b := newBridge(t, "instance-a", tr)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, func(Envelope) {})
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop after cancel")
	}

	tr.mu.RLock()
	assert.Empty(t, tr.subs)
	tr.mu.RUnlock()
}

func TestBridge_PublishCountsEvents(t *testing.T) {
	su := stats.NewPermissiveMock()
	b := New("instance-a", "custom", NewMemoryTransport(), testutil.TestLogger(t), su)

	assert.Equal(t, "instance-a", b.ServerId())
	require.NoError(t, b.Publish(context.Background(), "show.room", map[string]string{"id": "1:2"}))
	su.AssertCalled(t, "Incr", "NumPublishedEvents")

	assert.Error(t, b.Publish(context.Background(), "bad", make(chan int)))
}
