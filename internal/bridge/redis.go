package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport uses redis PUBLISH/SUBSCRIBE. It normally shares the client
// of the redis-backed shared store.
type RedisTransport struct {
	client *redis.Client
}

var _ Transport = (*RedisTransport)(nil)

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, data []byte) error {
	return t.client.Publish(ctx, channel, data).Err()
}

func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := t.client.Subscribe(ctx, channel)
	// wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %q: %w", channel, err)
	}

	s := &redisSubscription{ps: ps, pump: newPump()}
	ch := ps.Channel()
	go s.run(func() ([]byte, bool) {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil, false
			}
			return []byte(msg.Payload), true
		case <-s.stop:
			return nil, false
		}
	})

	return s, nil
}

// Close is a no-op; the redis client is owned by the shared store.
func (t *RedisTransport) Close() error {
	return nil
}

type redisSubscription struct {
	*pump
	ps        *redis.PubSub
	closeOnce sync.Once
	closeErr  error
}

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.halt()
		s.closeErr = s.ps.Close()
	})
	return s.closeErr
}
