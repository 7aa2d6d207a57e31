package bridge

import (
	"context"
	"sync"
)

// MemoryTransport connects bridges living in the same process. It backs
// single-instance deployments and tests that simulate several instances.
type MemoryTransport struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

var _ Transport = (*MemoryTransport)(nil)

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

func (t *MemoryTransport) Publish(ctx context.Context, channel string, data []byte) error {
	t.mu.RLock()
	subs := make([]*memorySubscription, 0, len(t.subs[channel]))
	for s := range t.subs[channel] {
		subs = append(subs, s)
	}
	t.mu.RUnlock()

	for _, s := range subs {
		buf := make([]byte, len(data))
		copy(buf, data)
		select {
		case s.in <- buf:
		case <-s.stop:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *MemoryTransport) Subscribe(_ context.Context, channel string) (Subscription, error) {
	s := &memorySubscription{
		t:       t,
		channel: channel,
		in:      make(chan []byte, 256),
		pump:    newPump(),
	}

	t.mu.Lock()
	if t.subs[channel] == nil {
		t.subs[channel] = make(map[*memorySubscription]struct{})
	}
	t.subs[channel][s] = struct{}{}
	t.mu.Unlock()

	go s.run(func() ([]byte, bool) {
		select {
		case data := <-s.in:
			return data, true
		case <-s.stop:
			return nil, false
		}
	})

	return s, nil
}

func (t *MemoryTransport) remove(s *memorySubscription) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.subs[s.channel], s)
	if len(t.subs[s.channel]) == 0 {
		delete(t.subs, s.channel)
	}
}

func (t *MemoryTransport) Close() error {
	return nil
}

type memorySubscription struct {
	*pump
	t       *MemoryTransport
	channel string
	in      chan []byte
}

func (s *memorySubscription) Close() error {
	s.t.remove(s)
	s.halt()
	return nil
}
