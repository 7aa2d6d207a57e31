package bridge

import (
	"context"
	"sync"
)

// Transport moves raw envelopes between instances.
type Transport interface {
	Publish(ctx context.Context, channel string, data []byte) error
	// Subscribe returns once the subscription is active on the broker.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

type Subscription interface {
	// C is closed after Close.
	C() <-chan []byte
	Close() error
}

// pump forwards payloads to a subscriber's output channel until stopped.
type pump struct {
	out      chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func newPump() *pump {
	return &pump{
		out:  make(chan []byte),
		stop: make(chan struct{}),
	}
}

func (p *pump) C() <-chan []byte {
	return p.out
}

// run calls next until it reports no more payloads or the pump is stopped,
// then closes the output channel.
func (p *pump) run(next func() ([]byte, bool)) {
	defer close(p.out)
	for {
		data, ok := next()
		if !ok {
			return
		}
		select {
		case p.out <- data:
		case <-p.stop:
			return
		}
	}
}

func (p *pump) halt() {
	p.stopOnce.Do(func() { close(p.stop) })
}
