package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ConnectNats dials a NATS server with reconnect enabled.
func ConnectNats(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// NatsTransport publishes envelopes on a core NATS subject named after the
// broadcast channel.
type NatsTransport struct {
	nc *nats.Conn
}

var _ Transport = (*NatsTransport)(nil)

func NewNatsTransport(nc *nats.Conn) *NatsTransport {
	return &NatsTransport{nc: nc}
}

func (t *NatsTransport) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.nc.Publish(subject, data)
}

func (t *NatsTransport) Subscribe(ctx context.Context, subject string) (Subscription, error) {
	msgs := make(chan *nats.Msg, 256)
	sub, err := t.nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %q: %w", subject, err)
	}
	// make sure the server registered interest before returning
	if err := t.nc.FlushWithContext(ctx); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	s := &natsSubscription{sub: sub, pump: newPump()}
	go s.run(func() ([]byte, bool) {
		select {
		case msg := <-msgs:
			return msg.Data, true
		case <-s.stop:
			return nil, false
		}
	})

	return s, nil
}

func (t *NatsTransport) Close() error {
	t.nc.Close()
	return nil
}

type natsSubscription struct {
	*pump
	sub       *nats.Subscription
	closeOnce sync.Once
	closeErr  error
}

func (s *natsSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.halt()
		s.closeErr = s.sub.Unsubscribe()
	})
	return s.closeErr
}
