// Package bridge fans locally originated events out to every other chat
// instance over one shared broadcast channel, and hands events published by
// other instances back to the local router.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/npezzotti/go-chatroom/internal/stats"
)

// DefaultChannel is the broadcast channel all instances share. Envelopes are
// self-describing, so one channel carries every event type.
const DefaultChannel = "MESSAGES"

// Envelope is the unit sent on the broadcast channel.
type Envelope struct {
	ServerId string          `json:"serverId"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

type Handler func(Envelope)

type Bridge struct {
	serverId  string
	channel   string
	transport Transport
	log       *slog.Logger
	stats     stats.StatsProvider
}

func New(serverId, channel string, t Transport, logger *slog.Logger, su stats.StatsProvider) *Bridge {
	if channel == "" {
		channel = DefaultChannel
	}

	su.RegisterMetric("NumPublishedEvents")
	su.RegisterMetric("NumRemoteEvents")
	su.RegisterMetric("NumDroppedSelfEvents")

	return &Bridge{
		serverId:  serverId,
		channel:   channel,
		transport: t,
		log:       logger.With("component", "bridge", "channel", channel),
		stats:     su,
	}
}

func (b *Bridge) ServerId() string {
	return b.serverId
}

// Publish wraps payload in an envelope tagged with this instance's id and
// sends it on the shared channel.
func (b *Bridge) Publish(ctx context.Context, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	raw, err := json.Marshal(Envelope{
		ServerId: b.serverId,
		Type:     eventType,
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := b.transport.Publish(ctx, b.channel, raw); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	b.stats.Incr("NumPublishedEvents")
	return nil
}

// Subscriber consumes the shared channel until it is closed or the context
// given to Subscribe is cancelled.
type Subscriber struct {
	sub  Subscription
	done chan struct{}
}

func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) Close() error {
	err := s.sub.Close()
	<-s.done
	return err
}

// Subscribe starts delivering envelopes published by other instances to
// handler. The subscription is established when Subscribe returns, and
// handler is called from a single goroutine.
func (b *Bridge) Subscribe(ctx context.Context, handler Handler) (*Subscriber, error) {
	sub, err := b.transport.Subscribe(ctx, b.channel)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &Subscriber{sub: sub, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case data, ok := <-sub.C():
				if !ok {
					return
				}
				b.dispatch(data, handler)
			}
		}
	}()

	b.log.Info("subscribed to broadcast channel")
	return s, nil
}

func (b *Bridge) dispatch(data []byte, handler Handler) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.log.Warn("dropping undecodable envelope", "err", err)
		return
	}

	if env.Type == "" {
		b.log.Warn("dropping envelope without type", "server_id", env.ServerId)
		return
	}

	// our own events were already delivered locally before publishing
	if env.ServerId == b.serverId {
		b.stats.Incr("NumDroppedSelfEvents")
		return
	}

	b.stats.Incr("NumRemoteEvents")
	handler(env)
}
