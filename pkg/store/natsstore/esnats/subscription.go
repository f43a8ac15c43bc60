package esnats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/clinicore/eventkit/pkg/event"
)

// Ordering controls how many events a subscription may process at once.
type Ordering uint

const (
	// Ordered delivers one event at a time, in stream order.
	Ordered Ordering = iota
	// Unordered allows concurrent redelivery and reordering.
	Unordered
)

// SubscribeParams configure a durable subscription.
type SubscribeParams struct {
	DurableName string
	Kinds       []string
	AggregateID string
	Ordering    Ordering
}

type SubscribeOption func(*SubscribeParams)

func WithDurableName(name string) SubscribeOption {
	return func(p *SubscribeParams) {
		p.DurableName = name
	}
}

func WithFilterByKind(kinds ...string) SubscribeOption {
	return func(p *SubscribeParams) {
		p.Kinds = append(p.Kinds, kinds...)
	}
}

func WithFilterByAggregateID(id string) SubscribeOption {
	return func(p *SubscribeParams) {
		p.AggregateID = id
	}
}

func WithUnordered() SubscribeOption {
	return func(p *SubscribeParams) {
		p.Ordering = Unordered
	}
}

// Drainer stops a subscription and flushes in-flight work.
type Drainer interface {
	Drain() error
}

type drainAdapter struct {
	jetstream.ConsumeContext
}

func (d *drainAdapter) Drain() error {
	d.ConsumeContext.Drain()
	return nil
}

func (p *SubscribeParams) aggrFilter() string {
	if p.AggregateID != "" {
		return p.AggregateID
	}
	return "*"
}

// Subscribe creates a durable consumer delivering every matching event
// to handler in stream order. A handler error NAKs the message for
// redelivery; successful handling ACKs it.
func (s *Stream) Subscribe(ctx context.Context, handler func(*event.Envelope) error, opts ...SubscribeOption) (Drainer, error) {
	params := &SubscribeParams{}
	for _, opt := range opts {
		opt(params)
	}
	if params.DurableName == "" {
		return nil, fmt.Errorf("esnats: subscribe: durable name is required")
	}

	var filter []string
	if len(params.Kinds) > 0 {
		for _, kind := range params.Kinds {
			filter = append(filter, fmt.Sprintf("es.%s.%s.%s", s.aggrType, params.aggrFilter(), kind))
		}
	} else {
		filter = append(filter, fmt.Sprintf("es.%s.%s.*", s.aggrType, params.aggrFilter()))
	}

	maxpend := maxAckPending
	if params.Ordering == Ordered {
		maxpend = 1
	}

	cons, err := s.js.CreateOrUpdateConsumer(ctx, s.streamName(), jetstream.ConsumerConfig{
		Durable:        params.DurableName,
		FilterSubjects: filter,
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		AckPolicy:      jetstream.AckExplicitPolicy,
		MaxAckPending:  maxpend,
	})
	if err != nil {
		return nil, fmt.Errorf("esnats: subscribe: %w", err)
	}

	ct, err := cons.Consume(func(msg jetstream.Msg) {
		var envel event.Envelope
		if err := json.Unmarshal(msg.Data(), &envel); err != nil {
			slog.Error("subscription decode", "error", err, "subject", msg.Subject())
			msg.Term()
			return
		}
		if err := handler(&envel); err != nil {
			slog.Warn("redelivering", "error", err, "subject", msg.Subject())
			msg.Nak()
			return
		}
		msg.Ack()
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		slog.Error("subscription consume", "error", err)
	}))
	if err != nil {
		return nil, fmt.Errorf("esnats: subscribe: %w", err)
	}
	slog.Info("subscription created", "subscription", params.DurableName, "stream", s.streamName())
	return &drainAdapter{ConsumeContext: ct}, nil
}
