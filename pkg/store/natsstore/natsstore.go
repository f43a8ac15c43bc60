// Package natsstore bundles the JetStream event stream and snapshot
// store for one aggregate type.
package natsstore

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/clinicore/eventkit/pkg/store/natsstore/esnats"
	"github.com/clinicore/eventkit/pkg/store/natsstore/snapnats"
)

type options struct {
	esOpts []esnats.Option
	ssOpts []snapnats.Option
}

type Option func(*options)

func WithInMemory() Option {
	return func(o *options) {
		o.esOpts = append(o.esOpts, esnats.WithInMemory())
		o.ssOpts = append(o.ssOpts, snapnats.WithInMemory())
	}
}

// Stores holds both halves of an aggregate type's durable storage.
type Stores struct {
	Events    *esnats.Stream
	Snapshots *snapnats.Store
}

// New creates the stream and snapshot bucket for aggrType.
func New(ctx context.Context, js jetstream.JetStream, aggrType string, opts ...Option) (*Stores, error) {
	op := options{}
	for _, opt := range opts {
		opt(&op)
	}
	es, err := esnats.NewStream(ctx, js, aggrType, op.esOpts...)
	if err != nil {
		return nil, err
	}
	ss, err := snapnats.NewStore(ctx, js, aggrType, op.ssOpts...)
	if err != nil {
		return nil, err
	}
	return &Stores{Events: es, Snapshots: ss}, nil
}
