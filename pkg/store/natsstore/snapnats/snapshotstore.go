// Package snapnats persists aggregate snapshots in a JetStream
// key/value bucket, one bucket per aggregate type, latest snapshot wins.
package snapnats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/clinicore/eventkit/pkg/store"
)

type StoreType jetstream.StorageType

const (
	Disk StoreType = iota
	Memory
)

// Store implements store.SnapshotStore over a KV bucket.
type Store struct {
	aggrType  string
	storeType StoreType
	kv        jetstream.KeyValue
}

type Option func(*Store)

func WithInMemory() Option {
	return func(s *Store) {
		s.storeType = Memory
	}
}

// NewStore creates or updates the snapshot bucket for aggrType.
func NewStore(ctx context.Context, js jetstream.JetStream, aggrType string, opts ...Option) (*Store, error) {
	s := &Store{aggrType: aggrType}
	for _, opt := range opts {
		opt(s)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  "snapshots-" + aggrType,
		Storage: jetstream.StorageType(s.storeType),
	})
	if err != nil {
		return nil, fmt.Errorf("snapnats: create bucket: %w", err)
	}
	s.kv = kv
	return s, nil
}

func (s *Store) Save(ctx context.Context, snap *store.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapnats: save: %w", err)
	}
	if _, err := s.kv.Put(ctx, snap.AggregateID, b); err != nil {
		return fmt.Errorf("snapnats: save: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	v, err := s.kv.Get(ctx, aggregateID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, store.ErrNoSnapshot
		}
		return nil, fmt.Errorf("snapnats: load: %w", err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(v.Value(), &snap); err != nil {
		return nil, fmt.Errorf("snapnats: load: %w", err)
	}
	return &snap, nil
}
