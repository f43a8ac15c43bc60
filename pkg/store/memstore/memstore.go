// Package memstore provides in-memory store implementations with the
// same contracts as the durable adapters. Used as the reference
// implementation in tests and for single-process setups.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/store"
)

// EventStore is an append-only in-memory event log with optimistic
// concurrency per aggregate.
type EventStore struct {
	mu      sync.RWMutex
	streams map[string][]*event.Envelope
}

func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[string][]*event.Envelope),
	}
}

func (s *EventStore) version(aggregateID string) uint64 {
	stream := s.streams[aggregateID]
	if len(stream) == 0 {
		return 0
	}
	return stream[len(stream)-1].Version
}

// Append stores the batch if expectedVersion matches the stream's
// current version. On a mismatch nothing is applied and a ConflictError
// is returned; the caller reloads and retries.
func (s *EventStore) Append(ctx context.Context, aggregateID string, events []*event.Envelope, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.version(aggregateID)
	if current != expectedVersion {
		return &store.ConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: current}
	}
	if err := event.ValidateSequence(current, events); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	s.streams[aggregateID] = append(s.streams[aggregateID], events...)
	return nil
}

// ReadEvents returns events with version > fromVersion in order.
func (s *EventStore) ReadEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]*event.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, ok := s.streams[aggregateID]
	if !ok {
		return nil, store.ErrNoAggregate
	}
	var out []*event.Envelope
	for _, e := range stream {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// SnapshotStore keeps the latest snapshot per aggregate.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*store.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[string]*store.Snapshot),
	}
}

func (s *SnapshotStore) Save(ctx context.Context, snap *store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.AggregateID] = snap
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, store.ErrNoSnapshot
	}
	return snap, nil
}

// ProjectionStore keeps the last saved set of projection records.
type ProjectionStore struct {
	mu      sync.RWMutex
	records []store.ProjectionRecord
}

func NewProjectionStore() *ProjectionStore {
	return &ProjectionStore{}
}

func (s *ProjectionStore) Save(ctx context.Context, records []store.ProjectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]store.ProjectionRecord(nil), records...)
	return nil
}

func (s *ProjectionStore) Load(ctx context.Context) ([]store.ProjectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.ProjectionRecord(nil), s.records...), nil
}
