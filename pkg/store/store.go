// Package store declares the persistence contracts the core consumes and
// the shapes that cross them. Implementations live in the subpackages;
// the core itself performs no I/O.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/eventkit/pkg/event"
)

var (
	// ErrNoAggregate is returned by ReadEvents for an unknown stream.
	ErrNoAggregate = errors.New("store: no aggregate messages")
	// ErrNoSnapshot is returned by Load when no snapshot was taken yet.
	ErrNoSnapshot = errors.New("store: no snapshot")
	// ErrConcurrencyConflict marks a stale append. Recoverable: the
	// caller reloads the aggregate and retries; the store applied
	// nothing.
	ErrConcurrencyConflict = errors.New("store: concurrency conflict")
)

// ConflictError reports a rejected append, carrying the version the
// writer expected and the version the store holds.
type ConflictError struct {
	AggregateID string
	Expected    uint64
	Actual      uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: concurrency conflict on aggregate %q: expected version %d, stored version %d", e.AggregateID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// EventStore is the append-only event log collaborator. Append must be
// atomic: on a version mismatch it rejects the whole batch with a
// ConflictError and mutates nothing. ReadEvents returns events with
// version > fromVersion in ascending order.
type EventStore interface {
	Append(ctx context.Context, aggregateID string, events []*event.Envelope, expectedVersion uint64) error
	ReadEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]*event.Envelope, error)
}

// Snapshot is the persisted point-in-time state of an aggregate. State
// holds statecodec-encoded text. Snapshots are never mutated, only
// superseded.
type Snapshot struct {
	AggregateID   string    `json:"aggregateId"`
	AggregateType string    `json:"aggregateType"`
	Version       uint64    `json:"version"`
	State         []byte    `json:"state"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SnapshotStore persists the latest snapshot per aggregate.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// ProjectionRecord is the persisted shape of one projection, as produced
// by the manager. State holds statecodec-encoded text.
type ProjectionRecord struct {
	Name               string    `json:"name"`
	Version            int       `json:"version"`
	State              string    `json:"state"`
	LastEventID        string    `json:"lastEventId"`
	LastEventTimestamp time.Time `json:"lastEventTimestamp"`
}

// ProjectionStore persists projection records between runs.
type ProjectionStore interface {
	Save(ctx context.Context, records []ProjectionRecord) error
	Load(ctx context.Context) ([]ProjectionRecord, error)
}
