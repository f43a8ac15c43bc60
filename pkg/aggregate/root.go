package aggregate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/eventkit/pkg/event"
)

// Root is a live aggregate instance: identity, current version, state
// derived purely by folding event payloads, and the events staged by
// mutating operations but not yet persisted.
type Root[T any, PT PState[T]] struct {
	typ         *Type[T, PT]
	id          ID
	version     uint64
	state       PT
	uncommitted []*event.Envelope
}

func (r *Root[T, PT]) ID() ID {
	return r.id
}

// Version equals the number of events folded since genesis.
func (r *Root[T, PT]) Version() uint64 {
	return r.version
}

// State exposes the in-memory state for reads and for the Evolve calls
// of staged events. Callers must not mutate it directly.
func (r *Root[T, PT]) State() PT {
	return r.state
}

// Type returns the descriptor this root was built from.
func (r *Root[T, PT]) Type() *Type[T, PT] {
	return r.typ
}

// fold applies already-persisted events on top of the given baseline
// version. It never touches the uncommitted list.
func (r *Root[T, PT]) fold(baseline uint64, events []*event.Envelope) error {
	if err := event.ValidateSequence(baseline, events); err != nil {
		return err
	}
	for _, e := range events {
		body, err := r.typ.serder.Deserialize(e.Kind, e.Payload)
		if err != nil {
			return err
		}
		body.Evolve(r.state)
		r.version = e.Version
	}
	return nil
}

// Stage records one or more new events produced by a mutating operation
// and applies each to the in-memory state immediately, so later
// operations in the same unit of work observe the effect. Versions
// continue from the current one. The whole batch is validated before
// anything is applied: on error the aggregate is unchanged.
//
// Domain preconditions are the caller's job; Stage only fails on
// unregistered or unserializable event types.
func (r *Root[T, PT]) Stage(meta event.Metadata, bodies ...Evolver[T]) ([]*event.Envelope, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}

	staged := make([]*event.Envelope, len(bodies))
	for i, body := range bodies {
		kind, err := r.typ.registry.NameFor(body)
		if err != nil {
			return nil, fmt.Errorf("stage: %w", err)
		}
		payload, err := r.typ.serder.Serialize(body)
		if err != nil {
			return nil, fmt.Errorf("stage: %w", err)
		}
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("stage: %w", err)
		}
		staged[i] = &event.Envelope{
			ID:            id,
			AggregateID:   r.id.String(),
			AggregateType: r.typ.name,
			Kind:          kind,
			Version:       r.version + uint64(i) + 1,
			Payload:       payload,
			Metadata:      meta,
		}
	}

	for i, body := range bodies {
		body.Evolve(r.state)
		r.version = staged[i].Version
	}
	r.uncommitted = append(r.uncommitted, staged...)
	return staged, nil
}

// Uncommitted returns the staged events awaiting persistence, oldest
// first.
func (r *Root[T, PT]) Uncommitted() []*event.Envelope {
	return r.uncommitted
}

// Commit clears the staged events once the caller has persisted them.
func (r *Root[T, PT]) Commit() {
	r.uncommitted = nil
}
