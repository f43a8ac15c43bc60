// Package event defines the wire envelope shared by the aggregate
// runtime, the projection manager and the store adapters, together with
// the gapless version rule every replayed stream must satisfy.
package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metadata carries the tracing and attribution fields of an event.
type Metadata struct {
	// Timestamp is the instant the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// CorrelationID links the event to the request that triggered it.
	CorrelationID string `json:"correlationId"`
	// CausationID is the id of the event that caused this one, if any.
	CausationID *string `json:"causationId"`
	// ActorID identifies who triggered the event, if known.
	ActorID *string `json:"actorId"`
}

// Envelope is a single immutable domain event as it travels between the
// runtime and the stores. Version is the event's position in its
// aggregate's history, starting at 1.
type Envelope struct {
	ID            uuid.UUID `json:"id"`
	AggregateID   string    `json:"aggregateId"`
	AggregateType string    `json:"aggregateType"`
	Kind          string    `json:"type"`
	Version       uint64    `json:"version"`
	Payload       []byte    `json:"payload"`
	Metadata      Metadata  `json:"metadata"`
}

// Validate checks the structural invariants of a single envelope.
func (e *Envelope) Validate() error {
	if e.ID == uuid.Nil {
		return errors.New("event: missing id")
	}
	if e.AggregateID == "" {
		return errors.New("event: missing aggregate id")
	}
	if e.Kind == "" {
		return errors.New("event: missing kind")
	}
	if e.Version == 0 {
		return errors.New("event: version must be positive")
	}
	return nil
}

// ErrStreamCorruption marks a replayed sequence whose versions are not
// gapless. It is fatal: the stream must not be folded further.
var ErrStreamCorruption = errors.New("event: stream corruption")

// StreamCorruptionError describes where a replayed sequence broke.
type StreamCorruptionError struct {
	AggregateID string
	Expected    uint64
	Got         uint64
}

func (e *StreamCorruptionError) Error() string {
	return fmt.Sprintf("event: stream corruption on aggregate %q: expected version %d, got %d", e.AggregateID, e.Expected, e.Got)
}

func (e *StreamCorruptionError) Is(target error) bool {
	return target == ErrStreamCorruption
}

// ValidateSequence checks that events continue gaplessly from baseline:
// the first event must carry baseline+1 and each following event must
// increase the version by exactly 1.
func ValidateSequence(baseline uint64, events []*Envelope) error {
	next := baseline + 1
	for _, e := range events {
		if e.Version != next {
			return &StreamCorruptionError{AggregateID: e.AggregateID, Expected: next, Got: e.Version}
		}
		next++
	}
	return nil
}
