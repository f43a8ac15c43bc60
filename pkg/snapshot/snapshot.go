// Package snapshot captures and restores point-in-time aggregate state
// through the state codec, bounding replay cost.
//
// Contract: Restore(t, Take(r, now), nil) is state-equivalent to r, and
// Restore with later events equals FromEvents over the full history.
// Cadence is the caller's decision; Take is a pure read.
package snapshot

import (
	"fmt"
	"time"

	"github.com/clinicore/eventkit/pkg/aggregate"
	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/statecodec"
	"github.com/clinicore/eventkit/pkg/store"
)

// Take encodes the aggregate's current state, tagged with its version
// and type. The root is not modified.
func Take[T any, PT aggregate.PState[T]](r *aggregate.Root[T, PT], now time.Time) (*store.Snapshot, error) {
	val, err := r.State().MarshalState()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	encoded, err := statecodec.Encode(val)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &store.Snapshot{
		AggregateID:   r.ID().String(),
		AggregateType: r.Type().Name(),
		Version:       r.Version(),
		State:         encoded,
		CreatedAt:     now.UTC(),
	}, nil
}

// Restore rebuilds an aggregate from a snapshot plus the events recorded
// after it (versions snapshot.Version+1 onwards, gapless).
func Restore[T any, PT aggregate.PState[T]](t *aggregate.Type[T, PT], snap *store.Snapshot, since []*event.Envelope) (*aggregate.Root[T, PT], error) {
	return t.FromSnapshot(snap, since)
}
