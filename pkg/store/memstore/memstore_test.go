package memstore_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/store"
	"github.com/clinicore/eventkit/pkg/store/memstore"
)

func batch(aggregateID string, from, count uint64) []*event.Envelope {
	events := make([]*event.Envelope, 0, count)
	for i := uint64(0); i < count; i++ {
		events = append(events, &event.Envelope{
			ID:            uuid.New(),
			AggregateID:   aggregateID,
			AggregateType: "thing",
			Kind:          "thing.happened",
			Version:       from + i + 1,
			Payload:       []byte(`{}`),
			Metadata:      event.Metadata{Timestamp: time.Now().UTC(), CorrelationID: "corr-1"},
		})
	}
	return events
}

func TestAppendAndRead(t *testing.T) {
	ctx := t.Context()
	s := memstore.NewEventStore()

	require.NoError(t, s.Append(ctx, "agg-1", batch("agg-1", 0, 3), 0))
	require.NoError(t, s.Append(ctx, "agg-1", batch("agg-1", 3, 2), 3))

	events, err := s.ReadEvents(ctx, "agg-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Version)
	}

	tail, err := s.ReadEvents(ctx, "agg-1", 3)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(4), tail[0].Version)
}

func TestAppendConflict(t *testing.T) {
	ctx := t.Context()
	s := memstore.NewEventStore()
	require.NoError(t, s.Append(ctx, "agg-1", batch("agg-1", 0, 3), 0))

	// Stale writer: the stream is at 3, not 2. Nothing is applied.
	err := s.Append(ctx, "agg-1", batch("agg-1", 2, 1), 2)
	require.ErrorIs(t, err, store.ErrConcurrencyConflict)

	var conflict *store.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "agg-1", conflict.AggregateID)
	assert.Equal(t, uint64(2), conflict.Expected)
	assert.Equal(t, uint64(3), conflict.Actual)

	events, rerr := s.ReadEvents(ctx, "agg-1", 0)
	require.NoError(t, rerr)
	assert.Len(t, events, 3)
}

func TestAppendOnlyOneOfTwoRacersWins(t *testing.T) {
	ctx := t.Context()
	s := memstore.NewEventStore()
	require.NoError(t, s.Append(ctx, "agg-1", batch("agg-1", 0, 1), 0))

	first := s.Append(ctx, "agg-1", batch("agg-1", 1, 1), 1)
	second := s.Append(ctx, "agg-1", batch("agg-1", 1, 1), 1)
	require.NoError(t, first)
	require.ErrorIs(t, second, store.ErrConcurrencyConflict)
}

func TestAppendRejectsGappedBatch(t *testing.T) {
	ctx := t.Context()
	s := memstore.NewEventStore()

	events := batch("agg-1", 0, 2)
	events[1].Version = 3
	err := s.Append(ctx, "agg-1", events, 0)
	require.ErrorIs(t, err, event.ErrStreamCorruption)

	_, rerr := s.ReadEvents(ctx, "agg-1", 0)
	assert.ErrorIs(t, rerr, store.ErrNoAggregate)
}

func TestReadEventsUnknownAggregate(t *testing.T) {
	_, err := memstore.NewEventStore().ReadEvents(t.Context(), "ghost", 0)
	require.ErrorIs(t, err, store.ErrNoAggregate)
}

func TestSnapshotStore(t *testing.T) {
	ctx := t.Context()
	s := memstore.NewSnapshotStore()

	_, err := s.Load(ctx, "agg-1")
	require.ErrorIs(t, err, store.ErrNoSnapshot)

	snap := &store.Snapshot{
		AggregateID:   "agg-1",
		AggregateType: "thing",
		Version:       3,
		State:         []byte(`{"n":1}`),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, "agg-1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestProjectionStore(t *testing.T) {
	ctx := t.Context()
	s := memstore.NewProjectionStore()

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	records := []store.ProjectionRecord{
		{Name: "lead-stats", Version: 1, State: `{"totalLeads":0}`},
		{Name: "appointment-load", Version: 1, State: `{"scheduled":0}`},
	}
	require.NoError(t, s.Save(ctx, records))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	// The store holds a copy, not the caller's slice.
	records[0].State = "mutated"
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"totalLeads":0}`, got[0].State)
}
