package snapshot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/eventkit/pkg/aggregate"
	"github.com/clinicore/eventkit/pkg/clinic"
	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/snapshot"
	"github.com/clinicore/eventkit/pkg/statecodec"
)

func leadHistory(t *testing.T, typ *clinic.LeadType, id aggregate.ID) []*event.Envelope {
	t.Helper()
	meta := event.Metadata{Timestamp: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}

	root, err := clinic.CreateLead(typ, id, "whatsapp", meta)
	require.NoError(t, err)
	require.NoError(t, clinic.ScoreLead(root, 2, "COLD", meta))
	require.NoError(t, clinic.ScoreLead(root, 4, "WARM", meta))
	require.NoError(t, clinic.ScoreLead(root, 5, "HOT", meta))
	require.NoError(t, clinic.ConvertLead(root, "patient-9", meta))
	return root.Uncommitted()
}

func requireStateEqual(t *testing.T, want, got *clinic.LeadRoot) {
	t.Helper()
	wantState, err := want.State().MarshalState()
	require.NoError(t, err)
	gotState, err := got.State().MarshalState()
	require.NoError(t, err)
	assert.True(t, statecodec.Equal(wantState, gotState), "state mismatch: want %#v, got %#v", wantState, gotState)
}

func TestTakeRestoreIdentity(t *testing.T) {
	typ := clinic.NewLeadType()
	events := leadHistory(t, typ, "lead-1")

	full, err := typ.FromEvents("lead-1", events)
	require.NoError(t, err)

	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	snap, err := snapshot.Take(full, now)
	require.NoError(t, err)
	assert.Equal(t, "lead-1", snap.AggregateID)
	assert.Equal(t, "lead", snap.AggregateType)
	assert.Equal(t, full.Version(), snap.Version)
	assert.Equal(t, now, snap.CreatedAt)

	restored, err := snapshot.Restore(typ, snap, nil)
	require.NoError(t, err)
	assert.Equal(t, full.Version(), restored.Version())
	requireStateEqual(t, full, restored)
}

// Replay equivalence: for every split point k, restoring a snapshot of
// the first k events plus the remaining events equals a full replay.
func TestReplayEquivalenceAtEverySplitPoint(t *testing.T) {
	typ := clinic.NewLeadType()
	events := leadHistory(t, typ, "lead-2")

	full, err := typ.FromEvents("lead-2", events)
	require.NoError(t, err)

	for k := 0; k <= len(events); k++ {
		prefix, err := typ.FromEvents("lead-2", events[:k])
		require.NoError(t, err)

		snap, err := snapshot.Take(prefix, time.Now())
		require.NoError(t, err)
		require.Equal(t, uint64(k), snap.Version)

		restored, err := snapshot.Restore(typ, snap, events[k:])
		require.NoError(t, err, "split point %d", k)
		assert.Equal(t, full.Version(), restored.Version(), "split point %d", k)
		requireStateEqual(t, full, restored)
	}
}

func TestRestoreVersionGapAfterSnapshot(t *testing.T) {
	typ := clinic.NewLeadType()
	events := leadHistory(t, typ, "lead-3")

	prefix, err := typ.FromEvents("lead-3", events[:3])
	require.NoError(t, err)
	snap, err := snapshot.Take(prefix, time.Now())
	require.NoError(t, err)

	// Skip event 4: versions [5] after a version-3 snapshot.
	_, err = snapshot.Restore(typ, snap, events[4:])
	require.ErrorIs(t, err, event.ErrStreamCorruption)
}

func TestRestoreRejectsForeignAggregateType(t *testing.T) {
	leads := clinic.NewLeadType()
	events := leadHistory(t, leads, "lead-4")
	root, err := leads.FromEvents("lead-4", events)
	require.NoError(t, err)
	snap, err := snapshot.Take(root, time.Now())
	require.NoError(t, err)

	patients := clinic.NewPatientType()
	_, err = patients.FromSnapshot(snap, nil)
	require.Error(t, err)
}
