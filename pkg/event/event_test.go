package event_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/eventkit/pkg/event"
)

func envelope(version uint64) *event.Envelope {
	return &event.Envelope{
		ID:          uuid.New(),
		AggregateID: "lead-1",
		Kind:        "lead.created",
		Version:     version,
		Metadata:    event.Metadata{Timestamp: time.Now().UTC()},
	}
}

func TestValidateSequence(t *testing.T) {
	t.Run("gapless from genesis", func(t *testing.T) {
		events := []*event.Envelope{envelope(1), envelope(2), envelope(3)}
		assert.NoError(t, event.ValidateSequence(0, events))
	})

	t.Run("gapless from snapshot baseline", func(t *testing.T) {
		events := []*event.Envelope{envelope(4), envelope(5)}
		assert.NoError(t, event.ValidateSequence(3, events))
	})

	t.Run("gap fails", func(t *testing.T) {
		events := []*event.Envelope{envelope(1), envelope(2), envelope(4)}
		err := event.ValidateSequence(0, events)
		require.Error(t, err)
		assert.True(t, errors.Is(err, event.ErrStreamCorruption))

		var corr *event.StreamCorruptionError
		require.ErrorAs(t, err, &corr)
		assert.Equal(t, uint64(3), corr.Expected)
		assert.Equal(t, uint64(4), corr.Got)
	})

	t.Run("starting above baseline+1 fails", func(t *testing.T) {
		events := []*event.Envelope{envelope(2)}
		err := event.ValidateSequence(0, events)
		assert.True(t, errors.Is(err, event.ErrStreamCorruption))
	})

	t.Run("empty is valid", func(t *testing.T) {
		assert.NoError(t, event.ValidateSequence(7, nil))
	})
}

func TestEnvelopeValidate(t *testing.T) {
	valid := envelope(1)
	assert.NoError(t, valid.Validate())

	missingID := *valid
	missingID.ID = uuid.Nil
	assert.Error(t, missingID.Validate())

	zeroVersion := *valid
	zeroVersion.Version = 0
	assert.Error(t, zeroVersion.Validate())

	noKind := *valid
	noKind.Kind = ""
	assert.Error(t, noKind.Validate())

	noAggr := *valid
	noAggr.AggregateID = ""
	assert.Error(t, noAggr.Validate())
}
