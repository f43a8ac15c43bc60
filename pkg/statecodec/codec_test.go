package statecodec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/eventkit/pkg/statecodec"
)

func TestRoundTripScalars(t *testing.T) {
	values := []statecodec.Value{
		statecodec.String("whatsapp"),
		statecodec.String(""),
		statecodec.Number(5),
		statecodec.Number(-0.25),
		statecodec.Bool(true),
		statecodec.Bool(false),
		statecodec.Null{},
	}
	for _, v := range values {
		encoded, err := statecodec.Encode(v)
		require.NoError(t, err)
		decoded, err := statecodec.Decode(encoded)
		require.NoError(t, err)
		assert.True(t, statecodec.Equal(v, decoded), "round trip of %#v yielded %#v", v, decoded)
	}
}

func TestRoundTripNested(t *testing.T) {
	lastUpdated := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	v := statecodec.Record{
		"metrics": statecodec.NewMap(statecodec.Entry{
			Key: statecodec.String("2025-01-01"),
			Value: statecodec.Record{
				"count":       statecodec.Number(5),
				"lastUpdated": statecodec.Time(lastUpdated),
			},
		}),
		"createdAt": statecodec.Time(createdAt),
	}

	encoded, err := statecodec.Encode(v)
	require.NoError(t, err)

	decoded, err := statecodec.Decode(encoded)
	require.NoError(t, err)

	rec, ok := decoded.(statecodec.Record)
	require.True(t, ok, "decoded to %T, want record", decoded)

	metrics, ok := rec["metrics"].(*statecodec.Map)
	require.True(t, ok, "metrics decoded to %T, want map", rec["metrics"])
	require.Equal(t, 1, metrics.Len())

	entry, ok := metrics.Get(statecodec.String("2025-01-01"))
	require.True(t, ok)
	stats, ok := entry.(statecodec.Record)
	require.True(t, ok)

	lu, ok := stats["lastUpdated"].(statecodec.Timestamp)
	require.True(t, ok, "lastUpdated decoded to %T, want timestamp", stats["lastUpdated"])
	assert.True(t, lu.Time().Equal(lastUpdated))

	ca, ok := rec["createdAt"].(statecodec.Timestamp)
	require.True(t, ok)
	assert.True(t, ca.Time().Equal(createdAt))

	assert.True(t, statecodec.Equal(v, decoded))
}

func TestRoundTripMapOfMaps(t *testing.T) {
	inner := statecodec.NewMap(
		statecodec.Entry{Key: statecodec.Number(1), Value: statecodec.String("one")},
		statecodec.Entry{Key: statecodec.Number(2), Value: statecodec.String("two")},
	)
	v := statecodec.NewMap(
		statecodec.Entry{Key: statecodec.String("numbers"), Value: inner},
		statecodec.Entry{Key: statecodec.String("list"), Value: statecodec.Sequence{
			statecodec.Record{"at": statecodec.Time(time.Date(2025, 6, 1, 8, 30, 0, 123456789, time.UTC))},
		}},
	)

	encoded, err := statecodec.Encode(v)
	require.NoError(t, err)
	decoded, err := statecodec.Decode(encoded)
	require.NoError(t, err)

	m, ok := decoded.(*statecodec.Map)
	require.True(t, ok, "decoded to %T, want map", decoded)
	got, ok := m.Get(statecodec.String("numbers"))
	require.True(t, ok)
	_, ok = got.(*statecodec.Map)
	require.True(t, ok, "nested value decoded to %T, want map", got)

	assert.True(t, statecodec.Equal(v, decoded))
}

func TestTimestampKeepsSubSecondPrecision(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)
	encoded, err := statecodec.Encode(statecodec.Time(at))
	require.NoError(t, err)

	decoded, err := statecodec.Decode(encoded)
	require.NoError(t, err)
	ts, ok := decoded.(statecodec.Timestamp)
	require.True(t, ok)
	assert.True(t, ts.Time().Equal(at))
}

func TestEncodeDeterministic(t *testing.T) {
	v := statecodec.Record{
		"zulu":  statecodec.Number(1),
		"alpha": statecodec.Number(2),
		"mike":  statecodec.Sequence{statecodec.Bool(true), statecodec.Null{}},
	}
	first, err := statecodec.Encode(v)
	require.NoError(t, err)
	second, err := statecodec.Encode(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMapOrderSurvives(t *testing.T) {
	m := statecodec.NewMap(
		statecodec.Entry{Key: statecodec.String("b"), Value: statecodec.Number(1)},
		statecodec.Entry{Key: statecodec.String("a"), Value: statecodec.Number(2)},
	)
	encoded, err := statecodec.Encode(m)
	require.NoError(t, err)

	decoded, err := statecodec.Decode(encoded)
	require.NoError(t, err)
	got, ok := decoded.(*statecodec.Map)
	require.True(t, ok)
	entries := got.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, statecodec.String("b"), entries[0].Key)
	assert.Equal(t, statecodec.String("a"), entries[1].Key)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"truncated":        `{"a": [1, 2`,
		"empty":            ``,
		"unknown wrapper":  `{"$type":"instant","value":"x"}`,
		"bad timestamp":    `{"$type":"timestamp","value":"not-a-time"}`,
		"timestamp no val": `{"$type":"timestamp"}`,
		"map no entries":   `{"$type":"map"}`,
		"bad map entry":    `{"$type":"map","entries":[["a"]]}`,
		"tag not a string": `{"$type":5}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := statecodec.Decode([]byte(text))
			require.Error(t, err)
			var serr *statecodec.SerializationError
			assert.ErrorAs(t, err, &serr)
		})
	}
}

func TestEncodeReservedRecordKey(t *testing.T) {
	_, err := statecodec.Encode(statecodec.Record{"$type": statecodec.String("map")})
	require.Error(t, err)
	var serr *statecodec.SerializationError
	assert.ErrorAs(t, err, &serr)
}
