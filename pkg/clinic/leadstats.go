package clinic

import (
	"fmt"

	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/projection"
	"github.com/clinicore/eventkit/pkg/statecodec"
)

// Read-model names and schema versions.
const (
	LeadStatsName    = "lead-stats"
	LeadStatsVersion = 1

	AppointmentLoadName    = "appointment-load"
	AppointmentLoadVersion = 1
)

// RegisterProjections wires the clinic read models into a manager.
func RegisterProjections(m *projection.Manager) {
	m.Register(LeadStatsName, LeadStatsVersion, LeadStatsInitial(), ReduceLeadStats)
	m.Register(AppointmentLoadName, AppointmentLoadVersion, AppointmentLoadInitial(), ReduceAppointmentLoad)
}

// LeadStatsInitial is the empty lead funnel.
func LeadStatsInitial() statecodec.Value {
	return statecodec.Record{
		"totalLeads":       statecodec.Number(0),
		"byClassification": statecodec.Record{},
		"byChannel":        statecodec.Record{},
	}
}

// ReduceLeadStats folds lead events into funnel counters. It is pure:
// the prior state is never mutated, changed records are copied.
func ReduceLeadStats(state statecodec.Value, evt *event.Envelope) (statecodec.Value, error) {
	rec, ok := state.(statecodec.Record)
	if !ok {
		return nil, fmt.Errorf("lead-stats state is %T, want record", state)
	}

	switch evt.Kind {
	case KindLeadCreated:
		payload, err := decodeRecord(evt.Payload)
		if err != nil {
			return nil, err
		}
		next := cloneRecord(rec)
		next["totalLeads"] = recNumberValue(rec, "totalLeads") + 1
		next["byChannel"] = bump(rec, "byChannel", recString(payload, "channel"))
		return next, nil

	case KindLeadScored:
		payload, err := decodeRecord(evt.Payload)
		if err != nil {
			return nil, err
		}
		next := cloneRecord(rec)
		next["byClassification"] = bump(rec, "byClassification", recString(payload, "classification"))
		return next, nil
	}
	return state, nil
}

// AppointmentLoadInitial is the empty per-day booking load.
func AppointmentLoadInitial() statecodec.Value {
	return statecodec.Record{
		"scheduled": statecodec.Number(0),
		"cancelled": statecodec.Number(0),
		"byDay":     statecodec.NewMap(),
	}
}

// ReduceAppointmentLoad folds appointment events into capacity counters,
// keyed per calendar day in an ordered map.
func ReduceAppointmentLoad(state statecodec.Value, evt *event.Envelope) (statecodec.Value, error) {
	rec, ok := state.(statecodec.Record)
	if !ok {
		return nil, fmt.Errorf("appointment-load state is %T, want record", state)
	}

	switch evt.Kind {
	case KindAppointmentScheduled:
		payload, err := decodeRecord(evt.Payload)
		if err != nil {
			return nil, err
		}
		next := cloneRecord(rec)
		next["scheduled"] = recNumberValue(rec, "scheduled") + 1
		next["byDay"] = bumpDay(rec, slotDay(payload))
		return next, nil

	case KindAppointmentCancelled:
		next := cloneRecord(rec)
		next["cancelled"] = recNumberValue(rec, "cancelled") + 1
		return next, nil
	}
	return state, nil
}

// slotDay extracts the calendar day from the scheduled slot. Event
// payloads carry the slot as an RFC 3339 string.
func slotDay(payload statecodec.Record) string {
	slot := recString(payload, "slot")
	if len(slot) >= len("2006-01-02") {
		return slot[:len("2006-01-02")]
	}
	return slot
}

func decodeRecord(payload []byte) (statecodec.Record, error) {
	v, err := statecodec.Decode(payload)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(statecodec.Record)
	if !ok {
		return nil, fmt.Errorf("payload is %T, want record", v)
	}
	return rec, nil
}

func cloneRecord(rec statecodec.Record) statecodec.Record {
	next := make(statecodec.Record, len(rec))
	for k, v := range rec {
		next[k] = v
	}
	return next
}

func recNumberValue(rec statecodec.Record, key string) statecodec.Number {
	if n, ok := rec[key].(statecodec.Number); ok {
		return n
	}
	return 0
}

// bump returns a copy of the nested counter record under key with the
// bucket incremented.
func bump(rec statecodec.Record, key, bucket string) statecodec.Record {
	var counters statecodec.Record
	if c, ok := rec[key].(statecodec.Record); ok {
		counters = cloneRecord(c)
	} else {
		counters = statecodec.Record{}
	}
	counters[bucket] = recNumberValue(counters, bucket) + 1
	return counters
}

// bumpDay returns a copy of the byDay map with the day incremented.
func bumpDay(rec statecodec.Record, day string) *statecodec.Map {
	next := statecodec.NewMap()
	if prev, ok := rec["byDay"].(*statecodec.Map); ok {
		for _, e := range prev.Entries() {
			next.Set(e.Key, e.Value)
		}
	}
	key := statecodec.String(day)
	next.Set(key, recMapNumber(next, key)+1)
	return next
}

func recMapNumber(m *statecodec.Map, key statecodec.Value) statecodec.Number {
	if v, ok := m.Get(key); ok {
		if n, ok := v.(statecodec.Number); ok {
			return n
		}
	}
	return 0
}
