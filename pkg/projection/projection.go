// Package projection maintains named read models folded from the event
// stream (CQRS). A Manager owns N independently-evolving projections,
// fans every applied event out to each registered reducer and tracks a
// resumption cursor per projection.
//
// A Manager processes one event at a time: calling Apply concurrently
// from multiple goroutines requires external serialization. Delivery is
// expected to be exactly-once per manager instance; reducers are not
// required to deduplicate re-applied event ids, so callers resuming from
// a cursor must read strictly after the cursor's position.
package projection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/statecodec"
	"github.com/clinicore/eventkit/pkg/store"
)

// ErrNotRegistered marks an explicit operation on an unknown projection
// name. Programmer error: registration happens at startup and names are
// static.
var ErrNotRegistered = errors.New("projection: not registered")

// NotRegisteredError names the missing projection.
type NotRegisteredError struct {
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("projection: %q is not registered", e.Name)
}

func (e *NotRegisteredError) Is(target error) bool {
	return target == ErrNotRegistered
}

// Reducer computes the next state from the prior state and one event. It
// must be pure: no external reads, same inputs, same output.
type Reducer func(state statecodec.Value, evt *event.Envelope) (statecodec.Value, error)

// Status is the lifecycle of one projection. There is no terminal state;
// projections are only removed by registry changes at process start.
type Status uint8

const (
	// Uninitialized: registered, no event applied yet.
	Uninitialized Status = iota
	// Active: at least one event applied.
	Active
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "uninitialized"
}

// View is a read-only copy of one projection's bookkeeping.
type View struct {
	Name               string
	Version            int
	State              statecodec.Value
	LastEventID        string
	LastEventTimestamp time.Time
	Status             Status
}

type projection struct {
	name        string
	version     int
	state       statecodec.Value
	lastEventID string
	lastEventTS time.Time
	status      Status
	reduce      Reducer
}

// Manager is the projection registry and fan-out point. Construct one
// per process or worker and pass it by reference; never share implicitly.
type Manager struct {
	order       []string
	projections map[string]*projection
}

func NewManager() *Manager {
	return &Manager{
		projections: make(map[string]*projection),
	}
}

// Register adds a projection under a unique name with its schema version
// and initial state. Registering a name twice panics: projections are
// wired once at startup and a duplicate is a programmer error.
func (m *Manager) Register(name string, version int, initial statecodec.Value, reduce Reducer) {
	if name == "" {
		panic("projection: name must not be empty")
	}
	if reduce == nil {
		panic(fmt.Sprintf("projection: %q registered with nil reducer", name))
	}
	if _, ok := m.projections[name]; ok {
		panic(fmt.Sprintf("projection: %q is already registered", name))
	}
	m.projections[name] = &projection{
		name:    name,
		version: version,
		state:   initial,
		reduce:  reduce,
	}
	m.order = append(m.order, name)
}

// Apply feeds the event to every registered projection in registration
// order and advances each cursor unconditionally, even when a reducer
// leaves the state unchanged, so resumption cursors always move forward.
// A reducer error stops the fan-out and is returned with the projection
// named; earlier projections in the order keep their advanced state.
func (m *Manager) Apply(evt *event.Envelope) error {
	for _, name := range m.order {
		p := m.projections[name]
		next, err := p.reduce(p.state, evt)
		if err != nil {
			return fmt.Errorf("projection %q: apply event %s: %w", name, evt.ID, err)
		}
		p.state = next
		p.lastEventID = evt.ID.String()
		p.lastEventTS = evt.Metadata.Timestamp
		p.status = Active
	}
	return nil
}

// Has reports whether name is registered.
func (m *Manager) Has(name string) bool {
	_, ok := m.projections[name]
	return ok
}

// Get returns the current view of a projection, or false if the name is
// not registered.
func (m *Manager) Get(name string) (View, bool) {
	p, ok := m.projections[name]
	if !ok {
		return View{}, false
	}
	return View{
		Name:               p.name,
		Version:            p.version,
		State:              p.state,
		LastEventID:        p.lastEventID,
		LastEventTimestamp: p.lastEventTS,
		Status:             p.status,
	}, true
}

// Records returns the persisted shape of every projection in
// registration order.
func (m *Manager) Records() ([]store.ProjectionRecord, error) {
	records := make([]store.ProjectionRecord, 0, len(m.order))
	for _, name := range m.order {
		rec, err := m.record(m.projections[name])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (m *Manager) record(p *projection) (store.ProjectionRecord, error) {
	encoded, err := statecodec.Encode(p.state)
	if err != nil {
		return store.ProjectionRecord{}, fmt.Errorf("projection %q: %w", p.name, err)
	}
	return store.ProjectionRecord{
		Name:               p.name,
		Version:            p.version,
		State:              string(encoded),
		LastEventID:        p.lastEventID,
		LastEventTimestamp: p.lastEventTS,
	}, nil
}

// ToJSON serializes all projections as an ordered array of records.
// Calling it twice with no intervening Apply yields byte-identical text.
func (m *Manager) ToJSON() ([]byte, error) {
	records, err := m.Records()
	if err != nil {
		return nil, err
	}
	return json.Marshal(records)
}

// FromJSON restores state for every record whose name matches a
// registered projection. Records naming an unregistered projection are
// skipped silently: adding or retiring projections must not break
// restoring older persisted payloads.
func (m *Manager) FromJSON(data []byte) error {
	var records []store.ProjectionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return &statecodec.SerializationError{Cause: err}
	}
	return m.Restore(records)
}

// Restore applies already-decoded records with FromJSON's lenient
// unknown-name behavior.
func (m *Manager) Restore(records []store.ProjectionRecord) error {
	for _, rec := range records {
		p, ok := m.projections[rec.Name]
		if !ok {
			continue
		}
		if err := restore(p, rec); err != nil {
			return err
		}
	}
	return nil
}

func restore(p *projection, rec store.ProjectionRecord) error {
	state, err := statecodec.Decode([]byte(rec.State))
	if err != nil {
		return fmt.Errorf("projection %q: %w", rec.Name, err)
	}
	p.state = state
	p.lastEventID = rec.LastEventID
	p.lastEventTS = rec.LastEventTimestamp
	if rec.LastEventID != "" {
		p.status = Active
	} else {
		p.status = Uninitialized
	}
	return nil
}

// SerializeProjection returns the persisted record of a single
// projection. Unknown names fail with a NotRegisteredError.
func (m *Manager) SerializeProjection(name string) ([]byte, error) {
	p, ok := m.projections[name]
	if !ok {
		return nil, &NotRegisteredError{Name: name}
	}
	rec, err := m.record(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// DeserializeProjection overwrites a single projection's state from text
// produced by SerializeProjection. Unlike FromJSON, an unregistered name
// fails loudly: an explicit single-projection restore targeting an
// unknown name is a programmer error, not schema drift.
func (m *Manager) DeserializeProjection(name string, data []byte) error {
	p, ok := m.projections[name]
	if !ok {
		return &NotRegisteredError{Name: name}
	}
	var rec store.ProjectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return &statecodec.SerializationError{Cause: err}
	}
	if rec.Name != name {
		return fmt.Errorf("projection %q: record is for %q", name, rec.Name)
	}
	return restore(p, rec)
}
