// Package clinic holds the platform's stateful business entities as
// event-sourced aggregates: patient records, appointments and intake
// leads, plus the read-model reducers built over their event streams.
//
// Scoring policy, capacity planning and eligibility rules live outside;
// this package only enforces the transition preconditions that keep each
// aggregate consistent.
package clinic

import (
	"errors"
	"time"

	"github.com/clinicore/eventkit/pkg/aggregate"
	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/statecodec"
)

// Lead event kinds.
const (
	KindLeadCreated   = "lead.created"
	KindLeadScored    = "lead.scored"
	KindLeadConverted = "lead.converted"
)

// Lead lifecycle statuses.
const (
	LeadStatusNew       = "new"
	LeadStatusScored    = "scored"
	LeadStatusConverted = "converted"
)

var (
	ErrLeadExists    = errors.New("clinic: lead already exists")
	ErrLeadNotExists = errors.New("clinic: lead is not created yet")
	ErrLeadConverted = errors.New("clinic: lead already converted")
)

// Lead is an intake lead working its way toward becoming a patient.
type Lead struct {
	ID             string
	Channel        string
	Score          int
	Classification string
	Status         string
	PatientID      string
	CreatedAt      time.Time
}

type LeadCreated struct {
	LeadID    string    `json:"leadId"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *LeadCreated) Evolve(l *Lead) {
	l.ID = e.LeadID
	l.Channel = e.Channel
	l.Status = LeadStatusNew
	l.CreatedAt = e.CreatedAt
}

type LeadScored struct {
	Score          int    `json:"score"`
	Classification string `json:"classification"`
}

func (e *LeadScored) Evolve(l *Lead) {
	l.Score = e.Score
	l.Classification = e.Classification
	l.Status = LeadStatusScored
}

type LeadConverted struct {
	PatientID string `json:"patientId"`
}

func (e *LeadConverted) Evolve(l *Lead) {
	l.PatientID = e.PatientID
	l.Status = LeadStatusConverted
}

type LeadType = aggregate.Type[Lead, *Lead]
type LeadRoot = aggregate.Root[Lead, *Lead]

// NewLeadType wires the lead aggregate's closed event set. Construct
// once at startup.
func NewLeadType() *LeadType {
	return aggregate.NewType[Lead](
		"lead",
		aggregate.WithEvent[LeadCreated, Lead](KindLeadCreated),
		aggregate.WithEvent[LeadScored, Lead](KindLeadScored),
		aggregate.WithEvent[LeadConverted, Lead](KindLeadConverted),
	)
}

// CreateLead stages the genesis event for a fresh lead.
func CreateLead(t *LeadType, id aggregate.ID, channel string, meta event.Metadata) (*LeadRoot, error) {
	root := t.New(id)
	created := meta.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := root.Stage(meta, &LeadCreated{LeadID: id.String(), Channel: channel, CreatedAt: created}); err != nil {
		return nil, err
	}
	return root, nil
}

// ScoreLead records a scoring outcome. A converted lead is frozen.
func ScoreLead(r *LeadRoot, score int, classification string, meta event.Metadata) error {
	switch r.State().Status {
	case "":
		return ErrLeadNotExists
	case LeadStatusConverted:
		return ErrLeadConverted
	}
	_, err := r.Stage(meta, &LeadScored{Score: score, Classification: classification})
	return err
}

// ConvertLead marks the lead as converted into a patient.
func ConvertLead(r *LeadRoot, patientID string, meta event.Metadata) error {
	switch r.State().Status {
	case "":
		return ErrLeadNotExists
	case LeadStatusConverted:
		return ErrLeadConverted
	}
	_, err := r.Stage(meta, &LeadConverted{PatientID: patientID})
	return err
}

// MarshalState encodes the lead for snapshotting.
func (l *Lead) MarshalState() (statecodec.Value, error) {
	return statecodec.Record{
		"id":             statecodec.String(l.ID),
		"channel":        statecodec.String(l.Channel),
		"score":          statecodec.Number(l.Score),
		"classification": statecodec.String(l.Classification),
		"status":         statecodec.String(l.Status),
		"patientId":      statecodec.String(l.PatientID),
		"createdAt":      statecodec.Time(l.CreatedAt),
	}, nil
}

// UnmarshalState restores the lead from a decoded snapshot.
func (l *Lead) UnmarshalState(v statecodec.Value) error {
	rec, ok := v.(statecodec.Record)
	if !ok {
		return errors.New("clinic: lead snapshot is not a record")
	}
	l.ID = recString(rec, "id")
	l.Channel = recString(rec, "channel")
	l.Score = int(recNumber(rec, "score"))
	l.Classification = recString(rec, "classification")
	l.Status = recString(rec, "status")
	l.PatientID = recString(rec, "patientId")
	l.CreatedAt = recTime(rec, "createdAt")
	return nil
}

func recString(rec statecodec.Record, key string) string {
	if s, ok := rec[key].(statecodec.String); ok {
		return string(s)
	}
	return ""
}

func recNumber(rec statecodec.Record, key string) float64 {
	if n, ok := rec[key].(statecodec.Number); ok {
		return float64(n)
	}
	return 0
}

func recTime(rec statecodec.Record, key string) time.Time {
	if t, ok := rec[key].(statecodec.Timestamp); ok {
		return t.Time()
	}
	return time.Time{}
}
