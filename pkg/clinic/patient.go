package clinic

import (
	"errors"
	"sort"
	"time"

	"github.com/clinicore/eventkit/pkg/aggregate"
	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/statecodec"
)

// Patient record event kinds.
const (
	KindPatientCreated  = "patient.created"
	KindAllergyRecorded = "patient.allergy_recorded"
	KindVisitRecorded   = "patient.visit_recorded"
)

var (
	ErrPatientNotExists = errors.New("clinic: patient record is not created yet")
	ErrAllergyRecorded  = errors.New("clinic: allergy already recorded")
)

// VisitStats aggregates a patient's visits for one calendar day.
type VisitStats struct {
	Count       int
	LastUpdated time.Time
}

// PatientRecord is the clinical master record for one patient.
type PatientRecord struct {
	ID        string
	Name      string
	Insurer   string
	Allergies []string
	// Visits is keyed by ISO date ("2025-01-01").
	Visits    map[string]VisitStats
	CreatedAt time.Time
}

type PatientCreated struct {
	PatientID string    `json:"patientId"`
	Name      string    `json:"name"`
	Insurer   string    `json:"insurer"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *PatientCreated) Evolve(p *PatientRecord) {
	p.ID = e.PatientID
	p.Name = e.Name
	p.Insurer = e.Insurer
	p.CreatedAt = e.CreatedAt
}

type AllergyRecorded struct {
	Substance string `json:"substance"`
}

func (e *AllergyRecorded) Evolve(p *PatientRecord) {
	p.Allergies = append(p.Allergies, e.Substance)
}

type VisitRecorded struct {
	Date string    `json:"date"`
	At   time.Time `json:"at"`
}

func (e *VisitRecorded) Evolve(p *PatientRecord) {
	if p.Visits == nil {
		p.Visits = make(map[string]VisitStats)
	}
	stats := p.Visits[e.Date]
	stats.Count++
	stats.LastUpdated = e.At
	p.Visits[e.Date] = stats
}

type PatientType = aggregate.Type[PatientRecord, *PatientRecord]
type PatientRoot = aggregate.Root[PatientRecord, *PatientRecord]

func NewPatientType() *PatientType {
	return aggregate.NewType[PatientRecord](
		"patient",
		aggregate.WithEvent[PatientCreated, PatientRecord](KindPatientCreated),
		aggregate.WithEvent[AllergyRecorded, PatientRecord](KindAllergyRecorded),
		aggregate.WithEvent[VisitRecorded, PatientRecord](KindVisitRecorded),
	)
}

// CreatePatient stages the genesis event for a new record.
func CreatePatient(t *PatientType, id aggregate.ID, name, insurer string, meta event.Metadata) (*PatientRoot, error) {
	root := t.New(id)
	created := meta.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := root.Stage(meta, &PatientCreated{PatientID: id.String(), Name: name, Insurer: insurer, CreatedAt: created}); err != nil {
		return nil, err
	}
	return root, nil
}

// RecordAllergy adds a substance once; recording a known allergy is
// rejected before anything is staged.
func RecordAllergy(r *PatientRoot, substance string, meta event.Metadata) error {
	if r.State().ID == "" {
		return ErrPatientNotExists
	}
	for _, a := range r.State().Allergies {
		if a == substance {
			return ErrAllergyRecorded
		}
	}
	_, err := r.Stage(meta, &AllergyRecorded{Substance: substance})
	return err
}

// RecordVisit counts a visit against its calendar day.
func RecordVisit(r *PatientRoot, at time.Time, meta event.Metadata) error {
	if r.State().ID == "" {
		return ErrPatientNotExists
	}
	at = at.UTC()
	_, err := r.Stage(meta, &VisitRecorded{Date: at.Format("2006-01-02"), At: at})
	return err
}

// MarshalState encodes the record for snapshotting. The visit metrics
// are written as an ordered map so their map-ness and the per-day
// timestamps survive the round trip.
func (p *PatientRecord) MarshalState() (statecodec.Value, error) {
	allergies := make(statecodec.Sequence, len(p.Allergies))
	for i, a := range p.Allergies {
		allergies[i] = statecodec.String(a)
	}

	dates := make([]string, 0, len(p.Visits))
	for d := range p.Visits {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	visits := statecodec.NewMap()
	for _, d := range dates {
		stats := p.Visits[d]
		visits.Set(statecodec.String(d), statecodec.Record{
			"count":       statecodec.Number(stats.Count),
			"lastUpdated": statecodec.Time(stats.LastUpdated),
		})
	}

	return statecodec.Record{
		"id":        statecodec.String(p.ID),
		"name":      statecodec.String(p.Name),
		"insurer":   statecodec.String(p.Insurer),
		"allergies": allergies,
		"visits":    visits,
		"createdAt": statecodec.Time(p.CreatedAt),
	}, nil
}

// UnmarshalState restores the record from a decoded snapshot.
func (p *PatientRecord) UnmarshalState(v statecodec.Value) error {
	rec, ok := v.(statecodec.Record)
	if !ok {
		return errors.New("clinic: patient snapshot is not a record")
	}
	p.ID = recString(rec, "id")
	p.Name = recString(rec, "name")
	p.Insurer = recString(rec, "insurer")
	p.CreatedAt = recTime(rec, "createdAt")

	p.Allergies = nil
	if seq, ok := rec["allergies"].(statecodec.Sequence); ok {
		for _, v := range seq {
			if s, ok := v.(statecodec.String); ok {
				p.Allergies = append(p.Allergies, string(s))
			}
		}
	}

	p.Visits = nil
	visits, ok := rec["visits"].(*statecodec.Map)
	if !ok {
		return errors.New("clinic: patient snapshot visits is not a map")
	}
	if visits.Len() > 0 {
		p.Visits = make(map[string]VisitStats, visits.Len())
		for _, e := range visits.Entries() {
			date, ok := e.Key.(statecodec.String)
			if !ok {
				return errors.New("clinic: patient snapshot visit key is not a string")
			}
			stats, ok := e.Value.(statecodec.Record)
			if !ok {
				return errors.New("clinic: patient snapshot visit entry is not a record")
			}
			p.Visits[string(date)] = VisitStats{
				Count:       int(recNumber(stats, "count")),
				LastUpdated: recTime(stats, "lastUpdated"),
			}
		}
	}
	return nil
}
