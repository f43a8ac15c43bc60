package clinic

import (
	"errors"
	"time"

	"github.com/clinicore/eventkit/pkg/aggregate"
	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/statecodec"
)

// Appointment event kinds.
const (
	KindAppointmentScheduled   = "appointment.scheduled"
	KindAppointmentRescheduled = "appointment.rescheduled"
	KindAppointmentCancelled   = "appointment.cancelled"
)

// Appointment statuses.
const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusCancelled = "cancelled"
)

var (
	ErrAppointmentNotExists = errors.New("clinic: appointment is not scheduled yet")
	ErrAppointmentCancelled = errors.New("clinic: appointment already cancelled")
)

// Appointment is one booked slot for one patient.
type Appointment struct {
	ID           string
	PatientID    string
	Slot         time.Time
	Status       string
	CancelReason string
}

type AppointmentScheduled struct {
	AppointmentID string    `json:"appointmentId"`
	PatientID     string    `json:"patientId"`
	Slot          time.Time `json:"slot"`
}

func (e *AppointmentScheduled) Evolve(a *Appointment) {
	a.ID = e.AppointmentID
	a.PatientID = e.PatientID
	a.Slot = e.Slot
	a.Status = AppointmentStatusScheduled
}

type AppointmentRescheduled struct {
	Slot time.Time `json:"slot"`
}

func (e *AppointmentRescheduled) Evolve(a *Appointment) {
	a.Slot = e.Slot
}

type AppointmentCancelled struct {
	Reason string `json:"reason"`
}

func (e *AppointmentCancelled) Evolve(a *Appointment) {
	a.Status = AppointmentStatusCancelled
	a.CancelReason = e.Reason
}

type AppointmentType = aggregate.Type[Appointment, *Appointment]
type AppointmentRoot = aggregate.Root[Appointment, *Appointment]

func NewAppointmentType() *AppointmentType {
	return aggregate.NewType[Appointment](
		"appointment",
		aggregate.WithEvent[AppointmentScheduled, Appointment](KindAppointmentScheduled),
		aggregate.WithEvent[AppointmentRescheduled, Appointment](KindAppointmentRescheduled),
		aggregate.WithEvent[AppointmentCancelled, Appointment](KindAppointmentCancelled),
	)
}

// ScheduleAppointment stages the genesis event for a new booking.
func ScheduleAppointment(t *AppointmentType, id aggregate.ID, patientID string, slot time.Time, meta event.Metadata) (*AppointmentRoot, error) {
	root := t.New(id)
	if _, err := root.Stage(meta, &AppointmentScheduled{AppointmentID: id.String(), PatientID: patientID, Slot: slot.UTC()}); err != nil {
		return nil, err
	}
	return root, nil
}

// Reschedule moves the slot of a live appointment.
func Reschedule(r *AppointmentRoot, slot time.Time, meta event.Metadata) error {
	switch r.State().Status {
	case "":
		return ErrAppointmentNotExists
	case AppointmentStatusCancelled:
		return ErrAppointmentCancelled
	}
	_, err := r.Stage(meta, &AppointmentRescheduled{Slot: slot.UTC()})
	return err
}

// Cancel ends the appointment. Cancelling twice is rejected.
func Cancel(r *AppointmentRoot, reason string, meta event.Metadata) error {
	switch r.State().Status {
	case "":
		return ErrAppointmentNotExists
	case AppointmentStatusCancelled:
		return ErrAppointmentCancelled
	}
	_, err := r.Stage(meta, &AppointmentCancelled{Reason: reason})
	return err
}

// MarshalState encodes the appointment for snapshotting.
func (a *Appointment) MarshalState() (statecodec.Value, error) {
	return statecodec.Record{
		"id":           statecodec.String(a.ID),
		"patientId":    statecodec.String(a.PatientID),
		"slot":         statecodec.Time(a.Slot),
		"status":       statecodec.String(a.Status),
		"cancelReason": statecodec.String(a.CancelReason),
	}, nil
}

// UnmarshalState restores the appointment from a decoded snapshot.
func (a *Appointment) UnmarshalState(v statecodec.Value) error {
	rec, ok := v.(statecodec.Record)
	if !ok {
		return errors.New("clinic: appointment snapshot is not a record")
	}
	a.ID = recString(rec, "id")
	a.PatientID = recString(rec, "patientId")
	a.Slot = recTime(rec, "slot")
	a.Status = recString(rec, "status")
	a.CancelReason = recString(rec, "cancelReason")
	return nil
}
