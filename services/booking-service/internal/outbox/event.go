package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medibook/medibook/services/booking-service/internal/model"
)

const AggregateAppointment = "appointment"

const (
	EventBooked      = "booking.appointment.booked.v1"
	EventConfirmed   = "booking.appointment.confirmed.v1"
	EventCompleted   = "booking.appointment.completed.v1"
	EventCancelled   = "booking.appointment.cancelled.v1"
	EventRescheduled = "booking.appointment.rescheduled.v1"
	EventDeleted     = "booking.appointment.deleted.v1"
)

var ErrUnknownEvent = errors.New("unknown appointment event")

var knownEvents = map[string]bool{
	EventBooked:      true,
	EventConfirmed:   true,
	EventCompleted:   true,
	EventCancelled:   true,
	EventRescheduled: true,
	EventDeleted:     true,
}

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// StatusEvent names the event emitted when an appointment enters status s.
func StatusEvent(s model.Status) string {
	switch s {
	case model.StatusConfirmed:
		return EventConfirmed
	case model.StatusCompleted:
		return EventCompleted
	case model.StatusCancelled:
		return EventCancelled
	default:
		return EventBooked
	}
}

type appointmentPayload struct {
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	ClinicID      string    `json:"clinic_id,omitempty"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func AppointmentEvent(eventType string, a model.Appointment) (Event, error) {
	if !knownEvents[eventType] {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
	occurred := a.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		ClinicID:      a.ClinicID,
		Date:          a.Date.String(),
		Time:          a.Time.String(),
		Status:        string(a.Status),
		Notes:         a.Notes,
		OccurredAt:    occurred,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
