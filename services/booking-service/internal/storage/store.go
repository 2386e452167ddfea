package storage

import (
	"github.com/medibook/medibook/services/booking-service/internal/model"
)

// Query selects appointments. Empty fields do not filter; From and To are an
// inclusive date range.
type Query struct {
	DoctorID   string
	PatientID  string
	ClinicID   string
	From       model.Date
	To         model.Date
	ActiveOnly bool
}

func (q Query) Matches(a model.Appointment) bool {
	switch {
	case q.DoctorID != "" && a.DoctorID != q.DoctorID:
		return false
	case q.PatientID != "" && a.PatientID != q.PatientID:
		return false
	case q.ClinicID != "" && a.ClinicID != q.ClinicID:
		return false
	case !q.From.IsZero() && a.Date.Before(q.From):
		return false
	case !q.To.IsZero() && a.Date.After(q.To):
		return false
	case q.ActiveOnly && !a.Status.Active():
		return false
	}
	return true
}

// Mutation edits an appointment inside the store's critical section and
// returns the event type to record. Returning an error aborts the update and
// leaves the stored record unchanged. ID, DoctorID, PatientID, ClinicID and
// CreatedAt are restored after the mutation runs.
type Mutation func(*model.Appointment) (eventType string, err error)

func preserveIdentity(next *model.Appointment, cur model.Appointment) {
	next.ID = cur.ID
	next.DoctorID = cur.DoctorID
	next.PatientID = cur.PatientID
	next.ClinicID = cur.ClinicID
	next.CreatedAt = cur.CreatedAt
}
