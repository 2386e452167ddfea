package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// Active appointments occupy their slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Appointment struct {
	ID        string
	DoctorID  string
	PatientID string
	ClinicID  string
	Date      Date
	Time      TimeOfDay
	Status    Status
	Reason    string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot identifies a bookable (doctor, date, time) triple.
type Slot struct {
	DoctorID string
	Date     Date
	Time     TimeOfDay
}

func (a Appointment) Slot() Slot {
	return Slot{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}
