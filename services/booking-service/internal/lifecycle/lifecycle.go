package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/medibook/medibook/services/booking-service/internal/model"
)

var (
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrCancellationWindowExpired = errors.New("cancellation window expired")
	ErrForbidden                 = errors.New("forbidden")
)

// MinPatientNoticeDays is how many whole days before the appointment date a
// patient may still cancel.
const MinPatientNoticeDays = 1

var staff = []model.Role{model.RoleDoctor, model.RoleAdmin}

var transitions = map[model.Status]map[model.Status][]model.Role{
	model.StatusPending: {
		model.StatusConfirmed: staff,
		model.StatusCompleted: staff,
		model.StatusCancelled: {model.RolePatient, model.RoleDoctor, model.RoleAdmin},
	},
	model.StatusConfirmed: {
		model.StatusCompleted: staff,
		model.StatusCancelled: {model.RolePatient, model.RoleDoctor, model.RoleAdmin},
	},
}

// Targets lists the states reachable from s by any role.
func Targets(s model.Status) []model.Status {
	var out []model.Status
	for _, to := range []model.Status{model.StatusConfirmed, model.StatusCompleted, model.StatusCancelled} {
		if _, ok := transitions[s][to]; ok {
			out = append(out, to)
		}
	}
	return out
}

func allowedFrom(s model.Status) string {
	targets := Targets(s)
	if len(targets) == 0 {
		return string(s) + " is final"
	}
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}
	return "allowed: " + strings.Join(names, ", ")
}

// Check validates moving appt to status `to` on behalf of role, with today
// as the current clinic date. Undefined transitions fail before role checks.
func Check(appt model.Appointment, to model.Status, role model.Role, today model.Date) error {
	roles, ok := transitions[appt.Status][to]
	if !ok {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, appt.Status, to, allowedFrom(appt.Status))
	}
	if !hasRole(roles, role) {
		return fmt.Errorf("%w: %s may not move an appointment to %s", ErrForbidden, role, to)
	}
	if to == model.StatusCancelled && role == model.RolePatient {
		if days := model.DaysBetween(today, appt.Date); days < MinPatientNoticeDays {
			return fmt.Errorf("%w: appointment with doctor %s on %s %s is %d day(s) away",
				ErrCancellationWindowExpired, appt.DoctorID, appt.Date, appt.Time, days)
		}
	}
	return nil
}

// Apply runs Check and then moves appt to `to`, recording note. Cancellation
// notes are tagged with the cancelling role.
func Apply(appt *model.Appointment, to model.Status, role model.Role, note string, today model.Date) error {
	if err := Check(*appt, to, role, today); err != nil {
		return err
	}
	note = strings.TrimSpace(note)
	if to == model.StatusCancelled {
		note = CancellationNote(role, note)
	}
	appt.Status = to
	appt.Notes = AppendNote(appt.Notes, note)
	return nil
}

func CancellationNote(role model.Role, reason string) string {
	note := "Cancelled by " + string(role)
	if reason = strings.TrimSpace(reason); reason != "" {
		note += ": " + reason
	}
	return note
}

func AppendNote(existing, note string) string {
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	default:
		return existing + "\n" + note
	}
}

func hasRole(roles []model.Role, role model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
