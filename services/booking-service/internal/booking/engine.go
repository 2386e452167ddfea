package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medibook/medibook/services/booking-service/internal/availability"
	"github.com/medibook/medibook/services/booking-service/internal/lifecycle"
	"github.com/medibook/medibook/services/booking-service/internal/model"
	"github.com/medibook/medibook/services/booking-service/internal/outbox"
	"github.com/medibook/medibook/services/booking-service/internal/storage"
	"github.com/medibook/medibook/services/booking-service/internal/views"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AppointmentStore persists appointments. CreateAppointment and
// UpdateAppointment must check the slot and write in one atomic step and
// report a held slot as storage.ErrSlotTaken.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, appt *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, q storage.Query) ([]model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, mutate storage.Mutation) (model.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) (model.Appointment, error)
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, doctorID string) (availability.Template, error)
	SaveTemplate(ctx context.Context, doctorID string, tpl availability.Template) error
}

type Engine struct {
	appointments AppointmentStore
	templates    TemplateStore
	logger       *slog.Logger
	now          func() time.Time
	loc          *time.Location
	tracer       trace.Tracer
}

type Option func(*Engine)

// WithClock replaces the wall clock used to derive today.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the clinic time zone in which today is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func NewEngine(appointments AppointmentStore, templates TemplateStore, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		appointments: appointments,
		templates:    templates,
		logger:       logger,
		now:          time.Now,
		loc:          time.UTC,
		tracer:       otel.Tracer("booking-service/booking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() (model.Date, model.TimeOfDay) {
	now := e.now().In(e.loc)
	return model.DateOf(now), model.ClockOf(now)
}

// Today is the current calendar date in the clinic time zone.
func (e *Engine) Today() model.Date {
	today, _ := e.clock()
	return today
}

// BookableTimes returns the doctor's template times for date that no active
// appointment holds. The result is a snapshot; Book re-checks atomically.
func (e *Engine) BookableTimes(ctx context.Context, doctorID string, date model.Date) ([]model.TimeOfDay, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrInvalidRequest)
	}
	tpl, err := e.template(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	candidates, err := availability.ResolveCandidates(tpl, date)
	if err != nil {
		return nil, err
	}

	today, now := e.clock()
	switch {
	case date.Before(today):
		return []model.TimeOfDay{}, nil
	case date == today:
		candidates = availability.NotBefore(candidates, now)
	}

	taken, err := e.appointments.ListAppointments(ctx, storage.Query{DoctorID: doctorID, From: date, To: date, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	busy := make([]model.TimeOfDay, 0, len(taken))
	for _, a := range taken {
		busy = append(busy, a.Time)
	}
	return availability.FreeTimes(candidates, busy), nil
}

type BookRequest struct {
	DoctorID  string
	PatientID string
	ClinicID  string
	Date      model.Date
	Time      model.TimeOfDay
	Reason    string
}

// Book admits a new pending appointment, or fails with ErrSlotConflict when
// an active appointment already holds the slot.
func (e *Engine) Book(ctx context.Context, actor model.Actor, req BookRequest) (appt model.Appointment, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("doctor.id", req.DoctorID),
		attribute.String("appointment.date", req.Date.String()),
		attribute.String("appointment.time", req.Time.String()),
	))
	defer func() { endSpan(span, err) }()

	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.Reason = strings.TrimSpace(req.Reason)

	switch actor.Role {
	case model.RolePatient:
		if req.PatientID == "" {
			req.PatientID = actor.ID
		}
		if req.PatientID != actor.ID {
			return model.Appointment{}, fmt.Errorf("%w: patients book only for themselves", ErrForbidden)
		}
	case model.RoleDoctor:
		if req.DoctorID != actor.ID {
			return model.Appointment{}, fmt.Errorf("%w: doctors book only into their own schedule", ErrForbidden)
		}
	case model.RoleAdmin:
		if req.ClinicID == "" {
			req.ClinicID = actor.ClinicID
		}
		if actor.ClinicID != "" && req.ClinicID != actor.ClinicID {
			return model.Appointment{}, fmt.Errorf("%w: clinic %s is outside the admin's clinic", ErrForbidden, req.ClinicID)
		}
	default:
		return model.Appointment{}, fmt.Errorf("%w: unknown role %q", ErrForbidden, actor.Role)
	}

	var missing []string
	if req.DoctorID == "" {
		missing = append(missing, "doctor_id")
	}
	if req.PatientID == "" {
		missing = append(missing, "patient_id")
	}
	if req.Date.IsZero() {
		missing = append(missing, "date")
	}
	if req.Time == "" {
		missing = append(missing, "time")
	}
	if req.Reason == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return model.Appointment{}, fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if !req.Date.Valid() {
		return model.Appointment{}, fmt.Errorf("%w: %q", ErrInvalidDate, req.Date.String())
	}
	if !req.Time.Valid() {
		return model.Appointment{}, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidRequest, req.Time)
	}
	if err := e.checkNotPast(req.Date, req.Time); err != nil {
		e.logger.Info("booking rejected", e.slotAttrs(req.DoctorID, req.Date, req.Time, err)...)
		return model.Appointment{}, err
	}

	tpl, err := e.template(ctx, req.DoctorID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !tpl.Offers(req.Date.Weekday(), req.Time) {
		return model.Appointment{}, fmt.Errorf("%w: doctor %s does not see patients at %s on %s",
			ErrInvalidRequest, req.DoctorID, req.Time, availability.WeekdayName(req.Date.Weekday()))
	}

	appt = model.Appointment{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		ClinicID:  req.ClinicID,
		Date:      req.Date,
		Time:      req.Time,
		Status:    model.StatusPending,
		Reason:    req.Reason,
		CreatedAt: e.now().UTC(),
	}
	if err := e.appointments.CreateAppointment(ctx, &appt); err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			err = slotConflict(req.DoctorID, req.Date, req.Time)
			e.logger.Info("booking rejected", e.slotAttrs(req.DoctorID, req.Date, req.Time, err)...)
			return model.Appointment{}, err
		}
		e.logger.Error("booking store failed", e.slotAttrs(req.DoctorID, req.Date, req.Time, err)...)
		return model.Appointment{}, err
	}

	e.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"patient_id", appt.PatientID,
		"date", appt.Date.String(),
		"time", appt.Time.String(),
	)
	return appt, nil
}

// Get returns one appointment the actor is allowed to see.
func (e *Engine) Get(ctx context.Context, actor model.Actor, id string) (model.Appointment, error) {
	appt, err := e.appointments.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, e.storeErr(err, id)
	}
	if err := authorize(actor, appt); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

type TransitionRequest struct {
	AppointmentID string
	Status        model.Status
	Notes         string
}

// Transition moves an appointment along the lifecycle.
func (e *Engine) Transition(ctx context.Context, actor model.Actor, req TransitionRequest) (model.Appointment, error) {
	if _, ok := model.ParseStatus(string(req.Status)); !ok {
		return model.Appointment{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, req.Status)
	}
	today := e.Today()
	appt, err := e.update(ctx, req.AppointmentID, func(a *model.Appointment) (string, error) {
		if err := authorize(actor, *a); err != nil {
			return "", err
		}
		if err := lifecycle.Apply(a, req.Status, actor.Role, req.Notes, today); err != nil {
			return "", err
		}
		return outbox.StatusEvent(a.Status), nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	e.logger.Info("appointment status changed",
		"appointment_id", appt.ID,
		"status", string(appt.Status),
		"role", string(actor.Role),
	)
	return appt, nil
}

// Cancel is Transition to cancelled with reason recorded in the notes.
func (e *Engine) Cancel(ctx context.Context, actor model.Actor, id, reason string) (model.Appointment, error) {
	return e.Transition(ctx, actor, TransitionRequest{AppointmentID: id, Status: model.StatusCancelled, Notes: reason})
}

type RescheduleRequest struct {
	AppointmentID string
	Date          model.Date
	Time          model.TimeOfDay
	// Status, when set, must be the current status or a forward transition.
	Status model.Status
	// Notes, when set, replaces the existing notes.
	Notes *string
}

// Reschedule is the admin override that moves an appointment to a new slot.
// The target slot is re-checked atomically, excluding the appointment itself.
func (e *Engine) Reschedule(ctx context.Context, actor model.Actor, req RescheduleRequest) (model.Appointment, error) {
	if actor.Role != model.RoleAdmin {
		return model.Appointment{}, fmt.Errorf("%w: only admins reschedule", ErrForbidden)
	}
	if req.Date.IsZero() || req.Time == "" {
		return model.Appointment{}, fmt.Errorf("%w: date and time are required", ErrInvalidRequest)
	}
	if !req.Date.Valid() {
		return model.Appointment{}, fmt.Errorf("%w: %q", ErrInvalidDate, req.Date.String())
	}
	if !req.Time.Valid() {
		return model.Appointment{}, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidRequest, req.Time)
	}
	if req.Status != "" {
		if _, ok := model.ParseStatus(string(req.Status)); !ok {
			return model.Appointment{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, req.Status)
		}
	}
	if err := e.checkNotPast(req.Date, req.Time); err != nil {
		return model.Appointment{}, err
	}

	today := e.Today()
	appt, err := e.update(ctx, req.AppointmentID, func(a *model.Appointment) (string, error) {
		if err := authorize(actor, *a); err != nil {
			return "", err
		}
		if req.Status != "" && req.Status != a.Status {
			if err := lifecycle.Check(*a, req.Status, actor.Role, today); err != nil {
				return "", err
			}
			a.Status = req.Status
		}
		a.Date = req.Date
		a.Time = req.Time
		if req.Notes != nil {
			a.Notes = strings.TrimSpace(*req.Notes)
		}
		return outbox.EventRescheduled, nil
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			e.logger.Info("reschedule rejected", "appointment_id", req.AppointmentID, "err", err)
		}
		return model.Appointment{}, err
	}
	e.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"date", appt.Date.String(),
		"time", appt.Time.String(),
	)
	return appt, nil
}

// Delete hard-deletes an appointment and frees its slot. Admin only.
func (e *Engine) Delete(ctx context.Context, actor model.Actor, id string) error {
	if actor.Role != model.RoleAdmin {
		return fmt.Errorf("%w: only admins delete appointments", ErrForbidden)
	}
	if _, err := e.Get(ctx, actor, id); err != nil {
		return err
	}
	appt, err := e.appointments.DeleteAppointment(ctx, id)
	if err != nil {
		return e.storeErr(err, id)
	}
	e.logger.Info("appointment deleted", "appointment_id", appt.ID, "doctor_id", appt.DoctorID)
	return nil
}

type ListRequest struct {
	Bucket    views.Bucket
	Order     views.Order
	From      model.Date
	To        model.Date
	DoctorID  string
	PatientID string
}

// List returns the actor's appointments in one view bucket.
func (e *Engine) List(ctx context.Context, actor model.Actor, req ListRequest) ([]model.Appointment, error) {
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidRequest)
	}
	if req.Bucket == "" {
		req.Bucket = views.BucketAll
	}
	scope := views.ScopeFor(actor)
	q := storage.Query{
		DoctorID:  strings.TrimSpace(req.DoctorID),
		PatientID: strings.TrimSpace(req.PatientID),
		From:      req.From,
		To:        req.To,
	}
	switch scope.Kind {
	case views.ScopePatient:
		q.PatientID = scope.ID
	case views.ScopeDoctor:
		q.DoctorID = scope.ID
	case views.ScopeClinic:
		q.ClinicID = scope.ID
	}

	appts, err := e.appointments.ListAppointments(ctx, q)
	if err != nil {
		return nil, err
	}
	return views.Filter(appts, scope, req.Bucket, e.Today(), req.Order), nil
}

func (e *Engine) GetTemplate(ctx context.Context, doctorID string) (availability.Template, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrInvalidRequest)
	}
	return e.template(ctx, doctorID)
}

// SaveTemplate replaces a doctor's weekly template. Only that doctor may.
func (e *Engine) SaveTemplate(ctx context.Context, actor model.Actor, doctorID string, tpl availability.Template) error {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		doctorID = actor.ID
	}
	if actor.Role != model.RoleDoctor || actor.ID != doctorID {
		return fmt.Errorf("%w: only the doctor edits their schedule", ErrForbidden)
	}
	if tpl == nil {
		tpl = availability.Template{}
	}
	if err := tpl.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := e.templates.SaveTemplate(ctx, doctorID, tpl); err != nil {
		return err
	}
	e.logger.Info("availability template saved", "doctor_id", doctorID)
	return nil
}

func (e *Engine) template(ctx context.Context, doctorID string) (availability.Template, error) {
	tpl, err := e.templates.GetTemplate(ctx, doctorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no availability for doctor %s", ErrNotFound, doctorID)
		}
		return nil, err
	}
	return tpl, nil
}

func (e *Engine) update(ctx context.Context, id string, mutate storage.Mutation) (model.Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Appointment{}, fmt.Errorf("%w: appointment_id is required", ErrInvalidRequest)
	}
	var target model.Slot
	appt, err := e.appointments.UpdateAppointment(ctx, id, func(a *model.Appointment) (string, error) {
		evt, err := mutate(a)
		target = a.Slot()
		return evt, err
	})
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return model.Appointment{}, slotConflict(target.DoctorID, target.Date, target.Time)
		}
		return model.Appointment{}, e.storeErr(err, id)
	}
	return appt, nil
}

func (e *Engine) checkNotPast(date model.Date, tm model.TimeOfDay) error {
	today, now := e.clock()
	if date.Before(today) {
		return fmt.Errorf("%w: %s is before %s", ErrPastDate, date, today)
	}
	if date == today && tm < now {
		return fmt.Errorf("%w: %s %s has already started", ErrPastDate, date, tm)
	}
	return nil
}

func (e *Engine) slotAttrs(doctorID string, date model.Date, tm model.TimeOfDay, err error) []any {
	return []any{"doctor_id", doctorID, "date", date.String(), "time", tm.String(), "err", err}
}

func (e *Engine) storeErr(err error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	return err
}

// authorize checks that actor may act on appt at all. Role-specific
// transition rules are enforced by the lifecycle.
func authorize(actor model.Actor, appt model.Appointment) error {
	switch actor.Role {
	case model.RolePatient:
		if appt.PatientID == actor.ID {
			return nil
		}
	case model.RoleDoctor:
		if appt.DoctorID == actor.ID {
			return nil
		}
	case model.RoleAdmin:
		if actor.ClinicID == "" || appt.ClinicID == actor.ClinicID {
			return nil
		}
	}
	return fmt.Errorf("%w: appointment %s", ErrForbidden, appt.ID)
}

func slotConflict(doctorID string, date model.Date, tm model.TimeOfDay) error {
	return fmt.Errorf("%w: doctor %s is already booked on %s at %s", ErrSlotConflict, doctorID, date, tm)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
