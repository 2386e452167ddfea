package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/medibook/medibook/libs/db"
	"github.com/medibook/medibook/services/booking-service/internal/model"
	"github.com/medibook/medibook/services/booking-service/internal/outbox"
)

const appointmentColumns = `id::text, doctor_id, patient_id, clinic_id, appointment_date, appointment_time,
	status, reason, notes, created_at, updated_at`

// AppointmentRepository persists appointments in Postgres. The partial unique
// index appointments_active_slot_uq makes insert and reschedule atomic with
// respect to the slot check; every write records its outbox event in the
// same transaction.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	createdAt := appt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(doctor_id, patient_id, clinic_id, appointment_date, appointment_time, status, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $9)
		RETURNING id::text, created_at, updated_at
	`, appt.DoctorID, appt.PatientID, appt.ClinicID, appt.Date.String(), appt.Time.String(),
		string(appt.Status), appt.Reason, appt.Notes, createdAt).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return err
	}

	if err := r.insertEvent(ctx, tx, outbox.EventBooked, *appt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, ErrNotFound
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if IsNotFound(err) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

func (r *AppointmentRepository) ListAppointments(ctx context.Context, q Query) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.DoctorID != "" {
		add("doctor_id = $%d", q.DoctorID)
	}
	if q.PatientID != "" {
		add("patient_id = $%d", q.PatientID)
	}
	if q.ClinicID != "" {
		add("clinic_id = $%d", q.ClinicID)
	}
	if !q.From.IsZero() {
		add("appointment_date >= $%d::date", q.From.String())
	}
	if !q.To.IsZero() {
		add("appointment_date <= $%d::date", q.To.String())
	}
	if q.ActiveOnly {
		where = append(where, "status <> 'cancelled'")
	}

	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY appointment_date, appointment_time, id"

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, id string, mutate Mutation) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, ErrNotFound
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}

	next := cur
	eventType, err := mutate(&next)
	if err != nil {
		return model.Appointment{}, err
	}
	preserveIdentity(&next, cur)

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2::date,
			appointment_time = $3,
			status = $4,
			notes = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, next.Date.String(), next.Time.String(), string(next.Status), next.Notes).Scan(&next.UpdatedAt)
	if err != nil {
		if isSlotViolation(err) {
			return model.Appointment{}, ErrSlotTaken
		}
		return model.Appointment{}, err
	}

	if eventType != "" {
		if err := r.insertEvent(ctx, tx, eventType, next); err != nil {
			return model.Appointment{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return next, nil
}

func (r *AppointmentRepository) DeleteAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, ErrNotFound
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		RETURNING `+appointmentColumns, id))
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	if err := r.insertEvent(ctx, tx, outbox.EventDeleted, appt); err != nil {
		return model.Appointment{}, err
	}
	return appt, tx.Commit(ctx)
}

func (r *AppointmentRepository) insertEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	evt, err := outbox.AppointmentEvent(eventType, appt)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("outbox insert: %w", err)
	}
	return nil
}

// validID keeps malformed ids from reaching the uuid column as a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt   model.Appointment
		date   time.Time
		clock  string
		status string
	)
	err := row.Scan(&appt.ID, &appt.DoctorID, &appt.PatientID, &appt.ClinicID, &date, &clock,
		&status, &appt.Reason, &appt.Notes, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Date = model.DateOf(date)
	appt.Time = model.TimeOfDay(clock)
	st, ok := model.ParseStatus(status)
	if !ok {
		return model.Appointment{}, errors.New("unknown appointment status " + status)
	}
	appt.Status = st
	return appt, nil
}
