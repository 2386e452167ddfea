package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/medibook/medibook/services/booking-service/internal/booking"
	"github.com/medibook/medibook/services/booking-service/internal/model"
	"github.com/medibook/medibook/services/booking-service/internal/views"
)

type BookingHandler struct {
	engine *booking.Engine
	logger *slog.Logger
}

func NewBookingHandler(engine *booking.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, logger: logger}
}

// Register mounts the API routes on mux.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/availability", h.Availability)
	mux.HandleFunc("/api/v1/doctors/schedule", h.Schedule)
	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/appointments/status", h.Status)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
}

type createAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	ClinicID  string `json:"clinic_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Reason    string `json:"reason"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Notes         string `json:"notes"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type rescheduleRequest struct {
	AppointmentID string  `json:"appointment_id"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	Status        string  `json:"status"`
	Notes         *string `json:"notes"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	DoctorID      string `json:"doctor_id"`
	PatientID     string `json:"patient_id"`
	ClinicID      string `json:"clinic_id,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type listResponse struct {
	Bucket string            `json:"bucket"`
	Today  string            `json:"today"`
	Items  []appointmentItem `json:"items"`
}

func toItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		ClinicID:      a.ClinicID,
		Date:          a.Date.String(),
		Time:          a.Time.String(),
		Status:        string(a.Status),
		Reason:        a.Reason,
		Notes:         a.Notes,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !a.UpdatedAt.IsZero() {
		item.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

// Appointments books (POST), lists (GET) or hard-deletes (DELETE).
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost, http.MethodGet, http.MethodDelete) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		h.list(w, r)
	}
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	appt, err := h.engine.Book(r.Context(), actor, booking.BookRequest{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		ClinicID:  req.ClinicID,
		Date:      date,
		Time:      normalizeTime(req.Time),
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(appt))
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("id")); id != "" {
		appt, err := h.engine.Get(r.Context(), actor, id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toItem(appt))
		return
	}

	bucket, err := views.ParseBucket(q.Get("bucket"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	order, err := views.ParseOrder(q.Get("order"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	from, err := parseOptionalDate(q.Get("from"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	to, err := parseOptionalDate(q.Get("to"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	appts, err := h.engine.List(r.Context(), actor, booking.ListRequest{
		Bucket:    bucket,
		Order:     order,
		From:      from,
		To:        to,
		DoctorID:  q.Get("doctor_id"),
		PatientID: q.Get("patient_id"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	writeJSON(w, http.StatusOK, listResponse{Bucket: string(bucket), Today: h.engine.Today().String(), Items: items})
}

func (h *BookingHandler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}
	if err := h.engine.Delete(r.Context(), actor, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status applies a lifecycle transition.
func (h *BookingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.engine.Transition(r.Context(), actor, booking.TransitionRequest{
		AppointmentID: req.AppointmentID,
		Status:        model.Status(strings.ToLower(strings.TrimSpace(req.Status))),
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.engine.Cancel(r.Context(), actor, req.AppointmentID, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

// Reschedule is the admin override that moves an appointment.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	appt, err := h.engine.Reschedule(r.Context(), actor, booking.RescheduleRequest{
		AppointmentID: req.AppointmentID,
		Date:          date,
		Time:          normalizeTime(req.Time),
		Status:        model.Status(strings.ToLower(strings.TrimSpace(req.Status))),
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

// normalizeTime canonicalizes "9:00" to "09:00". Unparseable input is passed
// through for the engine to reject.
func normalizeTime(raw string) model.TimeOfDay {
	if tm, err := model.ParseTimeOfDay(raw); err == nil {
		return tm
	}
	return model.TimeOfDay(strings.TrimSpace(raw))
}
