package handlers

import (
	"net/http"
	"strings"

	"github.com/medibook/medibook/services/booking-service/internal/availability"
	"github.com/medibook/medibook/services/booking-service/internal/model"
)

type availabilityResponse struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Weekday  string   `json:"weekday"`
	Times    []string `json:"times"`
}

type scheduleResponse struct {
	DoctorID string              `json:"doctor_id"`
	Weekly   map[string][]string `json:"weekly"`
}

type saveScheduleRequest struct {
	Weekly map[string][]string `json:"weekly"`
}

// Availability answers which times are bookable for a doctor on a date.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	doctorID := strings.TrimSpace(q.Get("doctor_id"))
	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	times, err := h.engine.BookableTimes(r.Context(), doctorID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]string, 0, len(times))
	for _, tm := range times {
		out = append(out, tm.String())
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		DoctorID: doctorID,
		Date:     date.String(),
		Weekday:  availability.WeekdayName(date.Weekday()),
		Times:    out,
	})
}

// Schedule reads (GET) or fully replaces (PUT) a doctor's weekly template.
func (h *BookingHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
	if doctorID == "" && actor.Role == model.RoleDoctor {
		doctorID = actor.ID
	}

	if r.Method == http.MethodPut {
		var req saveScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		tpl, err := availability.Normalize(req.Weekly)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if err := h.engine.SaveTemplate(r.Context(), actor, doctorID, tpl); err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, scheduleResponse{DoctorID: doctorID, Weekly: tpl.Raw()})
		return
	}

	tpl, err := h.engine.GetTemplate(r.Context(), doctorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{DoctorID: doctorID, Weekly: tpl.Raw()})
}
