package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medibook/medibook/libs/auth"
	"github.com/medibook/medibook/services/booking-service/internal/availability"
	"github.com/medibook/medibook/services/booking-service/internal/booking"
	"github.com/medibook/medibook/services/booking-service/internal/model"
	"github.com/medibook/medibook/services/booking-service/internal/views"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorResponse{Error: kind, Message: msg})
}

// writeError maps engine errors onto status codes. Unknown errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		code int
		kind string
	)
	switch {
	case errors.Is(err, booking.ErrInvalidDate):
		code, kind = http.StatusBadRequest, "invalid_date"
	case errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, views.ErrInvalidView),
		errors.Is(err, availability.ErrInvalidTemplate),
		errors.Is(err, model.ErrInvalidTime):
		code, kind = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, booking.ErrPastDate):
		code, kind = http.StatusUnprocessableEntity, "past_date"
	case errors.Is(err, booking.ErrNotFound):
		code, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrForbidden):
		code, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, booking.ErrSlotConflict):
		code, kind = http.StatusConflict, "slot_conflict"
	case errors.Is(err, booking.ErrInvalidTransition):
		code, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, booking.ErrCancellationWindowExpired):
		code, kind = http.StatusUnprocessableEntity, "cancellation_window_expired"
	default:
		logger.Error("request failed", "err", err)
		writeProblem(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeProblem(w, code, kind, err.Error())
}

// actorFrom returns the caller identity placed on the context by the auth
// middleware.
func actorFrom(r *http.Request) (model.Actor, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id.UserID == "" {
		return model.Actor{}, false
	}
	role, ok := model.ParseRole(strings.ToLower(id.Role))
	if !ok {
		return model.Actor{}, false
	}
	return model.Actor{ID: id.UserID, Role: role, ClinicID: id.ClinicID}, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "unauthorized", "caller identity with a patient, doctor or admin role is required")
	}
	return actor, ok
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return false
	}
	return true
}

// parseOptionalDate treats an empty value as unset.
func parseOptionalDate(raw string) (model.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return model.Date{}, nil
	}
	return model.ParseDate(raw)
}
