package booking

import (
	"errors"

	"github.com/medibook/medibook/services/booking-service/internal/lifecycle"
	"github.com/medibook/medibook/services/booking-service/internal/model"
)

// Every failure the engine returns wraps exactly one of these.
var (
	ErrInvalidRequest            = errors.New("invalid request")
	ErrInvalidDate               = model.ErrInvalidDate
	ErrPastDate                  = errors.New("date is in the past")
	ErrSlotConflict              = errors.New("slot conflict")
	ErrInvalidTransition         = lifecycle.ErrInvalidTransition
	ErrCancellationWindowExpired = lifecycle.ErrCancellationWindowExpired
	ErrForbidden                 = lifecycle.ErrForbidden
	ErrNotFound                  = errors.New("not found")
)
