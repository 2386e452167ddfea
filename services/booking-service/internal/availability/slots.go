package availability

import (
	"fmt"

	"github.com/medibook/medibook/services/booking-service/internal/model"
)

// ResolveCandidates returns the configured times for the weekday of date.
// The result is a copy and is empty when the doctor has no hours that day.
func ResolveCandidates(t Template, date model.Date) ([]model.TimeOfDay, error) {
	if !date.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidDate, date.String())
	}
	times := t[date.Weekday()]
	return append(make([]model.TimeOfDay, 0, len(times)), times...), nil
}

// FreeTimes returns candidates minus taken, preserving candidate order.
func FreeTimes(candidates, taken []model.TimeOfDay) []model.TimeOfDay {
	busy := make(map[model.TimeOfDay]struct{}, len(taken))
	for _, tm := range taken {
		busy[tm] = struct{}{}
	}
	out := make([]model.TimeOfDay, 0, len(candidates))
	for _, tm := range candidates {
		if _, ok := busy[tm]; ok {
			continue
		}
		out = append(out, tm)
	}
	return out
}

// NotBefore drops times earlier than cutoff. Used for the current day, where
// slots that already started are no longer bookable.
func NotBefore(times []model.TimeOfDay, cutoff model.TimeOfDay) []model.TimeOfDay {
	out := make([]model.TimeOfDay, 0, len(times))
	for _, tm := range times {
		if tm < cutoff {
			continue
		}
		out = append(out, tm)
	}
	return out
}
