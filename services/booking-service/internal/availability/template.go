package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/medibook/medibook/services/booking-service/internal/model"
)

var ErrInvalidTemplate = errors.New("invalid availability template")

var weekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}

func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range weekdayNames {
		if name == s {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidTemplate, s)
}

// Template is a doctor's recurring weekly schedule. Each day holds unique
// times in ascending order; a missing day means no hours.
type Template map[time.Weekday][]model.TimeOfDay

// Normalize builds a Template from weekday symbols and "HH:MM" strings,
// dropping duplicates and sorting each day.
func Normalize(raw map[string][]string) (Template, error) {
	t := Template{}
	for day, times := range raw {
		wd, err := ParseWeekday(day)
		if err != nil {
			return nil, err
		}
		parsed := make([]model.TimeOfDay, 0, len(times))
		for _, s := range times {
			tm, err := model.ParseTimeOfDay(s)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, weekdayNames[wd], err)
			}
			parsed = append(parsed, tm)
		}
		t[wd] = append(t[wd], parsed...)
	}
	for wd, times := range t {
		t[wd] = sortUnique(times)
	}
	return t, nil
}

func sortUnique(times []model.TimeOfDay) []model.TimeOfDay {
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	out := times[:0]
	for i, tm := range times {
		if i > 0 && tm == times[i-1] {
			continue
		}
		out = append(out, tm)
	}
	return out
}

func (t Template) Validate() error {
	for wd, times := range t {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidTemplate, wd)
		}
		for i, tm := range times {
			if !tm.Valid() {
				return fmt.Errorf("%w: %s: time %q", ErrInvalidTemplate, weekdayNames[wd], tm)
			}
			if i > 0 && times[i-1] >= tm {
				return fmt.Errorf("%w: %s: times must be unique and ascending", ErrInvalidTemplate, weekdayNames[wd])
			}
		}
	}
	return nil
}

// Offers reports whether tm is a configured time on wd.
func (t Template) Offers(wd time.Weekday, tm model.TimeOfDay) bool {
	for _, candidate := range t[wd] {
		if candidate == tm {
			return true
		}
	}
	return false
}

func (t Template) Clone() Template {
	out := make(Template, len(t))
	for wd, times := range t {
		out[wd] = append([]model.TimeOfDay(nil), times...)
	}
	return out
}

// Raw returns the template keyed by weekday symbol, with every day present.
func (t Template) Raw() map[string][]string {
	raw := make(map[string][]string, len(weekdayNames))
	for i, name := range weekdayNames {
		times := t[time.Weekday(i)]
		out := make([]string, 0, len(times))
		for _, tm := range times {
			out = append(out, tm.String())
		}
		raw[name] = out
	}
	return raw
}

func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Raw())
}

func (t *Template) UnmarshalJSON(b []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	parsed, err := Normalize(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
