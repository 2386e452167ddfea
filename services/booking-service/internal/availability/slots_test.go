package availability

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/medibook/medibook/services/booking-service/internal/model"
)

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return d
}

func TestResolveCandidates_UsesWeekday(t *testing.T) {
	tpl := Template{time.Tuesday: {"09:00", "09:30"}}

	// 2025-06-10 is a Tuesday.
	got, err := ResolveCandidates(tpl, mustDate(t, "2025-06-10"))
	if err != nil {
		t.Fatalf("ResolveCandidates failed: %v", err)
	}
	if !reflect.DeepEqual(got, []model.TimeOfDay{"09:00", "09:30"}) {
		t.Fatalf("unexpected candidates %v", got)
	}

	got, err = ResolveCandidates(tpl, mustDate(t, "2025-06-11"))
	if err != nil {
		t.Fatalf("ResolveCandidates failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no hours on Wednesday, got %v", got)
	}
}

func TestResolveCandidates_InvalidDate(t *testing.T) {
	_, err := ResolveCandidates(Template{}, model.Date{Year: 2025, Month: time.February, Day: 30})
	if !errors.Is(err, model.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestResolveCandidates_ReturnsCopy(t *testing.T) {
	tpl := Template{time.Tuesday: {"09:00"}}
	got, _ := ResolveCandidates(tpl, mustDate(t, "2025-06-10"))
	got[0] = "10:00"
	if tpl[time.Tuesday][0] != "09:00" {
		t.Fatal("template mutated through resolved candidates")
	}
}

func TestFreeTimes(t *testing.T) {
	candidates := []model.TimeOfDay{"08:00", "08:30", "09:00", "09:30"}
	got := FreeTimes(candidates, []model.TimeOfDay{"09:00", "08:00", "11:00"})
	if !reflect.DeepEqual(got, []model.TimeOfDay{"08:30", "09:30"}) {
		t.Fatalf("unexpected free times %v", got)
	}
}

func TestNotBefore(t *testing.T) {
	got := NotBefore([]model.TimeOfDay{"09:00", "09:30", "10:00"}, "09:30")
	if !reflect.DeepEqual(got, []model.TimeOfDay{"09:30", "10:00"}) {
		t.Fatalf("unexpected times %v", got)
	}
}

func TestNormalize(t *testing.T) {
	tpl, err := Normalize(map[string][]string{
		"Monday":  {"10:00", "9:00", "09:00"},
		"friday ": {},
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if !reflect.DeepEqual(tpl[time.Monday], []model.TimeOfDay{"09:00", "10:00"}) {
		t.Fatalf("unexpected monday %v", tpl[time.Monday])
	}
	if err := tpl.Validate(); err != nil {
		t.Fatalf("normalized template should validate: %v", err)
	}

	if _, err := Normalize(map[string][]string{"funday": {"09:00"}}); !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate for weekday, got %v", err)
	}
	if _, err := Normalize(map[string][]string{"monday": {"25:00"}}); !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate for time, got %v", err)
	}
}

func TestValidate_RejectsUnsorted(t *testing.T) {
	if err := (Template{time.Monday: {"10:00", "09:00"}}).Validate(); !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate, got %v", err)
	}
	if err := (Template{time.Monday: {"09:00", "09:00"}}).Validate(); !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate for duplicates, got %v", err)
	}
}

func TestTemplateJSON(t *testing.T) {
	in := Template{time.Sunday: {"08:00"}, time.Saturday: {"12:00", "12:30"}}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string][]string
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if len(raw) != 7 || len(raw["monday"]) != 0 || raw["sunday"][0] != "08:00" {
		t.Fatalf("unexpected encoded template %s", b)
	}

	var out Template
	if err := json.Unmarshal([]byte(`{"tuesday":["9:30","09:00"]}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out[time.Tuesday], []model.TimeOfDay{"09:00", "09:30"}) {
		t.Fatalf("unexpected decoded template %v", out)
	}
	if !out.Offers(time.Tuesday, "09:30") || out.Offers(time.Monday, "09:30") {
		t.Fatal("unexpected Offers result")
	}
}
