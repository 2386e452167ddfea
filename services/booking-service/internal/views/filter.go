package views

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/medibook/medibook/services/booking-service/internal/model"
)

var ErrInvalidView = errors.New("invalid view")

type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopePatient
	ScopeDoctor
	ScopeClinic
)

// Scope restricts the appointment set before bucketing.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func AllScope() Scope               { return Scope{Kind: ScopeAll} }
func PatientScope(id string) Scope { return Scope{Kind: ScopePatient, ID: id} }
func DoctorScope(id string) Scope  { return Scope{Kind: ScopeDoctor, ID: id} }
func ClinicScope(id string) Scope  { return Scope{Kind: ScopeClinic, ID: id} }

// ScopeFor derives the scope an actor sees.
func ScopeFor(actor model.Actor) Scope {
	switch actor.Role {
	case model.RolePatient:
		return PatientScope(actor.ID)
	case model.RoleDoctor:
		return DoctorScope(actor.ID)
	default:
		if actor.ClinicID == "" {
			return AllScope()
		}
		return ClinicScope(actor.ClinicID)
	}
}

func (s Scope) Matches(a model.Appointment) bool {
	switch s.Kind {
	case ScopePatient:
		return a.PatientID == s.ID
	case ScopeDoctor:
		return a.DoctorID == s.ID
	case ScopeClinic:
		return a.ClinicID == s.ID
	default:
		return true
	}
}

type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketUpcoming  Bucket = "upcoming"
	BucketPast      Bucket = "past"
	BucketPending   Bucket = "pending"
	BucketCancelled Bucket = "cancelled"
	BucketAll       Bucket = "all"
)

// ParseBucket treats an empty string as BucketAll.
func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BucketAll, nil
	case BucketToday, BucketUpcoming, BucketPast, BucketPending, BucketCancelled, BucketAll:
		return b, nil
	default:
		return "", fmt.Errorf("%w: unknown bucket %q", ErrInvalidView, s)
	}
}

func (b Bucket) Contains(a model.Appointment, today model.Date) bool {
	switch b {
	case BucketToday:
		return a.Date == today
	case BucketUpcoming:
		return !a.Date.Before(today) && !a.Status.Terminal()
	case BucketPast:
		return a.Date.Before(today) || a.Status == model.StatusCompleted
	case BucketPending:
		return a.Status == model.StatusPending
	case BucketCancelled:
		return a.Status == model.StatusCancelled
	default:
		return true
	}
}

// DefaultOrder is ascending for views about what comes next and descending
// for history views.
func (b Bucket) DefaultOrder() Order {
	switch b {
	case BucketToday, BucketUpcoming, BucketPending:
		return OrderAscending
	default:
		return OrderDescending
	}
}

type Order int

const (
	OrderDefault Order = iota
	OrderAscending
	OrderDescending
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return OrderDefault, nil
	case "asc":
		return OrderAscending, nil
	case "desc":
		return OrderDescending, nil
	default:
		return 0, fmt.Errorf("%w: unknown order %q", ErrInvalidView, s)
	}
}

// Filter applies scope, then bucket, then a stable sort by date in the given
// order. Ties on date are always broken by time ascending. The input slice is
// not modified.
func Filter(appts []model.Appointment, scope Scope, bucket Bucket, today model.Date, order Order) []model.Appointment {
	if order == OrderDefault {
		order = bucket.DefaultOrder()
	}
	out := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if scope.Matches(a) && bucket.Contains(a, today) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			if order == OrderDescending {
				return c > 0
			}
			return c < 0
		}
		return out[i].Time < out[j].Time
	})
	return out
}
