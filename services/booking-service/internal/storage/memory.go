package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medibook/medibook/services/booking-service/internal/availability"
	"github.com/medibook/medibook/services/booking-service/internal/model"
	"github.com/medibook/medibook/services/booking-service/internal/outbox"
)

// Memory is a process-local store. A single mutex serializes every write, so
// the slot check and the insert are one step.
type Memory struct {
	mu           sync.Mutex
	now          func() time.Time
	appointments map[string]model.Appointment
	active       map[model.Slot]string
	templates    map[string]availability.Template
	events       []outbox.Event
}

func NewMemory() *Memory {
	return &Memory{
		now:          time.Now,
		appointments: map[string]model.Appointment{},
		active:       map[model.Slot]string{},
		templates:    map[string]availability.Template{},
	}
}

func (m *Memory) CreateAppointment(_ context.Context, appt *model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status.Active() {
		if _, taken := m.active[appt.Slot()]; taken {
			return ErrSlotTaken
		}
	}
	now := m.now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	evt, err := outbox.AppointmentEvent(outbox.EventBooked, *appt)
	if err != nil {
		return err
	}
	m.appointments[appt.ID] = *appt
	if appt.Status.Active() {
		m.active[appt.Slot()] = appt.ID
	}
	m.events = append(m.events, evt)
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (m *Memory) ListAppointments(_ context.Context, q Query) ([]model.Appointment, error) {
	m.mu.Lock()
	out := make([]model.Appointment, 0, len(m.appointments))
	for _, a := range m.appointments {
		if q.Matches(a) {
			out = append(out, a)
		}
	}
	m.mu.Unlock()

	sortChronological(out)
	return out, nil
}

func (m *Memory) UpdateAppointment(_ context.Context, id string, mutate Mutation) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	next := cur
	eventType, err := mutate(&next)
	if err != nil {
		return model.Appointment{}, err
	}
	preserveIdentity(&next, cur)

	if next.Status.Active() {
		if holder, taken := m.active[next.Slot()]; taken && holder != id {
			return model.Appointment{}, ErrSlotTaken
		}
	}
	next.UpdatedAt = m.now().UTC()
	var evt outbox.Event
	if eventType != "" {
		if evt, err = outbox.AppointmentEvent(eventType, next); err != nil {
			return model.Appointment{}, err
		}
	}

	if cur.Status.Active() {
		delete(m.active, cur.Slot())
	}
	if next.Status.Active() {
		m.active[next.Slot()] = id
	}
	m.appointments[id] = next
	if eventType != "" {
		m.events = append(m.events, evt)
	}
	return next, nil
}

func (m *Memory) DeleteAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	evt, err := outbox.AppointmentEvent(outbox.EventDeleted, appt)
	if err != nil {
		return model.Appointment{}, err
	}
	delete(m.appointments, id)
	if appt.Status.Active() && m.active[appt.Slot()] == id {
		delete(m.active, appt.Slot())
	}
	m.events = append(m.events, evt)
	return appt, nil
}

func (m *Memory) GetTemplate(_ context.Context, doctorID string) (availability.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[doctorID]
	if !ok {
		return nil, ErrNotFound
	}
	return tpl.Clone(), nil
}

func (m *Memory) SaveTemplate(_ context.Context, doctorID string, tpl availability.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[doctorID] = tpl.Clone()
	return nil
}

func (m *Memory) EnsureTemplate(_ context.Context, doctorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[doctorID]; ok {
		return false, nil
	}
	m.templates[doctorID] = availability.Template{}
	return true, nil
}

// Events returns the event types recorded so far, oldest first.
func (m *Memory) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

func sortChronological(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if c := appts[i].Date.Compare(appts[j].Date); c != 0 {
			return c < 0
		}
		if appts[i].Time != appts[j].Time {
			return appts[i].Time < appts[j].Time
		}
		return appts[i].ID < appts[j].ID
	})
}
