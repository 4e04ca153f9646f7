package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// mockRepo is a map-backed Repository whose guarded updates mirror the
// SQL semantics of PgRepository, including the conditional reserve that
// closes the last-opening race.
type mockRepo struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]*TimeSlot
	appts    map[uuid.UUID]*Appointment
	staff    map[uuid.UUID]*Staff
	patients map[uuid.UUID]*Patient
	events   []EventLog

	failCreateAppointment error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		slots:    make(map[uuid.UUID]*TimeSlot),
		appts:    make(map[uuid.UUID]*Appointment),
		staff:    make(map[uuid.UUID]*Staff),
		patients: make(map[uuid.UUID]*Patient),
	}
}

func (m *mockRepo) addSlot(s TimeSlot) *TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := s
	m.slots[cp.ID] = &cp
	return &cp
}

func (m *mockRepo) addStaff(st Staff) *Staff {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	cp := st
	m.staff[cp.ID] = &cp
	return &cp
}

func (m *mockRepo) addPatient(p Patient) *Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := p
	m.patients[cp.ID] = &cp
	return &cp
}

func (m *mockRepo) addAppointment(a Appointment) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := a
	m.appts[cp.ID] = &cp
	return &cp
}

func slotCopy(s *TimeSlot) *TimeSlot {
	cp := *s
	return &cp
}

func apptCopy(a *Appointment) *Appointment {
	cp := *a
	return &cp
}

// Slots

func (m *mockRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return slotCopy(s), nil
}

func (m *mockRepo) ListSlots(_ context.Context, staffID uuid.UUID, from, to time.Time, availableOnly bool) ([]TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []TimeSlot
	for _, s := range m.slots {
		if s.StaffID != staffID {
			continue
		}
		if s.SlotDate.Before(Day(from)) || s.SlotDate.After(Day(to)) {
			continue
		}
		if availableOnly && !s.IsAvailable {
			continue
		}
		result = append(result, *s)
	}

	// Ordered by date then start time, like the SQL.
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].StartTime.Before(result[j-1].StartTime); j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result, nil
}

func (m *mockRepo) InsertSlots(_ context.Context, slots []TimeSlot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, s := range slots {
		exists := false
		for _, have := range m.slots {
			if have.StaffID == s.StaffID && have.SlotDate.Equal(s.SlotDate) && have.StartTime.Equal(s.StartTime) {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		cp := s
		if cp.ID == uuid.Nil {
			cp.ID = uuid.New()
		}
		m.slots[cp.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (m *mockRepo) LastSlotDate(_ context.Context, staffID uuid.UUID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last time.Time
	found := false
	for _, s := range m.slots {
		if s.StaffID != staffID {
			continue
		}
		if !found || s.SlotDate.After(last) {
			last = s.SlotDate
			found = true
		}
	}
	return last, found, nil
}

func (m *mockRepo) ReserveSlot(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok || !s.IsAvailable || s.CurrentBookings >= s.MaxCapacity {
		return nil, ErrSlotNotFound
	}
	s.CurrentBookings++
	s.UpdatedAt = time.Now()
	return slotCopy(s), nil
}

func (m *mockRepo) ReleaseSlot(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.CurrentBookings > 0 {
		s.CurrentBookings--
	}
	s.UpdatedAt = time.Now()
	return slotCopy(s), nil
}

func (m *mockRepo) SetAvailability(_ context.Context, id uuid.UUID, available, onlyIfUnbooked bool) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if onlyIfUnbooked && s.CurrentBookings != 0 {
		return nil, ErrSlotNotFound
	}
	s.IsAvailable = available
	s.UpdatedAt = time.Now()
	return slotCopy(s), nil
}

func (m *mockRepo) UpdateCapacity(_ context.Context, id uuid.UUID, capacity int) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s.MaxCapacity = capacity
	s.UpdatedAt = time.Now()
	return slotCopy(s), nil
}

func (m *mockRepo) SetRunningLate(_ context.Context, id uuid.UUID, delayMinutes int) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s.DelayMinutes = delayMinutes
	s.IsRunningLate = delayMinutes > 0
	s.UpdatedAt = time.Now()
	return slotCopy(s), nil
}

func (m *mockRepo) DisableSlotCancellingAppointments(_ context.Context, slotID uuid.UUID, reason string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}

	var cancelled []Appointment
	for _, a := range m.appts {
		if a.SlotID != slotID || IsTerminal(a.Status) {
			continue
		}
		a.Status = StatusCancelled
		r := reason
		a.Reason = &r
		a.UpdatedAt = time.Now()
		cancelled = append(cancelled, *a)
	}

	s.IsAvailable = false
	s.CurrentBookings = 0
	s.UpdatedAt = time.Now()
	return cancelled, nil
}

// Appointments

func (m *mockRepo) CreateAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreateAppointment != nil {
		return nil, m.failCreateAppointment
	}

	cp := *appt
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.appts[cp.ID] = &cp
	return apptCopy(&cp), nil
}

func (m *mockRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return apptCopy(a), nil
}

func (m *mockRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return apptCopy(a), nil
}

func (m *mockRepo) RebindAppointmentSlot(_ context.Context, id, newSlotID uuid.UUID, newDate time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok || IsTerminal(a.Status) {
		return nil, ErrAppointmentNotFound
	}
	a.SlotID = newSlotID
	a.Date = newDate
	a.Status = StatusRescheduled
	a.UpdatedAt = time.Now()
	return apptCopy(a), nil
}

func (m *mockRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []AppointmentDetail
	for _, a := range m.appts {
		if a.PatientID != patientID {
			continue
		}
		d := AppointmentDetail{Appointment: *a}
		if s, ok := m.slots[a.SlotID]; ok {
			d.Slot = slotCopy(s)
		}
		if st, ok := m.staff[a.StaffID]; ok {
			cp := *st
			d.Staff = &cp
		}
		result = append(result, d)
	}
	return result, nil
}

func (m *mockRepo) ListAppointmentsByStaffDate(_ context.Context, staffID uuid.UUID, date time.Time) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []AppointmentDetail
	for _, a := range m.appts {
		if a.StaffID != staffID || !Day(a.Date).Equal(Day(date)) {
			continue
		}
		d := AppointmentDetail{Appointment: *a}
		if s, ok := m.slots[a.SlotID]; ok {
			d.Slot = slotCopy(s)
		}
		result = append(result, d)
	}
	return result, nil
}

func (m *mockRepo) CountAppointmentsByDate(_ context.Context, staffID uuid.UUID, from, to time.Time) (map[time.Time]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[time.Time]int)
	for _, a := range m.appts {
		if a.StaffID != staffID || a.Status == StatusCancelled {
			continue
		}
		day := Day(a.Date)
		if day.Before(Day(from)) || day.After(Day(to)) {
			continue
		}
		counts[day]++
	}
	return counts, nil
}

// Directory

func (m *mockRepo) GetStaffByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.staff[id]
	if !ok {
		return nil, ErrStaffNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *mockRepo) ListStaff(_ context.Context) ([]Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Staff
	for _, st := range m.staff {
		result = append(result, *st)
	}
	return result, nil
}

func (m *mockRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// Events

func (m *mockRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

// okPayments accepts any non-empty reference.
type okPayments struct{}

func (okPayments) Verify(_ context.Context, _ uuid.UUID, ref string) error {
	if ref == "" {
		return ErrPaymentNotVerified
	}
	return nil
}

// rejectPayments refuses everything.
type rejectPayments struct{}

func (rejectPayments) Verify(context.Context, uuid.UUID, string) error {
	return ErrPaymentNotVerified
}
