package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrStaffNotFound       = errors.New("staff member not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// SlotRepository owns TimeSlot rows. Capacity mutations are guarded in
// SQL: Reserve and Release return ErrSlotNotFound when the conditional
// update matched no row, and the caller classifies why.
type SlotRepository interface {
	GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// ListSlots returns slots for the staff member in [from, to],
	// ordered by date then start time. availableOnly filters to
	// is_available rows.
	ListSlots(ctx context.Context, staffID uuid.UUID, from, to time.Time, availableOnly bool) ([]TimeSlot, error)
	// InsertSlots upserts by (staff_id, slot_date, start_time) and
	// reports how many rows were actually inserted. Existing rows are
	// left untouched, which makes bulk generation idempotent per
	// hour bucket rather than per day.
	InsertSlots(ctx context.Context, slots []TimeSlot) (int, error)
	// LastSlotDate returns the most recent slot date generated for the
	// staff member; ok is false when no slots exist yet.
	LastSlotDate(ctx context.Context, staffID uuid.UUID) (time.Time, bool, error)

	// ReserveSlot atomically increments current_bookings, bounded by
	// max_capacity and gated on is_available.
	ReserveSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// ReleaseSlot decrements current_bookings, floored at zero.
	ReleaseSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// SetAvailability flips is_available. With onlyIfUnbooked the
	// update is conditional on current_bookings = 0.
	SetAvailability(ctx context.Context, id uuid.UUID, available, onlyIfUnbooked bool) (*TimeSlot, error)
	// UpdateCapacity sets max_capacity. The new value may be below
	// current_bookings; existing bookings are honored.
	UpdateCapacity(ctx context.Context, id uuid.UUID, capacity int) (*TimeSlot, error)
	// SetRunningLate sets the advisory delay fields together so the
	// is_running_late <=> delay_minutes > 0 invariant cannot drift.
	SetRunningLate(ctx context.Context, id uuid.UUID, delayMinutes int) (*TimeSlot, error)

	// DisableSlotCancellingAppointments is the emergency cancellation
	// unit: in one transaction it cancels every active appointment on
	// the slot, disables the slot, and zeroes its booking counter.
	// Returns the appointments that were cancelled.
	DisableSlotCancellingAppointments(ctx context.Context, slotID uuid.UUID, reason string) ([]Appointment, error)
}

type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateAppointmentStatus performs a conditional transition and
	// returns ErrAppointmentNotFound when the row is not in `from`.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	// RebindAppointmentSlot moves an appointment to a new slot and
	// marks it rescheduled, conditional on the current status being
	// active.
	RebindAppointmentSlot(ctx context.Context, id, newSlotID uuid.UUID, newDate time.Time) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)
	ListAppointmentsByStaffDate(ctx context.Context, staffID uuid.UUID, date time.Time) ([]AppointmentDetail, error)
	// CountAppointmentsByDate aggregates non-cancelled appointments per
	// appointment date in [from, to] for demand analysis.
	CountAppointmentsByDate(ctx context.Context, staffID uuid.UUID, from, to time.Time) (map[time.Time]int, error)
}

type DirectoryRepository interface {
	GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	ListStaff(ctx context.Context) ([]Staff, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type EventRepository interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository aggregates everything the scheduling core needs from the
// persistence layer.
type Repository interface {
	SlotRepository
	AppointmentRepository
	DirectoryRepository
	EventRepository
}
