package schedule

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusInProgress  AppointmentStatus = "in_progress"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// CancellationReason is the closed set of reasons accepted by the
// emergency cancellation workflow. ReasonOther carries a free-text note.
type CancellationReason string

const (
	ReasonMedicalEmergency CancellationReason = "medical_emergency"
	ReasonStaffIllness     CancellationReason = "staff_illness"
	ReasonFamilyEmergency  CancellationReason = "family_emergency"
	ReasonOther            CancellationReason = "other"
)

func (r CancellationReason) Valid() bool {
	switch r {
	case ReasonMedicalEmergency, ReasonStaffIllness, ReasonFamilyEmergency, ReasonOther:
		return true
	}
	return false
}

// DayFilter restricts slot generation and bulk toggles to a subset of
// the week. Weekdays and weekends are mutually exclusive.
type DayFilter string

const (
	DaysAll      DayFilter = "all"
	DaysWeekdays DayFilter = "weekdays"
	DaysWeekends DayFilter = "weekends"
)

func (f DayFilter) Valid() bool {
	switch f {
	case DaysAll, DaysWeekdays, DaysWeekends, "":
		return true
	}
	return false
}

// Matches reports whether the filter admits the given calendar day.
func (f DayFilter) Matches(day time.Time) bool {
	wd := day.Weekday()
	weekend := wd == time.Saturday || wd == time.Sunday
	switch f {
	case DaysWeekdays:
		return !weekend
	case DaysWeekends:
		return weekend
	default:
		return true
	}
}

// TimeSlot is a capacity-bounded unit of bookable time for one staff
// member. Slots are never deleted; availability and capacity change in
// place. The invariant 0 <= CurrentBookings <= MaxCapacity is enforced
// by guarded updates in the repository, never by read-then-write.
type TimeSlot struct {
	ID              uuid.UUID
	StaffID         uuid.UUID
	SlotDate        time.Time // midnight, site-local
	StartTime       time.Time
	EndTime         time.Time
	IsAvailable     bool
	CurrentBookings int
	MaxCapacity     int
	IsRunningLate   bool
	DelayMinutes    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	StaffID    uuid.UUID
	SlotID     uuid.UUID
	Date       time.Time
	Status     AppointmentStatus
	Reason     *string
	PaymentRef *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Staff struct {
	ID              uuid.UUID
	Name            string
	Department      *string
	Designation     *string
	DefaultCapacity int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	SlotID        *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail is an appointment hydrated with its slot and the
// two parties, for listing endpoints.
type AppointmentDetail struct {
	Appointment
	Slot    *TimeSlot
	Patient *Patient
	Staff   *Staff
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
