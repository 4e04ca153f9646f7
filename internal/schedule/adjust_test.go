package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/carebook/hospital-scheduling/internal/redis"
)

func newTestAdjuster(repo *mockRepo) *Adjuster {
	ledger := NewLedger(repo, zerolog.Nop())
	return NewAdjuster(repo, ledger, newTestGenerator(repo), redisclient.NoopLocker{}, zerolog.Nop())
}

func TestToggleAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("disables an unbooked slot", func(t *testing.T) {
		repo := newMockRepo()
		adjuster := newTestAdjuster(repo)
		slot := repo.addSlot(testSlot(5, 0, true))

		got, err := adjuster.ToggleAvailability(ctx, slot.ID, false)
		require.NoError(t, err)
		assert.False(t, got.IsAvailable)
		assert.Contains(t, repo.eventTypes(), EventSlotDisabled)
	})

	t.Run("refuses to disable a booked slot", func(t *testing.T) {
		repo := newMockRepo()
		adjuster := newTestAdjuster(repo)
		slot := repo.addSlot(testSlot(5, 2, true))

		_, err := adjuster.ToggleAvailability(ctx, slot.ID, false)
		assert.ErrorIs(t, err, ErrSlotHasBookings)

		got, err := repo.GetSlotByID(ctx, slot.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAvailable, "slot must stay enabled")
	})

	t.Run("re-enables a booked slot", func(t *testing.T) {
		// Enabling is never guarded on bookings; the counter survives a
		// disable/enable round trip.
		repo := newMockRepo()
		adjuster := newTestAdjuster(repo)
		slot := testSlot(5, 3, false)
		added := repo.addSlot(slot)

		got, err := adjuster.ToggleAvailability(ctx, added.ID, true)
		require.NoError(t, err)
		assert.True(t, got.IsAvailable)
		assert.Equal(t, 3, got.CurrentBookings)
		assert.Contains(t, repo.eventTypes(), EventSlotEnabled)
	})

	t.Run("missing slot", func(t *testing.T) {
		adjuster := newTestAdjuster(newMockRepo())

		_, err := adjuster.ToggleAvailability(ctx, uuid.New(), false)
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})
}

func TestEmergencyCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels every active appointment and disables the slot", func(t *testing.T) {
		repo := newMockRepo()
		adjuster := newTestAdjuster(repo)
		staff := repo.addStaff(Staff{Name: "Dr. Ada Osei", DefaultCapacity: 5})

		slot := testSlot(5, 3, true)
		slot.StaffID = staff.ID
		added := repo.addSlot(slot)

		for i := 0; i < 3; i++ {
			patient := repo.addPatient(Patient{Name: "Patient"})
			repo.addAppointment(Appointment{
				PatientID: patient.ID,
				StaffID:   staff.ID,
				SlotID:    added.ID,
				Date:      added.SlotDate,
				Status:    StatusScheduled,
			})
		}
		// A completed appointment on the same slot is left alone.
		done := repo.addPatient(Patient{Name: "Done"})
		repo.addAppointment(Appointment{
			PatientID: done.ID,
			StaffID:   staff.ID,
			SlotID:    added.ID,
			Date:      added.SlotDate,
			Status:    StatusCompleted,
		})

		result, err := adjuster.EmergencyCancel(ctx, added.ID, ReasonStaffIllness, "")
		require.NoError(t, err)
		assert.Len(t, result.Cancelled, 3)
		assert.False(t, result.Slot.IsAvailable)
		assert.Equal(t, 0, result.Slot.CurrentBookings)

		for _, a := range result.Cancelled {
			assert.Equal(t, StatusCancelled, a.Status)
			require.NotNil(t, a.Reason)
			assert.Equal(t, string(ReasonStaffIllness), *a.Reason)
		}

		details, err := repo.ListAppointmentsByStaffDate(ctx, staff.ID, added.SlotDate)
		require.NoError(t, err)
		require.Len(t, details, 4)
		for _, d := range details {
			assert.True(t, IsTerminal(d.Status), "no appointment may stay active on the slot")
		}

		assert.Contains(t, repo.eventTypes(), EventEmergencyCancel)
	})

	t.Run("other requires a note", func(t *testing.T) {
		repo := newMockRepo()
		adjuster := newTestAdjuster(repo)
		slot := repo.addSlot(testSlot(5, 1, true))

		_, err := adjuster.EmergencyCancel(ctx, slot.ID, ReasonOther, "")
		assert.Error(t, err)

		result, err := adjuster.EmergencyCancel(ctx, slot.ID, ReasonOther, "burst pipe in exam room")
		require.NoError(t, err)
		assert.Equal(t, "burst pipe in exam room", result.Note)
	})

	t.Run("rejects an unknown reason", func(t *testing.T) {
		adjuster := newTestAdjuster(newMockRepo())

		_, err := adjuster.EmergencyCancel(ctx, uuid.New(), CancellationReason("vacation"), "")
		assert.Error(t, err)
	})
}

// TestRunningLateAdjustments walks the delay through set and step
// changes: 30 late, minus fifteen still late, minus fifteen clears the
// flag entirely.
func TestRunningLateAdjustments(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	adjuster := newTestAdjuster(repo)
	slot := repo.addSlot(testSlot(5, 2, true))

	got, err := adjuster.SetRunningLate(ctx, slot.ID, 30)
	require.NoError(t, err)
	assert.True(t, got.IsRunningLate)
	assert.Equal(t, 30, got.DelayMinutes)

	got, err = adjuster.AdjustDelay(ctx, slot.ID, -DelayStepMinutes)
	require.NoError(t, err)
	assert.True(t, got.IsRunningLate)
	assert.Equal(t, 15, got.DelayMinutes)

	got, err = adjuster.AdjustDelay(ctx, slot.ID, -DelayStepMinutes)
	require.NoError(t, err)
	assert.False(t, got.IsRunningLate, "reaching zero clears the flag")
	assert.Equal(t, 0, got.DelayMinutes)

	assert.Contains(t, repo.eventTypes(), EventSlotRunningLate)
	assert.Contains(t, repo.eventTypes(), EventSlotRunningOnTime)

	// Booking eligibility is unaffected by the advisory delay.
	_, err = adjuster.SetRunningLate(ctx, slot.ID, 45)
	require.NoError(t, err)
	ledger := NewLedger(repo, zerolog.Nop())
	reserved, err := ledger.Reserve(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, reserved.CurrentBookings)
}

func TestDelayQuickPicks(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	adjuster := newTestAdjuster(repo)
	slot := repo.addSlot(testSlot(5, 0, true))

	for _, minutes := range DelayQuickPicks {
		got, err := adjuster.SetRunningLate(ctx, slot.ID, minutes)
		require.NoError(t, err)
		assert.True(t, got.IsRunningLate)
		assert.Equal(t, minutes, got.DelayMinutes)
		// Every preset walks back to zero in whole AdjustDelay steps.
		assert.Zero(t, minutes%DelayStepMinutes)
	}
}

func TestRunningLateFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	adjuster := newTestAdjuster(repo)
	slot := repo.addSlot(testSlot(5, 0, true))

	got, err := adjuster.SetRunningLate(ctx, slot.ID, -10)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DelayMinutes)
	assert.False(t, got.IsRunningLate)

	_, err = adjuster.SetRunningLate(ctx, slot.ID, 15)
	require.NoError(t, err)
	got, err = adjuster.AdjustDelay(ctx, slot.ID, -60)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DelayMinutes)
	assert.False(t, got.IsRunningLate)
}

func TestAdjusterResizeCapacity(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	adjuster := newTestAdjuster(repo)
	slot := repo.addSlot(testSlot(5, 1, true))

	got, err := adjuster.ResizeCapacity(ctx, slot.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, got.MaxCapacity)
	assert.Contains(t, repo.eventTypes(), EventSlotCapacityResized)

	_, err = adjuster.ResizeCapacity(ctx, slot.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestBulkSetAvailability(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	adjuster := newTestAdjuster(repo)
	staffID := uuid.New()
	day := Day(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))

	mkSlot := func(hour, booked int) *TimeSlot {
		s := testSlot(5, booked, true)
		s.StaffID = staffID
		s.SlotDate = day
		s.StartTime = day.Add(time.Duration(hour) * time.Hour)
		s.EndTime = s.StartTime.Add(time.Hour)
		return repo.addSlot(s)
	}

	mkSlot(9, 0)
	mkSlot(10, 0)
	booked := mkSlot(11, 2)

	res, err := adjuster.BulkSetAvailability(ctx, staffID, day, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, []uuid.UUID{booked.ID}, res.Skipped)
	assert.Equal(t, 0, res.Failures)

	// The booked slot is untouched; the rest are disabled.
	slots, err := repo.ListSlots(ctx, staffID, day, day, false)
	require.NoError(t, err)
	for _, s := range slots {
		if s.ID == booked.ID {
			assert.True(t, s.IsAvailable)
		} else {
			assert.False(t, s.IsAvailable)
		}
	}
}

func TestBulkApply(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC) // a Monday

	t.Run("enabling generates then leaves everything available", func(t *testing.T) {
		repo := newMockRepo()
		adjuster := newTestAdjuster(repo)
		staffID := uuid.New()

		res, err := adjuster.BulkApply(ctx, staffID, now, 1, DaysWeekdays, true, 5)
		require.NoError(t, err)
		// Freshly generated slots are already available, nothing to flip.
		assert.Equal(t, 0, res.Updated)

		slots, err := repo.ListSlots(ctx, staffID, Day(now), Day(now).AddDate(0, 0, 6), false)
		require.NoError(t, err)
		assert.Len(t, slots, 45, "five weekdays at nine buckets")
	})

	t.Run("disabling skips booked slots", func(t *testing.T) {
		repo := newMockRepo()
		adjuster := newTestAdjuster(repo)
		staffID := uuid.New()

		_, err := adjuster.BulkApply(ctx, staffID, now, 1, DaysWeekdays, true, 5)
		require.NoError(t, err)

		slots, err := repo.ListSlots(ctx, staffID, Day(now), Day(now).AddDate(0, 0, 6), false)
		require.NoError(t, err)
		require.NotEmpty(t, slots)
		_, err = repo.ReserveSlot(ctx, slots[0].ID)
		require.NoError(t, err)

		res, err := adjuster.BulkApply(ctx, staffID, now, 1, DaysWeekdays, false, 5)
		require.NoError(t, err)
		assert.Equal(t, 44, res.Updated)
		assert.Equal(t, []uuid.UUID{slots[0].ID}, res.Skipped)
	})

	t.Run("validates input", func(t *testing.T) {
		adjuster := newTestAdjuster(newMockRepo())

		_, err := adjuster.BulkApply(ctx, uuid.New(), now, 0, DaysAll, true, 5)
		assert.Error(t, err)
		_, err = adjuster.BulkApply(ctx, uuid.New(), now, 1, DayFilter("holidays"), true, 5)
		assert.Error(t, err)
	})
}
