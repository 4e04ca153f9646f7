package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/carebook/hospital-scheduling/internal/redis"
)

// DelayQuickPicks are the preset running-late values offered to staff.
// Arbitrary positive values are also accepted.
var DelayQuickPicks = []int{15, 30, 45, 60}

// DelayStepMinutes is the increment used by AdjustDelay.
const DelayStepMinutes = 15

// Adjuster implements the operational workflows: availability toggles,
// emergency cancellation, running-late annotations, capacity resizing,
// and bulk enable/disable. Each is a short state transition over one or
// more slots with a conflict pre-check.
type Adjuster struct {
	repo      Repository
	ledger    *Ledger
	generator *Generator
	locker    redisclient.Locker
	log       zerolog.Logger
}

func NewAdjuster(repo Repository, ledger *Ledger, generator *Generator, locker redisclient.Locker, log zerolog.Logger) *Adjuster {
	return &Adjuster{
		repo:      repo,
		ledger:    ledger,
		generator: generator,
		locker:    locker,
		log:       log,
	}
}

// ToggleAvailability flips is_available. Disabling a slot with active
// bookings is refused; that path belongs to EmergencyCancel, which
// cancels the affected appointments instead of stranding them.
func (a *Adjuster) ToggleAvailability(ctx context.Context, slotID uuid.UUID, available bool) (*TimeSlot, error) {
	slot, err := a.repo.SetAvailability(ctx, slotID, available, !available)
	if err == nil {
		event := EventSlotEnabled
		if !available {
			event = EventSlotDisabled
		}
		logEvent(ctx, a.repo, a.log, nil, &slotID, event, nil)
		return slot, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("toggle availability: %w", err)
	}

	// The guarded update matched nothing: either the slot is gone or
	// it has bookings and we tried to disable it.
	current, getErr := a.repo.GetSlotByID(ctx, slotID)
	if getErr != nil {
		return nil, getErr
	}
	if !available && !a.ledger.CanDisable(current) {
		return nil, ErrSlotHasBookings
	}
	return nil, fmt.Errorf("toggle availability: %w", err)
}

// EmergencyCancelResult reports what an emergency cancellation touched.
type EmergencyCancelResult struct {
	Slot      *TimeSlot
	Cancelled []Appointment
	Reason    CancellationReason
	Note      string
}

// EmergencyCancel disables a booked slot and cancels every active
// appointment on it in one transaction, under the slot lock so a racing
// booking or reschedule cannot interleave. The only path by which a
// booked slot may be disabled.
func (a *Adjuster) EmergencyCancel(ctx context.Context, slotID uuid.UUID, reason CancellationReason, note string) (*EmergencyCancelResult, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("invalid cancellation reason %q", reason)
	}
	if reason == ReasonOther && note == "" {
		return nil, errors.New("cancellation reason 'other' requires a note")
	}

	recorded := string(reason)
	if note != "" {
		recorded = recorded + ": " + note
	}

	var result *EmergencyCancelResult

	err := a.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		cancelled, err := a.repo.DisableSlotCancellingAppointments(lockCtx, slotID, recorded)
		if err != nil {
			return err
		}

		slot, err := a.repo.GetSlotByID(lockCtx, slotID)
		if err != nil {
			return err
		}

		result = &EmergencyCancelResult{
			Slot:      slot,
			Cancelled: cancelled,
			Reason:    reason,
			Note:      note,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingChanged
		}
		return nil, fmt.Errorf("emergency cancel: %w", err)
	}

	logEvent(ctx, a.repo, a.log, nil, &slotID, EventEmergencyCancel, map[string]any{
		"reason":    string(reason),
		"note":      note,
		"cancelled": len(result.Cancelled),
	})

	a.log.Warn().
		Stringer("slot_id", slotID).
		Str("reason", string(reason)).
		Int("cancelled", len(result.Cancelled)).
		Msg("emergency cancellation applied")

	return result, nil
}

// SetRunningLate sets the advisory delay to an absolute value. Zero
// clears the flag. Booking eligibility is unaffected; notification
// dispatch to affected patients is an external collaborator concern.
func (a *Adjuster) SetRunningLate(ctx context.Context, slotID uuid.UUID, minutes int) (*TimeSlot, error) {
	if minutes < 0 {
		minutes = 0
	}

	slot, err := a.repo.SetRunningLate(ctx, slotID, minutes)
	if err != nil {
		return nil, fmt.Errorf("set running late: %w", err)
	}

	event := EventSlotRunningLate
	if minutes == 0 {
		event = EventSlotRunningOnTime
	}
	logEvent(ctx, a.repo, a.log, nil, &slotID, event, map[string]any{
		"delay_minutes": minutes,
	})

	return slot, nil
}

// AdjustDelay shifts the delay by delta minutes, floored at zero.
// Reaching zero clears the running-late flag; clearing is implied by
// the floor, not only by an explicit clear.
func (a *Adjuster) AdjustDelay(ctx context.Context, slotID uuid.UUID, delta int) (*TimeSlot, error) {
	slot, err := a.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	next := slot.DelayMinutes + delta
	if next < 0 {
		next = 0
	}
	return a.SetRunningLate(ctx, slotID, next)
}

// ResizeCapacity delegates to the ledger; recorded here so every
// operational mutation leaves an audit event.
func (a *Adjuster) ResizeCapacity(ctx context.Context, slotID uuid.UUID, capacity int) (*TimeSlot, error) {
	slot, err := a.ledger.ResizeCapacity(ctx, slotID, capacity)
	if err != nil {
		return nil, err
	}

	logEvent(ctx, a.repo, a.log, nil, &slotID, EventSlotCapacityResized, map[string]any{
		"max_capacity":     slot.MaxCapacity,
		"current_bookings": slot.CurrentBookings,
	})

	return slot, nil
}

// BulkResult summarizes a bulk toggle: slots changed, and slots skipped
// because disabling them would strand active bookings.
type BulkResult struct {
	Updated  int
	Skipped  []uuid.UUID
	Failures int
}

// BulkSetAvailability applies toggle semantics across every slot for a
// staff member on one date. Booked slots are skipped on disable and
// reported, never silently disabled.
func (a *Adjuster) BulkSetAvailability(ctx context.Context, staffID uuid.UUID, date time.Time, available bool) (*BulkResult, error) {
	day := Day(date)
	slots, err := a.repo.ListSlots(ctx, staffID, day, day, false)
	if err != nil {
		return nil, fmt.Errorf("list slots for bulk toggle: %w", err)
	}

	res := &BulkResult{}
	for _, s := range slots {
		if s.IsAvailable == available {
			continue
		}
		if _, err := a.ToggleAvailability(ctx, s.ID, available); err != nil {
			if errors.Is(err, ErrSlotHasBookings) {
				res.Skipped = append(res.Skipped, s.ID)
				continue
			}
			a.log.Error().Err(err).Stringer("slot_id", s.ID).Msg("bulk toggle failed for slot")
			res.Failures++
			continue
		}
		res.Updated++
	}

	return res, nil
}

// BulkApply generates slots over the next `weeks` weeks for the days
// admitted by the filter, then applies toggle semantics to the range.
// Creation is delegated to the generator, state to ToggleAvailability.
func (a *Adjuster) BulkApply(ctx context.Context, staffID uuid.UUID, now time.Time, weeks int, filter DayFilter, available bool, capacity int) (*BulkResult, error) {
	if weeks <= 0 {
		return nil, fmt.Errorf("weeks must be positive, got %d", weeks)
	}
	if !filter.Valid() {
		return nil, fmt.Errorf("invalid day filter %q", filter)
	}

	from := Day(now)
	to := from.AddDate(0, 0, 7*weeks-1)

	if available {
		if _, err := a.generator.Generate(ctx, staffID, from, to, capacity, filter); err != nil {
			return nil, fmt.Errorf("bulk generate: %w", err)
		}
	}

	slots, err := a.repo.ListSlots(ctx, staffID, from, to, false)
	if err != nil {
		return nil, fmt.Errorf("list slots for bulk apply: %w", err)
	}

	res := &BulkResult{}
	for _, s := range slots {
		if !filter.Matches(s.SlotDate) || s.IsAvailable == available {
			continue
		}
		if _, err := a.ToggleAvailability(ctx, s.ID, available); err != nil {
			if errors.Is(err, ErrSlotHasBookings) {
				res.Skipped = append(res.Skipped, s.ID)
				continue
			}
			a.log.Error().Err(err).Stringer("slot_id", s.ID).Msg("bulk apply failed for slot")
			res.Failures++
			continue
		}
		res.Updated++
	}

	return res, nil
}
