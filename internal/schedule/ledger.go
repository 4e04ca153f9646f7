package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrSlotFull means the capacity ceiling was reached. Distinguished
	// from ErrSlotUnavailable so callers can offer "refresh and retry"
	// versus "pick another time".
	ErrSlotFull        = errors.New("slot has reached its booking capacity")
	ErrSlotUnavailable = errors.New("slot is not available")
	// ErrSlotHasBookings blocks direct disabling of a booked slot; the
	// emergency cancellation workflow is the only path that may do it.
	ErrSlotHasBookings = errors.New("slot has active bookings, emergency cancellation required")
	ErrInvalidCapacity = errors.New("capacity must be a positive integer")
)

// Ledger is the single source of truth for whether a slot can accept a
// booking or be disabled. All counter mutations go through it as
// guarded SQL updates; it never trusts a previously read snapshot.
type Ledger struct {
	slots SlotRepository
	log   zerolog.Logger
}

func NewLedger(slots SlotRepository, log zerolog.Logger) *Ledger {
	return &Ledger{slots: slots, log: log}
}

// CanBook reports booking eligibility from a snapshot. Advisory only;
// Reserve re-checks atomically at the moment of increment.
func (l *Ledger) CanBook(s *TimeSlot) bool {
	return s.IsAvailable && s.CurrentBookings < s.MaxCapacity
}

// CanDisable reports whether a direct availability toggle may disable
// the slot without cancelling appointments.
func (l *Ledger) CanDisable(s *TimeSlot) bool {
	return s.CurrentBookings == 0
}

// Reserve increments the slot's booking counter if and only if the slot
// is available and under capacity at the moment of the update. When the
// conditional update matches nothing the row is re-read once to tell
// "full" apart from "disabled" apart from "gone".
func (l *Ledger) Reserve(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	slot, err := l.slots.ReserveSlot(ctx, slotID)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	return nil, l.classifyReserveFailure(ctx, slotID)
}

func (l *Ledger) classifyReserveFailure(ctx context.Context, slotID uuid.UUID) error {
	slot, err := l.slots.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("classify reserve failure: %w", err)
	}
	if !slot.IsAvailable {
		return ErrSlotUnavailable
	}
	return ErrSlotFull
}

// Release decrements the booking counter, floored at zero.
func (l *Ledger) Release(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	slot, err := l.slots.ReleaseSlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}
	if slot.CurrentBookings == 0 {
		l.log.Debug().Stringer("slot_id", slotID).Msg("slot released to empty")
	}
	return slot, nil
}

// ResizeCapacity sets a new capacity ceiling. Shrinking below the
// current booking count is allowed: existing bookings are honored and
// no new reservations are admitted until the count drops under the new
// ceiling. Non-positive targets are rejected.
func (l *Ledger) ResizeCapacity(ctx context.Context, slotID uuid.UUID, capacity int) (*TimeSlot, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	slot, err := l.slots.UpdateCapacity(ctx, slotID, capacity)
	if err != nil {
		return nil, fmt.Errorf("resize capacity: %w", err)
	}

	if slot.CurrentBookings > slot.MaxCapacity {
		l.log.Warn().
			Stringer("slot_id", slot.ID).
			Int("current_bookings", slot.CurrentBookings).
			Int("max_capacity", slot.MaxCapacity).
			Msg("capacity shrunk below current bookings")
	}

	return slot, nil
}
