package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSlot(capacity, booked int, available bool) TimeSlot {
	day := Day(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	start := day.Add(10 * time.Hour)
	return TimeSlot{
		ID:              uuid.New(),
		StaffID:         uuid.New(),
		SlotDate:        day,
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		IsAvailable:     available,
		CurrentBookings: booked,
		MaxCapacity:     capacity,
	}
}

func TestLedgerCanBook(t *testing.T) {
	ledger := NewLedger(newMockRepo(), zerolog.Nop())

	tests := []struct {
		name string
		slot TimeSlot
		want bool
	}{
		{"open with spare capacity", testSlot(5, 2, true), true},
		{"last opening", testSlot(5, 4, true), true},
		{"at capacity", testSlot(5, 5, true), false},
		{"disabled", testSlot(5, 0, false), false},
		{"shrunk below bookings", testSlot(2, 3, true), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.CanBook(&tt.slot))
		})
	}
}

func TestLedgerReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("increments up to capacity", func(t *testing.T) {
		repo := newMockRepo()
		ledger := NewLedger(repo, zerolog.Nop())
		slot := repo.addSlot(testSlot(3, 0, true))

		for i := 1; i <= 3; i++ {
			got, err := ledger.Reserve(ctx, slot.ID)
			require.NoError(t, err)
			assert.Equal(t, i, got.CurrentBookings)
		}

		_, err := ledger.Reserve(ctx, slot.ID)
		assert.ErrorIs(t, err, ErrSlotFull)
	})

	t.Run("disabled slot is unavailable, not full", func(t *testing.T) {
		repo := newMockRepo()
		ledger := NewLedger(repo, zerolog.Nop())
		slot := repo.addSlot(testSlot(3, 0, false))

		_, err := ledger.Reserve(ctx, slot.ID)
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	})

	t.Run("missing slot", func(t *testing.T) {
		ledger := NewLedger(newMockRepo(), zerolog.Nop())

		_, err := ledger.Reserve(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})
}

// TestLedgerReserveLastOpeningRace drives many concurrent reservations
// at a slot with a single opening. Exactly one caller may win; everyone
// else sees the slot as full.
func TestLedgerReserveLastOpeningRace(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	ledger := NewLedger(repo, zerolog.Nop())
	slot := repo.addSlot(testSlot(1, 0, true))

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Reserve(ctx, slot.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrSlotFull)
		}
	}
	assert.Equal(t, 1, wins)

	final, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.CurrentBookings)
}

func TestLedgerRelease(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	ledger := NewLedger(repo, zerolog.Nop())
	slot := repo.addSlot(testSlot(3, 1, true))

	got, err := ledger.Release(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentBookings)

	// Floored at zero, never negative.
	got, err = ledger.Release(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentBookings)
}

func TestLedgerResizeCapacity(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-positive targets", func(t *testing.T) {
		repo := newMockRepo()
		ledger := NewLedger(repo, zerolog.Nop())
		slot := repo.addSlot(testSlot(5, 0, true))

		_, err := ledger.ResizeCapacity(ctx, slot.ID, 0)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
		_, err = ledger.ResizeCapacity(ctx, slot.ID, -2)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	})

	t.Run("shrinking below bookings keeps them and blocks new ones", func(t *testing.T) {
		repo := newMockRepo()
		ledger := NewLedger(repo, zerolog.Nop())
		slot := repo.addSlot(testSlot(5, 4, true))

		got, err := ledger.ResizeCapacity(ctx, slot.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, got.MaxCapacity)
		assert.Equal(t, 4, got.CurrentBookings)

		_, err = ledger.Reserve(ctx, slot.ID)
		assert.ErrorIs(t, err, ErrSlotFull)
	})

	t.Run("growing reopens a full slot", func(t *testing.T) {
		repo := newMockRepo()
		ledger := NewLedger(repo, zerolog.Nop())
		slot := repo.addSlot(testSlot(2, 2, true))

		_, err := ledger.ResizeCapacity(ctx, slot.ID, 3)
		require.NoError(t, err)

		got, err := ledger.Reserve(ctx, slot.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.CurrentBookings)
	})
}
