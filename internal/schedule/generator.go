package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GeneratorConfig describes the recurring daily template.
type GeneratorConfig struct {
	WindowStartHour int // first hourly bucket, site-local
	WindowHours     int // number of one-hour buckets per day
	DefaultCapacity int
	HorizonDays     int // replenish when coverage ends sooner than this
	ReplenishWeeks  int // how far each replenishment extends
}

// Generator materializes TimeSlot rows for a staff member's recurring
// template. Generation is idempotent per (staff, date, start time): the
// repository upserts by natural key, so re-running over a partially
// generated range fills only the missing buckets.
type Generator struct {
	slots SlotRepository
	cfg   GeneratorConfig
	log   zerolog.Logger
}

func NewGenerator(slots SlotRepository, cfg GeneratorConfig, log zerolog.Logger) *Generator {
	return &Generator{slots: slots, cfg: cfg, log: log}
}

// Generate creates one slot per hourly bucket for every day in
// [from, to] that passes the filter. Days that fail to insert are
// logged and skipped; bulk generation is best effort and never aborts
// the remaining days. Returns the number of rows actually inserted.
func (g *Generator) Generate(ctx context.Context, staffID uuid.UUID, from, to time.Time, capacity int, filter DayFilter) (int, error) {
	if capacity <= 0 {
		capacity = g.cfg.DefaultCapacity
	}
	if !filter.Valid() {
		return 0, fmt.Errorf("invalid day filter %q", filter)
	}

	from = Day(from)
	to = Day(to)
	if to.Before(from) {
		return 0, fmt.Errorf("invalid date range: %s after %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	total := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !filter.Matches(day) {
			continue
		}

		inserted, err := g.slots.InsertSlots(ctx, g.daySlots(staffID, day, capacity))
		if err != nil {
			g.log.Error().Err(err).
				Stringer("staff_id", staffID).
				Str("date", day.Format("2006-01-02")).
				Msg("slot generation failed for day, continuing")
			continue
		}
		total += inserted
	}

	return total, nil
}

func (g *Generator) daySlots(staffID uuid.UUID, day time.Time, capacity int) []TimeSlot {
	slots := make([]TimeSlot, 0, g.cfg.WindowHours)
	for h := 0; h < g.cfg.WindowHours; h++ {
		start := day.Add(time.Duration(g.cfg.WindowStartHour+h) * time.Hour)
		slots = append(slots, TimeSlot{
			ID:          uuid.New(),
			StaffID:     staffID,
			SlotDate:    day,
			StartTime:   start,
			EndTime:     start.Add(time.Hour),
			IsAvailable: true,
			MaxCapacity: capacity,
		})
	}
	return slots
}

// EnsureCoverage extends a staff member's slot coverage when their last
// generated date falls inside the look-ahead horizon. Invoked when
// today's slots are loaded and periodically by the replenish worker.
func (g *Generator) EnsureCoverage(ctx context.Context, staffID uuid.UUID, now time.Time, capacity int) (int, error) {
	last, ok, err := g.slots.LastSlotDate(ctx, staffID)
	if err != nil {
		return 0, fmt.Errorf("load last slot date: %w", err)
	}

	today := Day(now)
	horizon := today.AddDate(0, 0, g.cfg.HorizonDays)

	start := today
	if ok {
		if !last.Before(horizon) {
			return 0, nil
		}
		// Resume the day after existing coverage; the upsert would
		// also tolerate overlap, this just keeps the range small.
		next := Day(last).AddDate(0, 0, 1)
		if next.After(start) {
			start = next
		}
	}

	end := today.AddDate(0, 0, 7*g.cfg.ReplenishWeeks)
	inserted, err := g.Generate(ctx, staffID, start, end, capacity, DaysAll)
	if err != nil {
		return 0, err
	}

	if inserted > 0 {
		g.log.Info().
			Stringer("staff_id", staffID).
			Str("through", end.Format("2006-01-02")).
			Int("inserted", inserted).
			Msg("slot coverage extended")
	}

	return inserted, nil
}
