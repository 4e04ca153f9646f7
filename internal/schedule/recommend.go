package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scoring weights. Recency contributes linearly up to the horizon,
// affinity bonuses are flat.
const (
	recencyHorizonDays  = 30
	doctorAffinityBonus = 50
	timeAffinityBonus   = 20
	timeAffinityWindow  = 2  // hours either side of the preferred hour
	fallbackHour        = 10 // preferred hour when history is empty
)

type RecommendationReason string

const (
	ReasonPreferredDoctor RecommendationReason = "preferred_doctor"
	ReasonGeneral         RecommendationReason = "general"
)

type Recommendation struct {
	SlotID    uuid.UUID
	StaffID   uuid.UUID
	StaffName string
	Date      time.Time
	Start     time.Time
	End       time.Time
	Score     int
	Reason    RecommendationReason
}

// RecommendationSet carries the ranked shortlist. When no open slots
// exist, Items is empty and NoSlotsReason explains why; callers branch
// on the reason code, not on a magic entry in the list.
type RecommendationSet struct {
	Items         []Recommendation
	NoSlotsReason string
}

const NoOpenSlots = "no_open_slots"

// Visit is one historical appointment reduced to what scoring needs.
type Visit struct {
	StaffID uuid.UUID
	Start   time.Time
}

// PreferredHour is the mean start hour across the patient's history,
// falling back to a fixed mid-morning default when there is none.
func PreferredHour(visits []Visit) int {
	if len(visits) == 0 {
		return fallbackHour
	}
	sum := 0
	for _, v := range visits {
		sum += v.Start.Hour()
	}
	return sum / len(visits)
}

// MostVisitedStaff returns the staff member with the most historical
// visits, or uuid.Nil when there is no history. Ties resolve to the
// earliest-seen staff member.
func MostVisitedStaff(visits []Visit) uuid.UUID {
	counts := make(map[uuid.UUID]int)
	order := make([]uuid.UUID, 0)
	for _, v := range visits {
		if _, seen := counts[v.StaffID]; !seen {
			order = append(order, v.StaffID)
		}
		counts[v.StaffID]++
	}

	best := uuid.Nil
	bestCount := 0
	for _, id := range order {
		if counts[id] > bestCount {
			best = id
			bestCount = counts[id]
		}
	}
	return best
}

// ScoreSlot computes the weighted sum of recency, doctor affinity, and
// time affinity for one open slot.
func ScoreSlot(today time.Time, slot TimeSlot, preferredStaff uuid.UUID, preferredHour int) int {
	score := 0

	days := int(Day(slot.SlotDate).Sub(Day(today)).Hours() / 24)
	if r := recencyHorizonDays - days; r > 0 {
		score += r
	}

	if preferredStaff != uuid.Nil && slot.StaffID == preferredStaff {
		score += doctorAffinityBonus
	}

	hourDiff := slot.StartTime.Hour() - preferredHour
	if hourDiff < 0 {
		hourDiff = -hourDiff
	}
	if hourDiff <= timeAffinityWindow {
		score += timeAffinityBonus
	}

	return score
}

// Recommend ranks the open future slots for a patient. Slots on or
// after today with spare capacity are scored, sorted by descending
// score with a deterministic tie-break (earlier date, earlier start,
// then slot id), and the top k returned.
func Recommend(now time.Time, visits []Visit, open []TimeSlot, roster map[uuid.UUID]string, k int) RecommendationSet {
	if k <= 0 {
		k = 5
	}

	preferredStaff := MostVisitedStaff(visits)
	preferredHour := PreferredHour(visits)
	today := Day(now)

	var items []Recommendation
	for _, slot := range open {
		if Day(slot.SlotDate).Before(today) {
			continue
		}
		if !slot.IsAvailable || slot.CurrentBookings >= slot.MaxCapacity {
			continue
		}

		reason := ReasonGeneral
		if preferredStaff != uuid.Nil && slot.StaffID == preferredStaff {
			reason = ReasonPreferredDoctor
		}

		items = append(items, Recommendation{
			SlotID:    slot.ID,
			StaffID:   slot.StaffID,
			StaffName: roster[slot.StaffID],
			Date:      slot.SlotDate,
			Start:     slot.StartTime,
			End:       slot.EndTime,
			Score:     ScoreSlot(today, slot, preferredStaff, preferredHour),
			Reason:    reason,
		})
	}

	if len(items) == 0 {
		return RecommendationSet{NoSlotsReason: NoOpenSlots}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		return items[i].SlotID.String() < items[j].SlotID.String()
	})

	if len(items) > k {
		items = items[:k]
	}

	return RecommendationSet{Items: items}
}

// Scorer wires the pure ranking functions to the persistence layer.
type Scorer struct {
	repo  Repository
	limit int
	log   zerolog.Logger
}

func NewScorer(repo Repository, limit int, log zerolog.Logger) *Scorer {
	return &Scorer{repo: repo, limit: limit, log: log}
}

// RecommendForPatient ranks a doctor's open future slots for a patient
// based on their appointment history with that doctor.
func (s *Scorer) RecommendForPatient(ctx context.Context, patientID, staffID uuid.UUID, now time.Time) (RecommendationSet, error) {
	history, err := s.repo.ListAppointmentsByPatient(ctx, patientID, 100, 0)
	if err != nil {
		return RecommendationSet{}, fmt.Errorf("load patient history: %w", err)
	}

	visits := make([]Visit, 0, len(history))
	roster := make(map[uuid.UUID]string)
	for _, h := range history {
		if h.Slot == nil {
			continue
		}
		visits = append(visits, Visit{StaffID: h.StaffID, Start: h.Slot.StartTime})
		if h.Staff != nil {
			roster[h.StaffID] = h.Staff.Name
		}
	}

	today := Day(now)
	open, err := s.repo.ListSlots(ctx, staffID, today, today.AddDate(0, 0, recencyHorizonDays), true)
	if err != nil {
		return RecommendationSet{}, fmt.Errorf("load open slots: %w", err)
	}

	if _, ok := roster[staffID]; !ok {
		if st, err := s.repo.GetStaffByID(ctx, staffID); err == nil {
			roster[staffID] = st.Name
		}
	}

	return Recommend(now, visits, open, roster, s.limit), nil
}

// Demand analysis: a date-level variant sharing the same aggregation
// substrate, producing operational advisories instead of per-patient
// recommendations.

type DemandLevel string

const (
	DemandHigh   DemandLevel = "high"
	DemandLow    DemandLevel = "low"
	DemandNormal DemandLevel = "normal"
)

type DemandSignal struct {
	Date     time.Time
	Weekday  time.Weekday
	Expected float64
	Actual   int
	Level    DemandLevel
}

// dateKey canonicalizes a calendar day to UTC midnight. Dates arrive in
// mixed locations (pgx scans date columns as UTC, now is server-local)
// and time.Time map keys compare location-sensitively, so lookups must
// go through one canonical zone.
func dateKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AnalyzeDemand compares actual bookings for each of the next `days`
// dates against the historical per-weekday average. Dates running more
// than 25% over the average are flagged high, more than 25% under low.
func AnalyzeDemand(now time.Time, historyByDate, actualByDate map[time.Time]int, days int) []DemandSignal {
	totals := make(map[time.Weekday]int)
	occurrences := make(map[time.Weekday]int)
	for date, count := range historyByDate {
		wd := dateKey(date).Weekday()
		totals[wd] += count
		occurrences[wd]++
	}

	expected := make(map[time.Weekday]float64)
	for wd, total := range totals {
		if n := occurrences[wd]; n > 0 {
			expected[wd] = float64(total) / float64(n)
		}
	}

	actuals := make(map[time.Time]int, len(actualByDate))
	for date, count := range actualByDate {
		actuals[dateKey(date)] += count
	}

	today := Day(now)
	signals := make([]DemandSignal, 0, days)
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, i)
		exp := expected[date.Weekday()]
		actual := actuals[dateKey(date)]

		level := DemandNormal
		switch {
		case exp > 0 && float64(actual) > exp*1.25:
			level = DemandHigh
		case exp > 0 && float64(actual) < exp*0.75:
			level = DemandLow
		case exp == 0 && actual > 0:
			level = DemandHigh
		}

		signals = append(signals, DemandSignal{
			Date:     date,
			Weekday:  date.Weekday(),
			Expected: exp,
			Actual:   actual,
			Level:    level,
		})
	}

	return signals
}

// DemandForStaff builds the inputs for AnalyzeDemand from persisted
// appointments over the trailing 90 days and the coming week.
func (s *Scorer) DemandForStaff(ctx context.Context, staffID uuid.UUID, now time.Time, days int) ([]DemandSignal, error) {
	if days <= 0 {
		days = 7
	}

	today := Day(now)

	history, err := s.repo.CountAppointmentsByDate(ctx, staffID, today.AddDate(0, 0, -90), today.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("load booking history: %w", err)
	}

	actual, err := s.repo.CountAppointmentsByDate(ctx, staffID, today, today.AddDate(0, 0, days-1))
	if err != nil {
		return nil, fmt.Errorf("load upcoming bookings: %w", err)
	}

	return AnalyzeDemand(now, history, actual, days), nil
}
