package schedule

import "time"

// statusTransitions is the appointment lifecycle:
// scheduled -> confirmed -> in_progress -> completed, with cancelled and
// no_show reachable from any non-terminal state, and rescheduled as a
// live side-state that rebinds the slot and may advance again.
var statusTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:   {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusConfirmed:   {StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusInProgress:  {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusRescheduled: {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
}

// IsTerminal reports whether s admits no further transitions.
func IsTerminal(s AppointmentStatus) bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActiveStatuses are the states that hold a slot reservation. Used by
// conflict checks and by emergency cancellation to find affected rows.
func ActiveStatuses() []AppointmentStatus {
	return []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress, StatusRescheduled}
}

// IsMissed classifies an appointment as missed when the slot has ended
// and the status never reached a terminal state. This is a derived,
// view-level classification and is never persisted.
func IsMissed(now time.Time, slotEnd time.Time, status AppointmentStatus) bool {
	return now.After(slotEnd) && !IsTerminal(status)
}
