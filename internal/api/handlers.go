package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/hospital-scheduling/internal/identity"
	"github.com/carebook/hospital-scheduling/internal/schedule"
)

type Handlers struct {
	Repo        schedule.Repository
	Generator   *schedule.Generator
	Coordinator *schedule.Coordinator
	Adjuster    *schedule.Adjuster
	Scorer      *schedule.Scorer
	Identity    identity.Provider
	Validate    *validator.Validate

	DefaultCapacity int
	Log             zerolog.Logger
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Slots

func (h *Handlers) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	staffID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req GenerateSlotsRequest
	if !h.decode(w, r, &req) {
		return
	}

	from, _ := time.Parse("2006-01-02", req.StartDate)
	to, _ := time.Parse("2006-01-02", req.EndDate)
	filter := schedule.DayFilter(req.DayFilter)
	if filter == "" {
		filter = schedule.DaysAll
	}

	inserted, err := h.Generator.Generate(r.Context(), staffID, from, to, req.Capacity, filter)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, GenerateSlotsResponse{Inserted: inserted})
}

func (h *Handlers) ListSlots(w http.ResponseWriter, r *http.Request) {
	staffID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	now := time.Now()
	from := schedule.Day(now)
	to := from

	q := r.URL.Query()
	if v := q.Get("date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		from, to = d, d
	} else if q.Get("from") != "" || q.Get("to") != "" {
		var err error
		from, err = time.Parse("2006-01-02", q.Get("from"))
		if err == nil {
			to, err = time.Parse("2006-01-02", q.Get("to"))
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "from and to must be YYYY-MM-DD")
			return
		}
	}

	// Loading today's slots replenishes coverage when the generated
	// horizon is running short.
	if !from.After(schedule.Day(now)) && !to.Before(schedule.Day(now)) {
		if _, err := h.Generator.EnsureCoverage(r.Context(), staffID, now, h.DefaultCapacity); err != nil {
			h.Log.Error().Err(err).Stringer("staff_id", staffID).Msg("coverage replenishment failed")
		}
	}

	availableOnly := q.Get("available_only") == "true"
	slots, err := h.Repo.ListSlots(r.Context(), staffID, from, to, availableOnly)
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		resp = append(resp, toSlotResponse(&slots[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Booking

func (h *Handlers) Book(w http.ResponseWriter, r *http.Request) {
	patientID, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not_authenticated", "caller identity is missing")
		return
	}

	var req BookAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	staffID, _ := uuid.Parse(req.StaffID)
	slotID, _ := uuid.Parse(req.SlotID)

	appt, err := h.Coordinator.Book(r.Context(), schedule.BookingRequest{
		PatientID:  patientID,
		StaffID:    staffID,
		SlotID:     slotID,
		Reason:     req.Reason,
		PaymentRef: req.PaymentRef,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handlers) Reschedule(w http.ResponseWriter, r *http.Request) {
	apptID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	newSlotID, _ := uuid.Parse(req.NewSlotID)

	appt, err := h.Coordinator.Reschedule(r.Context(), apptID, newSlotID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	apptID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}

	appt, err := h.Coordinator.Cancel(r.Context(), apptID, req.Reason)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// transitionHandler returns a handler advancing the appointment to a
// fixed target status via the given coordinator method.
func (h *Handlers) transitionHandler(apply func(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		appt, err := apply(r.Context(), apptID)
		if err != nil {
			h.handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func (h *Handlers) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	details, err := h.Coordinator.ListPatientAppointments(r.Context(), patientID, limit, offset)
	if err != nil {
		h.handleError(w, err)
		return
	}

	now := time.Now()
	resp := make([]AppointmentDetailResponse, 0, len(details))
	for _, d := range details {
		resp = append(resp, toAppointmentDetailResponse(d, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListStaffAppointments(w http.ResponseWriter, r *http.Request) {
	staffID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	date := schedule.Day(time.Now())
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	details, err := h.Repo.ListAppointmentsByStaffDate(r.Context(), staffID, date)
	if err != nil {
		h.handleError(w, err)
		return
	}

	now := time.Now()
	resp := make([]AppointmentDetailResponse, 0, len(details))
	for _, d := range details {
		resp = append(resp, toAppointmentDetailResponse(d, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Operational adjustments

func (h *Handlers) ToggleSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req ToggleRequest
	if !h.decode(w, r, &req) {
		return
	}

	slot, err := h.Adjuster.ToggleAvailability(r.Context(), slotID, req.Available)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

func (h *Handlers) EmergencyCancelSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req EmergencyCancelRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Adjuster.EmergencyCancel(r.Context(), slotID, schedule.CancellationReason(req.Reason), req.Note)
	if err != nil {
		h.handleError(w, err)
		return
	}

	cancelled := make([]AppointmentResponse, 0, len(result.Cancelled))
	for i := range result.Cancelled {
		cancelled = append(cancelled, toAppointmentResponse(&result.Cancelled[i]))
	}
	writeJSON(w, http.StatusOK, EmergencyCancelResponse{
		Slot:           toSlotResponse(result.Slot),
		CancelledCount: len(cancelled),
		Cancelled:      cancelled,
	})
}

func (h *Handlers) RunningLate(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RunningLateRequest
	if !h.decode(w, r, &req) {
		return
	}

	var slot *schedule.TimeSlot
	var err error
	switch {
	case req.Minutes != nil:
		slot, err = h.Adjuster.SetRunningLate(r.Context(), slotID, *req.Minutes)
	case req.Delta != nil:
		slot, err = h.Adjuster.AdjustDelay(r.Context(), slotID, *req.Delta)
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "either minutes or delta is required")
		return
	}
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

func (h *Handlers) ResizeCapacity(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req ResizeCapacityRequest
	if !h.decode(w, r, &req) {
		return
	}

	slot, err := h.Adjuster.ResizeCapacity(r.Context(), slotID, req.MaxCapacity)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

func (h *Handlers) BulkToggle(w http.ResponseWriter, r *http.Request) {
	staffID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req BulkToggleRequest
	if !h.decode(w, r, &req) {
		return
	}

	var result *schedule.BulkResult
	var err error
	switch {
	case req.Date != "":
		var date time.Time
		date, err = time.Parse("2006-01-02", req.Date)
		if err == nil {
			result, err = h.Adjuster.BulkSetAvailability(r.Context(), staffID, date, req.Available)
		}
	case req.Weeks > 0:
		filter := schedule.DayFilter(req.DayFilter)
		if filter == "" {
			filter = schedule.DaysAll
		}
		result, err = h.Adjuster.BulkApply(r.Context(), staffID, time.Now(), req.Weeks, filter, req.Available, req.Capacity)
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "either date or weeks is required")
		return
	}
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BulkResultResponse{
		Updated:  result.Updated,
		Skipped:  result.Skipped,
		Failures: result.Failures,
	})
}

// Recommendations

func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	staffID, err := uuid.Parse(r.URL.Query().Get("staff_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
		return
	}

	set, err := h.Scorer.RecommendForPatient(r.Context(), patientID, staffID, time.Now())
	if err != nil {
		h.handleError(w, err)
		return
	}

	items := make([]RecommendationResponse, 0, len(set.Items))
	for _, it := range set.Items {
		items = append(items, RecommendationResponse{
			SlotID:    it.SlotID,
			StaffID:   it.StaffID,
			StaffName: it.StaffName,
			Date:      it.Date.Format("2006-01-02"),
			StartTime: it.Start.Format("15:04"),
			EndTime:   it.End.Format("15:04"),
			Score:     it.Score,
			Reason:    string(it.Reason),
		})
	}
	writeJSON(w, http.StatusOK, RecommendationSetResponse{
		Items:  items,
		Reason: set.NoSlotsReason,
	})
}

func (h *Handlers) Demand(w http.ResponseWriter, r *http.Request) {
	staffID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	signals, err := h.Scorer.DemandForStaff(r.Context(), staffID, time.Now(), days)
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := make([]DemandSignalResponse, 0, len(signals))
	for _, s := range signals {
		resp = append(resp, DemandSignalResponse{
			Date:     s.Date.Format("2006-01-02"),
			Weekday:  s.Weekday.String(),
			Expected: s.Expected,
			Actual:   s.Actual,
			Level:    string(s.Level),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleError maps domain errors onto HTTP statuses. Capacity errors
// stay distinct so clients can offer the right retry experience.
func (h *Handlers) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotAuthenticated), errors.Is(err, identity.ErrNoIdentity):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrStaffNotFound):
		writeError(w, http.StatusNotFound, "staff_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", "someone just took the last opening, refresh and retry")
	case errors.Is(err, schedule.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "this slot was disabled, pick another time")
	case errors.Is(err, schedule.ErrSlotHasBookings):
		writeError(w, http.StatusConflict, "slot_has_bookings", err.Error())
	case errors.Is(err, schedule.ErrSlotBeingChanged):
		writeError(w, http.StatusConflict, "slot_being_changed", "slot is being modified, please retry shortly")
	case errors.Is(err, schedule.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, "invalid_capacity", err.Error())
	case errors.Is(err, schedule.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, schedule.ErrPaymentNotVerified):
		writeError(w, http.StatusPaymentRequired, "payment_not_verified", err.Error())
	default:
		h.Log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
