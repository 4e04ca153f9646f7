package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/carebook/hospital-scheduling/internal/redis"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingCancelled     = "BOOKING_CANCELLED"
	EventBookingRescheduled   = "BOOKING_RESCHEDULED"
	EventBookingCompensated   = "BOOKING_COMPENSATED"
	EventSlotDisabled         = "SLOT_DISABLED"
	EventSlotEnabled          = "SLOT_ENABLED"
	EventEmergencyCancel      = "SLOT_EMERGENCY_CANCELLED"
	EventSlotCapacityResized  = "SLOT_CAPACITY_RESIZED"
	EventSlotRunningLate      = "SLOT_RUNNING_LATE"
	EventSlotRunningOnTime    = "SLOT_RUNNING_ON_TIME"
)

var (
	ErrNotAuthenticated  = errors.New("caller identity is missing")
	ErrSlotBeingChanged  = errors.New("slot is being modified, please retry")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
)

// BookingRequest is the end-to-end booking input. PaymentRef must name
// a confirmed payment; the coordinator rejects unverified references
// before touching the ledger.
type BookingRequest struct {
	PatientID  uuid.UUID
	StaffID    uuid.UUID
	SlotID     uuid.UUID
	Reason     string
	PaymentRef string
}

// Coordinator orchestrates the booking transaction: verify payment,
// reserve capacity, insert the appointment, and compensate the
// reservation when the insert fails. No phantom reservation survives a
// failed appointment insert.
type Coordinator struct {
	repo     Repository
	ledger   *Ledger
	payments PaymentVerifier
	locker   redisclient.Locker
	log      zerolog.Logger
}

func NewCoordinator(repo Repository, ledger *Ledger, payments PaymentVerifier, locker redisclient.Locker, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		repo:     repo,
		ledger:   ledger,
		payments: payments,
		locker:   locker,
		log:      log,
	}
}

func (c *Coordinator) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}

	if _, err := c.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if err := c.payments.Verify(ctx, req.PatientID, req.PaymentRef); err != nil {
		return nil, err
	}

	slot, err := c.repo.GetSlotByID(ctx, req.SlotID)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.StaffID != req.StaffID {
		return nil, fmt.Errorf("%w: slot belongs to a different staff member", ErrSlotUnavailable)
	}
	if !c.ledger.CanBook(slot) {
		// Cheap pre-check for a friendly early error; the reserve
		// below is what actually decides under contention.
		if !slot.IsAvailable {
			return nil, ErrSlotUnavailable
		}
		return nil, ErrSlotFull
	}

	reserved, err := c.ledger.Reserve(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID: req.PatientID,
		StaffID:   req.StaffID,
		SlotID:    req.SlotID,
		Date:      reserved.SlotDate,
		Status:    StatusScheduled,
	}
	if req.Reason != "" {
		appt.Reason = &req.Reason
	}
	if req.PaymentRef != "" {
		appt.PaymentRef = &req.PaymentRef
	}

	created, err := c.repo.CreateAppointment(ctx, appt)
	if err != nil {
		// Exactly one compensating release; the insert error is the
		// one surfaced to the caller.
		if _, relErr := c.ledger.Release(ctx, req.SlotID); relErr != nil {
			c.log.Error().Err(relErr).
				Stringer("slot_id", req.SlotID).
				Msg("compensating release failed, counter may be stale")
		} else {
			c.logEvent(ctx, nil, &req.SlotID, EventBookingCompensated, map[string]any{
				"patient_id": req.PatientID.String(),
			})
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	c.logEvent(ctx, &created.ID, &req.SlotID, EventBookingCreated, map[string]any{
		"patient_id":  req.PatientID.String(),
		"staff_id":    req.StaffID.String(),
		"payment_ref": req.PaymentRef,
	})

	return created, nil
}

// Reschedule rebinds an appointment to a new slot. Ordering is
// reserve-new first, then rebind, then release-old: a failed new-slot
// reservation leaves the old one untouched, and a failed rebind is
// compensated by releasing the new slot.
func (c *Coordinator) Reschedule(ctx context.Context, apptID, newSlotID uuid.UUID) (*Appointment, error) {
	appt, err := c.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if IsTerminal(appt.Status) {
		return nil, fmt.Errorf("appointment is %s: %w", appt.Status, ErrInvalidTransition)
	}
	if appt.SlotID == newSlotID {
		return appt, nil
	}

	newSlot, err := c.repo.GetSlotByID(ctx, newSlotID)
	if err != nil {
		return nil, fmt.Errorf("load new slot: %w", err)
	}
	if newSlot.StaffID != appt.StaffID {
		return nil, fmt.Errorf("%w: slot belongs to a different staff member", ErrSlotUnavailable)
	}

	oldSlotID := appt.SlotID
	var updated *Appointment

	err = c.locker.WithSlotLock(ctx, newSlotID, func(lockCtx context.Context) error {
		reserved, err := c.ledger.Reserve(lockCtx, newSlotID)
		if err != nil {
			return err
		}

		moved, err := c.repo.RebindAppointmentSlot(lockCtx, apptID, newSlotID, reserved.SlotDate)
		if err != nil {
			if _, relErr := c.ledger.Release(lockCtx, newSlotID); relErr != nil {
				c.log.Error().Err(relErr).
					Stringer("slot_id", newSlotID).
					Msg("compensating release of new slot failed")
			}
			return fmt.Errorf("rebind appointment: %w", err)
		}

		if _, err := c.ledger.Release(lockCtx, oldSlotID); err != nil {
			// The appointment has already moved; a stale counter on
			// the old slot is recoverable and better than unwinding a
			// committed rebind.
			c.log.Error().Err(err).
				Stringer("slot_id", oldSlotID).
				Msg("release of old slot failed after reschedule")
		}

		updated = moved
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingChanged
		}
		return nil, err
	}

	c.logEvent(ctx, &apptID, &newSlotID, EventBookingRescheduled, map[string]any{
		"old_slot_id": oldSlotID.String(),
	})

	return updated, nil
}

// Cancel moves an active appointment to cancelled and releases its
// reservation.
func (c *Coordinator) Cancel(ctx context.Context, apptID uuid.UUID, reason string) (*Appointment, error) {
	appt, err := c.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	updated, err := c.Transition(ctx, apptID, appt.Status, StatusCancelled)
	if err != nil {
		return nil, err
	}

	if _, err := c.ledger.Release(ctx, appt.SlotID); err != nil {
		c.log.Error().Err(err).
			Stringer("slot_id", appt.SlotID).
			Msg("release after cancellation failed")
	}

	c.logEvent(ctx, &apptID, &appt.SlotID, EventBookingCancelled, map[string]any{
		"reason": reason,
	})

	return updated, nil
}

// Transition advances an appointment through the status machine using
// a conditional update, so a concurrent transition loses cleanly.
func (c *Coordinator) Transition(ctx context.Context, apptID uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}

	updated, err := c.repo.UpdateAppointmentStatus(ctx, apptID, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("appointment moved out of %s: %w", from, ErrInvalidTransition)
		}
		return nil, fmt.Errorf("transition appointment: %w", err)
	}

	return updated, nil
}

// Complete and MarkNoShow release nothing: the slot time was consumed
// either way, and the counter only tracks active admissions up to the
// slot's end of life.

func (c *Coordinator) Confirm(ctx context.Context, apptID uuid.UUID) (*Appointment, error) {
	return c.transitionFromCurrent(ctx, apptID, StatusConfirmed)
}

func (c *Coordinator) Start(ctx context.Context, apptID uuid.UUID) (*Appointment, error) {
	return c.transitionFromCurrent(ctx, apptID, StatusInProgress)
}

func (c *Coordinator) Complete(ctx context.Context, apptID uuid.UUID) (*Appointment, error) {
	return c.transitionFromCurrent(ctx, apptID, StatusCompleted)
}

func (c *Coordinator) MarkNoShow(ctx context.Context, apptID uuid.UUID) (*Appointment, error) {
	return c.transitionFromCurrent(ctx, apptID, StatusNoShow)
}

func (c *Coordinator) transitionFromCurrent(ctx context.Context, apptID uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	appt, err := c.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return c.Transition(ctx, apptID, appt.Status, to)
}

// ListPatientAppointments retrieves a patient's appointment history,
// newest first.
func (c *Coordinator) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := c.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (c *Coordinator) logEvent(ctx context.Context, appointmentID, slotID *uuid.UUID, eventType string, payload map[string]any) {
	logEvent(ctx, c.repo, c.log, appointmentID, slotID, eventType, payload)
}

// logEvent records an audit row, best effort. Shared by the coordinator
// and the adjustment workflows.
func logEvent(ctx context.Context, events EventRepository, log zerolog.Logger, appointmentID, slotID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		SlotID:        slotID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := events.InsertEvent(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("insert event log")
	}
}
