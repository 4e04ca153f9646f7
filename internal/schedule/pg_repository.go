package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const slotColumns = `id, staff_id, slot_date, start_time, end_time, is_available,
	current_bookings, max_capacity, is_running_late, delay_minutes, created_at, updated_at`

const appointmentColumns = `id, patient_id, staff_id, slot_id, appointment_date,
	status, reason, payment_ref, created_at, updated_at`

// Helpers

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot

	err := row.Scan(
		&s.ID,
		&s.StaffID,
		&s.SlotDate,
		&s.StartTime,
		&s.EndTime,
		&s.IsAvailable,
		&s.CurrentBookings,
		&s.MaxCapacity,
		&s.IsRunningLate,
		&s.DelayMinutes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason, paymentRef *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.StaffID,
		&a.SlotID,
		&a.Date,
		&a.Status,
		&reason,
		&paymentRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Reason = reason
	a.PaymentRef = paymentRef
	return &a, nil
}

func scanStaff(row pgx.Row) (*Staff, error) {
	var st Staff
	var department, designation *string

	err := row.Scan(
		&st.ID,
		&st.Name,
		&department,
		&designation,
		&st.DefaultCapacity,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}

	st.Department = department
	st.Designation = designation
	return &st, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

// Slots

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, staffID uuid.UUID, from, to time.Time, availableOnly bool) ([]TimeSlot, error) {
	q := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE staff_id = $1
		  AND slot_date BETWEEN $2 AND $3`
	if availableOnly {
		q += `
		  AND is_available`
	}
	q += `
		ORDER BY slot_date, start_time`

	rows, err := r.pool.Query(ctx, q, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []TimeSlot) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert slots: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, s := range slots {
		tag, err := tx.Exec(ctx, `
			INSERT INTO time_slots
				(id, staff_id, slot_date, start_time, end_time, is_available,
				 current_bookings, max_capacity, is_running_late, delay_minutes,
				 created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, 0, now(), now())
			ON CONFLICT (staff_id, slot_date, start_time) DO NOTHING
		`, s.ID, s.StaffID, s.SlotDate, s.StartTime, s.EndTime, s.IsAvailable, s.CurrentBookings, s.MaxCapacity)
		if err != nil {
			return 0, fmt.Errorf("insert slot %s %s: %w", s.SlotDate.Format("2006-01-02"), s.StartTime.Format("15:04"), err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit insert slots: %w", err)
	}

	return inserted, nil
}

func (r *PgRepository) LastSlotDate(ctx context.Context, staffID uuid.UUID) (time.Time, bool, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT max(slot_date)
		FROM time_slots
		WHERE staff_id = $1
	`, staffID).Scan(&last)
	if err != nil {
		return time.Time{}, false, err
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}

// ReserveSlot closes the last-opening race with a single conditional
// increment. Two racing callers cannot both match the WHERE clause.
func (r *PgRepository) ReserveSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET current_bookings = current_bookings + 1,
		    updated_at = now()
		WHERE id = $1
		  AND is_available
		  AND current_bookings < max_capacity
		RETURNING `+slotColumns+`
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET current_bookings = GREATEST(current_bookings - 1, 0),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) SetAvailability(ctx context.Context, id uuid.UUID, available, onlyIfUnbooked bool) (*TimeSlot, error) {
	q := `
		UPDATE time_slots
		SET is_available = $2,
		    updated_at = now()
		WHERE id = $1`
	if onlyIfUnbooked {
		q += `
		  AND current_bookings = 0`
	}
	q += `
		RETURNING ` + slotColumns

	row := r.pool.QueryRow(ctx, q, id, available)
	return scanSlot(row)
}

func (r *PgRepository) UpdateCapacity(ctx context.Context, id uuid.UUID, capacity int) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET max_capacity = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, id, capacity)
	return scanSlot(row)
}

func (r *PgRepository) SetRunningLate(ctx context.Context, id uuid.UUID, delayMinutes int) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET delay_minutes = $2,
		    is_running_late = ($2 > 0),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, id, delayMinutes)
	return scanSlot(row)
}

func (r *PgRepository) DisableSlotCancellingAppointments(ctx context.Context, slotID uuid.UUID, reason string) ([]Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin emergency cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    reason = $2,
		    updated_at = now()
		WHERE slot_id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, slotID, reason, activeStatusStrings())
	if err != nil {
		return nil, fmt.Errorf("cancel slot appointments: %w", err)
	}

	var cancelled []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cancelled = append(cancelled, *a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET is_available = false,
		    current_bookings = 0,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("disable slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSlotNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit emergency cancel: %w", err)
	}

	return cancelled, nil
}

func activeStatusStrings() []string {
	active := ActiveStatuses()
	out := make([]string, len(active))
	for i, s := range active {
		out[i] = string(s)
	}
	return out
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, staff_id, slot_id, appointment_date, status, reason, payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.StaffID, appt.SlotID, appt.Date, appt.Status, appt.Reason, appt.PaymentRef)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) RebindAppointmentSlot(ctx context.Context, id, newSlotID uuid.UUID, newDate time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    appointment_date = $3,
		    status = 'rescheduled',
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING `+appointmentColumns+`
	`, id, newSlotID, newDate, activeStatusStrings())

	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.staff_id, a.slot_id, a.appointment_date,
		       a.status, a.reason, a.payment_ref, a.created_at, a.updated_at,
		       s.id, s.staff_id, s.slot_date, s.start_time, s.end_time, s.is_available,
		       s.current_bookings, s.max_capacity, s.is_running_late, s.delay_minutes,
		       s.created_at, s.updated_at,
		       st.id, st.name, st.department, st.designation, st.default_capacity, st.created_at, st.updated_at
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		JOIN staff st ON st.id = a.staff_id
		WHERE a.patient_id = $1
		ORDER BY a.appointment_date DESC, s.start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDetails(rows)
}

func (r *PgRepository) ListAppointmentsByStaffDate(ctx context.Context, staffID uuid.UUID, date time.Time) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.staff_id, a.slot_id, a.appointment_date,
		       a.status, a.reason, a.payment_ref, a.created_at, a.updated_at,
		       s.id, s.staff_id, s.slot_date, s.start_time, s.end_time, s.is_available,
		       s.current_bookings, s.max_capacity, s.is_running_late, s.delay_minutes,
		       s.created_at, s.updated_at,
		       st.id, st.name, st.department, st.designation, st.default_capacity, st.created_at, st.updated_at
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		JOIN staff st ON st.id = a.staff_id
		WHERE a.staff_id = $1
		  AND a.appointment_date = $2
		ORDER BY s.start_time
	`, staffID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDetails(rows)
}

func scanDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		var slot TimeSlot
		var st Staff
		var reason, paymentRef, department, designation *string

		err := rows.Scan(
			&d.ID, &d.PatientID, &d.StaffID, &d.SlotID, &d.Date,
			&d.Status, &reason, &paymentRef, &d.CreatedAt, &d.UpdatedAt,
			&slot.ID, &slot.StaffID, &slot.SlotDate, &slot.StartTime, &slot.EndTime, &slot.IsAvailable,
			&slot.CurrentBookings, &slot.MaxCapacity, &slot.IsRunningLate, &slot.DelayMinutes,
			&slot.CreatedAt, &slot.UpdatedAt,
			&st.ID, &st.Name, &department, &designation, &st.DefaultCapacity, &st.CreatedAt, &st.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		d.Reason = reason
		d.PaymentRef = paymentRef
		st.Department = department
		st.Designation = designation
		d.Slot = &slot
		d.Staff = &st
		result = append(result, d)
	}

	return result, rows.Err()
}

func (r *PgRepository) CountAppointmentsByDate(ctx context.Context, staffID uuid.UUID, from, to time.Time) (map[time.Time]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_date, count(*)
		FROM appointments
		WHERE staff_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status <> 'cancelled'
		GROUP BY appointment_date
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[time.Time]int)
	for rows.Next() {
		var date time.Time
		var n int
		if err := rows.Scan(&date, &n); err != nil {
			return nil, err
		}
		counts[date] = n
	}

	return counts, rows.Err()
}

// Directory

func (r *PgRepository) GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, department, designation, default_capacity, created_at, updated_at
		FROM staff
		WHERE id = $1
	`, id)
	return scanStaff(row)
}

func (r *PgRepository) ListStaff(ctx context.Context) ([]Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, department, designation, default_capacity, created_at, updated_at
		FROM staff
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Staff
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
