package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebook/hospital-scheduling/internal/schedule"
)

type GenerateSlotsRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Capacity  int    `json:"capacity" validate:"omitempty,min=1"`
	DayFilter string `json:"day_filter" validate:"omitempty,oneof=all weekdays weekends"`
}

type GenerateSlotsResponse struct {
	Inserted int `json:"inserted"`
}

type BookAppointmentRequest struct {
	StaffID    string `json:"staff_id" validate:"required,uuid4"`
	SlotID     string `json:"slot_id" validate:"required,uuid4"`
	Reason     string `json:"reason" validate:"omitempty,max=500"`
	PaymentRef string `json:"payment_ref" validate:"required"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id" validate:"required,uuid4"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type ToggleRequest struct {
	Available bool `json:"available"`
}

type EmergencyCancelRequest struct {
	Reason string `json:"reason" validate:"required,oneof=medical_emergency staff_illness family_emergency other"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

type RunningLateRequest struct {
	Minutes *int `json:"minutes" validate:"omitempty,min=0"`
	Delta   *int `json:"delta"`
}

type ResizeCapacityRequest struct {
	MaxCapacity int `json:"max_capacity" validate:"required"`
}

type BulkToggleRequest struct {
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Weeks     int    `json:"weeks" validate:"omitempty,min=1,max=12"`
	DayFilter string `json:"day_filter" validate:"omitempty,oneof=all weekdays weekends"`
	Available bool   `json:"available"`
	Capacity  int    `json:"capacity" validate:"omitempty,min=1"`
}

type SlotResponse struct {
	ID              uuid.UUID `json:"id"`
	StaffID         uuid.UUID `json:"staff_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	IsAvailable     bool      `json:"is_available"`
	CurrentBookings int       `json:"current_bookings"`
	MaxCapacity     int       `json:"max_capacity"`
	IsRunningLate   bool      `json:"is_running_late"`
	DelayMinutes    int       `json:"delay_minutes"`
}

func toSlotResponse(s *schedule.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		StaffID:         s.StaffID,
		Date:            s.SlotDate.Format("2006-01-02"),
		StartTime:       s.StartTime.Format("15:04"),
		EndTime:         s.EndTime.Format("15:04"),
		IsAvailable:     s.IsAvailable,
		CurrentBookings: s.CurrentBookings,
		MaxCapacity:     s.MaxCapacity,
		IsRunningLate:   s.IsRunningLate,
		DelayMinutes:    s.DelayMinutes,
	}
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	StaffID    uuid.UUID `json:"staff_id"`
	SlotID     uuid.UUID `json:"slot_id"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	Reason     *string   `json:"reason,omitempty"`
	Missed     bool      `json:"missed,omitempty"`
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		StaffID:   a.StaffID,
		SlotID:    a.SlotID,
		Date:      a.Date.Format("2006-01-02"),
		Status:    string(a.Status),
		Reason:    a.Reason,
	}
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	StaffName string        `json:"staff_name,omitempty"`
	Slot      *SlotResponse `json:"slot,omitempty"`
}

func toAppointmentDetailResponse(d schedule.AppointmentDetail, now time.Time) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
	}
	if d.Staff != nil {
		resp.StaffName = d.Staff.Name
	}
	if d.Slot != nil {
		slot := toSlotResponse(d.Slot)
		resp.Slot = &slot
		resp.Missed = schedule.IsMissed(now, d.Slot.EndTime, d.Status)
	}
	return resp
}

type EmergencyCancelResponse struct {
	Slot           SlotResponse          `json:"slot"`
	CancelledCount int                   `json:"cancelled_count"`
	Cancelled      []AppointmentResponse `json:"cancelled"`
}

type BulkResultResponse struct {
	Updated  int         `json:"updated"`
	Skipped  []uuid.UUID `json:"skipped,omitempty"`
	Failures int         `json:"failures,omitempty"`
}

type RecommendationResponse struct {
	SlotID    uuid.UUID `json:"slot_id"`
	StaffID   uuid.UUID `json:"staff_id"`
	StaffName string    `json:"staff_name,omitempty"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Score     int       `json:"score"`
	Reason    string    `json:"reason"`
}

type RecommendationSetResponse struct {
	Items  []RecommendationResponse `json:"items"`
	Reason string                   `json:"reason,omitempty"`
}

type DemandSignalResponse struct {
	Date     string  `json:"date"`
	Weekday  string  `json:"weekday"`
	Expected float64 `json:"expected"`
	Actual   int     `json:"actual"`
	Level    string  `json:"level"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
