package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

const dateLayout = "2006-01-02"

// Requests

type CreateTemplateRequest struct {
	DoctorID       string  `json:"doctor_id"`
	BranchID       string  `json:"branch_id"`
	Weekday        int     `json:"weekday"`
	StartTime      string  `json:"start_time"`
	EndTime        string  `json:"end_time"`
	SlotMinutes    int     `json:"slot_minutes"`
	MaxBookings    int     `json:"max_bookings"`
	BreakStart     *string `json:"break_start,omitempty"`
	BreakEnd       *string `json:"break_end,omitempty"`
	EffectiveFrom  *string `json:"effective_from,omitempty"`
	EffectiveUntil *string `json:"effective_until,omitempty"`
}

type CreateExceptionRequest struct {
	DoctorID  string  `json:"doctor_id"`
	BranchID  *string `json:"branch_id,omitempty"`
	Date      string  `json:"date"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Reason    string  `json:"reason"`
}

type GenerateSlotsRequest struct {
	DoctorID   string `json:"doctor_id"`
	BranchID   string `json:"branch_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

type BlockSlotsRequest struct {
	DoctorID  string  `json:"doctor_id"`
	BranchID  string  `json:"branch_id"`
	Date      string  `json:"date"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	ActorID   *string `json:"actor_id,omitempty"`
}

type BookAppointmentRequest struct {
	PatientID       string  `json:"patient_id"`
	DoctorID        *string `json:"doctor_id,omitempty"`
	BranchID        string  `json:"branch_id"`
	ServiceID       *string `json:"service_id,omitempty"`
	PackageID       *string `json:"package_id,omitempty"`
	AppointmentType *string `json:"appointment_type,omitempty"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	Priority        string  `json:"priority,omitempty"`
	Source          string  `json:"source,omitempty"`
	Reason          *string `json:"reason,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	DoctorID  *string `json:"doctor_id,omitempty"`
	BranchID  *string `json:"branch_id,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// Responses

type TemplateResponse struct {
	ID             uuid.UUID           `json:"id"`
	DoctorID       uuid.UUID           `json:"doctor_id"`
	BranchID       uuid.UUID           `json:"branch_id"`
	Weekday        int                 `json:"weekday"`
	StartTime      schedule.TimeOfDay  `json:"start_time"`
	EndTime        schedule.TimeOfDay  `json:"end_time"`
	SlotMinutes    int                 `json:"slot_minutes"`
	MaxBookings    int                 `json:"max_bookings"`
	BreakStart     *schedule.TimeOfDay `json:"break_start,omitempty"`
	BreakEnd       *schedule.TimeOfDay `json:"break_end,omitempty"`
	EffectiveFrom  *string             `json:"effective_from,omitempty"`
	EffectiveUntil *string             `json:"effective_until,omitempty"`
	Active         bool                `json:"active"`
}

type ExceptionResponse struct {
	ID        uuid.UUID           `json:"id"`
	DoctorID  uuid.UUID           `json:"doctor_id"`
	BranchID  *uuid.UUID          `json:"branch_id,omitempty"`
	Date      string              `json:"date"`
	StartTime *schedule.TimeOfDay `json:"start_time,omitempty"`
	EndTime   *schedule.TimeOfDay `json:"end_time,omitempty"`
	Reason    string              `json:"reason"`
	FullDay   bool                `json:"full_day"`
}

type SlotResponse struct {
	ID              uuid.UUID          `json:"id"`
	DoctorID        uuid.UUID          `json:"doctor_id"`
	BranchID        uuid.UUID          `json:"branch_id"`
	Date            string             `json:"date"`
	StartTime       schedule.TimeOfDay `json:"start_time"`
	EndTime         schedule.TimeOfDay `json:"end_time"`
	MaxBookings     int                `json:"max_bookings"`
	CurrentBookings int                `json:"current_bookings"`
	Available       bool               `json:"available"`
	Blocked         bool               `json:"blocked"`
	BlockReason     *string            `json:"block_reason,omitempty"`
}

type GenerateSlotsResponse struct {
	Created int            `json:"created"`
	Slots   []SlotResponse `json:"slots"`
}

type BlockSlotsResponse struct {
	Affected int64 `json:"affected"`
}

type AppointmentResponse struct {
	ID              uuid.UUID          `json:"id"`
	PatientID       uuid.UUID          `json:"patient_id"`
	DoctorID        *uuid.UUID         `json:"doctor_id,omitempty"`
	BranchID        uuid.UUID          `json:"branch_id"`
	SlotID          *uuid.UUID         `json:"slot_id,omitempty"`
	Date            string             `json:"date"`
	StartTime       schedule.TimeOfDay `json:"start_time"`
	EndTime         schedule.TimeOfDay `json:"end_time"`
	Status          string             `json:"status"`
	Priority        string             `json:"priority"`
	Source          string             `json:"source"`
	TokenNumber     *int               `json:"token_number,omitempty"`
	Reason          *string            `json:"reason,omitempty"`
	CancelReason    *string            `json:"cancel_reason,omitempty"`
	RescheduledFrom *uuid.UUID         `json:"rescheduled_from,omitempty"`
	RescheduleCount int                `json:"reschedule_count"`
	CheckedInAt     *time.Time         `json:"checked_in_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Converters

func toTemplateResponse(t *schedule.ScheduleTemplate) TemplateResponse {
	return TemplateResponse{
		ID:             t.ID,
		DoctorID:       t.DoctorID,
		BranchID:       t.BranchID,
		Weekday:        int(t.Weekday),
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		SlotMinutes:    t.SlotMinutes,
		MaxBookings:    t.MaxBookings,
		BreakStart:     t.BreakStart,
		BreakEnd:       t.BreakEnd,
		EffectiveFrom:  formatDatePtr(t.EffectiveFrom),
		EffectiveUntil: formatDatePtr(t.EffectiveUntil),
		Active:         t.Active,
	}
}

func toExceptionResponse(e *schedule.ScheduleException) ExceptionResponse {
	return ExceptionResponse{
		ID:        e.ID,
		DoctorID:  e.DoctorID,
		BranchID:  e.BranchID,
		Date:      e.Date.Format(dateLayout),
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Reason:    e.Reason,
		FullDay:   e.FullDay(),
	}
}

func toSlotResponse(s *schedule.Slot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		DoctorID:        s.DoctorID,
		BranchID:        s.BranchID,
		Date:            s.Date.Format(dateLayout),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		MaxBookings:     s.MaxBookings,
		CurrentBookings: s.CurrentBookings,
		Available:       s.Available,
		Blocked:         s.Blocked,
		BlockReason:     s.BlockReason,
	}
}

func toSlotResponses(slots []schedule.Slot) []SlotResponse {
	out := make([]SlotResponse, len(slots))
	for i := range slots {
		out[i] = toSlotResponse(&slots[i])
	}
	return out
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		BranchID:        a.BranchID,
		SlotID:          a.SlotID,
		Date:            a.Date.Format(dateLayout),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          string(a.Status),
		Priority:        string(a.Priority),
		Source:          a.Source,
		TokenNumber:     a.TokenNumber,
		Reason:          a.Reason,
		CancelReason:    a.CancelReason,
		RescheduledFrom: a.RescheduledFrom,
		RescheduleCount: a.RescheduleCount,
		CheckedInAt:     a.CheckedInAt,
		CreatedAt:       a.CreatedAt,
	}
}

func toAppointmentResponses(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(appts))
	for i := range appts {
		out[i] = toAppointmentResponse(&appts[i])
	}
	return out
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
