package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHandleAppointmentError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid transition", &appointment.InvalidTransitionError{Current: appointment.StatusCompleted, Op: "cancel"}, 409, "invalid_transition"},
		{"wrapped invalid transition", fmt.Errorf("cancel: %w", &appointment.InvalidTransitionError{Current: appointment.StatusCompleted, Op: "cancel"}), 409, "invalid_transition"},
		{"appointment not found", appointment.ErrAppointmentNotFound, 404, "appointment_not_found"},
		{"patient not found", appointment.ErrPatientNotFound, 404, "patient_not_found"},
		{"reschedule cap", appointment.ErrRescheduleNotAllowed, 409, "reschedule_not_allowed"},
		{"slot full", schedule.ErrSlotFull, 409, "slot_full"},
		{"slot not bookable", schedule.ErrSlotNotBookable, 409, "slot_not_bookable"},
		{"slot lock busy", appointment.ErrSlotBeingBooked, 409, "busy"},
		{"check-in contended", appointment.ErrCheckInContended, 409, "busy"},
		{"raw lock error", redisclient.ErrLockNotAcquired, 409, "busy"},
		{"unknown", errors.New("boom"), 500, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleAppointmentError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestHandleScheduleError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"template not found", schedule.ErrTemplateNotFound, 404, "template_not_found"},
		{"exception not found", schedule.ErrExceptionNotFound, 404, "exception_not_found"},
		{"invalid template", fmt.Errorf("%w: start after end", schedule.ErrInvalidTemplate), 400, "validation_failed"},
		{"invalid exception", schedule.ErrInvalidException, 400, "validation_failed"},
		{"unknown", errors.New("boom"), 500, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleScheduleError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestParseHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := parseUUIDField(uuid.NewString(), "patient_id", rec)
	assert.True(t, ok)
	assert.NotEqual(t, uuid.Nil, id)

	rec = httptest.NewRecorder()
	_, ok = parseUUIDField("not-a-uuid", "patient_id", rec)
	assert.False(t, ok)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "invalid_patient_id", decodeError(t, rec).Error)

	// Absent and empty pointers both mean "not provided".
	rec = httptest.NewRecorder()
	ptr, ok := parseUUIDPtr(nil, "doctor_id", rec)
	assert.True(t, ok)
	assert.Nil(t, ptr)

	empty := ""
	rec = httptest.NewRecorder()
	ptr, ok = parseUUIDPtr(&empty, "doctor_id", rec)
	assert.True(t, ok)
	assert.Nil(t, ptr)

	rec = httptest.NewRecorder()
	date, ok := parseDateField("2026-01-05", "date", rec)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), date)

	rec = httptest.NewRecorder()
	_, ok = parseDateField("05/01/2026", "date", rec)
	assert.False(t, ok)
	assert.Equal(t, 400, rec.Code)

	rec = httptest.NewRecorder()
	start, ok := parseTimeField("09:30", "start_time", rec)
	assert.True(t, ok)
	assert.Equal(t, schedule.NewTimeOfDay(9, 30), start)

	rec = httptest.NewRecorder()
	_, ok = parseTimeField("9.30am", "start_time", rec)
	assert.False(t, ok)
	assert.Equal(t, 400, rec.Code)
}

func TestToAppointmentResponse(t *testing.T) {
	slotID := uuid.New()
	token := 4
	a := &appointment.Appointment{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		BranchID:    uuid.New(),
		SlotID:      &slotID,
		Date:        time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		StartTime:   schedule.NewTimeOfDay(9, 0),
		EndTime:     schedule.NewTimeOfDay(9, 30),
		Status:      appointment.StatusCheckedIn,
		Priority:    appointment.PriorityUrgent,
		Source:      "front_desk",
		TokenNumber: &token,
	}

	resp := toAppointmentResponse(a)
	assert.Equal(t, "2026-01-05", resp.Date)
	assert.Equal(t, "checked_in", resp.Status)
	assert.Equal(t, "urgent", resp.Priority)
	require.NotNil(t, resp.TokenNumber)
	assert.Equal(t, 4, *resp.TokenNumber)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"start_time":"09:00"`)
	assert.Contains(t, string(data), `"end_time":"09:30"`)
}

func TestToSlotResponse(t *testing.T) {
	reason := "ward rounds"
	s := &schedule.Slot{
		ID:          uuid.New(),
		DoctorID:    uuid.New(),
		BranchID:    uuid.New(),
		Date:        time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		StartTime:   schedule.NewTimeOfDay(11, 0),
		EndTime:     schedule.NewTimeOfDay(11, 30),
		MaxBookings: 2,
		Available:   true,
		Blocked:     true,
		BlockReason: &reason,
	}

	resp := toSlotResponse(s)
	assert.Equal(t, "2026-01-05", resp.Date)
	assert.True(t, resp.Blocked)
	require.NotNil(t, resp.BlockReason)
	assert.Equal(t, reason, *resp.BlockReason)
}
