package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

// Parsing helpers shared by the handler files.

func parseUUIDField(s, field string, w http.ResponseWriter) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDPtr(s *string, field string, w http.ResponseWriter) (*uuid.UUID, bool) {
	if s == nil || *s == "" {
		return nil, true
	}
	id, ok := parseUUIDField(*s, field, w)
	if !ok {
		return nil, false
	}
	return &id, true
}

func parseDateField(s, field string, w http.ResponseWriter) (time.Time, bool) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func parseTimeField(s, field string, w http.ResponseWriter) (schedule.TimeOfDay, bool) {
	t, err := schedule.ParseTimeOfDay(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be HH:MM")
		return 0, false
	}
	return t, true
}

func parseTimePtr(s *string, field string, w http.ResponseWriter) (*schedule.TimeOfDay, bool) {
	if s == nil || *s == "" {
		return nil, true
	}
	t, ok := parseTimeField(*s, field, w)
	if !ok {
		return nil, false
	}
	return &t, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// Appointment handlers

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		patientID, ok := parseUUIDField(req.PatientID, "patient_id", w)
		if !ok {
			return
		}
		branchID, ok := parseUUIDField(req.BranchID, "branch_id", w)
		if !ok {
			return
		}
		doctorID, ok := parseUUIDPtr(req.DoctorID, "doctor_id", w)
		if !ok {
			return
		}
		serviceID, ok := parseUUIDPtr(req.ServiceID, "service_id", w)
		if !ok {
			return
		}
		packageID, ok := parseUUIDPtr(req.PackageID, "package_id", w)
		if !ok {
			return
		}
		date, ok := parseDateField(req.Date, "date", w)
		if !ok {
			return
		}
		start, ok := parseTimeField(req.StartTime, "start_time", w)
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID:       patientID,
			DoctorID:        doctorID,
			BranchID:        branchID,
			ServiceID:       serviceID,
			PackageID:       packageID,
			AppointmentType: req.AppointmentType,
			Date:            date,
			StartTime:       start,
			Priority:        appointment.Priority(req.Priority),
			Source:          req.Source,
			Reason:          req.Reason,
			Notes:           req.Notes,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(chi.URLParam(r, "id"), "appointment_id", w)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientIDStr := r.URL.Query().Get("patient_id")
		if patientIDStr == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_id", "patient_id query parameter is required")
			return
		}
		patientID, ok := parseUUIDField(patientIDStr, "patient_id", w)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

// transitionHandler covers the single-step verbs that take no body.
func transitionHandler(fn func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(chi.URLParam(r, "id"), "appointment_id", w)
		if !ok {
			return
		}

		appt, err := fn(r, id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(chi.URLParam(r, "id"), "appointment_id", w)
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Reason == "" {
			writeError(w, http.StatusBadRequest, "missing_reason", "a cancellation reason is required")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(chi.URLParam(r, "id"), "appointment_id", w)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		date, ok := parseDateField(req.Date, "date", w)
		if !ok {
			return
		}
		start, ok := parseTimeField(req.StartTime, "start_time", w)
		if !ok {
			return
		}
		doctorID, ok := parseUUIDPtr(req.DoctorID, "doctor_id", w)
		if !ok {
			return
		}
		branchID, ok := parseUUIDPtr(req.BranchID, "branch_id", w)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, appointment.RescheduleRequest{
			Date:      date,
			StartTime: start,
			DoctorID:  doctorID,
			BranchID:  branchID,
			Notes:     req.Notes,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	var invalid *appointment.InvalidTransitionError

	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusConflict, "invalid_transition", invalid.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrRescheduleNotAllowed):
		writeError(w, http.StatusConflict, "reschedule_not_allowed", err.Error())
	case errors.Is(err, schedule.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, schedule.ErrSlotNotBookable):
		writeError(w, http.StatusConflict, "slot_not_bookable", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, appointment.ErrCheckInContended),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "busy", "resource is busy, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
