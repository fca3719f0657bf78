package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

func createTemplateHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTemplateRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, ok := parseUUIDField(req.DoctorID, "doctor_id", w)
		if !ok {
			return
		}
		branchID, ok := parseUUIDField(req.BranchID, "branch_id", w)
		if !ok {
			return
		}
		start, ok := parseTimeField(req.StartTime, "start_time", w)
		if !ok {
			return
		}
		end, ok := parseTimeField(req.EndTime, "end_time", w)
		if !ok {
			return
		}
		breakStart, ok := parseTimePtr(req.BreakStart, "break_start", w)
		if !ok {
			return
		}
		breakEnd, ok := parseTimePtr(req.BreakEnd, "break_end", w)
		if !ok {
			return
		}
		if req.Weekday < 0 || req.Weekday > 6 {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be 0 (Sunday) through 6")
			return
		}

		tpl := &schedule.ScheduleTemplate{
			DoctorID:    doctorID,
			BranchID:    branchID,
			Weekday:     time.Weekday(req.Weekday),
			StartTime:   start,
			EndTime:     end,
			SlotMinutes: req.SlotMinutes,
			MaxBookings: req.MaxBookings,
			BreakStart:  breakStart,
			BreakEnd:    breakEnd,
		}

		if req.EffectiveFrom != nil {
			from, ok := parseDateField(*req.EffectiveFrom, "effective_from", w)
			if !ok {
				return
			}
			tpl.EffectiveFrom = &from
		}
		if req.EffectiveUntil != nil {
			until, ok := parseDateField(*req.EffectiveUntil, "effective_until", w)
			if !ok {
				return
			}
			tpl.EffectiveUntil = &until
		}

		created, err := svc.CreateTemplate(r.Context(), tpl)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTemplateResponse(created))
	}
}

func listTemplatesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDField(r.URL.Query().Get("doctor_id"), "doctor_id", w)
		if !ok {
			return
		}
		branchID, ok := parseUUIDField(r.URL.Query().Get("branch_id"), "branch_id", w)
		if !ok {
			return
		}

		templates, err := svc.ListTemplates(r.Context(), doctorID, branchID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		out := make([]TemplateResponse, len(templates))
		for i := range templates {
			out[i] = toTemplateResponse(&templates[i])
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func deactivateTemplateHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(chi.URLParam(r, "id"), "template_id", w)
		if !ok {
			return
		}

		if err := svc.DeactivateTemplate(r.Context(), id); err != nil {
			handleScheduleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func createExceptionHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateExceptionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, ok := parseUUIDField(req.DoctorID, "doctor_id", w)
		if !ok {
			return
		}
		branchID, ok := parseUUIDPtr(req.BranchID, "branch_id", w)
		if !ok {
			return
		}
		date, ok := parseDateField(req.Date, "date", w)
		if !ok {
			return
		}
		start, ok := parseTimePtr(req.StartTime, "start_time", w)
		if !ok {
			return
		}
		end, ok := parseTimePtr(req.EndTime, "end_time", w)
		if !ok {
			return
		}

		exc := &schedule.ScheduleException{
			DoctorID:  doctorID,
			BranchID:  branchID,
			Date:      date,
			StartTime: start,
			EndTime:   end,
			Reason:    req.Reason,
		}

		created, err := svc.CreateException(r.Context(), exc)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toExceptionResponse(created))
	}
}

func listExceptionsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDField(r.URL.Query().Get("doctor_id"), "doctor_id", w)
		if !ok {
			return
		}
		from, ok := parseDateField(r.URL.Query().Get("from"), "from", w)
		if !ok {
			return
		}
		to, ok := parseDateField(r.URL.Query().Get("to"), "to", w)
		if !ok {
			return
		}

		exceptions, err := svc.ListExceptions(r.Context(), doctorID, from, to)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		out := make([]ExceptionResponse, len(exceptions))
		for i := range exceptions {
			out[i] = toExceptionResponse(&exceptions[i])
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func deactivateExceptionHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDField(chi.URLParam(r, "id"), "exception_id", w)
		if !ok {
			return
		}

		if err := svc.DeactivateException(r.Context(), id); err != nil {
			handleScheduleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func generateSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, ok := parseUUIDField(req.DoctorID, "doctor_id", w)
		if !ok {
			return
		}
		branchID, ok := parseUUIDField(req.BranchID, "branch_id", w)
		if !ok {
			return
		}
		from, ok := parseDateField(req.StartDate, "start_date", w)
		if !ok {
			return
		}
		to, ok := parseDateField(req.EndDate, "end_date", w)
		if !ok {
			return
		}
		if to.Before(from) {
			writeError(w, http.StatusBadRequest, "invalid_range", "end_date must not be before start_date")
			return
		}

		created, err := svc.Generate(r.Context(), doctorID, branchID, from, to, req.Regenerate)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, GenerateSlotsResponse{
			Created: len(created),
			Slots:   toSlotResponses(created),
		})
	}
}

func listSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDField(r.URL.Query().Get("doctor_id"), "doctor_id", w)
		if !ok {
			return
		}
		branchID, ok := parseUUIDField(r.URL.Query().Get("branch_id"), "branch_id", w)
		if !ok {
			return
		}
		from, ok := parseDateField(r.URL.Query().Get("from"), "from", w)
		if !ok {
			return
		}
		to, ok := parseDateField(r.URL.Query().Get("to"), "to", w)
		if !ok {
			return
		}

		slots, err := svc.ListSlots(r.Context(), doctorID, branchID, from, to)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func blockSlotsHandler(svc *schedule.Service, block bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BlockSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, ok := parseUUIDField(req.DoctorID, "doctor_id", w)
		if !ok {
			return
		}
		branchID, ok := parseUUIDField(req.BranchID, "branch_id", w)
		if !ok {
			return
		}
		date, ok := parseDateField(req.Date, "date", w)
		if !ok {
			return
		}
		start, ok := parseTimePtr(req.StartTime, "start_time", w)
		if !ok {
			return
		}
		end, ok := parseTimePtr(req.EndTime, "end_time", w)
		if !ok {
			return
		}
		actor, ok := parseUUIDPtr(req.ActorID, "actor_id", w)
		if !ok {
			return
		}

		var affected int64
		var err error
		if block {
			affected, err = svc.Block(r.Context(), doctorID, branchID, date, start, end, req.Reason, actor)
		} else {
			affected, err = svc.Unblock(r.Context(), doctorID, branchID, date, start, end)
		}
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BlockSlotsResponse{Affected: affected})
	}
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidTemplate),
		errors.Is(err, schedule.ErrInvalidException):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, schedule.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "template_not_found", err.Error())
	case errors.Is(err, schedule.ErrExceptionNotFound):
		writeError(w, http.StatusNotFound, "exception_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
