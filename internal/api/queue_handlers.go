package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
)

func queueParams(w http.ResponseWriter, r *http.Request) (branchID uuid.UUID, date time.Time, doctorID *uuid.UUID, ok bool) {
	branchID, ok = parseUUIDField(r.URL.Query().Get("branch_id"), "branch_id", w)
	if !ok {
		return
	}

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		date = time.Now()
	} else {
		date, ok = parseDateField(dateStr, "date", w)
		if !ok {
			return
		}
	}

	if v := r.URL.Query().Get("doctor_id"); v != "" {
		var id uuid.UUID
		id, ok = parseUUIDField(v, "doctor_id", w)
		if !ok {
			return
		}
		doctorID = &id
	}

	ok = true
	return
}

func dailyQueueHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, date, doctorID, ok := queueParams(w, r)
		if !ok {
			return
		}
		includeCompleted := r.URL.Query().Get("include_completed") == "true"

		queue, err := svc.DailyQueue(r.Context(), branchID, date, doctorID, includeCompleted)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(queue))
	}
}

func waitingPatientsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, date, doctorID, ok := queueParams(w, r)
		if !ok {
			return
		}

		waiting, err := svc.WaitingPatients(r.Context(), branchID, date, doctorID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(waiting))
	}
}

func nextPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, date, doctorID, ok := queueParams(w, r)
		if !ok {
			return
		}

		next, err := svc.NextPatient(r.Context(), branchID, date, doctorID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		if next == nil {
			writeError(w, http.StatusNotFound, "queue_empty", "no patients are waiting")
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(next))
	}
}
