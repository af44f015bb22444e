package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// outcomeStatus maps a booking outcome to its HTTP status.
func outcomeStatus(out appointment.Outcome) int {
	if out.Success {
		return http.StatusCreated
	}
	switch out.Error.Kind {
	case appointment.KindValidation:
		return http.StatusUnprocessableEntity
	case appointment.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form appointment.BookingForm
		if !decodeJSON(w, r, &form) {
			return
		}
		form.ClinicID = ClinicID(r.Context())

		out := svc.Submit(r.Context(), form)
		writeJSON(w, outcomeStatus(out), out)
	}
}

func listAppointmentsHandler(svc *appointment.Service, v *schedule.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := appointment.ListFilter{
			ClinicID: ClinicID(r.Context()),
			Limit:    intQuery(r, "limit", 20),
			Offset:   intQuery(r, "offset", 0),
		}

		if raw := q.Get("doctor_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			f.DoctorID = &id
		}
		if raw := q.Get("date"); raw != "" {
			d, err := v.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			f.Date = &d
		}
		if raw := q.Get("status"); raw != "" {
			st := appointment.AppointmentStatus(raw)
			f.Status = &st
		}

		details, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("list appointments")
			writeError(w, http.StatusInternalServerError, "internal_error", "could not list appointments")
			return
		}

		resp := make([]AppointmentResponse, 0, len(details))
		for i := range details {
			resp = append(resp, newDetailResponse(&details[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), ClinicID(r.Context()), id)
		if err != nil {
			handleStatusError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newDetailResponse(detail))
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), ClinicID(r.Context()), id)
		if err != nil {
			handleStatusError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelRequest
		if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), ClinicID(r.Context()), id, req.Reason)
		if err != nil {
			handleStatusError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func handleStatusError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("appointment request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not complete the request")
	}
}
