package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
)

const maxNextDates = 30

func createDoctorHandler(svc *clinic.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in clinic.DoctorInput
		if !decodeJSON(w, r, &in) {
			return
		}
		if err := validate.Struct(in); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_doctor", err.Error())
			return
		}

		d, err := svc.CreateDoctor(r.Context(), ClinicID(r.Context()), in)
		if err != nil {
			handleDoctorError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newDoctorResponse(d))
	}
}

func getDoctorHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		d, err := svc.Doctor(r.Context(), ClinicID(r.Context()), id)
		if err != nil {
			handleDoctorError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newDoctorResponse(d))
	}
}

func deactivateDoctorHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.Deactivate(r.Context(), ClinicID(r.Context()), id); err != nil {
			handleDoctorError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "inactive"})
	}
}

func availabilityHandler(svc *clinic.Service, v *schedule.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		date, err := v.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		res, err := svc.Availability(r.Context(), ClinicID(r.Context()), id, date, r.URL.Query().Get("time"))
		if err != nil {
			handleDoctorError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func nextDatesHandler(svc *clinic.Service, v *schedule.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		from := v.Today()
		if raw := r.URL.Query().Get("from"); raw != "" {
			d, err := v.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
			from = d
		}
		n := min(max(intQuery(r, "n", 3), 1), maxNextDates)

		dates, err := svc.NextDates(r.Context(), ClinicID(r.Context()), id, from, n)
		if err != nil {
			handleDoctorError(w, r, err)
			return
		}

		resp := NextDatesResponse{Dates: make([]string, 0, len(dates))}
		for _, d := range dates {
			resp.Dates = append(resp.Dates, d.Format(schedule.DateLayout))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func generateSlotsHandler(svc *slots.Service, v *schedule.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req GenerateSlotsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		from, errFrom := v.ParseDate(req.From)
		to, errTo := v.ParseDate(req.To)
		if errFrom != nil || errTo != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "from and to must be YYYY-MM-DD")
			return
		}

		res, err := svc.GenerateForDoctor(r.Context(), ClinicID(r.Context()), id, from, to)
		if err != nil {
			handleDoctorError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func listSlotsHandler(svc *slots.Service, v *schedule.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		from, errFrom := v.ParseDate(r.URL.Query().Get("from"))
		to, errTo := v.ParseDate(r.URL.Query().Get("to"))
		if errFrom != nil || errTo != nil || to.Before(from) {
			writeError(w, http.StatusBadRequest, "invalid_range", "from and to must be YYYY-MM-DD with from <= to")
			return
		}

		list, err := svc.List(r.Context(), ClinicID(r.Context()), id, from, to)
		if err != nil {
			handleDoctorError(w, r, err)
			return
		}
		if list == nil {
			list = []slots.EmptySlot{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func createBlockHandler(svc *appointment.Service, v *schedule.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req CreateBlockRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start, errStart := v.ParseDate(req.StartDate)
		end, errEnd := v.ParseDate(req.EndDate)
		if errStart != nil || errEnd != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "start_date and end_date must be YYYY-MM-DD")
			return
		}

		res, err := svc.CreateBlock(r.Context(), ClinicID(r.Context()), appointment.BlockInput{
			DoctorID:  id,
			StartDate: start,
			EndDate:   end,
			Reason:    req.Reason,
		})
		if err != nil {
			handleDoctorError(w, r, err)
			return
		}

		canceled := res.Canceled
		if canceled == nil {
			canceled = []uuid.UUID{}
		}
		writeJSON(w, http.StatusCreated, BlockResponse{Block: res.Block, Canceled: canceled})
	}
}

func handleDoctorError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, clinic.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, clinic.ErrInvalidDoctor),
		errors.Is(err, slots.ErrInvalidConfig):
		writeError(w, http.StatusUnprocessableEntity, "invalid_doctor", err.Error())
	case errors.Is(err, slots.ErrInvalidRange),
		errors.Is(err, appointment.ErrInvalidBlock):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("doctor request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not complete the request")
	}
}
