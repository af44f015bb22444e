package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/waitlist"
)

func addWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in waitlist.AddInput
		if !decodeJSON(w, r, &in) {
			return
		}
		e, err := svc.Add(r.Context(), ClinicID(r.Context()), in)
		if err != nil {
			handleWaitlistError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func listWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := waitlist.ListFilter{ClinicID: ClinicID(r.Context())}
		if raw := r.URL.Query().Get("doctor_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			f.DoctorID = &id
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			st := waitlist.Status(raw)
			f.Status = &st
		}

		entries, err := svc.List(r.Context(), f)
		if err != nil {
			handleWaitlistError(w, r, err)
			return
		}
		if entries == nil {
			entries = []waitlist.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func cancelWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		e, err := svc.Cancel(r.Context(), ClinicID(r.Context()), id)
		if err != nil {
			handleWaitlistError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func handleWaitlistError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, waitlist.ErrInvalidEntry):
		writeError(w, http.StatusUnprocessableEntity, "invalid_entry", err.Error())
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry_not_found", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("waiting list request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not complete the request")
	}
}
