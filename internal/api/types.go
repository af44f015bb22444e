package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type DoctorResponse struct {
	ID             uuid.UUID             `json:"id"`
	Name           string                `json:"name"`
	Specialty      *string               `json:"specialty,omitempty"`
	Active         bool                  `json:"active"`
	WorkingHours   schedule.WorkingHours `json:"working_hours"`
	SlotConfigs    []slots.Config        `json:"slot_configs"`
	MinAge         *int                  `json:"min_age,omitempty"`
	MaxAge         *int                  `json:"max_age,omitempty"`
	AcceptedPlans  []string              `json:"accepted_plans"`
	BlockedPlans   []string              `json:"blocked_plans"`
	IntervalRules  []rules.IntervalRule  `json:"interval_rules"`
	InsuranceRules []rules.InsuranceRule `json:"insurance_rules"`
}

func newDoctorResponse(d *clinic.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Specialty:      d.Specialty,
		Active:         d.Active,
		WorkingHours:   d.WorkingHours,
		SlotConfigs:    d.SlotConfigs,
		MinAge:         d.MinAge,
		MaxAge:         d.MaxAge,
		AcceptedPlans:  d.AcceptedPlans,
		BlockedPlans:   d.BlockedPlans,
		IntervalRules:  d.IntervalRules,
		InsuranceRules: d.InsuranceRules,
	}
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	ExamID       uuid.UUID `json:"exam_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Status       string    `json:"status"`
	Notes        *string   `json:"notes,omitempty"`
	PatientName  string    `json:"patient_name,omitempty"`
	PatientPhone string    `json:"patient_phone,omitempty"`
	DoctorName   string    `json:"doctor_name,omitempty"`
	ExamName     string    `json:"exam_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		ExamID:    a.ExamID,
		PatientID: a.PatientID,
		Date:      a.Date.Format(schedule.DateLayout),
		Time:      a.Time,
		Status:    string(a.Status),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
	}
}

func newDetailResponse(d *appointment.AppointmentDetail) AppointmentResponse {
	resp := newAppointmentResponse(&d.Appointment)
	resp.PatientName = d.PatientName
	resp.PatientPhone = d.PatientPhone
	resp.DoctorName = d.DoctorName
	resp.ExamName = d.ExamName
	return resp
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type GenerateSlotsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type CreateBlockRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

type BlockResponse struct {
	Block    schedule.Block `json:"block"`
	Canceled []uuid.UUID    `json:"canceled_appointments"`
}

type NextDatesResponse struct {
	Dates []string `json:"dates"`
}
