package appointment

import (
	"github.com/google/uuid"
)

// ErrorKind classifies a failed booking. It is set where the failure is
// detected, never inferred from message text.
type ErrorKind string

const (
	// KindValidation covers field, format and business-rule failures.
	KindValidation ErrorKind = "validation"
	// KindConflict means the slot is taken or being taken; pick another time.
	KindConflict ErrorKind = "conflict"
	// KindSystem covers storage, network and other unexpected failures.
	KindSystem ErrorKind = "system"
)

// Error codes carried in BookingError.Code.
const (
	CodeInvalidField     = "invalid_field"
	CodeLeadTime         = "lead_time"
	CodePatientAge       = "patient_age"
	CodeDoctorNotFound   = "doctor_not_found"
	CodeDoctorInactive   = "doctor_inactive"
	CodeDoctorAgeRange   = "doctor_age_range"
	CodeExamNotFound     = "exam_not_found"
	CodePlanNotAccepted  = "plan_not_accepted"
	CodeIntervalRule     = "interval_rule"
	CodeInsuranceRefused = "insurance_refused"
	CodeSlotTaken        = "slot_taken"
	CodeSlotBeingBooked  = "slot_being_booked"
	CodeInternal         = "internal_error"
)

type BookingError struct {
	Kind        ErrorKind `json:"kind"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Field       string    `json:"field,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

func (e *BookingError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Outcome is the result of Submit. Expected failures are reported here
// rather than as Go errors.
type Outcome struct {
	Success       bool          `json:"success"`
	AppointmentID *uuid.UUID    `json:"appointment_id,omitempty"`
	Error         *BookingError `json:"error,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

func success(id uuid.UUID, warnings []string) Outcome {
	return Outcome{Success: true, AppointmentID: &id, Warnings: warnings}
}

func failure(kind ErrorKind, code, msg string) Outcome {
	return Outcome{Error: &BookingError{Kind: kind, Code: code, Message: msg}}
}

func invalid(code, msg string) Outcome {
	return failure(KindValidation, code, msg)
}

func conflict(code, msg string) Outcome {
	return failure(KindConflict, code, msg)
}

// systemFailure hides err from the caller; it is logged at the call site.
func systemFailure() Outcome {
	return failure(KindSystem, CodeInternal, "could not complete the booking, please try again")
}
