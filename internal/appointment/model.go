package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled          AppointmentStatus = "scheduled"
	StatusConfirmed          AppointmentStatus = "confirmed"
	StatusCanceled           AppointmentStatus = "canceled"
	StatusCanceledDueToBlock AppointmentStatus = "canceled_due_to_block"
)

// Live reports whether the appointment still holds its slot.
func (s AppointmentStatus) Live() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Terminal reports whether no further transition is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s != StatusScheduled
}

// CanTransition reports whether from -> to is an allowed move. Only a
// scheduled appointment moves, and only to one of the terminal states.
func CanTransition(from, to AppointmentStatus) bool {
	if from != StatusScheduled {
		return false
	}
	switch to {
	case StatusConfirmed, StatusCanceled, StatusCanceledDueToBlock:
		return true
	}
	return false
}

type Patient struct {
	ID            uuid.UUID
	ClinicID      uuid.UUID
	Name          string
	Phone         string
	Email         *string
	BirthDate     *time.Time
	InsurancePlan *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Appointment struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	ExamID    uuid.UUID
	Date      time.Time
	Time      string
	Status    AppointmentStatus
	Notes     *string
	CreatedBy *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	ClinicID      *uuid.UUID
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail is an appointment joined with the names staff and
// notifications need.
type AppointmentDetail struct {
	Appointment
	PatientName  string
	PatientPhone string
	PatientEmail *string
	DoctorName   string
	ExamName     string
}
