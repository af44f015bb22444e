package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned by BookAppointment when another live
	// appointment already holds (doctor, date, time).
	ErrSlotTaken = errors.New("slot already has a live appointment")
)

// PatientInput identifies the patient by phone; the booking transaction
// creates or updates the patient row.
type PatientInput struct {
	Name          string
	Phone         string
	Email         *string
	BirthDate     *time.Time
	InsurancePlan *string
}

type BookingRequest struct {
	ClinicID  uuid.UUID
	DoctorID  uuid.UUID
	ExamID    uuid.UUID
	Date      time.Time
	Time      string
	Patient   PatientInput
	Notes     *string
	CreatedBy *string
	// Payload is stored with the creation event.
	Payload []byte
}

type ListFilter struct {
	ClinicID uuid.UUID
	DoctorID *uuid.UUID
	Date     *time.Time
	Status   *AppointmentStatus
	Limit    int
	Offset   int
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// BookAppointment upserts the patient, inserts the appointment, marks
	// the empty slot occupied and records the creation event, all in one
	// transaction.
	BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error)

	// For the advisory pre-flight check
	FindLiveAppointment(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error)

	// UpdateAppointmentStatus moves id from -> to only if it is still in
	// from. Moving out of a live status frees the empty slot.
	UpdateAppointmentStatus(ctx context.Context, clinicID, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// CreateBlock stores the block and moves every scheduled appointment
	// inside it to canceled_due_to_block, returning those appointments.
	CreateBlock(ctx context.Context, block schedule.Block) ([]AppointmentDetail, error)

	PatientHistory(ctx context.Context, clinicID uuid.UUID, phone string) ([]rules.PastExam, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
