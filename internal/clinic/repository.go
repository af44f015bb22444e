package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var (
	ErrClinicNotFound = errors.New("clinic not found")
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrExamNotFound   = errors.New("exam not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreateClinic(ctx context.Context, c *Clinic) error
	GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error)

	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctor(ctx context.Context, clinicID, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, clinicID uuid.UUID) ([]Doctor, error)
	// ListActiveDoctors spans every clinic; used by the slot worker.
	ListActiveDoctors(ctx context.Context) ([]Doctor, error)
	SetDoctorActive(ctx context.Context, clinicID, id uuid.UUID, active bool) error

	CreateExam(ctx context.Context, e *Exam) error
	GetExam(ctx context.Context, clinicID, id uuid.UUID) (*Exam, error)
	ListExams(ctx context.Context, clinicID uuid.UUID) ([]Exam, error)

	// ListActiveBlocks returns active blocks ending on or after since.
	ListActiveBlocks(ctx context.Context, clinicID, doctorID uuid.UUID, since time.Time) ([]schedule.Block, error)
}
