package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var ErrInvalidEntry = errors.New("invalid waiting list entry")

// Notifier tells a waiting patient that a slot opened.
type Notifier interface {
	SlotOffered(ctx context.Context, e Entry, date time.Time, clock string) error
}

type AddInput struct {
	PatientName     string     `json:"patient_name" validate:"required,min=2,max=120"`
	PatientPhone    string     `json:"patient_phone" validate:"required,phone"`
	DoctorID        uuid.UUID  `json:"doctor_id" validate:"required"`
	ExamID          *uuid.UUID `json:"exam_id,omitempty"`
	PreferredDate   string     `json:"preferred_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PreferredPeriod string     `json:"preferred_period,omitempty" validate:"omitempty,oneof=morning afternoon"`
	Priority        int        `json:"priority" validate:"min=0,max=10"`
}

type Service struct {
	repo     Repository
	notifier Notifier
	validate *validator.Validate
	loc      *time.Location
}

func NewService(repo Repository, notifier Notifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		validate: appointment.NewValidator(),
		loc:      loc,
	}
}

func (s *Service) Add(ctx context.Context, clinicID uuid.UUID, in AddInput) (*Entry, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	e := &Entry{
		ClinicID:     clinicID,
		PatientName:  in.PatientName,
		PatientPhone: appointment.NormalizePhone(in.PatientPhone),
		DoctorID:     in.DoctorID,
		ExamID:       in.ExamID,
		Priority:     in.Priority,
		Status:       StatusWaiting,
	}
	if in.PreferredDate != "" {
		d, err := time.ParseInLocation("2006-01-02", in.PreferredDate, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: preferred_date: %v", ErrInvalidEntry, err)
		}
		e.PreferredDate = &d
	}
	if in.PreferredPeriod != "" {
		p := in.PreferredPeriod
		e.PreferredPeriod = &p
	}

	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("entry_id", e.ID.String()).
		Str("doctor_id", e.DoctorID.String()).
		Msg("waiting list entry added")
	return e, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Cancel(ctx context.Context, clinicID, id uuid.UUID) (*Entry, error) {
	return s.repo.SetStatus(ctx, clinicID, id, StatusCanceled, StatusWaiting, StatusNotified)
}

// OfferSlot notifies the best waiting entry for a freed slot. It is a
// no-op when nobody is waiting.
func (s *Service) OfferSlot(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) error {
	e, err := s.repo.ClaimNext(ctx, clinicID, doctorID, date, clock)
	if err != nil {
		if errors.Is(err, ErrNoCandidate) {
			return nil
		}
		return fmt.Errorf("claim waiting entry: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("entry_id", e.ID.String()).
		Str("date", date.Format("2006-01-02")).
		Str("time", clock).
		Msg("slot offered to waiting list")

	if s.notifier == nil {
		return nil
	}
	return s.notifier.SlotOffered(ctx, *e, date, clock)
}

func (s *Service) MarkScheduled(ctx context.Context, clinicID, doctorID uuid.UUID, phone string) error {
	n, err := s.repo.MarkScheduled(ctx, clinicID, doctorID, phone)
	if err != nil {
		return err
	}
	if n > 0 {
		zerolog.Ctx(ctx).Debug().Int("entries", n).Msg("waiting list entries scheduled")
	}
	return nil
}
