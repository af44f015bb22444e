package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/cache"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
)

var ErrInvalidDoctor = errors.New("invalid doctor")

// Service serves doctor, exam and block lookups. Read-path lookups go
// through the query cache; the *ForBooking lookups skip it. All reads
// retry with backoff and writes invalidate the cache.
type Service struct {
	repo      Repository
	validator *schedule.Validator
	cache     *cache.QueryCache
	retry     retry.Config
}

func NewService(repo Repository, validator *schedule.Validator, qc *cache.QueryCache, rc retry.Config) *Service {
	return &Service{
		repo:      repo,
		validator: validator,
		cache:     qc,
		retry:     rc,
	}
}

func doctorKey(clinicID, id uuid.UUID) string { return fmt.Sprintf("doctor:%s:%s", clinicID, id) }
func blocksPrefix(clinicID, doctorID uuid.UUID) string {
	return fmt.Sprintf("blocks:%s:%s:", clinicID, doctorID)
}

type DoctorInput struct {
	Name           string                `json:"name" validate:"required,min=2"`
	Specialty      *string               `json:"specialty"`
	WorkingHours   schedule.WorkingHours `json:"working_hours"`
	SlotConfigs    []slots.Config        `json:"slot_configs"`
	MinAge         *int                  `json:"min_age" validate:"omitempty,min=0,max=120"`
	MaxAge         *int                  `json:"max_age" validate:"omitempty,min=0,max=120"`
	AcceptedPlans  []string              `json:"accepted_plans"`
	BlockedPlans   []string              `json:"blocked_plans"`
	IntervalRules  []rules.IntervalRule  `json:"interval_rules"`
	InsuranceRules []rules.InsuranceRule `json:"insurance_rules"`
}

func (s *Service) CreateDoctor(ctx context.Context, clinicID uuid.UUID, in DoctorInput) (*Doctor, error) {
	if err := in.WorkingHours.Validate(); err != nil {
		return nil, fmt.Errorf("%w: working hours: %v", ErrInvalidDoctor, err)
	}
	if _, err := slots.NewPlan(in.SlotConfigs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDoctor, err)
	}
	if in.MinAge != nil && in.MaxAge != nil && *in.MinAge > *in.MaxAge {
		return nil, fmt.Errorf("%w: min_age greater than max_age", ErrInvalidDoctor)
	}
	for _, r := range in.InsuranceRules {
		switch r.Kind {
		case rules.KindRefuse, rules.KindRequireBundle, rules.KindWarn:
		default:
			return nil, fmt.Errorf("%w: unknown insurance rule kind %q", ErrInvalidDoctor, r.Kind)
		}
	}

	d := &Doctor{
		ClinicID:       clinicID,
		Name:           in.Name,
		Specialty:      in.Specialty,
		Active:         true,
		WorkingHours:   in.WorkingHours,
		SlotConfigs:    in.SlotConfigs,
		MinAge:         in.MinAge,
		MaxAge:         in.MaxAge,
		AcceptedPlans:  in.AcceptedPlans,
		BlockedPlans:   in.BlockedPlans,
		IntervalRules:  in.IntervalRules,
		InsuranceRules: in.InsuranceRules,
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("doctor_id", d.ID.String()).Msg("doctor created")
	return d, nil
}

// Doctor returns a doctor, active or not.
func (s *Service) Doctor(ctx context.Context, clinicID, id uuid.UUID) (*Doctor, error) {
	return cache.Fetch(ctx, s.cache, doctorKey(clinicID, id), func(ctx context.Context) (*Doctor, error) {
		return retry.Do(ctx, s.retry, func(ctx context.Context) (*Doctor, error) {
			return s.repo.GetDoctor(ctx, clinicID, id)
		}, ErrDoctorNotFound)
	})
}

// Blocks returns the doctor's active blocks that end on or after since.
func (s *Service) Blocks(ctx context.Context, clinicID, doctorID uuid.UUID, since time.Time) ([]schedule.Block, error) {
	key := blocksPrefix(clinicID, doctorID) + since.Format(schedule.DateLayout)
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]schedule.Block, error) {
		return retry.Do(ctx, s.retry, func(ctx context.Context) ([]schedule.Block, error) {
			return s.repo.ListActiveBlocks(ctx, clinicID, doctorID, since)
		})
	})
}

// DoctorForBooking reads the doctor straight from storage. Booking must
// see a deactivation made by any instance at once.
func (s *Service) DoctorForBooking(ctx context.Context, clinicID, id uuid.UUID) (*Doctor, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) (*Doctor, error) {
		return s.repo.GetDoctor(ctx, clinicID, id)
	}, ErrDoctorNotFound)
}

func (s *Service) ExamForBooking(ctx context.Context, clinicID, id uuid.UUID) (*Exam, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) (*Exam, error) {
		return s.repo.GetExam(ctx, clinicID, id)
	}, ErrExamNotFound)
}

// BlocksForBooking is the uncached form of Blocks.
func (s *Service) BlocksForBooking(ctx context.Context, clinicID, doctorID uuid.UUID, since time.Time) ([]schedule.Block, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) ([]schedule.Block, error) {
		return s.repo.ListActiveBlocks(ctx, clinicID, doctorID, since)
	})
}

func (s *Service) ListDoctors(ctx context.Context, clinicID uuid.UUID) ([]Doctor, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) ([]Doctor, error) {
		return s.repo.ListDoctors(ctx, clinicID)
	})
}

func (s *Service) ActiveDoctors(ctx context.Context) ([]Doctor, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) ([]Doctor, error) {
		return s.repo.ListActiveDoctors(ctx)
	})
}

func (s *Service) Deactivate(ctx context.Context, clinicID, id uuid.UUID) error {
	if err := s.repo.SetDoctorActive(ctx, clinicID, id, false); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("deactivate doctor: %w", err)
	}
	s.cache.Invalidate(doctorKey(clinicID, id))
	zerolog.Ctx(ctx).Info().Str("doctor_id", id.String()).Msg("doctor deactivated")
	return nil
}

// InvalidateBlocks drops cached block lists for a doctor.
func (s *Service) InvalidateBlocks(clinicID, doctorID uuid.UUID) {
	s.cache.InvalidatePrefix(blocksPrefix(clinicID, doctorID))
}

// SlotConfigs returns the generation configs of an active doctor.
func (s *Service) SlotConfigs(ctx context.Context, clinicID, doctorID uuid.UUID) ([]slots.Config, error) {
	d, err := s.Doctor(ctx, clinicID, doctorID)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, nil
	}
	return d.SlotConfigs, nil
}

// Availability validates a date and optional time against the doctor's
// hours and blocks.
func (s *Service) Availability(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) (schedule.Result, error) {
	d, err := s.Doctor(ctx, clinicID, doctorID)
	if err != nil {
		return schedule.Result{}, err
	}
	blocks, err := s.Blocks(ctx, clinicID, doctorID, s.today())
	if err != nil {
		return schedule.Result{}, fmt.Errorf("load blocks: %w", err)
	}
	return s.validator.Validate(d.WorkingHours, date, clock, blocks), nil
}

// NextDates returns up to n bookable dates starting at from.
func (s *Service) NextDates(ctx context.Context, clinicID, doctorID uuid.UUID, from time.Time, n int) ([]time.Time, error) {
	d, err := s.Doctor(ctx, clinicID, doctorID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.Blocks(ctx, clinicID, doctorID, s.today())
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	return s.validator.NextAvailableDates(d.WorkingHours, from, n, blocks), nil
}

func (s *Service) today() time.Time {
	return s.validator.Today()
}
