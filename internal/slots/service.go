package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/cache"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// ConfigSource returns a doctor's slot configs (nil when the doctor is
// inactive) and the active blocks that hide slots from listings.
type ConfigSource interface {
	SlotConfigs(ctx context.Context, clinicID, doctorID uuid.UUID) ([]Config, error)
	Blocks(ctx context.Context, clinicID, doctorID uuid.UUID, since time.Time) ([]schedule.Block, error)
}

type Service struct {
	store   Store
	configs ConfigSource
	cache   *cache.QueryCache
	retry   retry.Config
	metrics *metrics.Metrics
}

func NewService(store Store, configs ConfigSource, qc *cache.QueryCache, rc retry.Config, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		configs: configs,
		cache:   qc,
		retry:   rc,
		metrics: m,
	}
}

type GenerateResult struct {
	Generated int `json:"generated"`
	Inserted  int `json:"inserted"`
}

func listPrefix(clinicID, doctorID uuid.UUID) string {
	return fmt.Sprintf("slots:%s:%s:", clinicID, doctorID)
}

// GenerateForDoctor materializes empty slots for [from, to]. Running it
// again over the same range inserts nothing new.
func (s *Service) GenerateForDoctor(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) (GenerateResult, error) {
	configs, err := s.configs.SlotConfigs(ctx, clinicID, doctorID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("load slot configs: %w", err)
	}
	plan, err := NewPlan(configs)
	if err != nil {
		return GenerateResult{}, err
	}
	if plan.Empty() {
		return GenerateResult{}, nil
	}

	occupied, err := retry.Do(ctx, s.retry, func(ctx context.Context) (map[string]bool, error) {
		return s.store.OccupiedSlots(ctx, clinicID, doctorID, from, to)
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("load occupied slots: %w", err)
	}

	candidates, err := plan.Generate(from, to, occupied)
	if err != nil {
		return GenerateResult{}, err
	}

	rows := make([]EmptySlot, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, EmptySlot{
			ClinicID: clinicID,
			DoctorID: doctorID,
			Date:     c.Date,
			Time:     c.Time,
			Period:   c.Period,
			Status:   StatusAvailable,
		})
	}

	inserted, err := s.store.UpsertEmptySlots(ctx, rows)
	if err != nil {
		return GenerateResult{}, err
	}
	s.cache.InvalidatePrefix(listPrefix(clinicID, doctorID))
	s.metrics.ObserveSlots(len(rows), inserted)

	zerolog.Ctx(ctx).Info().
		Str("doctor_id", doctorID.String()).
		Str("from", from.Format(schedule.DateLayout)).
		Str("to", to.Format(schedule.DateLayout)).
		Int("generated", len(rows)).
		Int("inserted", inserted).
		Msg("empty slots generated")

	return GenerateResult{Generated: len(rows), Inserted: inserted}, nil
}

// List returns materialized slots in [from, to] through the query cache.
// Slots on dates covered by an active block are left out.
func (s *Service) List(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) ([]EmptySlot, error) {
	key := listPrefix(clinicID, doctorID) + from.Format(schedule.DateLayout) + ":" + to.Format(schedule.DateLayout)
	list, err := cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]EmptySlot, error) {
		return retry.Do(ctx, s.retry, func(ctx context.Context) ([]EmptySlot, error) {
			return s.store.ListEmptySlots(ctx, clinicID, doctorID, from, to)
		})
	})
	if err != nil || len(list) == 0 {
		return list, err
	}

	blocks, err := s.configs.Blocks(ctx, clinicID, doctorID, from)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	if len(blocks) == 0 {
		return list, nil
	}
	open := make([]EmptySlot, 0, len(list))
	for _, slot := range list {
		if !blocked(blocks, slot.Date) {
			open = append(open, slot)
		}
	}
	return open, nil
}

func blocked(blocks []schedule.Block, date time.Time) bool {
	for _, b := range blocks {
		if b.Covers(date) {
			return true
		}
	}
	return false
}

// Invalidate drops cached slot lists for a doctor after a booking or
// cancellation changes slot status.
func (s *Service) Invalidate(clinicID, doctorID uuid.UUID) {
	s.cache.InvalidatePrefix(listPrefix(clinicID, doctorID))
}
