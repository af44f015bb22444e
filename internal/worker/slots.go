// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/slots"
)

// DoctorSource lists doctors eligible for slot generation.
type DoctorSource interface {
	ActiveDoctors(ctx context.Context) ([]clinic.Doctor, error)
}

type Generator interface {
	GenerateForDoctor(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) (slots.GenerateResult, error)
}

// SlotWorker keeps empty slots materialized over a rolling horizon for
// every active doctor.
type SlotWorker struct {
	doctors  DoctorSource
	slots    Generator
	horizon  int
	today    func() time.Time
	runLimit time.Duration
}

type Summary struct {
	Doctors   int
	Generated int
	Inserted  int
	Failed    int
}

func NewSlotWorker(doctors DoctorSource, gen Generator, horizonDays int, today func() time.Time) *SlotWorker {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &SlotWorker{
		doctors:  doctors,
		slots:    gen,
		horizon:  horizonDays,
		today:    today,
		runLimit: 5 * time.Minute,
	}
}

// RunOnce generates slots from today through today+horizon. A failure for
// one doctor is logged and the run moves on.
func (w *SlotWorker) RunOnce(ctx context.Context) (Summary, error) {
	logger := zerolog.Ctx(ctx)

	runCtx, cancel := context.WithTimeout(ctx, w.runLimit)
	defer cancel()

	doctors, err := w.doctors.ActiveDoctors(runCtx)
	if err != nil {
		return Summary{}, err
	}

	from := w.today()
	to := from.AddDate(0, 0, w.horizon)

	var sum Summary
	for _, d := range doctors {
		if err := runCtx.Err(); err != nil {
			return sum, err
		}
		sum.Doctors++

		res, err := w.slots.GenerateForDoctor(runCtx, d.ClinicID, d.ID, from, to)
		if err != nil {
			sum.Failed++
			logger.Error().Err(err).Str("doctor_id", d.ID.String()).Msg("slot generation failed")
			continue
		}
		sum.Generated += res.Generated
		sum.Inserted += res.Inserted
	}
	return sum, nil
}

// Run calls RunOnce at startup and then every interval until ctx ends.
func (w *SlotWorker) Run(ctx context.Context, interval time.Duration) {
	logger := zerolog.Ctx(ctx)

	run := func() {
		start := time.Now()
		sum, err := w.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("slot worker run failed")
			return
		}
		logger.Info().
			Int("doctors", sum.Doctors).
			Int("generated", sum.Generated).
			Int("inserted", sum.Inserted).
			Int("failed", sum.Failed).
			Dur("elapsed", time.Since(start)).
			Msg("slot worker run complete")
	}

	// Run once at startup
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown signal received, stopping slot worker")
			return
		case <-ticker.C:
			run()
		}
	}
}
