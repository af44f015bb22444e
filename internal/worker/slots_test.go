package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/cache"
	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
)

var brt = time.FixedZone("BRT", -3*60*60)

func monday() time.Time { return time.Date(2025, 3, 10, 0, 0, 0, 0, brt) }

func TestSlotWorker_RunOnceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	v := schedule.NewValidator(brt)
	qc := cache.New(time.Minute, time.Minute)
	rc := retry.Config{MaxAttempts: 1}

	repo := clinic.NewMemoryRepository()
	clinicID := uuid.New()
	active := &clinic.Doctor{
		ClinicID:     clinicID,
		Name:         "Dr. Ana Souza",
		Active:       true,
		WorkingHours: schedule.WorkingHours{"monday": {"09:00", "10:00"}},
		SlotConfigs:  []slots.Config{{Weekday: "monday", Start: "09:00", End: "11:00", Granularity: 60}},
	}
	require.NoError(t, repo.CreateDoctor(ctx, active))
	inactive := &clinic.Doctor{
		ClinicID:     clinicID,
		Name:         "Dr. Bruno Lima",
		Active:       false,
		WorkingHours: schedule.WorkingHours{"monday": {"09:00"}},
		SlotConfigs:  []slots.Config{{Weekday: "monday", Start: "09:00", End: "10:00", Granularity: 30}},
	}
	require.NoError(t, repo.CreateDoctor(ctx, inactive))

	clinics := clinic.NewService(repo, v, qc, rc)
	store := slots.NewMemoryStore(100)
	gen := slots.NewService(store, clinics, qc, rc, nil)

	w := NewSlotWorker(clinics, gen, 14, monday)

	first, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Doctors)
	assert.Zero(t, first.Failed)
	assert.Positive(t, first.Inserted)
	assert.Equal(t, first.Generated, first.Inserted)

	second, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Generated, second.Generated)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, first.Inserted, store.Len())
}

type flakyGenerator struct {
	fail  uuid.UUID
	calls []uuid.UUID
}

func (g *flakyGenerator) GenerateForDoctor(_ context.Context, _, doctorID uuid.UUID, from, to time.Time) (slots.GenerateResult, error) {
	g.calls = append(g.calls, doctorID)
	if doctorID == g.fail {
		return slots.GenerateResult{}, errors.New("connection reset")
	}
	return slots.GenerateResult{Generated: 3, Inserted: 2}, nil
}

type staticDoctors []clinic.Doctor

func (s staticDoctors) ActiveDoctors(context.Context) ([]clinic.Doctor, error) { return s, nil }

func TestSlotWorker_OneFailureDoesNotStopTheRun(t *testing.T) {
	doctors := staticDoctors{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}
	gen := &flakyGenerator{fail: doctors[1].ID}

	sum, err := NewSlotWorker(doctors, gen, 0, monday).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, gen.calls, 3)
	assert.Equal(t, Summary{Doctors: 3, Generated: 6, Inserted: 4, Failed: 1}, sum)
}

func TestSlotWorker_RunStopsOnCancel(t *testing.T) {
	gen := &flakyGenerator{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewSlotWorker(staticDoctors{{ID: uuid.New()}}, gen, 7, monday).Run(ctx, time.Hour)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
