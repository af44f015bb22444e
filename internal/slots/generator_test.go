package slots

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/cache"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func mondayMorning() []Config {
	return []Config{
		{Weekday: "monday", Start: "08:00", End: "10:00", Granularity: 30, Period: "morning"},
		{Weekday: "Wednesday", Start: "14:00", End: "15:00", Granularity: 20, Period: "afternoon"},
	}
}

func TestNewPlan_Invalid(t *testing.T) {
	cases := []Config{
		{Weekday: "someday", Start: "08:00", End: "10:00", Granularity: 30},
		{Weekday: "monday", Start: "8h", End: "10:00", Granularity: 30},
		{Weekday: "monday", Start: "10:00", End: "10:00", Granularity: 30},
		{Weekday: "monday", Start: "08:00", End: "10:00", Granularity: 0},
	}
	for _, c := range cases {
		_, err := NewPlan([]Config{c})
		assert.ErrorIs(t, err, ErrInvalidConfig, "%+v", c)
	}
}

func TestGenerate_ExpandsWindows(t *testing.T) {
	plan, err := NewPlan(mondayMorning())
	require.NoError(t, err)

	// 2025-03-10 is a Monday
	got, err := plan.Generate(d("2025-03-10"), d("2025-03-16"), nil)
	require.NoError(t, err)

	var keys []string
	for _, c := range got {
		keys = append(keys, c.Key())
	}
	assert.Equal(t, []string{
		"2025-03-10 08:00", "2025-03-10 08:30", "2025-03-10 09:00", "2025-03-10 09:30",
		"2025-03-12 14:00", "2025-03-12 14:20", "2025-03-12 14:40",
	}, keys)
	assert.Equal(t, "morning", got[0].Period)
	assert.Equal(t, "afternoon", got[4].Period)
}

func TestGenerate_PartialTrailingSlotDropped(t *testing.T) {
	plan, err := NewPlan([]Config{{Weekday: "monday", Start: "08:00", End: "09:10", Granularity: 30}})
	require.NoError(t, err)

	got, err := plan.Generate(d("2025-03-10"), d("2025-03-10"), nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGenerate_ExcludesOccupied(t *testing.T) {
	plan, err := NewPlan(mondayMorning())
	require.NoError(t, err)

	occupied := map[string]bool{"2025-03-10 08:30": true, "2025-03-12 14:20": true}
	got, err := plan.Generate(d("2025-03-10"), d("2025-03-12"), occupied)
	require.NoError(t, err)

	assert.Len(t, got, 5)
	for _, c := range got {
		assert.False(t, occupied[c.Key()])
	}
}

func TestGenerate_InvalidRange(t *testing.T) {
	plan, err := NewPlan(mondayMorning())
	require.NoError(t, err)

	_, err = plan.Generate(d("2025-03-12"), d("2025-03-10"), nil)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestCandidates_RestartableAndStoppable(t *testing.T) {
	plan, err := NewPlan(mondayMorning())
	require.NoError(t, err)

	seq := plan.Candidates(d("2025-03-10"), d("2025-03-31"), nil)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	first := count()
	assert.Equal(t, first, count())
	assert.Equal(t, 4*4+3*3, first)

	taken := 0
	for range seq {
		taken++
		if taken == 3 {
			break
		}
	}
	assert.Equal(t, 3, taken)
}

func TestBatches(t *testing.T) {
	rows := make([]int, 1203)
	got := Batches(rows, 500)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 500)
	assert.Len(t, got[1], 500)
	assert.Len(t, got[2], 203)
	assert.Empty(t, Batches([]int{}, 500))
}

func TestUpsertStatement(t *testing.T) {
	clinic, doctor := uuid.New(), uuid.New()
	sql, args := upsertStatement([]EmptySlot{
		{ClinicID: clinic, DoctorID: doctor, Date: d("2025-03-10"), Time: "08:00"},
		{ClinicID: clinic, DoctorID: doctor, Date: d("2025-03-10"), Time: "08:30", Period: "morning"},
	})

	assert.Contains(t, sql, "($7, $8, $9, $10, $11, $12)")
	assert.Contains(t, sql, "ON CONFLICT (doctor_id, slot_date, slot_time, clinic_id) DO NOTHING")
	require.Len(t, args, 12)
	assert.Equal(t, "available", args[5])
	assert.Nil(t, args[4])
}

type staticConfigs []Config

func (s staticConfigs) SlotConfigs(context.Context, uuid.UUID, uuid.UUID) ([]Config, error) {
	return s, nil
}

func (s staticConfigs) Blocks(context.Context, uuid.UUID, uuid.UUID, time.Time) ([]schedule.Block, error) {
	return nil, nil
}

type blockedConfigs struct {
	staticConfigs
	blocks []schedule.Block
}

func (b blockedConfigs) Blocks(context.Context, uuid.UUID, uuid.UUID, time.Time) ([]schedule.Block, error) {
	return b.blocks, nil
}

func TestService_GenerateIsIdempotent(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewService(store, staticConfigs(mondayMorning()), cache.New(time.Minute, time.Minute), retry.Config{MaxAttempts: 1}, nil)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()

	first, err := svc.GenerateForDoctor(ctx, clinic, doctor, d("2025-03-01"), d("2025-03-31"))
	require.NoError(t, err)
	assert.Equal(t, first.Generated, first.Inserted)
	assert.Equal(t, first.Generated, store.Len())

	second, err := svc.GenerateForDoctor(ctx, clinic, doctor, d("2025-03-01"), d("2025-03-31"))
	require.NoError(t, err)
	assert.Equal(t, first.Generated, second.Generated)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, first.Generated, store.Len())
}

func TestService_GenerateSkipsBookedAndBatches(t *testing.T) {
	store := NewMemoryStore(4)
	svc := NewService(store, staticConfigs(mondayMorning()), nil, retry.Config{MaxAttempts: 1}, nil)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()
	store.Occupy(clinic, doctor, d("2025-03-10"), "09:00")

	res, err := svc.GenerateForDoctor(ctx, clinic, doctor, d("2025-03-10"), d("2025-03-12"))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Generated)
	assert.Equal(t, []int{4, 2}, store.Batches())
}

func TestService_ListCachedUntilGenerate(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewService(store, staticConfigs(mondayMorning()), cache.New(time.Minute, time.Minute), retry.Config{MaxAttempts: 1}, nil)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()

	empty, err := svc.List(ctx, clinic, doctor, d("2025-03-10"), d("2025-03-10"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = svc.GenerateForDoctor(ctx, clinic, doctor, d("2025-03-10"), d("2025-03-10"))
	require.NoError(t, err)

	got, err := svc.List(ctx, clinic, doctor, d("2025-03-10"), d("2025-03-10"))
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestService_InactiveDoctorGeneratesNothing(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewService(store, staticConfigs(nil), nil, retry.Config{MaxAttempts: 1}, nil)

	res, err := svc.GenerateForDoctor(context.Background(), uuid.New(), uuid.New(), d("2025-03-01"), d("2025-03-31"))
	require.NoError(t, err)
	assert.Zero(t, res.Generated)
}

func TestService_ListHidesBlockedDates(t *testing.T) {
	store := NewMemoryStore(0)
	src := blockedConfigs{staticConfigs: staticConfigs(mondayMorning())}
	svc := NewService(store, src, cache.New(time.Minute, time.Minute), retry.Config{MaxAttempts: 1}, nil)
	ctx := context.Background()
	clinic, doctor := uuid.New(), uuid.New()

	_, err := svc.GenerateForDoctor(ctx, clinic, doctor, d("2025-03-10"), d("2025-03-17"))
	require.NoError(t, err)

	src.blocks = []schedule.Block{{StartDate: d("2025-03-10"), EndDate: d("2025-03-12"), Active: true}}
	svc = NewService(store, src, cache.New(time.Minute, time.Minute), retry.Config{MaxAttempts: 1}, nil)

	got, err := svc.List(ctx, clinic, doctor, d("2025-03-10"), d("2025-03-17"))
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, slot := range got {
		assert.Equal(t, "2025-03-17", slot.Date.Format(schedule.DateLayout))
	}
}
