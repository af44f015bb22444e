package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/cache"
	"github.com/hackgods/clinic-scheduling/internal/clinic"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var brt = time.FixedZone("BRT", -3*3600)

type fakeNotifier struct {
	mu       sync.Mutex
	booked   []Notice
	canceled []Notice
}

func (f *fakeNotifier) AppointmentBooked(_ context.Context, n Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.booked = append(f.booked, n)
	return nil
}

func (f *fakeNotifier) AppointmentCanceled(_ context.Context, n Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, n)
	return nil
}

type fakeWaitlist struct {
	mu        sync.Mutex
	offers    []string
	scheduled []string
}

func (f *fakeWaitlist) OfferSlot(_ context.Context, _, _ uuid.UUID, date time.Time, clock string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, date.Format(schedule.DateLayout)+" "+clock)
	return nil
}

func (f *fakeWaitlist) MarkScheduled(_ context.Context, _, _ uuid.UUID, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, phone)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	clinics  *clinic.MemoryRepository
	notifier *fakeNotifier
	waitlist *fakeWaitlist
	clinicID uuid.UUID
	doctor   *clinic.Doctor
	exam     *clinic.Exam
	now      *time.Time
}

func newFixture(t *testing.T, mutate func(*clinic.Doctor)) *fixture {
	t.Helper()
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, brt) // Monday
	v := schedule.NewValidator(brt).WithClock(func() time.Time { return now })

	clinics := clinic.NewMemoryRepository()
	clinicID := uuid.New()

	doctor := &clinic.Doctor{
		ClinicID: clinicID,
		Name:     "Dr. Ana Souza",
		Active:   true,
		WorkingHours: schedule.WorkingHours{
			"monday":    {"09:00", "10:00", "11:00"},
			"wednesday": {"14:00"},
		},
	}
	if mutate != nil {
		mutate(doctor)
	}
	require.NoError(t, clinics.CreateDoctor(ctx, doctor))

	exam := &clinic.Exam{ClinicID: clinicID, Name: "Abdominal Ultrasound", DurationMinutes: 30}
	require.NoError(t, clinics.CreateExam(ctx, exam))

	directory := clinic.NewService(clinics, v, cache.New(time.Minute, time.Minute), retry.Config{MaxAttempts: 1})

	repo := NewMemoryRepository()
	repo.Name(doctor.ID, doctor.Name, "")
	repo.Name(exam.ID, "", exam.Name)

	notifier := &fakeNotifier{}
	waitlist := &fakeWaitlist{}

	svc := NewService(repo, directory, redisclient.NewLocalSlotLocker(), v, Options{
		MinLeadTime: time.Hour,
		Retry:       retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}).WithNotifier(notifier).WithWaitlist(waitlist)

	return &fixture{
		svc:      svc,
		repo:     repo,
		clinics:  clinics,
		notifier: notifier,
		waitlist: waitlist,
		clinicID: clinicID,
		doctor:   doctor,
		exam:     exam,
		now:      &now,
	}
}

func (f *fixture) form(date, clock string) BookingForm {
	return BookingForm{
		ClinicID:     f.clinicID,
		DoctorID:     f.doctor.ID,
		ExamID:       f.exam.ID,
		Date:         date,
		Time:         clock,
		PatientName:  "Maria Silva",
		PatientPhone: "(11) 98765-4321",
	}
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out := f.svc.Submit(ctx, f.form("2025-03-17", "10:00"))
	require.True(t, out.Success, "%+v", out.Error)
	require.NotNil(t, out.AppointmentID)
	assert.Nil(t, out.Error)

	f.svc.Drain()

	appt, err := f.repo.GetAppointmentByID(ctx, f.clinicID, *out.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)

	assert.Len(t, f.notifier.booked, 1)
	assert.Equal(t, "11987654321", f.notifier.booked[0].PatientPhone)
	assert.Equal(t, []string{"11987654321"}, f.waitlist.scheduled)

	events := f.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentCreated, events[0].EventType)
}

func TestSubmit_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const n = 20
	outcomes := make([]Outcome, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outcomes[i] = f.svc.Submit(ctx, f.form("2025-03-17", "09:00"))
		}(i)
	}
	close(start)
	wg.Wait()
	f.svc.Drain()

	var successes int
	for _, out := range outcomes {
		if out.Success {
			successes++
			continue
		}
		require.NotNil(t, out.Error)
		assert.Equal(t, KindConflict, out.Error.Kind)
		assert.Contains(t, []string{CodeSlotTaken, CodeSlotBeingBooked}, out.Error.Code)
	}
	assert.Equal(t, 1, successes)

	live, err := f.repo.ListAppointments(ctx, ListFilter{ClinicID: f.clinicID})
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestSubmit_SlotTakenAfterBooking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.svc.Submit(ctx, f.form("2025-03-17", "09:00"))
	require.True(t, first.Success)

	second := f.form("2025-03-17", "09:00")
	second.PatientPhone = "11911112222"
	out := f.svc.Submit(ctx, second)
	require.False(t, out.Success)
	assert.Equal(t, KindConflict, out.Error.Kind)
	assert.Equal(t, CodeSlotTaken, out.Error.Code)

	// storage was only reached by the first booking
	assert.Equal(t, 1, f.repo.BookCalls())
	f.svc.Drain()
}

func TestSubmit_LeadTime(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// now is 08:00; 09:00 is exactly one hour ahead
	out := f.svc.Submit(ctx, f.form("2025-03-10", "09:00"))
	assert.True(t, out.Success, "%+v", out.Error)

	f2 := newFixture(t, func(d *clinic.Doctor) {
		d.WorkingHours["monday"] = []string{"08:30"}
	})
	out = f2.svc.Submit(ctx, f2.form("2025-03-10", "08:30"))
	require.False(t, out.Success)
	assert.Equal(t, KindValidation, out.Error.Kind)
	assert.Equal(t, CodeLeadTime, out.Error.Code)
	assert.Zero(t, f2.repo.BookCalls())

	// lead time is reported even when other fields are invalid
	bad := f2.form("2025-03-10", "08:30")
	bad.PatientName = ""
	bad.PatientPhone = "123"
	out = f2.svc.Submit(ctx, bad)
	require.False(t, out.Success)
	assert.Equal(t, CodeLeadTime, out.Error.Code)

	past := f2.form("2025-03-07", "10:00")
	past.ExamID = uuid.Nil
	out = f2.svc.Submit(ctx, past)
	require.False(t, out.Success)
	assert.Equal(t, CodeLeadTime, out.Error.Code)

	// an unreadable time is still a field error
	unreadable := f2.form("2025-03-10", "8h30")
	unreadable.PatientName = ""
	out = f2.svc.Submit(ctx, unreadable)
	require.False(t, out.Success)
	assert.Equal(t, CodeInvalidField, out.Error.Code)
	assert.Equal(t, "time", out.Error.Field)

	f.svc.Drain()
}

func TestSubmit_ReadsDoctorAndBlocksFromStorage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.svc.Submit(ctx, f.form("2025-03-17", "09:00"))
	require.True(t, first.Success, "%+v", first.Error)

	// a block written elsewhere, straight to storage
	f.clinics.AddBlock(schedule.Block{
		ID:        uuid.New(),
		ClinicID:  f.clinicID,
		DoctorID:  f.doctor.ID,
		StartDate: time.Date(2025, 3, 24, 0, 0, 0, 0, brt),
		EndDate:   time.Date(2025, 3, 24, 0, 0, 0, 0, brt),
		Active:    true,
	})
	out := f.svc.Submit(ctx, f.form("2025-03-24", "10:00"))
	require.False(t, out.Success)
	assert.Equal(t, string(schedule.ReasonExplicitBlock), out.Error.Code)

	// another instance with its own cache deactivates the doctor
	v := schedule.NewValidator(brt)
	other := clinic.NewService(f.clinics, v, cache.New(time.Minute, time.Minute), retry.Config{MaxAttempts: 1})
	require.NoError(t, other.Deactivate(ctx, f.clinicID, f.doctor.ID))

	out = f.svc.Submit(ctx, f.form("2025-03-17", "10:00"))
	require.False(t, out.Success)
	assert.Equal(t, CodeDoctorInactive, out.Error.Code)
	assert.Equal(t, 1, f.repo.BookCalls())
	f.svc.Drain()
}

func TestSubmit_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BookingForm)
		doctor func(*clinic.Doctor)
		code   string
	}{
		{
			name:   "missing patient name",
			mutate: func(bf *BookingForm) { bf.PatientName = "" },
			code:   CodeInvalidField,
		},
		{
			name:   "short phone",
			mutate: func(bf *BookingForm) { bf.PatientPhone = "12345" },
			code:   CodeInvalidField,
		},
		{
			name:   "bad date",
			mutate: func(bf *BookingForm) { bf.Date = "17/03/2025" },
			code:   CodeInvalidField,
		},
		{
			name:   "unknown doctor",
			mutate: func(bf *BookingForm) { bf.DoctorID = uuid.New() },
			code:   CodeDoctorNotFound,
		},
		{
			name:   "inactive doctor",
			doctor: func(d *clinic.Doctor) { d.Active = false },
			code:   CodeDoctorInactive,
		},
		{
			name:   "unknown exam",
			mutate: func(bf *BookingForm) { bf.ExamID = uuid.New() },
			code:   CodeExamNotFound,
		},
		{
			name:   "age out of range",
			mutate: func(bf *BookingForm) { bf.BirthDate = "1850-01-01" },
			code:   CodePatientAge,
		},
		{
			name: "doctor age range",
			doctor: func(d *clinic.Doctor) {
				maxAge := 12
				d.MaxAge = &maxAge
			},
			mutate: func(bf *BookingForm) { bf.BirthDate = "1990-05-20" },
			code:   CodeDoctorAgeRange,
		},
		{
			name:   "plan not accepted",
			doctor: func(d *clinic.Doctor) { d.BlockedPlans = []string{"Unimed"} },
			mutate: func(bf *BookingForm) { bf.InsurancePlan = "UNIMED Nacional" },
			code:   CodePlanNotAccepted,
		},
		{
			name:   "not a working day",
			mutate: func(bf *BookingForm) { bf.Date = "2025-03-18" },
			code:   string(schedule.ReasonNoWorkingDay),
		},
		{
			name:   "time outside hours",
			mutate: func(bf *BookingForm) { bf.Time = "15:00" },
			code:   string(schedule.ReasonTimeConflict),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.doctor)
			form := f.form("2025-03-17", "10:00")
			if tt.mutate != nil {
				tt.mutate(&form)
			}

			out := f.svc.Submit(context.Background(), form)
			require.False(t, out.Success)
			require.NotNil(t, out.Error)
			assert.Equal(t, KindValidation, out.Error.Kind)
			assert.Equal(t, tt.code, out.Error.Code)
			assert.Zero(t, f.repo.BookCalls())
		})
	}
}

func TestSubmit_BlockedDateSuggestsNextDates(t *testing.T) {
	f := newFixture(t, nil)
	f.clinics.AddBlock(schedule.Block{
		ID:        uuid.New(),
		ClinicID:  f.clinicID,
		DoctorID:  f.doctor.ID,
		StartDate: time.Date(2025, 3, 17, 0, 0, 0, 0, brt),
		EndDate:   time.Date(2025, 3, 17, 0, 0, 0, 0, brt),
		Reason:    "conference",
		Active:    true,
	})

	out := f.svc.Submit(context.Background(), f.form("2025-03-17", "10:00"))
	require.False(t, out.Success)
	assert.Equal(t, string(schedule.ReasonExplicitBlock), out.Error.Code)
	assert.Equal(t, []string{"2025-03-19", "2025-03-24", "2025-03-26"}, out.Error.Suggestions)
}

func TestSubmit_IntervalRule(t *testing.T) {
	f := newFixture(t, func(d *clinic.Doctor) {
		d.IntervalRules = []rules.IntervalRule{{
			Name:         "ultrasound spacing",
			OriginExams:  []string{"ultrasound"},
			BlockedExams: []string{"ultrasound"},
			MinDays:      30,
		}}
	})
	ctx := context.Background()

	first := f.svc.Submit(ctx, f.form("2025-03-17", "10:00"))
	require.True(t, first.Success, "%+v", first.Error)

	out := f.svc.Submit(ctx, f.form("2025-04-07", "10:00"))
	require.False(t, out.Success)
	assert.Equal(t, KindValidation, out.Error.Kind)
	assert.Equal(t, CodeIntervalRule, out.Error.Code)

	// canceled appointments do not count
	_, err := f.svc.Cancel(ctx, f.clinicID, *first.AppointmentID, "patient request")
	require.NoError(t, err)

	out = f.svc.Submit(ctx, f.form("2025-04-07", "10:00"))
	assert.True(t, out.Success, "%+v", out.Error)
	f.svc.Drain()
}

func TestSubmit_Insurance(t *testing.T) {
	insurance := []rules.InsuranceRule{
		{Plan: "Bradesco", Kind: rules.KindRefuse, Exams: []string{"ultrasound"}, Message: "Bradesco does not cover ultrasound"},
		{Plan: "Amil", Kind: rules.KindWarn, Exams: []string{"ultrasound"}, Message: "bring the authorization form"},
	}
	f := newFixture(t, func(d *clinic.Doctor) { d.InsuranceRules = insurance })
	ctx := context.Background()

	form := f.form("2025-03-17", "10:00")
	form.InsurancePlan = "Bradesco Saude"
	out := f.svc.Submit(ctx, form)
	require.False(t, out.Success)
	assert.Equal(t, CodeInsuranceRefused, out.Error.Code)
	assert.Equal(t, "Bradesco does not cover ultrasound", out.Error.Message)

	form.InsurancePlan = "Amil 400"
	out = f.svc.Submit(ctx, form)
	require.True(t, out.Success, "%+v", out.Error)
	assert.Equal(t, []string{"bring the authorization form"}, out.Warnings)
	f.svc.Drain()
}

func TestSubmit_StorageFailureIsSystemAndNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.BookErr = errors.New("connection reset by peer")

	out := f.svc.Submit(context.Background(), f.form("2025-03-17", "10:00"))
	require.False(t, out.Success)
	assert.Equal(t, KindSystem, out.Error.Kind)
	assert.Equal(t, CodeInternal, out.Error.Code)
	assert.NotContains(t, out.Error.Message, "connection reset")
	assert.Equal(t, 1, f.repo.BookCalls())
}

func TestConfirmAndCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out := f.svc.Submit(ctx, f.form("2025-03-17", "10:00"))
	require.True(t, out.Success)
	id := *out.AppointmentID

	confirmed, err := f.svc.Confirm(ctx, f.clinicID, id)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	// confirmed is terminal
	_, err = f.svc.Cancel(ctx, f.clinicID, id, "")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.Confirm(ctx, f.clinicID, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	other := f.svc.Submit(ctx, f.form("2025-03-17", "11:00"))
	require.True(t, other.Success)

	canceled, err := f.svc.Cancel(ctx, f.clinicID, *other.AppointmentID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	f.svc.Drain()
	assert.Equal(t, []string{"2025-03-17 11:00"}, f.waitlist.offers)
	require.Len(t, f.notifier.canceled, 1)
	assert.Equal(t, "patient request", f.notifier.canceled[0].Reason)

	// the freed slot can be booked again
	again := f.form("2025-03-17", "11:00")
	again.PatientPhone = "11922223333"
	assert.True(t, f.svc.Submit(ctx, again).Success)
	f.svc.Drain()
}

func TestCancel_SkipsWaitlistForSlotsTooClose(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	soon := f.svc.Submit(ctx, f.form("2025-03-10", "09:00"))
	require.True(t, soon.Success, "%+v", soon.Error)
	later := f.svc.Submit(ctx, f.form("2025-03-17", "10:00"))
	require.True(t, later.Success, "%+v", later.Error)
	f.svc.Drain()

	*f.now = time.Date(2025, 3, 10, 8, 30, 0, 0, brt)

	_, err := f.svc.Cancel(ctx, f.clinicID, *soon.AppointmentID, "patient request")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.clinicID, *later.AppointmentID, "patient request")
	require.NoError(t, err)
	f.svc.Drain()

	assert.Equal(t, []string{"2025-03-17 10:00"}, f.waitlist.offers)
	assert.Len(t, f.notifier.canceled, 2)
}

func TestCreateBlock_CancelsScheduledOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.svc.Submit(ctx, f.form("2025-03-17", "09:00"))
	require.True(t, a.Success)
	b := f.svc.Submit(ctx, f.form("2025-03-17", "10:00"))
	require.True(t, b.Success)
	outside := f.svc.Submit(ctx, f.form("2025-03-24", "10:00"))
	require.True(t, outside.Success)

	_, err := f.svc.Confirm(ctx, f.clinicID, *b.AppointmentID)
	require.NoError(t, err)

	res, err := f.svc.CreateBlock(ctx, f.clinicID, BlockInput{
		DoctorID:  f.doctor.ID,
		StartDate: time.Date(2025, 3, 17, 0, 0, 0, 0, brt),
		EndDate:   time.Date(2025, 3, 18, 0, 0, 0, 0, brt),
		Reason:    "vacation",
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{*a.AppointmentID}, res.Canceled)

	blocked, err := f.repo.GetAppointmentByID(ctx, f.clinicID, *a.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceledDueToBlock, blocked.Status)

	kept, err := f.repo.GetAppointmentByID(ctx, f.clinicID, *b.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, kept.Status)

	f.svc.Drain()
	require.Len(t, f.notifier.canceled, 1)
	assert.Equal(t, "vacation", f.notifier.canceled[0].Reason)

	_, err = f.svc.CreateBlock(ctx, f.clinicID, BlockInput{
		DoctorID:  f.doctor.ID,
		StartDate: time.Date(2025, 3, 18, 0, 0, 0, 0, brt),
		EndDate:   time.Date(2025, 3, 17, 0, 0, 0, 0, brt),
	})
	assert.ErrorIs(t, err, ErrInvalidBlock)
}

func TestListAppointments_Limits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, clock := range []string{"09:00", "10:00", "11:00"} {
		require.True(t, f.svc.Submit(ctx, f.form("2025-03-17", clock)).Success)
	}
	f.svc.Drain()

	all, err := f.svc.ListAppointments(ctx, ListFilter{ClinicID: f.clinicID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "09:00", all[0].Time)
	assert.Equal(t, "Maria Silva", all[0].PatientName)
	assert.Equal(t, "Dr. Ana Souza", all[0].DoctorName)

	page, err := f.svc.ListAppointments(ctx, ListFilter{ClinicID: f.clinicID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "10:00", page[0].Time)
}
