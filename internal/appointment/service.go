package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/retry"
	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCanceled  = "APPOINTMENT_CANCELED"
	EventAppointmentBlocked   = "APPOINTMENT_CANCELED_DUE_TO_BLOCK"
	EventScheduleBlocked      = "SCHEDULE_BLOCKED"
)

const (
	maxPatientAge = 120
	// notifyTimeout bounds one background notification.
	notifyTimeout = 30 * time.Second
)

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidBlock            = errors.New("invalid schedule block")
)

// Directory is the read side the booking flow needs from the clinic
// catalogue. Its reads must come from storage, not from a cache.
type Directory interface {
	DoctorForBooking(ctx context.Context, clinicID, id uuid.UUID) (*clinic.Doctor, error)
	ExamForBooking(ctx context.Context, clinicID, id uuid.UUID) (*clinic.Exam, error)
	BlocksForBooking(ctx context.Context, clinicID, doctorID uuid.UUID, since time.Time) ([]schedule.Block, error)
	InvalidateBlocks(clinicID, doctorID uuid.UUID)
}

// Notice carries what a patient message needs.
type Notice struct {
	AppointmentID uuid.UUID
	ClinicID      uuid.UUID
	PatientName   string
	PatientPhone  string
	PatientEmail  *string
	DoctorName    string
	ExamName      string
	Date          time.Time
	Time          string
	Reason        string
}

type Notifier interface {
	AppointmentBooked(ctx context.Context, n Notice) error
	AppointmentCanceled(ctx context.Context, n Notice) error
}

// Waitlist is told when slots free up and when a waiting patient books.
type Waitlist interface {
	OfferSlot(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) error
	MarkScheduled(ctx context.Context, clinicID, doctorID uuid.UUID, phone string) error
}

// SlotCache drops cached slot listings after a status change.
type SlotCache interface {
	Invalidate(clinicID, doctorID uuid.UUID)
}

type Options struct {
	MinLeadTime time.Duration
	Retry       retry.Config
}

type Service struct {
	repo      Repository
	directory Directory
	locker    redisclient.Locker
	validator *schedule.Validator
	intervals *rules.IntervalEvaluator
	form      *validator.Validate
	opts      Options

	notifier Notifier
	waitlist Waitlist
	slots    SlotCache
	metrics  *metrics.Metrics

	wg sync.WaitGroup
}

func NewService(repo Repository, directory Directory, locker redisclient.Locker, v *schedule.Validator, opts Options) *Service {
	s := &Service{
		repo:      repo,
		directory: directory,
		locker:    locker,
		validator: v,
		form:      NewValidator(),
		opts:      opts,
	}
	s.intervals = rules.NewIntervalEvaluator(rules.HistoryFunc(s.patientHistory))
	return s
}

// WithNotifier attaches the patient notifier. Without one, no messages
// are sent.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) WithWaitlist(w Waitlist) *Service {
	s.waitlist = w
	return s
}

func (s *Service) WithSlotCache(c SlotCache) *Service {
	s.slots = c
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// Submit validates a booking form and books the slot. It never returns a
// Go error: every failure is described by Outcome.Error. The storage call
// is made at most once.
func (s *Service) Submit(ctx context.Context, form BookingForm) Outcome {
	start := time.Now()
	out := s.submit(ctx, form)

	kind := ""
	result := "success"
	if out.Error != nil {
		kind = string(out.Error.Kind)
		result = "error"
	}
	s.metrics.ObserveBooking(result, kind, time.Since(start))
	return out
}

func (s *Service) submit(ctx context.Context, form BookingForm) Outcome {
	logger := zerolog.Ctx(ctx).With().
		Str("clinic_id", form.ClinicID.String()).
		Str("doctor_id", form.DoctorID.String()).
		Str("date", form.Date).
		Str("time", form.Time).
		Logger()

	// Lead time wins over every other field error, so date and time are
	// parsed before the struct is validated.
	day, err := s.validator.ParseDate(form.Date)
	if err != nil {
		return Outcome{Error: &BookingError{Kind: KindValidation, Code: CodeInvalidField, Field: "date", Message: "date has an invalid format"}}
	}
	startsAt, err := s.validator.At(day, form.Time)
	if err != nil {
		return Outcome{Error: &BookingError{Kind: KindValidation, Code: CodeInvalidField, Field: "time", Message: "time has an invalid format"}}
	}
	if !s.leadTimeOK(startsAt) {
		return invalid(CodeLeadTime, fmt.Sprintf("appointments must be booked at least %s in advance", humanDuration(s.opts.MinLeadTime)))
	}

	if err := s.form.Struct(form); err != nil {
		return Outcome{Error: formError(err)}
	}

	var (
		birth *time.Time
		age   = -1
	)
	if form.BirthDate != "" {
		b, err := s.validator.ParseDate(form.BirthDate)
		if err != nil {
			return invalid(CodeInvalidField, "birth_date has an invalid format")
		}
		age = ageOn(b, s.validator.Today())
		if age < 0 || age > maxPatientAge {
			return invalid(CodePatientAge, fmt.Sprintf("patient age must be between 0 and %d", maxPatientAge))
		}
		birth = &b
	}

	doctor, err := s.directory.DoctorForBooking(ctx, form.ClinicID, form.DoctorID)
	if err != nil {
		if errors.Is(err, clinic.ErrDoctorNotFound) {
			return invalid(CodeDoctorNotFound, "doctor not found")
		}
		logger.Error().Err(err).Msg("load doctor")
		return systemFailure()
	}
	if !doctor.Active {
		return invalid(CodeDoctorInactive, "doctor is not taking appointments")
	}
	if age >= 0 && !doctor.AcceptsAge(age) {
		return invalid(CodeDoctorAgeRange, "patient age is outside the range this doctor attends")
	}

	exam, err := s.directory.ExamForBooking(ctx, form.ClinicID, form.ExamID)
	if err != nil {
		if errors.Is(err, clinic.ErrExamNotFound) {
			return invalid(CodeExamNotFound, "exam not found")
		}
		logger.Error().Err(err).Msg("load exam")
		return systemFailure()
	}

	if msg := rules.CheckDoctorPlan(doctor.AcceptedPlans, doctor.BlockedPlans, form.InsurancePlan); msg != "" {
		return invalid(CodePlanNotAccepted, msg)
	}

	blocks, err := s.directory.BlocksForBooking(ctx, form.ClinicID, form.DoctorID, s.validator.Today())
	if err != nil {
		logger.Error().Err(err).Msg("load schedule blocks")
		return systemFailure()
	}
	if res := s.validator.Validate(doctor.WorkingHours, day, form.Time, blocks); !res.Valid {
		return Outcome{Error: &BookingError{
			Kind:        KindValidation,
			Code:        string(res.Reason),
			Message:     res.Message,
			Suggestions: res.Suggestions,
		}}
	}

	phone := NormalizePhone(form.PatientPhone)

	violation, err := s.intervals.Evaluate(ctx, doctor.IntervalRules, form.ClinicID, phone, exam.Name, day)
	if err != nil {
		logger.Error().Err(err).Msg("evaluate interval rules")
		return systemFailure()
	}
	if violation != nil {
		return invalid(CodeIntervalRule, violation.Message)
	}

	insurance := rules.EvaluateInsurance(doctor.InsuranceRules, form.InsurancePlan, exam.Name, form.CompanionExams)
	if insurance.Blocked {
		return invalid(CodeInsuranceRefused, strings.Join(insurance.Messages, "; "))
	}
	var warnings []string
	if insurance.Warnings {
		warnings = append(warnings, insurance.Messages...)
	}

	// Advisory only: the unique index decides. A failed lookup falls
	// through to the transaction.
	existing, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) (*Appointment, error) {
		return s.repo.FindLiveAppointment(ctx, form.ClinicID, form.DoctorID, day, form.Time)
	}, ErrAppointmentNotFound)
	switch {
	case err == nil && existing != nil:
		return conflict(CodeSlotTaken, "this time is no longer available, please choose another")
	case err != nil && !errors.Is(err, ErrAppointmentNotFound):
		logger.Warn().Err(err).Msg("pre-flight conflict check failed")
	}

	payload, _ := json.Marshal(map[string]any{
		"patient_phone": phone,
		"exam":          exam.Name,
		"date":          form.Date,
		"time":          form.Time,
		"warnings":      warnings,
	})
	req := BookingRequest{
		ClinicID: form.ClinicID,
		DoctorID: form.DoctorID,
		ExamID:   form.ExamID,
		Date:     day,
		Time:     form.Time,
		Patient: PatientInput{
			Name:          strings.TrimSpace(form.PatientName),
			Phone:         phone,
			Email:         optional(form.PatientEmail),
			BirthDate:     birth,
			InsurancePlan: optional(form.InsurancePlan),
		},
		Notes:     optional(form.Notes),
		CreatedBy: optional(form.CreatedBy),
		Payload:   payload,
	}

	key := redisclient.SlotKey{ClinicID: form.ClinicID, DoctorID: form.DoctorID, Date: form.Date, Time: form.Time}

	var booked *Appointment
	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		appt, err := s.repo.BookAppointment(lockCtx, req)
		if err != nil {
			return err
		}
		booked = appt
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return conflict(CodeSlotBeingBooked, "this time is being booked by someone else, please choose another")
		case errors.Is(err, ErrSlotTaken):
			return conflict(CodeSlotTaken, "this time is no longer available, please choose another")
		default:
			logger.Error().Err(err).Msg("book appointment")
			return systemFailure()
		}
	}

	logger.Info().Str("appointment_id", booked.ID.String()).Msg("appointment booked")

	if s.slots != nil {
		s.slots.Invalidate(form.ClinicID, form.DoctorID)
	}

	notice := Notice{
		AppointmentID: booked.ID,
		ClinicID:      form.ClinicID,
		PatientName:   req.Patient.Name,
		PatientPhone:  phone,
		PatientEmail:  req.Patient.Email,
		DoctorName:    doctor.Name,
		ExamName:      exam.Name,
		Date:          day,
		Time:          form.Time,
	}
	s.background(ctx, "booking notification", func(ctx context.Context) error {
		if s.notifier == nil {
			return nil
		}
		return s.notifier.AppointmentBooked(ctx, notice)
	})
	s.background(ctx, "waitlist update", func(ctx context.Context) error {
		if s.waitlist == nil {
			return nil
		}
		return s.waitlist.MarkScheduled(ctx, form.ClinicID, form.DoctorID, phone)
	})

	return success(booked.ID, warnings)
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	updated, err := s.transition(ctx, clinicID, id, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, clinicID, updated.ID, EventAppointmentConfirmed, map[string]any{})
	return updated, nil
}

// Cancel moves a scheduled appointment to canceled, frees its slot and
// offers the slot to the waiting list.
func (s *Service) Cancel(ctx context.Context, clinicID, id uuid.UUID, reason string) (*Appointment, error) {
	updated, err := s.transition(ctx, clinicID, id, StatusCanceled)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, clinicID, updated.ID, EventAppointmentCanceled, map[string]any{"reason": reason})

	if s.slots != nil {
		s.slots.Invalidate(clinicID, updated.DoctorID)
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, clinicID, updated.ID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("appointment_id", id.String()).Msg("load canceled appointment for notification")
	} else {
		n := noticeFrom(*detail, reason)
		s.background(ctx, "cancel notification", func(ctx context.Context) error {
			if s.notifier == nil {
				return nil
			}
			return s.notifier.AppointmentCanceled(ctx, n)
		})
	}

	// a slot nobody can book any more is not worth offering
	if startsAt, err := s.validator.At(updated.Date, updated.Time); err == nil && s.leadTimeOK(startsAt) {
		s.background(ctx, "waitlist offer", func(ctx context.Context) error {
			if s.waitlist == nil {
				return nil
			}
			return s.waitlist.OfferSlot(ctx, clinicID, updated.DoctorID, updated.Date, updated.Time)
		})
	}

	return updated, nil
}

// leadTimeOK reports whether startsAt is at least MinLeadTime away.
func (s *Service) leadTimeOK(startsAt time.Time) bool {
	return startsAt.Sub(s.validator.Now()) >= s.opts.MinLeadTime
}

func (s *Service) transition(ctx context.Context, clinicID, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, clinicID, id, appt.Status, to)
	if err != nil {
		// someone else moved it between the read and the update
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.metrics.ObserveTransition(string(to))
	zerolog.Ctx(ctx).Info().
		Str("appointment_id", id.String()).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Msg("appointment status changed")
	return updated, nil
}

type BlockInput struct {
	DoctorID  uuid.UUID
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

type BlockResult struct {
	Block    schedule.Block
	Canceled []uuid.UUID
}

// CreateBlock stores a schedule block and cancels the scheduled
// appointments it covers, notifying those patients.
func (s *Service) CreateBlock(ctx context.Context, clinicID uuid.UUID, in BlockInput) (*BlockResult, error) {
	if in.EndDate.Before(in.StartDate) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidBlock)
	}
	if _, err := s.directory.DoctorForBooking(ctx, clinicID, in.DoctorID); err != nil {
		return nil, err
	}

	block := schedule.Block{
		ID:        uuid.New(),
		ClinicID:  clinicID,
		DoctorID:  in.DoctorID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Reason:    in.Reason,
		Active:    true,
	}

	canceled, err := s.repo.CreateBlock(ctx, block)
	if err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}

	s.directory.InvalidateBlocks(clinicID, in.DoctorID)
	if s.slots != nil {
		s.slots.Invalidate(clinicID, in.DoctorID)
	}

	result := &BlockResult{Block: block}
	for _, d := range canceled {
		result.Canceled = append(result.Canceled, d.ID)
		s.logEvent(ctx, clinicID, d.ID, EventAppointmentBlocked, map[string]any{
			"block_id": block.ID.String(),
			"reason":   in.Reason,
		})
		s.metrics.ObserveTransition(string(StatusCanceledDueToBlock))

		n := noticeFrom(d, in.Reason)
		s.background(ctx, "block notification", func(ctx context.Context) error {
			if s.notifier == nil {
				return nil
			}
			return s.notifier.AppointmentCanceled(ctx, n)
		})
	}

	zerolog.Ctx(ctx).Info().
		Str("doctor_id", in.DoctorID.String()).
		Str("block_id", block.ID.String()).
		Int("canceled", len(canceled)).
		Msg("schedule blocked")

	return result, nil
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) (*AppointmentDetail, error) {
		return s.repo.GetAppointmentDetail(ctx, clinicID, id)
	}, ErrAppointmentNotFound)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListAppointments retrieves appointments matching f
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	appointments, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) ([]AppointmentDetail, error) {
		return s.repo.ListAppointments(ctx, f)
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// Drain waits for background notifications to finish.
func (s *Service) Drain() {
	s.wg.Wait()
}

func (s *Service) patientHistory(ctx context.Context, clinicID uuid.UUID, phone string) ([]rules.PastExam, error) {
	return retry.Do(ctx, s.opts.Retry, func(ctx context.Context) ([]rules.PastExam, error) {
		return s.repo.PatientHistory(ctx, clinicID, phone)
	})
}

// background runs fn after the request returns. Failures are logged and
// not retried.
func (s *Service) background(ctx context.Context, what string, fn func(ctx context.Context) error) {
	logger := zerolog.Ctx(ctx)
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := fn(bg); err != nil {
			logger.Warn().Err(err).Str("task", what).Msg("background task failed")
		}
	}()
}

func (s *Service) logEvent(ctx context.Context, clinicID, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	logger := zerolog.Ctx(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	cid, apptID := clinicID, appointmentID

	ev := EventLog{
		ClinicID:      &cid,
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}

func noticeFrom(d AppointmentDetail, reason string) Notice {
	return Notice{
		AppointmentID: d.ID,
		ClinicID:      d.ClinicID,
		PatientName:   d.PatientName,
		PatientPhone:  d.PatientPhone,
		PatientEmail:  d.PatientEmail,
		DoctorName:    d.DoctorName,
		ExamName:      d.ExamName,
		Date:          d.Date,
		Time:          d.Time,
		Reason:        reason,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
