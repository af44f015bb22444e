package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PastExam is one prior appointment of a patient, as needed by the
// interval check.
type PastExam struct {
	AppointmentID uuid.UUID
	ExamName      string
	Date          time.Time
	Canceled      bool
}

// HistorySource loads a patient's appointment history by phone.
type HistorySource interface {
	PatientHistory(ctx context.Context, clinicID uuid.UUID, phone string) ([]PastExam, error)
}

type HistoryFunc func(ctx context.Context, clinicID uuid.UUID, phone string) ([]PastExam, error)

func (f HistoryFunc) PatientHistory(ctx context.Context, clinicID uuid.UUID, phone string) ([]PastExam, error) {
	return f(ctx, clinicID, phone)
}

type Violation struct {
	Rule        string    `json:"rule"`
	Message     string    `json:"message"`
	ConflictID  uuid.UUID `json:"conflict_appointment_id"`
	ConflictOn  time.Time `json:"conflict_date"`
	DaysBetween int       `json:"days_between"`
	MinDays     int       `json:"min_days"`
}

type IntervalEvaluator struct {
	history HistorySource
}

func NewIntervalEvaluator(history HistorySource) *IntervalEvaluator {
	return &IntervalEvaluator{history: history}
}

// Evaluate returns the first rule violated by booking exam on date for the
// patient identified by phone, or nil. History is only loaded when some
// rule's blocked patterns match exam.
func (e *IntervalEvaluator) Evaluate(ctx context.Context, rules []IntervalRule, clinicID uuid.UUID, phone, exam string, date time.Time) (*Violation, error) {
	var (
		history []PastExam
		loaded  bool
	)

	for _, rule := range rules {
		if rule.MinDays <= 0 || !matches(exam, rule.BlockedExams) {
			continue
		}

		if !loaded {
			h, err := e.history.PatientHistory(ctx, clinicID, phone)
			if err != nil {
				return nil, fmt.Errorf("load patient history: %w", err)
			}
			history, loaded = h, true
		}

		for _, past := range history {
			if past.Canceled || !matches(past.ExamName, rule.OriginExams) {
				continue
			}
			gap := daysBetween(date, past.Date)
			if gap >= rule.MinDays {
				continue
			}

			msg := rule.Message
			if msg == "" {
				msg = fmt.Sprintf("%s requires %d days after %s (last on %s)",
					exam, rule.MinDays, past.ExamName, past.Date.Format("2006-01-02"))
			}
			zerolog.Ctx(ctx).Debug().
				Str("rule", rule.Name).
				Str("exam", exam).
				Int("days_between", gap).
				Msg("interval rule violated")

			return &Violation{
				Rule:        rule.Name,
				Message:     msg,
				ConflictID:  past.AppointmentID,
				ConflictOn:  past.Date,
				DaysBetween: gap,
				MinDays:     rule.MinDays,
			}, nil
		}
	}

	return nil, nil
}
