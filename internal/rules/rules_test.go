package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

var contrastRule = IntervalRule{
	Name:         "contrast-gap",
	OriginExams:  []string{"tomography"},
	BlockedExams: []string{"magnetic resonance"},
	MinDays:      30,
	Message:      "wait 30 days after a tomography",
}

func staticHistory(calls *int, exams ...PastExam) HistorySource {
	return HistoryFunc(func(context.Context, uuid.UUID, string) ([]PastExam, error) {
		*calls++
		return exams, nil
	})
}

func TestIntervalEvaluator_Scenario(t *testing.T) {
	calls := 0
	origin := PastExam{AppointmentID: uuid.New(), ExamName: "Tomography of the skull", Date: date("2025-01-01")}
	ev := NewIntervalEvaluator(staticHistory(&calls, origin))
	ctx := context.Background()
	clinic := uuid.New()

	v, err := ev.Evaluate(ctx, []IntervalRule{contrastRule}, clinic, "11999990000", "Magnetic Resonance - knee", date("2025-01-20"))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "contrast-gap", v.Rule)
	assert.Equal(t, 19, v.DaysBetween)
	assert.Equal(t, origin.AppointmentID, v.ConflictID)
	assert.Equal(t, contrastRule.Message, v.Message)

	v, err = ev.Evaluate(ctx, []IntervalRule{contrastRule}, clinic, "11999990000", "Magnetic Resonance - knee", date("2025-02-05"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestIntervalEvaluator_GapIsAbsolute(t *testing.T) {
	calls := 0
	future := PastExam{ExamName: "tomography", Date: date("2025-03-01")}
	ev := NewIntervalEvaluator(staticHistory(&calls, future))

	for _, tc := range []struct {
		day     string
		blocked bool
	}{
		{"2025-02-15", true},
		{"2025-01-31", true},
		{"2025-01-30", false},
		{"2025-03-30", true},
		{"2025-03-31", false},
	} {
		v, err := ev.Evaluate(context.Background(), []IntervalRule{contrastRule}, uuid.New(), "1", "magnetic resonance", date(tc.day))
		require.NoError(t, err)
		assert.Equal(t, tc.blocked, v != nil, tc.day)
	}
}

func TestIntervalEvaluator_IgnoresCanceledAndUnrelated(t *testing.T) {
	calls := 0
	ev := NewIntervalEvaluator(staticHistory(&calls,
		PastExam{ExamName: "tomography", Date: date("2025-01-10"), Canceled: true},
		PastExam{ExamName: "blood test", Date: date("2025-01-10")},
	))

	v, err := ev.Evaluate(context.Background(), []IntervalRule{contrastRule}, uuid.New(), "1", "magnetic resonance", date("2025-01-12"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestIntervalEvaluator_HistoryLoadedLazily(t *testing.T) {
	calls := 0
	ev := NewIntervalEvaluator(staticHistory(&calls))

	_, err := ev.Evaluate(context.Background(), []IntervalRule{contrastRule}, uuid.New(), "1", "ultrasound", date("2025-01-12"))
	require.NoError(t, err)
	assert.Zero(t, calls, "no rule matched, history must not be loaded")

	second := contrastRule
	second.Name = "second"
	_, err = ev.Evaluate(context.Background(), []IntervalRule{contrastRule, second}, uuid.New(), "1", "magnetic resonance", date("2025-01-12"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestIntervalEvaluator_HistoryError(t *testing.T) {
	boom := errors.New("db down")
	ev := NewIntervalEvaluator(HistoryFunc(func(context.Context, uuid.UUID, string) ([]PastExam, error) {
		return nil, boom
	}))

	_, err := ev.Evaluate(context.Background(), []IntervalRule{contrastRule}, uuid.New(), "1", "magnetic resonance", date("2025-01-12"))
	assert.ErrorIs(t, err, boom)
}

func TestEvaluateInsurance(t *testing.T) {
	rules := []InsuranceRule{
		{Plan: "unimed", Kind: KindRefuse, Exams: []string{"elastography"}, Message: "Unimed does not cover elastography"},
		{Plan: "unimed", Kind: KindRequireBundle, Exams: []string{"doppler"}, Companions: []string{"ultrasound"}},
		{Plan: "bradesco", Kind: KindWarn, Exams: []string{"doppler"}, Message: "needs prior authorization"},
	}

	tests := []struct {
		name       string
		plan, exam string
		companions []string
		blocked    bool
		warnings   bool
		messages   int
	}{
		{name: "refused", plan: "UNIMED Nacional", exam: "Liver Elastography", blocked: true, messages: 1},
		{name: "bundle missing", plan: "Unimed", exam: "Doppler", warnings: true, messages: 1},
		{name: "bundle present", plan: "Unimed", exam: "Doppler", companions: []string{"Abdominal Ultrasound"}},
		{name: "warn", plan: "Bradesco Saude", exam: "doppler venous", warnings: true, messages: 1},
		{name: "other plan", plan: "Amil", exam: "elastography"},
		{name: "no plan", plan: "", exam: "elastography"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateInsurance(rules, tt.plan, tt.exam, tt.companions)
			assert.Equal(t, tt.blocked, res.Blocked)
			assert.Equal(t, tt.warnings, res.Warnings)
			assert.Len(t, res.Messages, tt.messages)
		})
	}
}

func TestCheckDoctorPlan(t *testing.T) {
	assert.Empty(t, CheckDoctorPlan(nil, nil, "Amil"))
	assert.Empty(t, CheckDoctorPlan([]string{"amil"}, nil, "AMIL 400"))
	assert.Empty(t, CheckDoctorPlan([]string{"amil"}, nil, ""))
	assert.NotEmpty(t, CheckDoctorPlan([]string{"amil"}, nil, "Unimed"))
	assert.NotEmpty(t, CheckDoctorPlan(nil, []string{"unimed"}, "Unimed Rio"))
	assert.NotEmpty(t, CheckDoctorPlan([]string{"unimed"}, []string{"unimed"}, "Unimed"))
}

// Substring patterns also hit exams whose names merely contain the
// pattern. Rules are written knowing this.
func TestMatches_SubstringCatchesSimilarNames(t *testing.T) {
	assert.True(t, matches("Pelvic Ultrasound", []string{"ultrasound"}))
	assert.True(t, matches("Doppler Ultrasound of the legs", []string{"ULTRASOUND"}))
	assert.True(t, matches("Mammography", []string{"mam"}))
	assert.False(t, matches("Mammography", []string{""}))
	assert.False(t, matches("", []string{"ultrasound"}))
}
