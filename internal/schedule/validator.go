package schedule

import (
	"fmt"
	"strings"
	"time"
)

type Reason string

const (
	ReasonNoWorkingDay  Reason = "no_working_day"
	ReasonExplicitBlock Reason = "explicit_block"
	ReasonPastDate      Reason = "past_date"
	ReasonTimeConflict  Reason = "time_conflict"
)

// maxLookahead bounds NextAvailableDates so a doctor without hours
// cannot make the walk unbounded.
const maxLookahead = 60

type Result struct {
	Valid       bool     `json:"valid"`
	Reason      Reason   `json:"reason,omitempty"`
	Message     string   `json:"message,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func valid() Result { return Result{Valid: true} }

// Validator checks candidate dates against working hours and blocks.
// Dates are interpreted in the clinic location.
type Validator struct {
	loc *time.Location
	now func() time.Time
}

func NewValidator(loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{loc: loc, now: time.Now}
}

// WithClock returns a copy of v that reads the current time from now.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	cp := *v
	cp.now = now
	return &cp
}

func (v *Validator) Location() *time.Location { return v.loc }

// Now returns the current time in the clinic location.
func (v *Validator) Now() time.Time { return v.now().In(v.loc) }

// Today returns midnight of the current clinic date.
func (v *Validator) Today() time.Time { return v.inClinic(v.Now()) }

// Validate checks date (and clock, when non-empty) for a doctor.
//
// Checks run in order explicit_block, no_working_day, past_date,
// time_conflict; an active block wins even on a day with no hours.
func (v *Validator) Validate(hours WorkingHours, date time.Time, clock string, blocks []Block) Result {
	res := v.check(hours, date, clock, blocks)
	if res.Reason == ReasonExplicitBlock {
		res.Suggestions = formatDates(v.NextAvailableDates(hours, v.inClinic(date).AddDate(0, 0, 1), 3, blocks))
	}
	return res
}

// check is Validate without the forward walk for block suggestions.
func (v *Validator) check(hours WorkingHours, date time.Time, clock string, blocks []Block) Result {
	day := v.inClinic(date)

	for _, b := range blocks {
		if b.Covers(day) {
			msg := "doctor's schedule is blocked on this date"
			if b.Reason != "" {
				msg = fmt.Sprintf("%s: %s", msg, b.Reason)
			}
			return Result{Reason: ReasonExplicitBlock, Message: msg}
		}
	}

	times := hours.TimesOn(day)
	if len(times) == 0 {
		days := hours.WorkingDays()
		msg := fmt.Sprintf("doctor does not work on %s", DayKey(day))
		if len(days) > 0 {
			msg = fmt.Sprintf("%s; working days: %s", msg, strings.Join(days, ", "))
		}
		return Result{
			Reason:      ReasonNoWorkingDay,
			Message:     msg,
			Suggestions: days,
		}
	}

	today := civil(v.now().In(v.loc))
	if civil(day).Before(today) {
		return Result{Reason: ReasonPastDate, Message: "date is in the past"}
	}

	if clock == "" {
		return valid()
	}

	if civil(day).Equal(today) {
		start, err := v.At(day, clock)
		if err == nil && !start.After(v.now()) {
			return Result{Reason: ReasonPastDate, Message: "time has already passed"}
		}
	}

	if !hours.has(day, clock) {
		return Result{
			Reason:      ReasonTimeConflict,
			Message:     fmt.Sprintf("%s is not within the doctor's hours on %s", clock, DayKey(day)),
			Suggestions: times,
		}
	}

	return valid()
}

// NextAvailableDates walks forward from from (inclusive), one day at a
// time for at most 60 days, returning up to n dates that pass Validate.
func (v *Validator) NextAvailableDates(hours WorkingHours, from time.Time, n int, blocks []Block) []time.Time {
	if n <= 0 {
		return nil
	}
	day := v.inClinic(from)
	var out []time.Time
	for i := 0; i < maxLookahead && len(out) < n; i++ {
		if v.check(hours, day, "", blocks).Valid {
			out = append(out, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// At combines a calendar date with an HH:MM clock in the clinic location.
func (v *Validator) At(date time.Time, clock string) (time.Time, error) {
	c, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", clock, err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, v.loc), nil
}

// ParseDate reads a YYYY-MM-DD string as midnight in the clinic location.
func (v *Validator) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, v.loc)
}

// inClinic keeps the calendar date of t as written and moves it into the
// clinic location, so 2025-01-20 stays 2025-01-20 whatever zone t carried.
func (v *Validator) inClinic(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, v.loc)
}

func formatDates(ds []time.Time) []string {
	if len(ds) == 0 {
		return nil
	}
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Format(DateLayout)
	}
	return out
}
