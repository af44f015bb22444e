// Package schedule decides whether a doctor can be booked on a given
// date and time, based on the weekly working-hours map and schedule blocks.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// WorkingHours maps a lowercase weekday name ("monday") to the start
// times a doctor accepts on that day, formatted HH:MM.
type WorkingHours map[string][]string

// weekOrder lists days the way suggestions are shown to staff.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// DayKey returns the WorkingHours key for the weekday of d.
func DayKey(d time.Time) string {
	return strings.ToLower(d.Weekday().String())
}

// TimesOn returns the configured times for the weekday of d, sorted.
func (h WorkingHours) TimesOn(d time.Time) []string {
	times := h[DayKey(d)]
	if len(times) == 0 {
		return nil
	}
	out := make([]string, len(times))
	copy(out, times)
	sort.Strings(out)
	return out
}

// WorkingDays returns the configured weekday names, Monday first.
func (h WorkingHours) WorkingDays() []string {
	var days []string
	for _, wd := range weekOrder {
		key := strings.ToLower(wd.String())
		if len(h[key]) > 0 {
			days = append(days, key)
		}
	}
	return days
}

// Validate reports malformed keys or time strings.
func (h WorkingHours) Validate() error {
	valid := make(map[string]bool, 7)
	for _, wd := range weekOrder {
		valid[strings.ToLower(wd.String())] = true
	}
	for day, times := range h {
		if !valid[day] {
			return fmt.Errorf("unknown weekday %q", day)
		}
		for _, t := range times {
			if _, err := time.Parse(TimeLayout, t); err != nil {
				return fmt.Errorf("invalid time %q on %s", t, day)
			}
		}
	}
	return nil
}

func (h WorkingHours) has(d time.Time, clock string) bool {
	for _, t := range h[DayKey(d)] {
		if t == clock {
			return true
		}
	}
	return false
}

// Block marks a date range during which a doctor takes no appointments.
// StartDate and EndDate are inclusive calendar dates.
type Block struct {
	ID        uuid.UUID `json:"id"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Reason    string    `json:"reason"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Covers reports whether an active block includes the calendar date of d.
func (b Block) Covers(d time.Time) bool {
	if !b.Active {
		return false
	}
	day := civil(d)
	return !day.Before(civil(b.StartDate)) && !day.After(civil(b.EndDate))
}

// civil strips the clock and location, keeping only year/month/day.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
