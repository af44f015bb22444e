// Package waitlist keeps patients waiting for a doctor and offers them
// slots freed by cancellations.
package waitlist

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusNotified  Status = "notified"
	StatusScheduled Status = "scheduled"
	StatusCanceled  Status = "canceled"
)

const (
	PeriodMorning   = "morning"
	PeriodAfternoon = "afternoon"
)

type Entry struct {
	ID              uuid.UUID  `json:"id"`
	ClinicID        uuid.UUID  `json:"clinic_id"`
	PatientName     string     `json:"patient_name"`
	PatientPhone    string     `json:"patient_phone"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	ExamID          *uuid.UUID `json:"exam_id,omitempty"`
	PreferredDate   *time.Time `json:"preferred_date,omitempty"`
	PreferredPeriod *string    `json:"preferred_period,omitempty"`
	Priority        int        `json:"priority"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	NotifiedAt      *time.Time `json:"notified_at,omitempty"`
}

// wants reports whether a waiting entry accepts a slot on date at clock.
func (e *Entry) wants(date time.Time, clock string) bool {
	if e.Status != StatusWaiting {
		return false
	}
	if e.PreferredDate != nil {
		py, pm, pd := e.PreferredDate.Date()
		dy, dm, dd := date.Date()
		if py != dy || pm != dm || pd != dd {
			return false
		}
	}
	if e.PreferredPeriod != nil && *e.PreferredPeriod != "" && *e.PreferredPeriod != periodOf(clock) {
		return false
	}
	return true
}

// periodOf maps an HH:MM clock to morning (before noon) or afternoon.
func periodOf(clock string) string {
	if clock < "12:00" {
		return PeriodMorning
	}
	return PeriodAfternoon
}

// before orders entries by priority (higher first), then age (older first).
func before(a, b Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
