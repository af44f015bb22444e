// Package rules evaluates per-doctor business rules that can refuse or
// warn about a booking: minimum intervals between exams and insurance
// plan restrictions.
package rules

import (
	"strings"
	"time"
)

// IntervalRule forbids a blocked exam within MinDays of an origin exam
// for the same patient.
type IntervalRule struct {
	Name         string   `json:"name"`
	OriginExams  []string `json:"origin_exams"`
	BlockedExams []string `json:"blocked_exams"`
	MinDays      int      `json:"min_days"`
	Message      string   `json:"message"`
}

type InsuranceKind string

const (
	// KindRefuse rejects the exam for the plan.
	KindRefuse InsuranceKind = "refuse"
	// KindRequireBundle accepts the exam only alongside one of Companions.
	KindRequireBundle InsuranceKind = "require_bundle"
	// KindWarn accepts the booking and attaches Message as a warning.
	KindWarn InsuranceKind = "warn"
)

type InsuranceRule struct {
	Plan       string        `json:"plan"`
	Kind       InsuranceKind `json:"kind"`
	Exams      []string      `json:"exams"`
	Companions []string      `json:"companions,omitempty"`
	Message    string        `json:"message"`
}

// matches reports whether name contains any of patterns, ignoring case.
// Empty patterns never match.
func matches(name string, patterns []string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(n, p) {
			return true
		}
	}
	return false
}

// daysBetween returns the absolute number of calendar days between a and b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	d := int(da.Sub(db).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}
