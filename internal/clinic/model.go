package clinic

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
)

type Clinic struct {
	ID        uuid.UUID
	Name      string
	Timezone  string
	CreatedAt time.Time
}

type Doctor struct {
	ID             uuid.UUID
	ClinicID       uuid.UUID
	Name           string
	Specialty      *string
	Active         bool
	WorkingHours   schedule.WorkingHours
	SlotConfigs    []slots.Config
	MinAge         *int
	MaxAge         *int
	AcceptedPlans  []string
	BlockedPlans   []string
	IntervalRules  []rules.IntervalRule
	InsuranceRules []rules.InsuranceRule
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AcceptsAge reports whether a patient of age years is within the
// doctor's configured range. Unset bounds are open.
func (d *Doctor) AcceptsAge(age int) bool {
	if d.MinAge != nil && age < *d.MinAge {
		return false
	}
	if d.MaxAge != nil && age > *d.MaxAge {
		return false
	}
	return true
}

type Exam struct {
	ID              uuid.UUID
	ClinicID        uuid.UUID
	Name            string
	DurationMinutes int
	CreatedAt       time.Time
}
