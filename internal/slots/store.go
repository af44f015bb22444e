package slots

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusOccupied  Status = "occupied"
)

// EmptySlot is a materialized bookable slot. Unique by
// (doctor, date, time, clinic).
type EmptySlot struct {
	ClinicID uuid.UUID `json:"clinic_id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     time.Time `json:"date"`
	Time     string    `json:"time"`
	Period   string    `json:"period,omitempty"`
	Status   Status    `json:"status"`
}

// DefaultBatchSize caps rows per insert statement.
const DefaultBatchSize = 500

type Store interface {
	// UpsertEmptySlots inserts rows, ignoring ones that already exist, and
	// returns how many were new.
	UpsertEmptySlots(ctx context.Context, rows []EmptySlot) (int, error)
	ListEmptySlots(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) ([]EmptySlot, error)
	// OccupiedSlots returns SlotKeys held by non-canceled appointments.
	OccupiedSlots(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) (map[string]bool, error)
}
