package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("waiting list entry not found")
	ErrNoCandidate   = errors.New("no waiting entry for slot")
)

type ListFilter struct {
	ClinicID uuid.UUID
	DoctorID *uuid.UUID
	Status   *Status
}

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, f ListFilter) ([]Entry, error)

	// SetStatus moves an entry to status if it is currently in one of from.
	SetStatus(ctx context.Context, clinicID, id uuid.UUID, status Status, from ...Status) (*Entry, error)

	// ClaimNext atomically picks the best waiting entry for the slot and
	// marks it notified.
	ClaimNext(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) (*Entry, error)

	// MarkScheduled closes open entries for the patient with this doctor.
	MarkScheduled(ctx context.Context, clinicID, doctorID uuid.UUID, phone string) (int, error)
}
