package waitlist

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[uuid.UUID]*Entry), now: time.Now}
}

func (m *MemoryRepository) Insert(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *MemoryRepository) sorted(keep func(*Entry) bool) []Entry {
	var out []Entry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case before(a, b):
			return -1
		case before(b, a):
			return 1
		}
		return 0
	})
	return out
}

func (m *MemoryRepository) List(_ context.Context, f ListFilter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(e *Entry) bool {
		if e.ClinicID != f.ClinicID {
			return false
		}
		if f.DoctorID != nil && e.DoctorID != *f.DoctorID {
			return false
		}
		return f.Status == nil || e.Status == *f.Status
	}), nil
}

func (m *MemoryRepository) SetStatus(_ context.Context, clinicID, id uuid.UUID, status Status, from ...Status) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.ClinicID != clinicID || !slices.Contains(from, e.Status) {
		return nil, ErrEntryNotFound
	}
	e.Status = status
	if status == StatusNotified {
		now := m.now()
		e.NotifiedAt = &now
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryRepository) ClaimNext(_ context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	candidates := m.sorted(func(e *Entry) bool {
		return e.ClinicID == clinicID && e.DoctorID == doctorID && e.wants(date, clock)
	})
	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}
	e := m.entries[candidates[0].ID]
	now := m.now()
	e.Status = StatusNotified
	e.NotifiedAt = &now
	cp := *e
	return &cp, nil
}

func (m *MemoryRepository) MarkScheduled(_ context.Context, clinicID, doctorID uuid.UUID, phone string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.ClinicID == clinicID && e.DoctorID == doctorID && e.PatientPhone == phone &&
			(e.Status == StatusWaiting || e.Status == StatusNotified) {
			e.Status = StatusScheduled
			n++
		}
	}
	return n, nil
}
