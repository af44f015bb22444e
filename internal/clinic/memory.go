package clinic

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// MemoryRepository is an in-process Repository for tests and local tools.
type MemoryRepository struct {
	mu      sync.RWMutex
	clinics map[uuid.UUID]Clinic
	doctors map[uuid.UUID]Doctor
	exams   map[uuid.UUID]Exam
	blocks  []schedule.Block
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clinics: make(map[uuid.UUID]Clinic),
		doctors: make(map[uuid.UUID]Doctor),
		exams:   make(map[uuid.UUID]Exam),
	}
}

func (m *MemoryRepository) CreateClinic(_ context.Context, c *Clinic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	m.clinics[c.ID] = *c
	return nil
}

func (m *MemoryRepository) GetClinic(_ context.Context, id uuid.UUID) (*Clinic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (m *MemoryRepository) CreateDoctor(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	m.doctors[d.ID] = *d
	return nil
}

func (m *MemoryRepository) GetDoctor(_ context.Context, clinicID, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok || d.ClinicID != clinicID {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryRepository) ListDoctors(_ context.Context, clinicID uuid.UUID) ([]Doctor, error) {
	return m.filterDoctors(func(d Doctor) bool { return d.ClinicID == clinicID }), nil
}

func (m *MemoryRepository) ListActiveDoctors(context.Context) ([]Doctor, error) {
	return m.filterDoctors(func(d Doctor) bool { return d.Active }), nil
}

func (m *MemoryRepository) filterDoctors(keep func(Doctor) bool) []Doctor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Doctor
	for _, d := range m.doctors {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MemoryRepository) SetDoctorActive(_ context.Context, clinicID, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok || d.ClinicID != clinicID {
		return ErrDoctorNotFound
	}
	d.Active = active
	d.UpdatedAt = time.Now()
	m.doctors[id] = d
	return nil
}

func (m *MemoryRepository) CreateExam(_ context.Context, e *Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	m.exams[e.ID] = *e
	return nil
}

func (m *MemoryRepository) GetExam(_ context.Context, clinicID, id uuid.UUID) (*Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok || e.ClinicID != clinicID {
		return nil, ErrExamNotFound
	}
	return &e, nil
}

func (m *MemoryRepository) ListExams(_ context.Context, clinicID uuid.UUID) ([]Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Exam
	for _, e := range m.exams {
		if e.ClinicID == clinicID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) ListActiveBlocks(_ context.Context, clinicID, doctorID uuid.UUID, since time.Time) ([]schedule.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Block
	for _, b := range m.blocks {
		if b.ClinicID == clinicID && b.DoctorID == doctorID && b.Active && !b.EndDate.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

// AddBlock stores a block; the Postgres equivalent lives in the booking
// repository because it runs in the same transaction as the cancellations.
func (m *MemoryRepository) AddBlock(b schedule.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.blocks = append(m.blocks, b)
}
