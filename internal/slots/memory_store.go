package slots

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same ignore-duplicates
// semantics as the Postgres upsert.
type MemoryStore struct {
	mu       sync.Mutex
	rows     map[string]EmptySlot
	occupied map[string]bool
	batches  []int
	batch    int
}

func NewMemoryStore(batchSize int) *MemoryStore {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	return &MemoryStore{
		rows:     make(map[string]EmptySlot),
		occupied: make(map[string]bool),
		batch:    batchSize,
	}
}

func memKey(clinicID, doctorID uuid.UUID, key string) string {
	return clinicID.String() + "|" + doctorID.String() + "|" + key
}

func (m *MemoryStore) UpsertEmptySlots(_ context.Context, rows []EmptySlot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, batch := range Batches(rows, m.batch) {
		m.batches = append(m.batches, len(batch))
		for _, r := range batch {
			k := memKey(r.ClinicID, r.DoctorID, SlotKey(r.Date, r.Time))
			if _, exists := m.rows[k]; exists {
				continue
			}
			if r.Status == "" {
				r.Status = StatusAvailable
			}
			m.rows[k] = r
			inserted++
		}
	}
	return inserted, nil
}

func (m *MemoryStore) ListEmptySlots(_ context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) ([]EmptySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey, toKey := SlotKey(from, "00:00"), SlotKey(to, "99:99")
	var out []EmptySlot
	for _, r := range m.rows {
		if r.ClinicID != clinicID || r.DoctorID != doctorID {
			continue
		}
		k := SlotKey(r.Date, r.Time)
		if k >= fromKey && k <= toKey {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return SlotKey(out[i].Date, out[i].Time) < SlotKey(out[j].Date, out[j].Time)
	})
	return out, nil
}

func (m *MemoryStore) OccupiedSlots(_ context.Context, clinicID, doctorID uuid.UUID, _, _ time.Time) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := clinicID.String() + "|" + doctorID.String() + "|"
	out := make(map[string]bool)
	for k := range m.occupied {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = true
		}
	}
	return out, nil
}

// Occupy records a live appointment at (date, clock).
func (m *MemoryStore) Occupy(clinicID, doctorID uuid.UUID, date time.Time, clock string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occupied[memKey(clinicID, doctorID, SlotKey(date, clock))] = true
}

// Batches returns the sizes of every batch written so far.
func (m *MemoryStore) Batches() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batches...)
}

// Len reports how many rows are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
