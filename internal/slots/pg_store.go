package slots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool      *pgxpool.Pool
	batchSize int
}

func NewPgStore(pool *pgxpool.Pool, batchSize int) *PgStore {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	return &PgStore{pool: pool, batchSize: batchSize}
}

const slotColumns = 6

func (s *PgStore) UpsertEmptySlots(ctx context.Context, rows []EmptySlot) (int, error) {
	inserted := 0
	for _, batch := range Batches(rows, s.batchSize) {
		sql, args := upsertStatement(batch)
		tag, err := s.pool.Exec(ctx, sql, args...)
		if err != nil {
			return inserted, fmt.Errorf("upsert empty slots: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// upsertStatement builds one multi-row insert that skips rows already
// present under the (doctor, date, time, clinic) key.
func upsertStatement(batch []EmptySlot) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO empty_slots (clinic_id, doctor_id, slot_date, slot_time, period, status) VALUES `)

	args := make([]any, 0, len(batch)*slotColumns)
	for i, row := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * slotColumns
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)

		status := row.Status
		if status == "" {
			status = StatusAvailable
		}
		args = append(args, row.ClinicID, row.DoctorID, row.Date, row.Time, nullable(row.Period), string(status))
	}
	b.WriteString(` ON CONFLICT (doctor_id, slot_date, slot_time, clinic_id) DO NOTHING`)
	return b.String(), args
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PgStore) ListEmptySlots(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) ([]EmptySlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT clinic_id, doctor_id, slot_date, slot_time, COALESCE(period, ''), status
		FROM empty_slots
		WHERE clinic_id = $1
		  AND doctor_id = $2
		  AND slot_date BETWEEN $3 AND $4
		ORDER BY slot_date, slot_time
	`, clinicID, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EmptySlot
	for rows.Next() {
		var e EmptySlot
		if err := rows.Scan(&e.ClinicID, &e.DoctorID, &e.Date, &e.Time, &e.Period, &e.Status); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *PgStore) OccupiedSlots(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT appt_date, appt_time
		FROM appointments
		WHERE clinic_id = $1
		  AND doctor_id = $2
		  AND appt_date BETWEEN $3 AND $4
		  AND status NOT IN ('canceled', 'canceled_due_to_block')
	`, clinicID, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := make(map[string]bool)
	for rows.Next() {
		var (
			d     time.Time
			clock string
		)
		if err := rows.Scan(&d, &clock); err != nil {
			return nil, err
		}
		occupied[SlotKey(d, clock)] = true
	}
	return occupied, rows.Err()
}

// Batches splits rows into consecutive chunks of at most size.
func Batches[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]T
	for len(rows) > 0 {
		n := min(size, len(rows))
		out = append(out, rows[:n:n])
		rows = rows[n:]
	}
	return out
}
