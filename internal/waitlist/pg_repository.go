package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `id, clinic_id, patient_name, patient_phone, doctor_id, exam_id,
	preferred_date, preferred_period, priority, status, created_at, notified_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.ClinicID,
		&e.PatientName,
		&e.PatientPhone,
		&e.DoctorID,
		&e.ExamID,
		&e.PreferredDate,
		&e.PreferredPeriod,
		&e.Priority,
		&e.Status,
		&e.CreatedAt,
		&e.NotifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *PgRepository) Insert(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO waiting_list (id, clinic_id, patient_name, patient_phone, doctor_id, exam_id,
			preferred_date, preferred_period, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, e.ID, e.ClinicID, e.PatientName, e.PatientPhone, e.DoctorID, e.ExamID,
		e.PreferredDate, e.PreferredPeriod, e.Priority, e.Status).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert waiting list entry: %w", err)
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	where := []string{"clinic_id = $1"}
	args := []any{f.ClinicID}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waiting_list
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY priority DESC, created_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list waiting list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *PgRepository) SetStatus(ctx context.Context, clinicID, id uuid.UUID, status Status, from ...Status) (*Entry, error) {
	fromText := make([]string, len(from))
	for i, s := range from {
		fromText[i] = string(s)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE waiting_list
		SET status = $3,
		    notified_at = CASE WHEN $3 = 'notified' THEN now() ELSE notified_at END
		WHERE clinic_id = $1 AND id = $2 AND status = ANY($4)
		RETURNING `+entryColumns,
		clinicID, id, status, fromText)
	return scanEntry(row)
}

func (r *PgRepository) ClaimNext(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waiting_list
		SET status = 'notified', notified_at = now()
		WHERE id = (
			SELECT id FROM waiting_list
			WHERE clinic_id = $1
			  AND doctor_id = $2
			  AND status = 'waiting'
			  AND (preferred_date IS NULL OR preferred_date = $3)
			  AND (preferred_period IS NULL OR preferred_period = '' OR preferred_period = $4)
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+entryColumns,
		clinicID, doctorID, date, periodOf(clock))

	e, err := scanEntry(row)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, ErrNoCandidate
	}
	return e, err
}

func (r *PgRepository) MarkScheduled(ctx context.Context, clinicID, doctorID uuid.UUID, phone string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waiting_list
		SET status = 'scheduled'
		WHERE clinic_id = $1 AND doctor_id = $2 AND patient_phone = $3
		  AND status IN ('waiting', 'notified')
	`, clinicID, doctorID, phone)
	if err != nil {
		return 0, fmt.Errorf("mark waiting list scheduled: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
