package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const doctorColumns = `id, clinic_id, name, specialty, active, working_hours, slot_configs,
	min_age, max_age, accepted_plans, blocked_plans, interval_rules, insurance_rules,
	created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.ClinicID,
		&d.Name,
		&d.Specialty,
		&d.Active,
		&d.WorkingHours,
		&d.SlotConfigs,
		&d.MinAge,
		&d.MaxAge,
		&d.AcceptedPlans,
		&d.BlockedPlans,
		&d.IntervalRules,
		&d.InsuranceRules,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanExam(row pgx.Row) (*Exam, error) {
	var e Exam
	err := row.Scan(&e.ID, &e.ClinicID, &e.Name, &e.DurationMinutes, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *PgRepository) CreateClinic(ctx context.Context, c *Clinic) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clinics (id, name, timezone)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, c.ID, c.Name, c.Timezone).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert clinic: %w", err)
	}
	return nil
}

func (r *PgRepository) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	var c Clinic
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, timezone, created_at
		FROM clinics
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Timezone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	normalizeDoctor(d)

	err := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, clinic_id, name, specialty, active, working_hours, slot_configs,
			min_age, max_age, accepted_plans, blocked_plans, interval_rules, insurance_rules)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`,
		d.ID, d.ClinicID, d.Name, d.Specialty, d.Active, d.WorkingHours, d.SlotConfigs,
		d.MinAge, d.MaxAge, d.AcceptedPlans, d.BlockedPlans, d.IntervalRules, d.InsuranceRules,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

// normalizeDoctor replaces nil collections so the NOT NULL JSONB and array
// columns receive empty values instead of NULL.
func normalizeDoctor(d *Doctor) {
	if d.WorkingHours == nil {
		d.WorkingHours = schedule.WorkingHours{}
	}
	if d.SlotConfigs == nil {
		d.SlotConfigs = []slots.Config{}
	}
	if d.AcceptedPlans == nil {
		d.AcceptedPlans = []string{}
	}
	if d.BlockedPlans == nil {
		d.BlockedPlans = []string{}
	}
	if d.IntervalRules == nil {
		d.IntervalRules = []rules.IntervalRule{}
	}
	if d.InsuranceRules == nil {
		d.InsuranceRules = []rules.InsuranceRule{}
	}
}

func (r *PgRepository) GetDoctor(ctx context.Context, clinicID, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context, clinicID uuid.UUID) ([]Doctor, error) {
	return r.queryDoctors(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE clinic_id = $1
		ORDER BY name
	`, clinicID)
}

func (r *PgRepository) ListActiveDoctors(ctx context.Context) ([]Doctor, error) {
	return r.queryDoctors(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE active
		ORDER BY clinic_id, name
	`)
}

func (r *PgRepository) queryDoctors(ctx context.Context, sql string, args ...any) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) SetDoctorActive(ctx context.Context, clinicID, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET active = $3,
		    updated_at = now()
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id, active)
	if err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) CreateExam(ctx context.Context, e *Exam) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO exams (id, clinic_id, name, duration_minutes)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, e.ID, e.ClinicID, e.Name, e.DurationMinutes).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	return nil
}

func (r *PgRepository) GetExam(ctx context.Context, clinicID, id uuid.UUID) (*Exam, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, duration_minutes, created_at
		FROM exams
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanExam(row)
}

func (r *PgRepository) ListExams(ctx context.Context, clinicID uuid.UUID) ([]Exam, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, name, duration_minutes, created_at
		FROM exams
		WHERE clinic_id = $1
		ORDER BY name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListActiveBlocks(ctx context.Context, clinicID, doctorID uuid.UUID, since time.Time) ([]schedule.Block, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, doctor_id, start_date, end_date, COALESCE(reason, ''), active, created_at
		FROM schedule_blocks
		WHERE clinic_id = $1
		  AND doctor_id = $2
		  AND active
		  AND end_date >= $3
		ORDER BY start_date
	`, clinicID, doctorID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Block
	for rows.Next() {
		var b schedule.Block
		if err := rows.Scan(&b.ID, &b.ClinicID, &b.DoctorID, &b.StartDate, &b.EndDate, &b.Reason, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
