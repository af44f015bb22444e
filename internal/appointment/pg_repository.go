package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/rules"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	pgUniqueViolation = "23505"
	liveSlotIndex     = "uq_appointments_live_slot"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `a.id, a.clinic_id, a.patient_id, a.doctor_id, a.exam_id, a.appt_date, a.appt_time,
	a.status, a.notes, a.created_by, a.created_at, a.updated_at`

const detailJoins = `
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
	JOIN exams e ON e.id = a.exam_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.PatientID,
		&a.DoctorID,
		&a.ExamID,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.Notes,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	err := row.Scan(
		&d.ID,
		&d.ClinicID,
		&d.PatientID,
		&d.DoctorID,
		&d.ExamID,
		&d.Date,
		&d.Time,
		&d.Status,
		&d.Notes,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.PatientName,
		&d.PatientPhone,
		&d.PatientEmail,
		&d.DoctorName,
		&d.ExamName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
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

func isLiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == liveSlotIndex
}

// Interface methods

func (r *PgRepository) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	var booked *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var patientID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO patients (id, clinic_id, name, phone, email, birth_date, insurance_plan)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (clinic_id, phone) DO UPDATE
			SET name = EXCLUDED.name,
			    email = COALESCE(EXCLUDED.email, patients.email),
			    birth_date = COALESCE(EXCLUDED.birth_date, patients.birth_date),
			    insurance_plan = COALESCE(EXCLUDED.insurance_plan, patients.insurance_plan),
			    updated_at = now()
			RETURNING id
		`, uuid.New(), req.ClinicID, req.Patient.Name, req.Patient.Phone,
			req.Patient.Email, req.Patient.BirthDate, req.Patient.InsurancePlan,
		).Scan(&patientID)
		if err != nil {
			return fmt.Errorf("upsert patient: %w", err)
		}

		a := `id, clinic_id, patient_id, doctor_id, exam_id, appt_date, appt_time, status, notes, created_by, created_at, updated_at`
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, clinic_id, patient_id, doctor_id, exam_id, appt_date, appt_time, status, notes, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, $9)
			RETURNING `+a,
			uuid.New(), req.ClinicID, patientID, req.DoctorID, req.ExamID, req.Date, req.Time, req.Notes, req.CreatedBy,
		)
		appt, err := scanAppointment(row)
		if err != nil {
			if isLiveSlotViolation(err) {
				return ErrSlotTaken
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE empty_slots
			SET status = 'occupied'
			WHERE clinic_id = $1 AND doctor_id = $2 AND slot_date = $3 AND slot_time = $4
		`, req.ClinicID, req.DoctorID, req.Date, req.Time); err != nil {
			return fmt.Errorf("occupy empty slot: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO event_logs (clinic_id, event_type, appointment_id, payload)
			VALUES ($1, $2, $3, $4)
		`, req.ClinicID, EventAppointmentCreated, appt.ID, req.Payload); err != nil {
			return fmt.Errorf("insert event log: %w", err)
		}

		booked = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booked, nil
}

func (r *PgRepository) FindLiveAppointment(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, clock string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1
		  AND a.doctor_id = $2
		  AND a.appt_date = $3
		  AND a.appt_time = $4
		  AND a.status IN ('scheduled', 'confirmed')
	`, clinicID, doctorID, date, clock)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.id = $2
	`, clinicID, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`, p.name, p.phone, p.email, d.name, e.name`+detailJoins+`
		WHERE a.clinic_id = $1 AND a.id = $2
	`, clinicID, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	where := []string{"a.clinic_id = $1"}
	args := []any{f.ClinicID}

	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("a.doctor_id = $%d", len(args)))
	}
	if f.Date != nil {
		args = append(args, *f.Date)
		where = append(where, fmt.Sprintf("a.appt_date = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+appointmentColumns+`, p.name, p.phone, p.email, d.name, e.name`+detailJoins+`
		WHERE %s
		ORDER BY a.appt_date, a.appt_time
		LIMIT $%d OFFSET $%d
	`, strings.Join(where, " AND "), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, clinicID, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	var updated *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments a
			SET status = $3,
			    updated_at = now()
			WHERE a.clinic_id = $1
			  AND a.id = $2
			  AND a.status = $4
			RETURNING `+appointmentColumns,
			clinicID, id, to, from)
		appt, err := scanAppointment(row)
		if err != nil {
			return err
		}

		if from.Live() && !to.Live() {
			if _, err := tx.Exec(ctx, `
				UPDATE empty_slots
				SET status = 'available'
				WHERE clinic_id = $1 AND doctor_id = $2 AND slot_date = $3 AND slot_time = $4
			`, appt.ClinicID, appt.DoctorID, appt.Date, appt.Time); err != nil {
				return fmt.Errorf("free empty slot: %w", err)
			}
		}

		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) CreateBlock(ctx context.Context, block schedule.Block) ([]AppointmentDetail, error) {
	var canceled []AppointmentDetail

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO schedule_blocks (id, clinic_id, doctor_id, start_date, end_date, reason, active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		`, block.ID, block.ClinicID, block.DoctorID, block.StartDate, block.EndDate, block.Reason); err != nil {
			return fmt.Errorf("insert block: %w", err)
		}

		rows, err := tx.Query(ctx, `
			WITH moved AS (
				UPDATE appointments
				SET status = 'canceled_due_to_block',
				    updated_at = now()
				WHERE clinic_id = $1
				  AND doctor_id = $2
				  AND appt_date BETWEEN $3 AND $4
				  AND status = 'scheduled'
				RETURNING *
			)
			SELECT `+strings.ReplaceAll(appointmentColumns, "a.", "m.")+`, p.name, p.phone, p.email, d.name, e.name
			FROM moved m
			JOIN patients p ON p.id = m.patient_id
			JOIN doctors d ON d.id = m.doctor_id
			JOIN exams e ON e.id = m.exam_id
			ORDER BY m.appt_date, m.appt_time
		`, block.ClinicID, block.DoctorID, block.StartDate, block.EndDate)
		if err != nil {
			return fmt.Errorf("cancel blocked appointments: %w", err)
		}
		canceled, err = collectDetails(rows)
		if err != nil {
			return fmt.Errorf("cancel blocked appointments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return canceled, nil
}

func (r *PgRepository) PatientHistory(ctx context.Context, clinicID uuid.UUID, phone string) ([]rules.PastExam, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, e.name, a.appt_date, a.status
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN exams e ON e.id = a.exam_id
		WHERE a.clinic_id = $1
		  AND p.phone = $2
		ORDER BY a.appt_date DESC
		LIMIT 200
	`, clinicID, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []rules.PastExam
	for rows.Next() {
		var (
			h      rules.PastExam
			status AppointmentStatus
		)
		if err := rows.Scan(&h.AppointmentID, &h.ExamName, &h.Date, &status); err != nil {
			return nil, err
		}
		h.Canceled = !status.Live()
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (clinic_id, event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.ClinicID, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
