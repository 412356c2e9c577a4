package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (r *PgRepository) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.first_name, c.last_name, c.birth_date, c.created_at, c.updated_at,
		       (SELECT count(*) FROM guardian_children gc WHERE gc.child_id = c.id)
		FROM children c
		ORDER BY c.last_name, c.first_name, c.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt, &p.Guardians); err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreatePatient inserts a child and, when a guardian is given, links it in
// the same transaction.
func (r *PgRepository) CreatePatient(ctx context.Context, p NewPatient) (*Child, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	child, err := scanChild(tx.QueryRow(ctx, `
		INSERT INTO children (id, first_name, last_name, birth_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, first_name, last_name, birth_date, created_at, updated_at
	`, uuid.New(), p.FirstName, p.LastName, p.BirthDate))
	if err != nil {
		return nil, fmt.Errorf("insert child: %w", err)
	}

	if p.GuardianID != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO guardian_children (guardian_id, child_id, created_at)
			VALUES ($1, $2, now())
		`, *p.GuardianID, child.ID)
		if err != nil {
			if isPgCode(err, foreignKeyViolation) {
				return nil, ErrGuardianNotFound
			}
			return nil, fmt.Errorf("link guardian: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit patient: %w", err)
	}
	return child, nil
}

func (r *PgRepository) UpdatePatientName(ctx context.Context, id uuid.UUID, firstName, lastName string) (*Child, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE children
		SET first_name = $2,
		    last_name = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, first_name, last_name, birth_date, created_at, updated_at
	`, id, firstName, lastName)
	return scanChild(row)
}

// FirstGuardianOfChild returns the guardian linked to the child earliest.
func (r *PgRepository) FirstGuardianOfChild(ctx context.Context, childID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT guardian_id
		FROM guardian_children
		WHERE child_id = $1
		ORDER BY created_at, guardian_id
		LIMIT 1
	`, childID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrGuardianNotFound
		}
		return uuid.Nil, fmt.Errorf("first guardian of child: %w", err)
	}
	return id, nil
}

// ListGuardians never reads password hashes.
func (r *PgRepository) ListGuardians(ctx context.Context) ([]Guardian, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, phone, first_name, last_name, created_at, updated_at
		FROM guardians
		ORDER BY last_name, first_name, phone
	`)
	if err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	defer rows.Close()

	var result []Guardian
	for rows.Next() {
		var g Guardian
		if err := rows.Scan(&g.ID, &g.Phone, &g.FirstName, &g.LastName, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByDate(ctx context.Context, date time.Time) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.child_id, a.guardian_id, a.visit_date, a.visit_time, a.visit_type, a.status,
		       a.comment, a.reminder_sent_at, a.created_at, a.updated_at,
		       c.first_name || ' ' || c.last_name
		FROM appointments a
		JOIN children c ON c.id = a.child_id
		WHERE a.visit_date = $1
		ORDER BY a.visit_time, a.created_at
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		dest := append(appointmentDest(&d.Appointment), &d.ChildName)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// SetAppointmentStatus moves an appointment to `to` only while its status is
// one of from.
func (r *PgRepository) SetAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, string(to), allowed)

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrInvalidTransition
	}
	return appt, err
}

func (r *PgRepository) ListMedicalTemplates(ctx context.Context) ([]MedicalTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, diagnosis, prescriptions, created_at
		FROM medical_templates
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list medical templates: %w", err)
	}
	defer rows.Close()

	var result []MedicalTemplate
	for rows.Next() {
		var t MedicalTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Diagnosis, &t.Prescriptions, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CompleteVisit marks an active appointment completed and stores its
// medical record, payment and optional follow-up appointment atomically.
func (r *PgRepository) CompleteVisit(ctx context.Context, rec MedicalRecord, next *NewAppointment) (*VisitOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('new', 'confirmed')
	`, rec.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInvalidTransition
	}

	rec.ID = uuid.New()
	err = tx.QueryRow(ctx, `
		INSERT INTO medical_records (id, appointment_id, template_id, complaints, examination, diagnosis, prescriptions, recommendations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at
	`, rec.ID, rec.AppointmentID, rec.TemplateID, rec.Complaints, rec.Examination, rec.Diagnosis, rec.Prescriptions, rec.Recommendations).
		Scan(&rec.CreatedAt)
	if err != nil {
		if isPgCode(err, foreignKeyViolation) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("insert medical record: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, medical_record_id, amount, status, method, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, uuid.New(), rec.ID, rec.Payment.Amount, string(rec.Payment.Status), string(rec.Payment.Method))
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	out := &VisitOutcome{Record: rec}
	if next != nil {
		appt, err := insertAppointment(ctx, tx, *next)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return nil, err
			}
			return nil, fmt.Errorf("insert follow-up appointment: %w", err)
		}
		out.Next = appt
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit visit result: %w", err)
	}
	return out, nil
}
