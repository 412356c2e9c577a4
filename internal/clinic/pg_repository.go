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

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of *pgxpool.Pool the repository uses.
type PgxPool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanGuardian(row pgx.Row) (*Guardian, error) {
	var g Guardian

	err := row.Scan(
		&g.ID,
		&g.Phone,
		&g.PasswordHash,
		&g.FirstName,
		&g.LastName,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGuardianNotFound
		}
		return nil, err
	}

	return &g, nil
}

func scanChild(row pgx.Row) (*Child, error) {
	var c Child

	err := row.Scan(
		&c.ID,
		&c.FirstName,
		&c.LastName,
		&c.BirthDate,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChildNotFound
		}
		return nil, err
	}

	return &c, nil
}

const appointmentColumns = `id, child_id, guardian_id, visit_date, visit_time, visit_type, status, comment, reminder_sent_at, created_at, updated_at`

func appointmentDest(a *Appointment) []any {
	return []any{
		&a.ID,
		&a.ChildID,
		&a.GuardianID,
		&a.VisitDate,
		&a.VisitTime,
		&a.VisitType,
		&a.Status,
		&a.Comment,
		&a.ReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	if err := row.Scan(appointmentDest(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetGuardianByID(ctx context.Context, id uuid.UUID) (*Guardian, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, phone, password_hash, first_name, last_name, created_at, updated_at
		FROM guardians
		WHERE id = $1
	`, id)
	return scanGuardian(row)
}

func (r *PgRepository) GetGuardianByPhone(ctx context.Context, phone string) (*Guardian, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, phone, password_hash, first_name, last_name, created_at, updated_at
		FROM guardians
		WHERE phone = $1
	`, phone)
	return scanGuardian(row)
}

func (r *PgRepository) ListChildrenByGuardian(ctx context.Context, guardianID uuid.UUID) ([]Child, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.first_name, c.last_name, c.birth_date, c.created_at, c.updated_at
		FROM children c
		JOIN guardian_children gc ON gc.child_id = c.id
		WHERE gc.guardian_id = $1
		ORDER BY c.birth_date, c.first_name
	`, guardianID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var result []Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) IsGuardianOfChild(ctx context.Context, guardianID, childID uuid.UUID) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM guardian_children
		WHERE guardian_id = $1 AND child_id = $2
	`, guardianID, childID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check guardian link: %w", err)
	}
	return true, nil
}

func (r *PgRepository) ListBookedTimes(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT visit_time
		FROM appointments
		WHERE visit_date = $1
		  AND status IN ('new', 'confirmed')
		ORDER BY visit_time
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var at string
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		result = append(result, at)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetActiveAppointmentAt(ctx context.Context, date time.Time, at string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE visit_date = $1
		  AND visit_time = $2
		  AND status IN ('new', 'confirmed')
	`, date, at)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error) {
	return insertAppointment(ctx, r.pool, a)
}

func insertAppointment(ctx context.Context, q querier, a NewAppointment) (*Appointment, error) {
	status := a.Status
	if status == "" {
		status = StatusNew
	}

	row := q.QueryRow(ctx, `
		INSERT INTO appointments (id, child_id, guardian_id, visit_date, visit_time, visit_type, status, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(), a.ChildID, a.GuardianID, a.VisitDate, a.VisitTime, a.VisitType, string(status), a.Comment)

	appt, err := scanAppointment(row)
	if err != nil {
		if isPgCode(err, uniqueViolation) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) ListAppointmentsByGuardian(ctx context.Context, guardianID uuid.UUID, limit int) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.child_id, a.guardian_id, a.visit_date, a.visit_time, a.visit_type, a.status,
		       a.comment, a.reminder_sent_at, a.created_at, a.updated_at,
		       c.first_name || ' ' || c.last_name
		FROM appointments a
		JOIN children c ON c.id = a.child_id
		JOIN guardian_children gc ON gc.child_id = a.child_id AND gc.guardian_id = $1
		ORDER BY a.visit_date DESC, a.visit_time DESC
		LIMIT $2
	`, guardianID, limit)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
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

func (r *PgRepository) LinkChat(ctx context.Context, chatID int64, guardianID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO guardian_chats (chat_id, guardian_id, linked_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chat_id)
		DO UPDATE SET guardian_id = EXCLUDED.guardian_id, linked_at = now()
	`, chatID, guardianID)
	if err != nil {
		return fmt.Errorf("link chat: %w", err)
	}
	return nil
}

func (r *PgRepository) GuardianForChat(ctx context.Context, chatID int64) (*Guardian, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT g.id, g.phone, g.password_hash, g.first_name, g.last_name, g.created_at, g.updated_at
		FROM guardians g
		JOIN guardian_chats gc ON gc.guardian_id = g.id
		WHERE gc.chat_id = $1
	`, chatID)
	g, err := scanGuardian(row)
	if errors.Is(err, ErrGuardianNotFound) {
		return nil, ErrChatNotLinked
	}
	return g, err
}

func (r *PgRepository) ListDueReminders(ctx context.Context, date time.Time) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, gc.chat_id, c.first_name || ' ' || c.last_name, a.visit_date, a.visit_time, a.visit_type
		FROM appointments a
		JOIN children c ON c.id = a.child_id
		JOIN guardian_chats gc ON gc.guardian_id = a.guardian_id
		WHERE a.visit_date = $1
		  AND a.status IN ('new', 'confirmed')
		  AND a.reminder_sent_at IS NULL
		ORDER BY a.visit_time
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var result []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.AppointmentID, &rem.ChatID, &rem.ChildName, &rem.VisitDate, &rem.VisitTime, &rem.VisitType); err != nil {
			return nil, err
		}
		result = append(result, rem)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, appointmentID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, appointmentID, at)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
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
