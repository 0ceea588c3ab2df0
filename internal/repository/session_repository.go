package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lessonhub/tutor_platform/internal/model"
	"github.com/lessonhub/tutor_platform/internal/repository/base"
)

type SessionRepository struct {
	*base.Repository
}

func NewSessionRepository(db base.Querier) *SessionRepository {
	return &SessionRepository{Repository: base.NewRepository(db)}
}

// WithTx возвращает копию репозитория, работающую внутри транзакции
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	return NewSessionRepository(tx)
}

const sessionColumns = `id, teacher_id, slot_id, title, start_time, end_time,
	       meeting_link, status, reminder_sent_at, created_at, updated_at`

// Create создаёт новое занятие
func (r *SessionRepository) Create(ctx context.Context, sess *model.Session) error {
	query := `
		INSERT INTO sessions (teacher_id, slot_id, title, start_time, end_time, meeting_link, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		sess.TeacherID,
		sess.SlotID,
		sess.Title,
		sess.StartTime,
		sess.EndTime,
		sess.MeetingLink,
		sess.Status,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByID получает занятие по ID
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1
	`

	sess, err := scanSession(r.DB().QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return sess, nil
}

// FindBySlotID получает занятие, привязанное к слоту
func (r *SessionRepository) FindBySlotID(ctx context.Context, slotID int64) (*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE slot_id = $1
	`

	sess, err := scanSession(r.DB().QueryRow(ctx, query, slotID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find session by slot: %w", err)
	}

	return sess, nil
}

// Start переводит занятие scheduled -> in_progress.
// Возвращает false, если занятие уже не в scheduled.
func (r *SessionRepository) Start(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE sessions
		SET status = 'in_progress', updated_at = now()
		WHERE id = $1 AND status = 'scheduled'
	`

	affected, err := r.ExecAffected(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("start session: %w", err)
	}

	return affected == 1, nil
}

// ResolveFinished разрешает идущие занятия с прошедшим end_time:
// completed при хотя бы одном attended-участнике, иначе missed.
// Терминальные статусы условиями не затрагиваются, повтор безопасен.
func (r *SessionRepository) ResolveFinished(ctx context.Context, now time.Time) (completed, missed int64, err error) {
	completedQuery := `
		UPDATE sessions s
		SET status = 'completed', updated_at = now()
		WHERE s.status = 'in_progress'
		  AND s.end_time <= $1
		  AND EXISTS (
			SELECT 1 FROM session_attendees a
			WHERE a.session_id = s.id AND a.attended
		  )
	`

	completed, err = r.ExecAffected(ctx, completedQuery, now)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve completed sessions: %w", err)
	}

	missedQuery := `
		UPDATE sessions s
		SET status = 'missed', updated_at = now()
		WHERE s.status = 'in_progress'
		  AND s.end_time <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM session_attendees a
			WHERE a.session_id = s.id AND a.attended
		  )
	`

	missed, err = r.ExecAffected(ctx, missedQuery, now)
	if err != nil {
		return completed, 0, fmt.Errorf("resolve missed sessions: %w", err)
	}

	return completed, missed, nil
}

// CancelStale отменяет scheduled-занятия, начало которых старше cutoff
func (r *SessionRepository) CancelStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET status = 'cancelled', updated_at = now()
		WHERE status = 'scheduled'
		  AND start_time < $1
	`

	affected, err := r.ExecAffected(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cancel stale sessions: %w", err)
	}

	return affected, nil
}

// DueForReminder выбирает занятия, начинающиеся в окне [from, to),
// по которым напоминание ещё не отправлялось
func (r *SessionRepository) DueForReminder(ctx context.Context, from, to time.Time) ([]*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = 'scheduled'
		  AND start_time >= $1
		  AND start_time < $2
		  AND reminder_sent_at IS NULL
		ORDER BY start_time
	`

	rows, err := r.DB().Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("select sessions due for reminder: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// MarkReminderSent фиксирует отправку напоминания.
// Условие на NULL делает отметку однократной при конкурентных свипах.
func (r *SessionRepository) MarkReminderSent(ctx context.Context, id int64, sentAt time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET reminder_sent_at = $1, updated_at = now()
		WHERE id = $2 AND reminder_sent_at IS NULL
	`

	affected, err := r.ExecAffected(ctx, query, sentAt, id)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}

	return affected == 1, nil
}

// AddAttendee добавляет участника занятия
func (r *SessionRepository) AddAttendee(ctx context.Context, att *model.SessionAttendee) error {
	query := `
		INSERT INTO session_attendees (session_id, student_id)
		VALUES ($1, $2)
		RETURNING id, attended, created_at
	`

	err := r.DB().QueryRow(ctx, query, att.SessionID, att.StudentID).
		Scan(&att.ID, &att.Attended, &att.CreatedAt)
	if err != nil {
		return fmt.Errorf("add attendee: %w", err)
	}

	return nil
}

// Attendees получает участников занятия
func (r *SessionRepository) Attendees(ctx context.Context, sessionID int64) ([]*model.SessionAttendee, error) {
	query := `
		SELECT id, session_id, student_id, attended, paid_at, created_at
		FROM session_attendees
		WHERE session_id = $1
		ORDER BY id
	`

	rows, err := r.DB().Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get attendees: %w", err)
	}
	defer rows.Close()

	var attendees []*model.SessionAttendee
	for rows.Next() {
		var att model.SessionAttendee
		err := rows.Scan(
			&att.ID,
			&att.SessionID,
			&att.StudentID,
			&att.Attended,
			&att.PaidAt,
			&att.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, &att)
	}

	return attendees, rows.Err()
}

// MarkAttended отмечает присутствие студента на занятии
func (r *SessionRepository) MarkAttended(ctx context.Context, sessionID, studentID int64) (bool, error) {
	query := `
		UPDATE session_attendees
		SET attended = true
		WHERE session_id = $1 AND student_id = $2
	`

	affected, err := r.ExecAffected(ctx, query, sessionID, studentID)
	if err != nil {
		return false, fmt.Errorf("mark attended: %w", err)
	}

	return affected == 1, nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var sess model.Session
	err := row.Scan(
		&sess.ID,
		&sess.TeacherID,
		&sess.SlotID,
		&sess.Title,
		&sess.StartTime,
		&sess.EndTime,
		&sess.MeetingLink,
		&sess.Status,
		&sess.ReminderSentAt,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
