package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessonhub/tutor_platform/internal/model"
	"github.com/lessonhub/tutor_platform/internal/repository/base"
)

type RequestRepository struct {
	*base.Repository
	pool     *pgxpool.Pool
	sessions *SessionRepository
}

func NewRequestRepository(pool *pgxpool.Pool, sessions *SessionRepository) *RequestRepository {
	return &RequestRepository{Repository: base.NewRepository(pool), pool: pool, sessions: sessions}
}

// WithTx возвращает копию репозитория, работающую внутри транзакции
func (r *RequestRepository) WithTx(tx pgx.Tx) *RequestRepository {
	return &RequestRepository{Repository: base.NewRepository(tx), pool: r.pool, sessions: r.sessions}
}

const requestColumns = `id, student_id, teacher_id, course_id, proposed_title, proposed_date,
	       proposed_duration, message, status, paid_at, created_at, updated_at`

// Create создаёт новую заявку на занятие
func (r *RequestRepository) Create(ctx context.Context, req *model.SessionRequest) error {
	query := `
		INSERT INTO session_requests
			(student_id, teacher_id, course_id, proposed_title, proposed_date, proposed_duration, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		req.StudentID,
		req.TeacherID,
		req.CourseID,
		req.ProposedTitle,
		req.ProposedDate,
		req.ProposedDuration,
		req.Message,
		req.Status,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create session request: %w", err)
	}

	return nil
}

// GetByID получает заявку по ID
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*model.SessionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM session_requests
		WHERE id = $1
	`

	req, err := scanRequest(r.DB().QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get request by id: %w", err)
	}

	return req, nil
}

// ListPendingByTeacher получает все pending заявки учителя
func (r *RequestRepository) ListPendingByTeacher(ctx context.Context, teacherID int64) ([]*model.SessionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM session_requests
		WHERE teacher_id = $1 AND status = 'pending'
		ORDER BY created_at
	`

	rows, err := r.DB().Query(ctx, query, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.SessionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// Decide переводит pending-заявку в решённый статус.
// Заявка мутируется ровно один раз: проигравший вторую попытку
// получает false, статус обратно не меняется.
func (r *RequestRepository) Decide(ctx context.Context, id int64, to model.RequestStatus) (bool, error) {
	query := `
		UPDATE session_requests
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = 'pending'
	`

	affected, err := r.ExecAffected(ctx, query, to, id)
	if err != nil {
		return false, fmt.Errorf("decide request: %w", err)
	}

	return affected == 1, nil
}

// Accept принимает заявку и создаёт по ней занятие с участником.
// Все три записи идут в одной транзакции: либо заявка становится
// accepted вместе с занятием, либо остаётся pending и принятие можно
// повторить целиком. Уже решённая заявка даёт false без записей.
func (r *RequestRepository) Accept(ctx context.Context, requestID int64, sess *model.Session, studentID int64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := r.WithTx(tx).Decide(ctx, requestID, model.RequestStatusAccepted)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	sessions := r.sessions.WithTx(tx)

	if err := sessions.Create(ctx, sess); err != nil {
		return false, err
	}

	attendee := &model.SessionAttendee{SessionID: sess.ID, StudentID: studentID}
	if err := sessions.AddAttendee(ctx, attendee); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	return true, nil
}

// ExpireStale переводит в expired pending-заявки с прошедшей предложенной датой
func (r *RequestRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE session_requests
		SET status = 'expired', updated_at = now()
		WHERE status = 'pending'
		  AND proposed_date < $1
	`

	affected, err := r.ExecAffected(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale requests: %w", err)
	}

	return affected, nil
}

func scanRequest(row pgx.Row) (*model.SessionRequest, error) {
	var req model.SessionRequest
	err := row.Scan(
		&req.ID,
		&req.StudentID,
		&req.TeacherID,
		&req.CourseID,
		&req.ProposedTitle,
		&req.ProposedDate,
		&req.ProposedDuration,
		&req.Message,
		&req.Status,
		&req.PaidAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
