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

type PaymentRepository struct {
	*base.Repository
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{Repository: base.NewRepository(pool), pool: pool}
}

// WithTx возвращает копию репозитория, работающую внутри транзакции
func (r *PaymentRepository) WithTx(tx pgx.Tx) *PaymentRepository {
	return &PaymentRepository{Repository: base.NewRepository(tx), pool: r.pool}
}

const paymentColumns = `id, owner_user_id, session_request_id, session_id, amount, platform_fee,
	       teacher_payout, payment_type, payment_status, external_reference_id,
	       gateway_response, gateway_token, gateway_redirect_url, created_at, updated_at`

// Create создаёт платёж в статусе pending
func (r *PaymentRepository) Create(ctx context.Context, rec *model.PaymentRecord) error {
	query := `
		INSERT INTO payment_records
			(owner_user_id, session_request_id, session_id, amount, platform_fee, teacher_payout,
			 payment_type, payment_status, external_reference_id, gateway_token, gateway_redirect_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		rec.OwnerUserID,
		rec.SessionRequestID,
		rec.SessionID,
		rec.Amount,
		rec.PlatformFee,
		rec.TeacherPayout,
		rec.PaymentType,
		rec.PaymentStatus,
		rec.ExternalReferenceID,
		rec.GatewayToken,
		rec.GatewayRedirectURL,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create payment record: %w", err)
	}

	return nil
}

// GetByReference получает платёж по внешнему референсу шлюза
func (r *PaymentRepository) GetByReference(ctx context.Context, referenceID string) (*model.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_records
		WHERE external_reference_id = $1
	`

	rec, err := scanPayment(r.DB().QueryRow(ctx, query, referenceID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}

	return rec, nil
}

// ApplyNotification применяет уведомление шлюза как одну атомарную единицу,
// ключ — external_reference_id. Внутри одной транзакции: блокировка строки,
// no-op по уже терминальному платежу, запись статуса с сырым payload и
// подтверждение оплаченной брони. Повторная доставка после первой
// терминальной записи ничего не меняет.
//
// Возвращает платёж после применения и признак того, что запись произошла.
func (r *PaymentRepository) ApplyNotification(ctx context.Context, referenceID string, status model.PaymentStatus, rawPayload []byte) (*model.PaymentRecord, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `
		SELECT ` + paymentColumns + `
		FROM payment_records
		WHERE external_reference_id = $1
		FOR UPDATE
	`

	rec, err := scanPayment(tx.QueryRow(ctx, lockQuery, referenceID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, false, model.ErrPaymentNotFound
		}
		return nil, false, fmt.Errorf("lock payment by reference: %w", err)
	}

	// Идемпотентность at-least-once доставки: первый терминальный
	// статус окончательный, остальные доставки — no-op.
	if rec.PaymentStatus.Terminal() {
		return rec, false, nil
	}

	updateQuery := `
		UPDATE payment_records
		SET payment_status = $1, gateway_response = $2, updated_at = now()
		WHERE id = $3
		RETURNING updated_at
	`

	if err := tx.QueryRow(ctx, updateQuery, status, rawPayload, rec.ID).Scan(&rec.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("update payment status: %w", err)
	}
	rec.PaymentStatus = status
	rec.GatewayResponse = rawPayload

	// Успешная оплата студента подтверждает бронь в той же транзакции,
	// иначе падение процесса между записями оставит оплаченную, но
	// неподтверждённую запись.
	if status == model.PaymentStatusCompleted && rec.PaymentType == model.PaymentTypeStudentPayment {
		if err := confirmBooking(ctx, tx, rec); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}

	return rec, true, nil
}

func confirmBooking(ctx context.Context, tx pgx.Tx, rec *model.PaymentRecord) error {
	now := time.Now()

	if rec.SessionID != nil {
		query := `
			UPDATE session_attendees
			SET paid_at = $1
			WHERE session_id = $2 AND student_id = $3 AND paid_at IS NULL
		`
		if _, err := tx.Exec(ctx, query, now, *rec.SessionID, rec.OwnerUserID); err != nil {
			return fmt.Errorf("confirm attendee payment: %w", err)
		}
	}

	if rec.SessionRequestID != nil {
		query := `
			UPDATE session_requests
			SET paid_at = $1, updated_at = now()
			WHERE id = $2 AND paid_at IS NULL
		`
		if _, err := tx.Exec(ctx, query, now, *rec.SessionRequestID); err != nil {
			return fmt.Errorf("confirm request payment: %w", err)
		}
	}

	return nil
}

func scanPayment(row pgx.Row) (*model.PaymentRecord, error) {
	var rec model.PaymentRecord
	err := row.Scan(
		&rec.ID,
		&rec.OwnerUserID,
		&rec.SessionRequestID,
		&rec.SessionID,
		&rec.Amount,
		&rec.PlatformFee,
		&rec.TeacherPayout,
		&rec.PaymentType,
		&rec.PaymentStatus,
		&rec.ExternalReferenceID,
		&rec.GatewayResponse,
		&rec.GatewayToken,
		&rec.GatewayRedirectURL,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
