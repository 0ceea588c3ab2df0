package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lessonhub/tutor_platform/internal/model"
	"github.com/lessonhub/tutor_platform/internal/repository/base"
)

type OTPRepository struct {
	*base.Repository
}

func NewOTPRepository(db base.Querier) *OTPRepository {
	return &OTPRepository{Repository: base.NewRepository(db)}
}

const otpColumns = `id, email, code, user_data, expires_at, verified, used, created_at`

// Create сохраняет новый код. Прежние коды того же получателя
// не инвалидируются — их срежет expires_at.
func (r *OTPRepository) Create(ctx context.Context, ch *model.OTPChallenge) error {
	query := `
		INSERT INTO otp_challenges (email, code, user_data, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, verified, used, created_at
	`

	err := r.DB().QueryRow(ctx, query, ch.Email, ch.Code, ch.UserData, ch.ExpiresAt).
		Scan(&ch.ID, &ch.Verified, &ch.Used, &ch.CreatedAt)
	if err != nil {
		return fmt.Errorf("create otp challenge: %w", err)
	}

	return nil
}

// FindValid ищет самый свежий непросроченный и неиспользованный код
func (r *OTPRepository) FindValid(ctx context.Context, email, code string, now time.Time) (*model.OTPChallenge, error) {
	query := `
		SELECT ` + otpColumns + `
		FROM otp_challenges
		WHERE email = $1
		  AND code = $2
		  AND expires_at > $3
		  AND NOT used
		ORDER BY created_at DESC
		LIMIT 1
	`

	ch, err := scanOTP(r.DB().QueryRow(ctx, query, email, code, now))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find valid otp: %w", err)
	}

	return ch, nil
}

// FindVerified ищет подтверждённый, но ещё не использованный код
func (r *OTPRepository) FindVerified(ctx context.Context, email, code string) (*model.OTPChallenge, error) {
	query := `
		SELECT ` + otpColumns + `
		FROM otp_challenges
		WHERE email = $1
		  AND code = $2
		  AND verified
		  AND NOT used
		ORDER BY created_at DESC
		LIMIT 1
	`

	ch, err := scanOTP(r.DB().QueryRow(ctx, query, email, code))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find verified otp: %w", err)
	}

	return ch, nil
}

// MarkVerified отмечает код подтверждённым
func (r *OTPRepository) MarkVerified(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE otp_challenges
		SET verified = true
		WHERE id = $1 AND NOT used
	`

	affected, err := r.ExecAffected(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark otp verified: %w", err)
	}

	return affected == 1, nil
}

// MarkUsed гасит код. Условие на NOT used даёт строгую однократность:
// второй вызов по тому же коду вернёт false.
func (r *OTPRepository) MarkUsed(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE otp_challenges
		SET used = true
		WHERE id = $1 AND verified AND NOT used
	`

	affected, err := r.ExecAffected(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark otp used: %w", err)
	}

	return affected == 1, nil
}

func scanOTP(row pgx.Row) (*model.OTPChallenge, error) {
	var ch model.OTPChallenge
	err := row.Scan(
		&ch.ID,
		&ch.Email,
		&ch.Code,
		&ch.UserData,
		&ch.ExpiresAt,
		&ch.Verified,
		&ch.Used,
		&ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}
