package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/lessonhub/tutor_platform/internal/model"
)

// OTPValidity срок годности одноразового кода
const OTPValidity = 15 * time.Minute

const otpLength = 6

// OTPStore хранилище одноразовых кодов
type OTPStore interface {
	Create(ctx context.Context, ch *model.OTPChallenge) error
	FindValid(ctx context.Context, email, code string, now time.Time) (*model.OTPChallenge, error)
	FindVerified(ctx context.Context, email, code string) (*model.OTPChallenge, error)
	MarkVerified(ctx context.Context, id int64) (bool, error)
	MarkUsed(ctx context.Context, id int64) (bool, error)
}

// OTPService выдаёт, проверяет и гасит одноразовые коды для
// регистрации и сброса пароля
type OTPService struct {
	store    OTPStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewOTPService(store OTPStore, notifier Notifier, logger *zap.Logger) *OTPService {
	return &OTPService{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue генерирует случайный шестизначный код и сохраняет его на 15 минут.
// Прежние коды получателя продолжают действовать до своего expires_at.
// userData — опциональный payload регистрации, вернётся при verify.
func (s *OTPService) Issue(ctx context.Context, email string, userData []byte) (*model.OTPChallenge, error) {
	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}

	ch := &model.OTPChallenge{
		Email:     email,
		Code:      code,
		UserData:  userData,
		ExpiresAt: s.now().Add(OTPValidity),
	}

	if err := s.store.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("persist otp challenge: %w", err)
	}

	if err := s.notifier.SendOTPCode(ctx, email, code); err != nil {
		// Код уже сохранён, получатель может запросить повтор
		s.logger.Warn("Failed to dispatch OTP code",
			zap.String("email", email),
			zap.Error(err),
		)
	}

	s.logger.Info("OTP challenge issued",
		zap.Int64("challenge_id", ch.ID),
		zap.String("email", email),
		zap.Time("expires_at", ch.ExpiresAt),
	)

	return ch, nil
}

// Verify подтверждает код. Любой отказ — неверный формат, неверный
// или просроченный код — возвращает один и тот же ErrInvalidOrExpiredCode.
// На успехе возвращает challenge вместе с сохранённым payload.
func (s *OTPService) Verify(ctx context.Context, email, code string) (*model.OTPChallenge, error) {
	if !validCodeFormat(code) {
		return nil, model.ErrInvalidOrExpiredCode
	}

	ch, err := s.store.FindValid(ctx, email, code, s.now())
	if err != nil {
		return nil, fmt.Errorf("find otp challenge: %w", err)
	}
	if ch == nil {
		return nil, model.ErrInvalidOrExpiredCode
	}

	ok, err := s.store.MarkVerified(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("mark otp verified: %w", err)
	}
	if !ok {
		return nil, model.ErrInvalidOrExpiredCode
	}
	ch.Verified = true

	s.logger.Info("OTP challenge verified",
		zap.Int64("challenge_id", ch.ID),
		zap.String("email", email),
	)

	return ch, nil
}

// Consume гасит ранее подтверждённый код. Это ворота для финального
// действия: смена пароля или завершение регистрации проходят только
// через Consume, и ровно один раз на код.
func (s *OTPService) Consume(ctx context.Context, email, code string) (*model.OTPChallenge, error) {
	if !validCodeFormat(code) {
		return nil, model.ErrInvalidOrExpiredCode
	}

	ch, err := s.store.FindVerified(ctx, email, code)
	if err != nil {
		return nil, fmt.Errorf("find verified otp: %w", err)
	}
	if ch == nil {
		return nil, model.ErrInvalidOrExpiredCode
	}

	ok, err := s.store.MarkUsed(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("mark otp used: %w", err)
	}
	if !ok {
		return nil, model.ErrInvalidOrExpiredCode
	}
	ch.Used = true

	s.logger.Info("OTP challenge consumed",
		zap.Int64("challenge_id", ch.ID),
		zap.String("email", email),
	)

	return ch, nil
}

// generateCode равномерно случайный шестизначный код, с ведущими нулями
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n.Int64()), nil
}

func validCodeFormat(code string) bool {
	if len(code) != otpLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
