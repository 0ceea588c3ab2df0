package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lessonhub/tutor_platform/internal/model"
)

// SlotStore хранилище слотов доступности
type SlotStore interface {
	Create(ctx context.Context, slot *model.AvailabilitySlot) error
	GetByID(ctx context.Context, id int64) (*model.AvailabilitySlot, error)
	ListOpenByTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.AvailabilitySlot, error)
	ListByTeacher(ctx context.Context, teacherID int64) ([]*model.AvailabilitySlot, error)
	ExpirePast(ctx context.Context, now time.Time) (int64, error)
	CancelDue(ctx context.Context, now time.Time) (int64, error)
}

// BookingStore транзакционная единица бронирования слота
type BookingStore interface {
	BookSlot(ctx context.Context, sess *model.Session, studentID int64, rec *model.PaymentRecord) (*model.Session, error)
}

// AvailabilityService владеет жизненным циклом слота:
// публикация, бронирование и распад свободных слотов со временем
type AvailabilityService struct {
	slots    SlotStore
	bookings BookingStore
	tokens   TokenIssuer // nil — бронирование без токена шлюза
	logger   *zap.Logger
	now      func() time.Time
}

func NewAvailabilityService(slots SlotStore, bookings BookingStore, tokens TokenIssuer, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		slots:    slots,
		bookings: bookings,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

// PublishSlot публикует слот доступности учителя
func (s *AvailabilityService) PublishSlot(ctx context.Context, slot *model.AvailabilitySlot) error {
	if !slot.EndTime.After(slot.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", model.ErrValidation)
	}
	if slot.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", model.ErrValidation)
	}
	if slot.HourlyRate <= 0 {
		return fmt.Errorf("%w: hourly rate must be positive", model.ErrValidation)
	}

	slot.Status = model.SlotStatusAvailable

	if err := s.slots.Create(ctx, slot); err != nil {
		return err
	}

	s.logger.Info("Availability slot published",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("teacher_id", slot.TeacherID),
		zap.Time("start_time", slot.StartTime),
		zap.Int("capacity", slot.Capacity),
	)

	return nil
}

// BookSlot бронирует место в слоте для студента.
// Проверки идут по свежему чтению, само обновление условное:
// два одновременных бронирования последнего места не пройдут оба,
// проигравший получает model.ErrSlotUnavailable и повторяет попытку.
func (s *AvailabilityService) BookSlot(ctx context.Context, slotID, studentID int64, studentName, studentEmail string) (*model.Session, *model.PaymentRecord, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, nil, model.ErrSlotNotFound
	}

	if slot.Status != model.SlotStatusAvailable || slot.BookedCount >= slot.Capacity {
		return nil, nil, model.ErrSlotUnavailable
	}
	if slot.StartTime.Before(s.now()) {
		return nil, nil, model.ErrSlotUnavailable
	}

	price := CalcPrice(slot.HourlyRate)
	orderID := uuid.NewString()

	rec := &model.PaymentRecord{
		OwnerUserID:         studentID,
		Amount:              price.StudentAmount,
		PlatformFee:         price.PlatformFee,
		TeacherPayout:       price.TeacherPayout,
		PaymentType:         model.PaymentTypeStudentPayment,
		PaymentStatus:       model.PaymentStatusPending,
		ExternalReferenceID: orderID,
	}

	if s.tokens != nil {
		token, redirectURL, err := s.tokens.IssueToken(orderID, int64(math.Round(price.StudentAmount)), studentName, studentEmail)
		if err != nil {
			return nil, nil, fmt.Errorf("issue gateway token: %w", err)
		}
		rec.GatewayToken = &token
		rec.GatewayRedirectURL = &redirectURL
	}

	sess := &model.Session{
		TeacherID: slot.TeacherID,
		SlotID:    &slot.ID,
		Title:     fmt.Sprintf("Session on %s", slot.Date.Format("2006-01-02")),
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Status:    model.SessionStatusScheduled,
	}

	sess, err = s.bookings.BookSlot(ctx, sess, studentID, rec)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Slot booked",
		zap.Int64("slot_id", slotID),
		zap.Int64("student_id", studentID),
		zap.Int64("session_id", sess.ID),
		zap.String("external_reference_id", orderID),
		zap.Float64("student_amount", price.StudentAmount),
	)

	return sess, rec, nil
}

// ListOpenSlots получает открытые слоты учителя в диапазоне
func (s *AvailabilityService) ListOpenSlots(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.AvailabilitySlot, error) {
	return s.slots.ListOpenByTeacher(ctx, teacherID, from, to)
}

// ListTeacherSlots получает все слоты учителя
func (s *AvailabilityService) ListTeacherSlots(ctx context.Context, teacherID int64) ([]*model.AvailabilitySlot, error) {
	return s.slots.ListByTeacher(ctx, teacherID)
}

// SweepExpired переводит распавшиеся свободные слоты в терминальные
// статусы: прошедшая дата — в expired, наступивший auto_cancel_at —
// в cancelled. Забронированные слоты свип не трогает. Оба обновления
// идемпотентны, повторный прогон по тем же данным — no-op.
func (s *AvailabilityService) SweepExpired(ctx context.Context, now time.Time) error {
	var errs error

	expired, err := s.slots.ExpirePast(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire past slots: %w", err))
	} else if expired > 0 {
		s.logger.Info("Expired past availability slots", zap.Int64("count", expired))
	}

	cancelled, err := s.slots.CancelDue(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cancel due slots: %w", err))
	} else if cancelled > 0 {
		s.logger.Info("Auto-cancelled availability slots", zap.Int64("count", cancelled))
	}

	return errs
}
