package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessonhub/tutor_platform/internal/model"
)

// BookingRepository транзакционная единица бронирования слота.
// Захват места, занятие, участник и pending-платёж пишутся в одной
// транзакции: либо студент получает место вместе с платёжной записью,
// либо не получает ничего.
type BookingRepository struct {
	pool     *pgxpool.Pool
	slots    *SlotRepository
	sessions *SessionRepository
	payments *PaymentRepository
}

func NewBookingRepository(
	pool *pgxpool.Pool,
	slots *SlotRepository,
	sessions *SessionRepository,
	payments *PaymentRepository,
) *BookingRepository {
	return &BookingRepository{
		pool:     pool,
		slots:    slots,
		sessions: sessions,
		payments: payments,
	}
}

// BookSlot бронирует место в слоте для студента.
// sess — заготовка занятия на случай первого бронирования слота;
// если занятие по слоту уже создано, переиспользуется существующее.
// rec — pending-платёж, его SessionID проставляется здесь.
// Проигравший гонку за последнее место получает model.ErrSlotUnavailable.
func (r *BookingRepository) BookSlot(ctx context.Context, sess *model.Session, studentID int64, rec *model.PaymentRecord) (*model.Session, error) {
	if sess.SlotID == nil {
		return nil, fmt.Errorf("book slot: session template has no slot id")
	}
	slotID := *sess.SlotID

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.slots.WithTx(tx).ClaimSeat(ctx, slotID); err != nil {
		return nil, err
	}

	sessions := r.sessions.WithTx(tx)

	existing, err := sessions.FindBySlotID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		sess = existing
	} else if err := sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	attendee := &model.SessionAttendee{SessionID: sess.ID, StudentID: studentID}
	if err := sessions.AddAttendee(ctx, attendee); err != nil {
		return nil, err
	}

	rec.SessionID = &sess.ID
	if err := r.payments.WithTx(tx).Create(ctx, rec); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return sess, nil
}
