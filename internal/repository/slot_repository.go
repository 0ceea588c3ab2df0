package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lessonhub/tutor_platform/internal/model"
	"github.com/lessonhub/tutor_platform/internal/repository/base"
)

type SlotRepository struct {
	*base.Repository
}

func NewSlotRepository(db base.Querier) *SlotRepository {
	return &SlotRepository{Repository: base.NewRepository(db)}
}

// WithTx возвращает копию репозитория, работающую внутри транзакции
func (r *SlotRepository) WithTx(tx pgx.Tx) *SlotRepository {
	return NewSlotRepository(tx)
}

const slotColumns = `id, teacher_id, subject_id, date, start_time, end_time,
	       capacity, booked_count, status, hourly_rate, auto_cancel_at, created_at`

// Create создаёт новый слот доступности
func (r *SlotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	query := `
		INSERT INTO availability_slots
			(teacher_id, subject_id, date, start_time, end_time, capacity, status, hourly_rate, auto_cancel_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, booked_count, created_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		slot.TeacherID,
		slot.SubjectID,
		slot.Date,
		slot.StartTime,
		slot.EndTime,
		slot.Capacity,
		slot.Status,
		slot.HourlyRate,
		slot.AutoCancelAt,
	).Scan(&slot.ID, &slot.BookedCount, &slot.CreatedAt)

	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE id = $1
	`

	slot, err := scanSlot(r.DB().QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// ListOpenByTeacher получает открытые слоты учителя в заданном диапазоне дат
func (r *SlotRepository) ListOpenByTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE teacher_id = $1
		  AND status = 'available'
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`

	rows, err := r.DB().Query(ctx, query, teacherID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

// ListByTeacher получает все слоты учителя независимо от статуса
func (r *SlotRepository) ListByTeacher(ctx context.Context, teacherID int64) ([]*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE teacher_id = $1
		ORDER BY start_time DESC
	`

	rows, err := r.DB().Query(ctx, query, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list slots by teacher: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

// ClaimSeat занимает одно место в слоте условным обновлением.
// Условие повторяет прочитанное состояние: проигравший гонку за
// последнее место получает 0 затронутых строк и ErrSlotUnavailable.
func (r *SlotRepository) ClaimSeat(ctx context.Context, slotID int64) error {
	query := `
		UPDATE availability_slots
		SET booked_count = booked_count + 1,
		    status = CASE WHEN booked_count + 1 >= capacity THEN 'booked' ELSE status END
		WHERE id = $1
		  AND status = 'available'
		  AND booked_count < capacity
	`

	affected, err := r.ExecAffected(ctx, query, slotID)
	if err != nil {
		return fmt.Errorf("claim seat: %w", err)
	}

	if affected == 0 {
		return model.ErrSlotUnavailable
	}

	return nil
}

// ExpirePast переводит в expired свободные слоты с полностью прошедшей датой.
// Повторный запуск по уже терминальным слотам ничего не меняет.
func (r *SlotRepository) ExpirePast(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE availability_slots
		SET status = 'expired'
		WHERE status = 'available'
		  AND date < $1::date
	`

	affected, err := r.ExecAffected(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire past slots: %w", err)
	}

	return affected, nil
}

// CancelDue отменяет свободные слоты с наступившим auto_cancel_at.
// Забронированные слоты свип не трогает — распадаются только свободные.
func (r *SlotRepository) CancelDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE availability_slots
		SET status = 'cancelled'
		WHERE status = 'available'
		  AND auto_cancel_at IS NOT NULL
		  AND auto_cancel_at <= $1
	`

	affected, err := r.ExecAffected(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("cancel due slots: %w", err)
	}

	return affected, nil
}

func scanSlot(row pgx.Row) (*model.AvailabilitySlot, error) {
	var slot model.AvailabilitySlot
	err := row.Scan(
		&slot.ID,
		&slot.TeacherID,
		&slot.SubjectID,
		&slot.Date,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Capacity,
		&slot.BookedCount,
		&slot.Status,
		&slot.HourlyRate,
		&slot.AutoCancelAt,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func collectSlots(rows pgx.Rows) ([]*model.AvailabilitySlot, error) {
	var slots []*model.AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}
