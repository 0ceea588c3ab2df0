package model

import "time"

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusCancelled SlotStatus = "cancelled"
	SlotStatusExpired   SlotStatus = "expired"
)

// Terminal сообщает, что слот больше не принимает бронирования.
// Статусы движутся только вперёд, обратных переходов нет.
func (s SlotStatus) Terminal() bool {
	return s != SlotStatusAvailable
}

type AvailabilitySlot struct {
	ID           int64      `json:"id"`
	TeacherID    int64      `json:"teacher_id"`
	SubjectID    int64      `json:"subject_id"`
	Date         time.Time  `json:"date"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
	Capacity     int        `json:"capacity"`
	BookedCount  int        `json:"booked_count"`
	Status       SlotStatus `json:"status"`
	HourlyRate   float64    `json:"hourly_rate"` // базовая ставка учителя, вход для расчёта цены
	AutoCancelAt *time.Time `json:"auto_cancel_at"`
	CreatedAt    time.Time  `json:"created_at"`
}
