package model

import "time"

// SessionAttendee участник занятия. Одна строка на записавшегося студента.
// Attended выставляется отметкой посещаемости, PaidAt — вебхуком оплаты.
type SessionAttendee struct {
	ID        int64      `json:"id"`
	SessionID int64      `json:"session_id"`
	StudentID int64      `json:"student_id"`
	Attended  bool       `json:"attended"`
	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `json:"created_at"`
}
