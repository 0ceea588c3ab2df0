package model

import "time"

type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusMissed     SessionStatus = "missed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// Terminal сообщает, что статус конечный — свипы такие занятия не трогают.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusMissed || s == SessionStatusCancelled
}

type Session struct {
	ID             int64         `json:"id"`
	TeacherID      int64         `json:"teacher_id"`
	SlotID         *int64        `json:"slot_id"` // nil для занятий, созданных из заявки
	Title          string        `json:"title"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	MeetingLink    *string       `json:"meeting_link"`
	Status         SessionStatus `json:"status"`
	ReminderSentAt *time.Time    `json:"reminder_sent_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
