package model

import "time"

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
	RequestStatusExpired  RequestStatus = "expired"
)

// SessionRequest заявка студента на индивидуальное занятие.
// Мутируется ровно один раз: решением учителя или свипом просрочки.
type SessionRequest struct {
	ID               int64         `json:"id"`
	StudentID        int64         `json:"student_id"`
	TeacherID        int64         `json:"teacher_id"`
	CourseID         *int64        `json:"course_id"`
	ProposedTitle    string        `json:"proposed_title"`
	ProposedDate     time.Time     `json:"proposed_date"`
	ProposedDuration int           `json:"proposed_duration"` // в минутах
	Message          string        `json:"message"`
	Status           RequestStatus `json:"status"`
	PaidAt           *time.Time    `json:"paid_at"` // выставляется вебхуком оплаты
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
