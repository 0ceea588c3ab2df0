package model

import "time"

type PaymentType string

const (
	PaymentTypeStudentPayment PaymentType = "student_payment"
	PaymentTypeTeacherPayout  PaymentType = "teacher_payout"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal сообщает, что платёж уже финализирован.
// Повторная доставка уведомления о таком платеже — no-op.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// PaymentRecord платёж студента или выплата учителю.
// ExternalReferenceID — идемпотентный ключ со стороны шлюза:
// из pending платёж уходит ровно один раз, строго по этому ключу.
type PaymentRecord struct {
	ID                  int64         `json:"id"`
	OwnerUserID         int64         `json:"owner_user_id"`
	SessionRequestID    *int64        `json:"session_request_id"`
	SessionID           *int64        `json:"session_id"`
	Amount              float64       `json:"amount"`
	PlatformFee         float64       `json:"platform_fee"`
	TeacherPayout       float64       `json:"teacher_payout"`
	PaymentType         PaymentType   `json:"payment_type"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	ExternalReferenceID string        `json:"external_reference_id"`
	GatewayResponse     []byte        `json:"-"` // сырой payload вебхука, хранится как есть для аудита
	GatewayToken        *string       `json:"gateway_token"`
	GatewayRedirectURL  *string       `json:"gateway_redirect_url"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}
