package model

import "time"

// OTPChallenge одноразовый код подтверждения email.
// Старые коды явно не инвалидируются: валидность определяется
// только expires_at и флагами verified/used, поиск берёт самую
// свежую подходящую строку.
type OTPChallenge struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"-"`
	UserData  []byte    `json:"user_data,omitempty"` // опциональный payload регистрации, возвращается как есть
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}
