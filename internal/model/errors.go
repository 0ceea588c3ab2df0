package model

import "errors"

// Ошибки ядра. Конфликты отдаются вызывающему для повтора с
// актуальным состоянием, ядро само их не ретраит.
var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotUnavailable   = errors.New("slot is not available")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotStarted = errors.New("session has not started")
	ErrJoinWindowClosed  = errors.New("session join window is closed")
	ErrRequestNotFound   = errors.New("session request not found")
	ErrRequestNotPending = errors.New("session request is not pending")
	ErrNotOwner          = errors.New("no permission for this resource")
	ErrPaymentNotFound   = errors.New("payment reference not found")
	ErrValidation        = errors.New("invalid input")
)

// ErrInvalidOrExpiredCode единый ответ на любую причину отказа OTP:
// неверный формат, неверный код, просроченный, уже использованный.
// Причина не различается, чтобы не подсказывать, какие коды существуют.
var ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
