package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/lessonhub/tutor_platform/internal/model"
)

// Notifier внешний канал уведомлений. Ядро не гарантирует доставку:
// отказ отправки логируется и не останавливает свип.
type Notifier interface {
	SendOTPCode(ctx context.Context, email, code string) error
	SendSessionReminder(ctx context.Context, studentID int64, sess *model.Session) error
}

// LogNotifier реализация по умолчанию: пишет уведомления в лог
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOTPCode(_ context.Context, email, code string) error {
	// Сам код в лог не пишем
	n.logger.Info("OTP code dispatched",
		zap.String("email", email),
		zap.Int("code_length", len(code)),
	)
	return nil
}

func (n *LogNotifier) SendSessionReminder(_ context.Context, studentID int64, sess *model.Session) error {
	n.logger.Info("Session reminder dispatched",
		zap.Int64("student_id", studentID),
		zap.Int64("session_id", sess.ID),
		zap.Time("start_time", sess.StartTime),
	)
	return nil
}
