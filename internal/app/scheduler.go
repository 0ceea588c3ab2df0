package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lessonhub/tutor_platform/internal/service"
)

// Интервалы фоновых свипов. Свипы независимы, не блокируют друг
// друга и условны по сохранённому состоянию, поэтому их безопасно
// гонять и в одном процессе, и в нескольких.
const (
	availabilitySweepInterval = 60 * time.Second
	sessionSweepInterval      = 5 * time.Minute
	requestSweepInterval      = 5 * time.Minute
)

// Scheduler управляет фоновыми задачами жизненного цикла
type Scheduler struct {
	availability *service.AvailabilityService
	sessions     *service.SessionService
	logger       *zap.Logger
	stopChan     chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(availability *service.AvailabilityService, sessions *service.SessionService, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		availability: availability,
		sessions:     sessions,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler")

	go s.runLoop(ctx, "availability sweep", availabilitySweepInterval, s.sweepAvailability)
	go s.runLoop(ctx, "session status sweep", sessionSweepInterval, s.sweepSessions)
	go s.runLoop(ctx, "request expiry sweep", requestSweepInterval, s.sweepRequests)
}

// Stop останавливает фоновые задачи. Идущая итерация дорабатывает,
// новая не начинается.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
}

// runLoop периодически запускает задачу. Первый запуск сразу при
// старте, ошибки итерации логируются и не валят процесс.
func (s *Scheduler) runLoop(ctx context.Context, name string, interval time.Duration, task func(context.Context) error) {
	run := func() {
		if err := task(ctx); err != nil {
			s.logger.Error("Sweep iteration failed",
				zap.String("sweep", name),
				zap.Error(err),
			)
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run()
		case <-s.stopChan:
			s.logger.Info("Sweep stopped", zap.String("sweep", name))
			return
		case <-ctx.Done():
			s.logger.Info("Sweep cancelled", zap.String("sweep", name))
			return
		}
	}
}

func (s *Scheduler) sweepAvailability(ctx context.Context) error {
	return s.availability.SweepExpired(ctx, time.Now())
}

func (s *Scheduler) sweepSessions(ctx context.Context) error {
	now := time.Now()
	if err := s.sessions.Advance(ctx, now); err != nil {
		// Напоминания не зависят от разрешения статусов, шлём всё равно
		s.logger.Error("Session advance failed", zap.Error(err))
	}
	return s.sessions.SendReminders(ctx, now)
}

func (s *Scheduler) sweepRequests(ctx context.Context) error {
	return s.sessions.ExpireRequests(ctx, time.Now())
}
