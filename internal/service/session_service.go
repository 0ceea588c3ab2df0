package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lessonhub/tutor_platform/internal/model"
)

const (
	// ReminderLeadTime за сколько до начала занятия уходит напоминание
	ReminderLeadTime = 3 * time.Hour
	// StaleSessionCutoff через сколько после start_time так и не
	// начавшееся занятие принудительно отменяется
	StaleSessionCutoff = 5 * 24 * time.Hour

	notifyTimeout    = 10 * time.Second
	notifyMaxRetries = 3
	notifyRetryBase  = 200 * time.Millisecond
)

// SessionStore хранилище занятий и участников
type SessionStore interface {
	Create(ctx context.Context, sess *model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	Start(ctx context.Context, id int64) (bool, error)
	ResolveFinished(ctx context.Context, now time.Time) (completed, missed int64, err error)
	CancelStale(ctx context.Context, cutoff time.Time) (int64, error)
	DueForReminder(ctx context.Context, from, to time.Time) ([]*model.Session, error)
	MarkReminderSent(ctx context.Context, id int64, sentAt time.Time) (bool, error)
	AddAttendee(ctx context.Context, att *model.SessionAttendee) error
	Attendees(ctx context.Context, sessionID int64) ([]*model.SessionAttendee, error)
	MarkAttended(ctx context.Context, sessionID, studentID int64) (bool, error)
}

// RequestStore хранилище заявок на занятия.
// Accept — атомарная единица принятия: переход pending→accepted,
// занятие и участник пишутся вместе, при отказе заявка остаётся pending.
type RequestStore interface {
	Create(ctx context.Context, req *model.SessionRequest) error
	GetByID(ctx context.Context, id int64) (*model.SessionRequest, error)
	ListPendingByTeacher(ctx context.Context, teacherID int64) ([]*model.SessionRequest, error)
	Accept(ctx context.Context, requestID int64, sess *model.Session, studentID int64) (bool, error)
	Decide(ctx context.Context, id int64, to model.RequestStatus) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// SessionService владеет машиной состояний занятия и заявками.
// Advance — функция только от (now, start_time, end_time, attended):
// безопасен для повторного прогона и никогда не трогает занятия
// в терминальном статусе.
type SessionService struct {
	sessions SessionStore
	requests RequestStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewSessionService(sessions SessionStore, requests RequestStore, notifier Notifier, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		requests: requests,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SubmitRequest создаёт заявку студента на индивидуальное занятие
func (s *SessionService) SubmitRequest(ctx context.Context, req *model.SessionRequest) error {
	if req.ProposedDate.Before(s.now()) {
		return fmt.Errorf("%w: proposed date is in the past", model.ErrValidation)
	}
	if req.ProposedDuration < 1 {
		return fmt.Errorf("%w: proposed duration must be positive", model.ErrValidation)
	}

	req.Status = model.RequestStatusPending

	if err := s.requests.Create(ctx, req); err != nil {
		return err
	}

	s.logger.Info("Session request submitted",
		zap.Int64("request_id", req.ID),
		zap.Int64("student_id", req.StudentID),
		zap.Int64("teacher_id", req.TeacherID),
		zap.Time("proposed_date", req.ProposedDate),
	)

	return nil
}

// ListPendingRequests получает pending заявки учителя
func (s *SessionService) ListPendingRequests(ctx context.Context, teacherID int64) ([]*model.SessionRequest, error) {
	return s.requests.ListPendingByTeacher(ctx, teacherID)
}

// AcceptRequest принимает заявку и создаёт по ней занятие.
// Заявка решается ровно один раз: условное обновление статуса,
// проигравший повторное решение получает ErrRequestNotPending.
func (s *SessionService) AcceptRequest(ctx context.Context, requestID, teacherID int64) (*model.Session, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, model.ErrRequestNotFound
	}
	if req.TeacherID != teacherID {
		return nil, model.ErrNotOwner
	}
	if req.Status != model.RequestStatusPending {
		return nil, model.ErrRequestNotPending
	}

	sess := &model.Session{
		TeacherID: req.TeacherID,
		Title:     req.ProposedTitle,
		StartTime: req.ProposedDate,
		EndTime:   req.ProposedDate.Add(time.Duration(req.ProposedDuration) * time.Minute),
		Status:    model.SessionStatusScheduled,
	}

	ok, err := s.requests.Accept(ctx, requestID, sess, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("accept request: %w", err)
	}
	if !ok {
		return nil, model.ErrRequestNotPending
	}

	s.logger.Info("Session request accepted",
		zap.Int64("request_id", requestID),
		zap.Int64("teacher_id", teacherID),
		zap.Int64("session_id", sess.ID),
	)

	return sess, nil
}

// RejectRequest отклоняет заявку
func (s *SessionService) RejectRequest(ctx context.Context, requestID, teacherID int64) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return model.ErrRequestNotFound
	}
	if req.TeacherID != teacherID {
		return model.ErrNotOwner
	}
	if req.Status != model.RequestStatusPending {
		return model.ErrRequestNotPending
	}

	ok, err := s.requests.Decide(ctx, requestID, model.RequestStatusRejected)
	if err != nil {
		return fmt.Errorf("reject request: %w", err)
	}
	if !ok {
		return model.ErrRequestNotPending
	}

	s.logger.Info("Session request rejected",
		zap.Int64("request_id", requestID),
		zap.Int64("teacher_id", teacherID),
	)

	return nil
}

// StartSession переводит занятие в in_progress.
// Разрешён только внутри окна входа; повторный старт — no-op.
func (s *SessionService) StartSession(ctx context.Context, sessionID, teacherID int64) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return model.ErrSessionNotFound
	}
	if sess.TeacherID != teacherID {
		return model.ErrNotOwner
	}
	if sess.Status == model.SessionStatusInProgress {
		return nil
	}
	if sess.Status.Terminal() {
		return model.ErrJoinWindowClosed
	}

	window := CalcJoinWindow(s.now(), sess.StartTime, sess.EndTime)
	if window.State != JoinStateJoinable && window.State != JoinStateLive {
		return model.ErrJoinWindowClosed
	}

	ok, err := s.sessions.Start(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if !ok {
		// Параллельный старт уже перевёл занятие
		return nil
	}

	s.logger.Info("Session started",
		zap.Int64("session_id", sessionID),
		zap.Int64("teacher_id", teacherID),
	)

	return nil
}

// JoinWindowFor считает окно входа для занятия на текущий момент
func (s *SessionService) JoinWindowFor(ctx context.Context, sessionID int64) (*model.Session, JoinWindow, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, JoinWindow{}, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, JoinWindow{}, model.ErrSessionNotFound
	}

	return sess, CalcJoinWindow(s.now(), sess.StartTime, sess.EndTime), nil
}

// MarkAttendance отмечает присутствие студента на занятии
func (s *SessionService) MarkAttendance(ctx context.Context, sessionID, studentID int64) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return model.ErrSessionNotFound
	}
	if s.now().Before(sess.StartTime) {
		return model.ErrSessionNotStarted
	}

	ok, err := s.sessions.MarkAttended(ctx, sessionID, studentID)
	if err != nil {
		return fmt.Errorf("mark attended: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: student %d is not enrolled in session %d", model.ErrValidation, studentID, sessionID)
	}

	s.logger.Info("Attendance marked",
		zap.Int64("session_id", sessionID),
		zap.Int64("student_id", studentID),
	)

	return nil
}

// Advance прокручивает машину состояний занятий на момент now:
// идущие занятия с прошедшим концом уходят в completed или missed
// по факту посещаемости, scheduled-занятия старше пяти дней после
// начала — в cancelled. Ошибки не останавливают оставшиеся шаги.
func (s *SessionService) Advance(ctx context.Context, now time.Time) error {
	var errs error

	completed, missed, err := s.sessions.ResolveFinished(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if completed > 0 || missed > 0 {
		s.logger.Info("Finished sessions resolved",
			zap.Int64("completed", completed),
			zap.Int64("missed", missed),
		)
	}

	cancelled, err := s.sessions.CancelStale(ctx, now.Add(-StaleSessionCutoff))
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if cancelled > 0 {
		s.logger.Info("Stale sessions cancelled", zap.Int64("count", cancelled))
	}

	return errs
}

// SendReminders рассылает напоминания по занятиям, начинающимся в
// ближайшие три часа. Отметка reminder_sent_at ставится после удачной
// отправки, поэтому занятие напоминается один раз, а не каждый свип.
// Отказ по одному занятию не останавливает остальные.
func (s *SessionService) SendReminders(ctx context.Context, now time.Time) error {
	due, err := s.sessions.DueForReminder(ctx, now, now.Add(ReminderLeadTime))
	if err != nil {
		return fmt.Errorf("select sessions due for reminder: %w", err)
	}

	var errs error
	for _, sess := range due {
		if err := s.remindSession(ctx, sess, now); err != nil {
			s.logger.Error("Failed to remind session",
				zap.Int64("session_id", sess.ID),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (s *SessionService) remindSession(ctx context.Context, sess *model.Session, now time.Time) error {
	attendees, err := s.sessions.Attendees(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("get attendees: %w", err)
	}

	for _, att := range attendees {
		if err := s.sendReminder(ctx, att.StudentID, sess); err != nil {
			return fmt.Errorf("send reminder to student %d: %w", att.StudentID, err)
		}
	}

	ok, err := s.sessions.MarkReminderSent(ctx, sess.ID, now)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if ok {
		s.logger.Info("Session reminder sent",
			zap.Int64("session_id", sess.ID),
			zap.Int("attendees", len(attendees)),
			zap.Time("start_time", sess.StartTime),
		)
	}

	return nil
}

// sendReminder отправка с ограниченным таймаутом и короткими
// повторами, чтобы внешний канал не подвешивал цикл свипа
func (s *SessionService) sendReminder(ctx context.Context, studentID int64, sess *model.Session) error {
	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(notifyMaxRetries, retry.NewFibonacci(notifyRetryBase))

	return retry.Do(notifyCtx, backoff, func(ctx context.Context) error {
		if err := s.notifier.SendSessionReminder(ctx, studentID, sess); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// ExpireRequests переводит в expired pending-заявки с прошедшей датой
func (s *SessionService) ExpireRequests(ctx context.Context, now time.Time) error {
	expired, err := s.requests.ExpireStale(ctx, now)
	if err != nil {
		return fmt.Errorf("expire stale requests: %w", err)
	}
	if expired > 0 {
		s.logger.Info("Stale session requests expired", zap.Int64("count", expired))
	}
	return nil
}
