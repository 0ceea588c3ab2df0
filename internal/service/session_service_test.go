package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lessonhub/tutor_platform/internal/model"
)

type sessionFixture struct {
	svc      *SessionService
	sessions *fakeSessionStore
	requests *fakeRequestStore
	notifier *fakeNotifier
	now      time.Time
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	sessions := newFakeSessionStore()
	requests := newFakeRequestStore(sessions)
	notifier := &fakeNotifier{}

	svc := NewSessionService(sessions, requests, notifier, zap.NewNop())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &sessionFixture{svc: svc, sessions: sessions, requests: requests, notifier: notifier, now: now}
}

func (f *sessionFixture) submitRequest(t *testing.T, proposed time.Time) *model.SessionRequest {
	t.Helper()
	req := &model.SessionRequest{
		StudentID:        42,
		TeacherID:        1,
		ProposedTitle:    "Algebra",
		ProposedDate:     proposed,
		ProposedDuration: 60,
	}
	require.NoError(t, f.svc.SubmitRequest(context.Background(), req))
	return req
}

func (f *sessionFixture) createSession(t *testing.T, start time.Time, status model.SessionStatus, studentIDs ...int64) *model.Session {
	t.Helper()
	sess := &model.Session{
		TeacherID: 1,
		Title:     "Algebra",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    status,
	}
	require.NoError(t, f.sessions.Create(context.Background(), sess))
	for _, id := range studentIDs {
		require.NoError(t, f.sessions.AddAttendee(context.Background(), &model.SessionAttendee{SessionID: sess.ID, StudentID: id}))
	}
	return sess
}

func TestSessionServiceSubmitRequestValidation(t *testing.T) {
	f := newSessionFixture(t)

	err := f.svc.SubmitRequest(context.Background(), &model.SessionRequest{
		ProposedDate:     f.now.Add(-time.Hour),
		ProposedDuration: 60,
	})
	require.ErrorIs(t, err, model.ErrValidation)

	err = f.svc.SubmitRequest(context.Background(), &model.SessionRequest{
		ProposedDate:     f.now.Add(time.Hour),
		ProposedDuration: 0,
	})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestSessionServiceAcceptRequest(t *testing.T) {
	f := newSessionFixture(t)
	req := f.submitRequest(t, f.now.Add(48*time.Hour))

	sess, err := f.svc.AcceptRequest(context.Background(), req.ID, req.TeacherID)
	require.NoError(t, err)

	require.Equal(t, req.TeacherID, sess.TeacherID)
	require.Equal(t, req.ProposedTitle, sess.Title)
	require.Equal(t, req.ProposedDate, sess.StartTime)
	require.Equal(t, req.ProposedDate.Add(60*time.Minute), sess.EndTime)
	require.Equal(t, model.SessionStatusScheduled, sess.Status)

	attendees, err := f.sessions.Attendees(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, attendees, 1)
	require.Equal(t, req.StudentID, attendees[0].StudentID)

	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusAccepted, stored.Status)

	// заявка решается ровно один раз
	_, err = f.svc.AcceptRequest(context.Background(), req.ID, req.TeacherID)
	require.ErrorIs(t, err, model.ErrRequestNotPending)
	err = f.svc.RejectRequest(context.Background(), req.ID, req.TeacherID)
	require.ErrorIs(t, err, model.ErrRequestNotPending)
}

// Срыв записи занятия не оставляет заявку в accepted без занятия:
// она остаётся pending, и принятие можно повторить целиком
func TestSessionServiceAcceptRequestRetryAfterFailure(t *testing.T) {
	f := newSessionFixture(t)
	req := f.submitRequest(t, f.now.Add(48*time.Hour))

	f.sessions.createErr = errors.New("storage down")
	_, err := f.svc.AcceptRequest(context.Background(), req.ID, req.TeacherID)
	require.Error(t, err)

	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusPending, stored.Status)

	f.sessions.createErr = nil
	sess, err := f.svc.AcceptRequest(context.Background(), req.ID, req.TeacherID)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusScheduled, sess.Status)

	attendees, err := f.sessions.Attendees(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, attendees, 1)
}

func TestSessionServiceDecideOwnership(t *testing.T) {
	f := newSessionFixture(t)
	req := f.submitRequest(t, f.now.Add(48*time.Hour))

	_, err := f.svc.AcceptRequest(context.Background(), req.ID, 999)
	require.ErrorIs(t, err, model.ErrNotOwner)
	err = f.svc.RejectRequest(context.Background(), req.ID, 999)
	require.ErrorIs(t, err, model.ErrNotOwner)

	_, err = f.svc.AcceptRequest(context.Background(), 777, req.TeacherID)
	require.ErrorIs(t, err, model.ErrRequestNotFound)
}

func TestSessionServiceRejectRequest(t *testing.T) {
	f := newSessionFixture(t)
	req := f.submitRequest(t, f.now.Add(48*time.Hour))

	require.NoError(t, f.svc.RejectRequest(context.Background(), req.ID, req.TeacherID))

	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusRejected, stored.Status)
}

func TestSessionServiceStartSession(t *testing.T) {
	f := newSessionFixture(t)

	tests := []struct {
		name    string
		start   time.Time
		status  model.SessionStatus
		wantErr error
	}{
		{"inside pre window", f.now.Add(10 * time.Minute), model.SessionStatusScheduled, nil},
		{"exactly at window open", f.now.Add(JoinPreWindow), model.SessionStatusScheduled, nil},
		{"already live", f.now.Add(-10 * time.Minute), model.SessionStatusScheduled, nil},
		{"too early", f.now.Add(time.Hour), model.SessionStatusScheduled, model.ErrJoinWindowClosed},
		{"already ended", f.now.Add(-2 * time.Hour), model.SessionStatusScheduled, model.ErrJoinWindowClosed},
		{"cancelled", f.now.Add(10 * time.Minute), model.SessionStatusCancelled, model.ErrJoinWindowClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := f.createSession(t, tt.start, tt.status, 42)

			err := f.svc.StartSession(context.Background(), sess.ID, sess.TeacherID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			stored, err := f.sessions.GetByID(context.Background(), sess.ID)
			require.NoError(t, err)
			require.Equal(t, model.SessionStatusInProgress, stored.Status)

			// повторный старт — no-op
			require.NoError(t, f.svc.StartSession(context.Background(), sess.ID, sess.TeacherID))
		})
	}
}

func TestSessionServiceStartSessionGuards(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.createSession(t, f.now.Add(10*time.Minute), model.SessionStatusScheduled, 42)

	err := f.svc.StartSession(context.Background(), sess.ID, 999)
	require.ErrorIs(t, err, model.ErrNotOwner)

	err = f.svc.StartSession(context.Background(), 777, sess.TeacherID)
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestSessionServiceMarkAttendance(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.createSession(t, f.now.Add(-10*time.Minute), model.SessionStatusInProgress, 42)

	require.NoError(t, f.svc.MarkAttendance(context.Background(), sess.ID, 42))

	attendees, err := f.sessions.Attendees(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, attendees[0].Attended)

	// не записанный студент
	err = f.svc.MarkAttendance(context.Background(), sess.ID, 99)
	require.ErrorIs(t, err, model.ErrValidation)

	// занятие ещё не началось
	future := f.createSession(t, f.now.Add(time.Hour), model.SessionStatusScheduled, 42)
	err = f.svc.MarkAttendance(context.Background(), future.ID, 42)
	require.ErrorIs(t, err, model.ErrSessionNotStarted)
}

func TestSessionServiceAdvance(t *testing.T) {
	f := newSessionFixture(t)

	attended := f.createSession(t, f.now.Add(-2*time.Hour), model.SessionStatusInProgress, 42)
	_, err := f.sessions.MarkAttended(context.Background(), attended.ID, 42)
	require.NoError(t, err)

	noShow := f.createSession(t, f.now.Add(-2*time.Hour), model.SessionStatusInProgress, 43)
	running := f.createSession(t, f.now.Add(-30*time.Minute), model.SessionStatusInProgress, 44)
	stale := f.createSession(t, f.now.Add(-6*24*time.Hour), model.SessionStatusScheduled, 45)
	upcoming := f.createSession(t, f.now.Add(time.Hour), model.SessionStatusScheduled, 46)

	require.NoError(t, f.svc.Advance(context.Background(), f.now))

	want := map[int64]model.SessionStatus{
		attended.ID: model.SessionStatusCompleted,
		noShow.ID:   model.SessionStatusMissed,
		running.ID:  model.SessionStatusInProgress,
		stale.ID:    model.SessionStatusCancelled,
		upcoming.ID: model.SessionStatusScheduled,
	}
	for id, status := range want {
		stored, err := f.sessions.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, status, stored.Status, "session %d", id)
	}

	// повторный прогон не откатывает терминальные статусы
	require.NoError(t, f.svc.Advance(context.Background(), f.now))
	for id, status := range want {
		stored, err := f.sessions.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, status, stored.Status, "session %d after rerun", id)
	}
}

func TestSessionServiceSendReminders(t *testing.T) {
	f := newSessionFixture(t)

	soon := f.createSession(t, f.now.Add(2*time.Hour), model.SessionStatusScheduled, 42, 43)
	far := f.createSession(t, f.now.Add(5*time.Hour), model.SessionStatusScheduled, 44)

	require.NoError(t, f.svc.SendReminders(context.Background(), f.now))
	require.Equal(t, 2, f.notifier.reminderCount())

	stored, err := f.sessions.GetByID(context.Background(), soon.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReminderSentAt)

	stored, err = f.sessions.GetByID(context.Background(), far.ID)
	require.NoError(t, err)
	require.Nil(t, stored.ReminderSentAt)

	// повторный свип не шлёт второй раз
	require.NoError(t, f.svc.SendReminders(context.Background(), f.now))
	require.Equal(t, 2, f.notifier.reminderCount())
}

// Неудачная отправка не ставит отметку: следующий свип повторит
func TestSessionServiceSendRemindersFailure(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.createSession(t, f.now.Add(time.Hour), model.SessionStatusScheduled, 42)

	f.notifier.reminderErr = errors.New("channel down")
	require.Error(t, f.svc.SendReminders(context.Background(), f.now))

	stored, err := f.sessions.GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Nil(t, stored.ReminderSentAt)

	f.notifier.reminderErr = nil
	require.NoError(t, f.svc.SendReminders(context.Background(), f.now))
	require.Equal(t, 1, f.notifier.reminderCount())
}

func TestSessionServiceExpireRequests(t *testing.T) {
	f := newSessionFixture(t)

	stale := f.submitRequest(t, f.now.Add(time.Hour))
	fresh := f.submitRequest(t, f.now.Add(48*time.Hour))

	require.NoError(t, f.svc.ExpireRequests(context.Background(), f.now.Add(24*time.Hour)))

	stored, err := f.requests.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusExpired, stored.Status)

	stored, err = f.requests.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusPending, stored.Status)
}
