package service

import (
	"context"
	"sync"
	"time"

	"github.com/lessonhub/tutor_platform/internal/model"
)

// Фейковые хранилища в памяти, повторяющие условную семантику
// обновлений настоящих репозиториев.

type fakeOTPStore struct {
	mu   sync.Mutex
	seq  int64
	rows []*model.OTPChallenge
}

func newFakeOTPStore() *fakeOTPStore { return &fakeOTPStore{} }

func (s *fakeOTPStore) Create(_ context.Context, ch *model.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ch.ID = s.seq
	ch.CreatedAt = time.Now()
	stored := *ch
	s.rows = append(s.rows, &stored)
	return nil
}

func (s *fakeOTPStore) FindValid(_ context.Context, email, code string, now time.Time) (*model.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		ch := s.rows[i]
		if ch.Email == email && ch.Code == code && ch.ExpiresAt.After(now) && !ch.Used {
			found := *ch
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeOTPStore) FindVerified(_ context.Context, email, code string) (*model.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		ch := s.rows[i]
		if ch.Email == email && ch.Code == code && ch.Verified && !ch.Used {
			found := *ch
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeOTPStore) MarkVerified(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.rows {
		if ch.ID == id && !ch.Used {
			ch.Verified = true
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeOTPStore) MarkUsed(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.rows {
		if ch.ID == id && ch.Verified && !ch.Used {
			ch.Used = true
			return true, nil
		}
	}
	return false, nil
}

type fakePaymentStore struct {
	mu      sync.Mutex
	seq     int64
	byRef   map[string]*model.PaymentRecord
	applies int

	// Цели подтверждения оплаченной брони, как в настоящей
	// транзакции применения вебхука
	sessions *fakeSessionStore
	requests *fakeRequestStore
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{byRef: map[string]*model.PaymentRecord{}}
}

func (s *fakePaymentStore) Create(_ context.Context, rec *model.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec.ID = s.seq
	stored := *rec
	s.byRef[rec.ExternalReferenceID] = &stored
	return nil
}

func (s *fakePaymentStore) GetByReference(_ context.Context, referenceID string) (*model.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byRef[referenceID]
	if !ok {
		return nil, nil
	}
	found := *rec
	return &found, nil
}

func (s *fakePaymentStore) ApplyNotification(_ context.Context, referenceID string, status model.PaymentStatus, rawPayload []byte) (*model.PaymentRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byRef[referenceID]
	if !ok {
		return nil, false, model.ErrPaymentNotFound
	}
	if rec.PaymentStatus.Terminal() {
		found := *rec
		return &found, false, nil
	}
	rec.PaymentStatus = status
	rec.GatewayResponse = rawPayload
	s.applies++
	if status == model.PaymentStatusCompleted && rec.PaymentType == model.PaymentTypeStudentPayment {
		s.confirmBooking(rec)
	}
	found := *rec
	return &found, true, nil
}

func (s *fakePaymentStore) confirmBooking(rec *model.PaymentRecord) {
	now := time.Now()

	if rec.SessionID != nil && s.sessions != nil {
		s.sessions.mu.Lock()
		for _, att := range s.sessions.attendees {
			if att.SessionID == *rec.SessionID && att.StudentID == rec.OwnerUserID && att.PaidAt == nil {
				att.PaidAt = &now
			}
		}
		s.sessions.mu.Unlock()
	}

	if rec.SessionRequestID != nil && s.requests != nil {
		s.requests.mu.Lock()
		if req, ok := s.requests.requests[*rec.SessionRequestID]; ok && req.PaidAt == nil {
			req.PaidAt = &now
		}
		s.requests.mu.Unlock()
	}
}

type fakeSlotStore struct {
	mu    sync.Mutex
	seq   int64
	slots map[int64]*model.AvailabilitySlot
}

func newFakeSlotStore() *fakeSlotStore {
	return &fakeSlotStore{slots: map[int64]*model.AvailabilitySlot{}}
}

func (s *fakeSlotStore) Create(_ context.Context, slot *model.AvailabilitySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	slot.ID = s.seq
	stored := *slot
	s.slots[slot.ID] = &stored
	return nil
}

func (s *fakeSlotStore) GetByID(_ context.Context, id int64) (*model.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, nil
	}
	found := *slot
	return &found, nil
}

func (s *fakeSlotStore) ListOpenByTeacher(_ context.Context, teacherID int64, from, to time.Time) ([]*model.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AvailabilitySlot
	for _, slot := range s.slots {
		if slot.TeacherID == teacherID && slot.Status == model.SlotStatusAvailable &&
			!slot.StartTime.Before(from) && slot.StartTime.Before(to) {
			found := *slot
			out = append(out, &found)
		}
	}
	return out, nil
}

func (s *fakeSlotStore) ListByTeacher(_ context.Context, teacherID int64) ([]*model.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AvailabilitySlot
	for _, slot := range s.slots {
		if slot.TeacherID == teacherID {
			found := *slot
			out = append(out, &found)
		}
	}
	return out, nil
}

func (s *fakeSlotStore) ExpirePast(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := now.Truncate(24 * time.Hour)
	var n int64
	for _, slot := range s.slots {
		if slot.Status == model.SlotStatusAvailable && slot.Date.Truncate(24*time.Hour).Before(day) {
			slot.Status = model.SlotStatusExpired
			n++
		}
	}
	return n, nil
}

func (s *fakeSlotStore) CancelDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, slot := range s.slots {
		if slot.Status == model.SlotStatusAvailable && slot.AutoCancelAt != nil && !slot.AutoCancelAt.After(now) {
			slot.Status = model.SlotStatusCancelled
			n++
		}
	}
	return n, nil
}

type fakeSessionStore struct {
	mu        sync.Mutex
	seq       int64
	attSeq    int64
	sessions  map[int64]*model.Session
	attendees []*model.SessionAttendee
	createErr error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[int64]*model.Session{}}
}

func (s *fakeSessionStore) Create(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.seq++
	sess.ID = s.seq
	stored := *sess
	s.sessions[sess.ID] = &stored
	return nil
}

func (s *fakeSessionStore) GetByID(_ context.Context, id int64) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	found := *sess
	return &found, nil
}

func (s *fakeSessionStore) Start(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != model.SessionStatusScheduled {
		return false, nil
	}
	sess.Status = model.SessionStatusInProgress
	return true, nil
}

func (s *fakeSessionStore) ResolveFinished(_ context.Context, now time.Time) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var completed, missed int64
	for _, sess := range s.sessions {
		if sess.Status != model.SessionStatusInProgress || sess.EndTime.After(now) {
			continue
		}
		if s.anyAttendedLocked(sess.ID) {
			sess.Status = model.SessionStatusCompleted
			completed++
		} else {
			sess.Status = model.SessionStatusMissed
			missed++
		}
	}
	return completed, missed, nil
}

func (s *fakeSessionStore) anyAttendedLocked(sessionID int64) bool {
	for _, att := range s.attendees {
		if att.SessionID == sessionID && att.Attended {
			return true
		}
	}
	return false
}

func (s *fakeSessionStore) CancelStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.Status == model.SessionStatusScheduled && sess.StartTime.Before(cutoff) {
			sess.Status = model.SessionStatusCancelled
			n++
		}
	}
	return n, nil
}

func (s *fakeSessionStore) DueForReminder(_ context.Context, from, to time.Time) ([]*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Session
	for _, sess := range s.sessions {
		if sess.Status == model.SessionStatusScheduled && sess.ReminderSentAt == nil &&
			!sess.StartTime.Before(from) && sess.StartTime.Before(to) {
			found := *sess
			out = append(out, &found)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) MarkReminderSent(_ context.Context, id int64, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.ReminderSentAt != nil {
		return false, nil
	}
	sess.ReminderSentAt = &sentAt
	return true, nil
}

func (s *fakeSessionStore) AddAttendee(_ context.Context, att *model.SessionAttendee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attSeq++
	att.ID = s.attSeq
	stored := *att
	s.attendees = append(s.attendees, &stored)
	return nil
}

func (s *fakeSessionStore) Attendees(_ context.Context, sessionID int64) ([]*model.SessionAttendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SessionAttendee
	for _, att := range s.attendees {
		if att.SessionID == sessionID {
			found := *att
			out = append(out, &found)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) MarkAttended(_ context.Context, sessionID, studentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, att := range s.attendees {
		if att.SessionID == sessionID && att.StudentID == studentID {
			att.Attended = true
			return true, nil
		}
	}
	return false, nil
}

type fakeRequestStore struct {
	mu       sync.Mutex
	seq      int64
	requests map[int64]*model.SessionRequest
	sessions *fakeSessionStore
}

func newFakeRequestStore(sessions *fakeSessionStore) *fakeRequestStore {
	return &fakeRequestStore{requests: map[int64]*model.SessionRequest{}, sessions: sessions}
}

func (s *fakeRequestStore) Create(_ context.Context, req *model.SessionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	req.ID = s.seq
	stored := *req
	s.requests[req.ID] = &stored
	return nil
}

func (s *fakeRequestStore) GetByID(_ context.Context, id int64) (*model.SessionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	found := *req
	return &found, nil
}

func (s *fakeRequestStore) ListPendingByTeacher(_ context.Context, teacherID int64) ([]*model.SessionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SessionRequest
	for _, req := range s.requests {
		if req.TeacherID == teacherID && req.Status == model.RequestStatusPending {
			found := *req
			out = append(out, &found)
		}
	}
	return out, nil
}

// Accept повторяет транзакционную семантику репозитория: статус
// остаётся pending, если занятие или участник не записались
func (s *fakeRequestStore) Accept(ctx context.Context, requestID int64, sess *model.Session, studentID int64) (bool, error) {
	s.mu.Lock()
	req, ok := s.requests[requestID]
	if !ok || req.Status != model.RequestStatusPending {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	if err := s.sessions.Create(ctx, sess); err != nil {
		return false, err
	}
	if err := s.sessions.AddAttendee(ctx, &model.SessionAttendee{SessionID: sess.ID, StudentID: studentID}); err != nil {
		return false, err
	}

	s.mu.Lock()
	req.Status = model.RequestStatusAccepted
	s.mu.Unlock()

	return true, nil
}

func (s *fakeRequestStore) Decide(_ context.Context, id int64, to model.RequestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Status != model.RequestStatusPending {
		return false, nil
	}
	req.Status = to
	return true, nil
}

func (s *fakeRequestStore) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, req := range s.requests {
		if req.Status == model.RequestStatusPending && req.ProposedDate.Before(now) {
			req.Status = model.RequestStatusExpired
			n++
		}
	}
	return n, nil
}

// fakeBookingStore повторяет транзакционную семантику бронирования
// поверх фейковых хранилищ
type fakeBookingStore struct {
	slots    *fakeSlotStore
	sessions *fakeSessionStore
	payments *fakePaymentStore
}

func (s *fakeBookingStore) BookSlot(ctx context.Context, sess *model.Session, studentID int64, rec *model.PaymentRecord) (*model.Session, error) {
	s.slots.mu.Lock()
	slot, ok := s.slots.slots[*sess.SlotID]
	if !ok || slot.Status != model.SlotStatusAvailable || slot.BookedCount >= slot.Capacity {
		s.slots.mu.Unlock()
		return nil, model.ErrSlotUnavailable
	}
	slot.BookedCount++
	if slot.BookedCount >= slot.Capacity {
		slot.Status = model.SlotStatusBooked
	}
	s.slots.mu.Unlock()

	// Найти-или-создать занятие и участника атомарно, как это делает
	// транзакция настоящего репозитория
	s.sessions.mu.Lock()
	var stored *model.Session
	for _, candidate := range s.sessions.sessions {
		if candidate.SlotID != nil && *candidate.SlotID == *sess.SlotID {
			stored = candidate
			break
		}
	}
	if stored == nil {
		s.sessions.seq++
		sess.ID = s.sessions.seq
		copied := *sess
		stored = &copied
		s.sessions.sessions[stored.ID] = stored
	}
	s.sessions.attSeq++
	s.sessions.attendees = append(s.sessions.attendees, &model.SessionAttendee{
		ID:        s.sessions.attSeq,
		SessionID: stored.ID,
		StudentID: studentID,
	})
	found := *stored
	s.sessions.mu.Unlock()

	rec.SessionID = &found.ID
	if err := s.payments.Create(ctx, rec); err != nil {
		return nil, err
	}

	return &found, nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	otpCodes    []string
	reminders   []int64
	reminderErr error
	otpErr      error
}

func (n *fakeNotifier) SendOTPCode(_ context.Context, _ string, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.otpErr != nil {
		return n.otpErr
	}
	n.otpCodes = append(n.otpCodes, code)
	return nil
}

func (n *fakeNotifier) SendSessionReminder(_ context.Context, studentID int64, _ *model.Session) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reminderErr != nil {
		return n.reminderErr
	}
	n.reminders = append(n.reminders, studentID)
	return nil
}

func (n *fakeNotifier) reminderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reminders)
}
