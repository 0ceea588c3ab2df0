package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lessonhub/tutor_platform/internal/model"
)

type submitRequestRequest struct {
	StudentID        int64     `json:"student_id" validate:"required"`
	TeacherID        int64     `json:"teacher_id" validate:"required"`
	CourseID         *int64    `json:"course_id"`
	ProposedTitle    string    `json:"proposed_title" validate:"required"`
	ProposedDate     time.Time `json:"proposed_date" validate:"required"`
	ProposedDuration int       `json:"proposed_duration" validate:"required,min=1"`
	Message          string    `json:"message"`
}

// SubmitRequest создаёт заявку студента на индивидуальное занятие
func (h *Handler) SubmitRequest(c *fiber.Ctx) error {
	var req submitRequestRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	sr := &model.SessionRequest{
		StudentID:        req.StudentID,
		TeacherID:        req.TeacherID,
		CourseID:         req.CourseID,
		ProposedTitle:    req.ProposedTitle,
		ProposedDate:     req.ProposedDate,
		ProposedDuration: req.ProposedDuration,
		Message:          req.Message,
	}

	if err := h.sessions.SubmitRequest(c.UserContext(), sr); err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sr)
}

// ListPendingRequests pending заявки учителя
func (h *Handler) ListPendingRequests(c *fiber.Ctx) error {
	teacherID, err := c.ParamsInt("teacherID")
	if err != nil {
		return h.fail(c, err)
	}

	requests, err := h.sessions.ListPendingRequests(c.UserContext(), int64(teacherID))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"requests": requests})
}

type decideRequestRequest struct {
	TeacherID int64 `json:"teacher_id" validate:"required"`
}

// AcceptRequest принимает заявку и создаёт занятие
func (h *Handler) AcceptRequest(c *fiber.Ctx) error {
	requestID, err := c.ParamsInt("id")
	if err != nil {
		return h.fail(c, err)
	}

	var req decideRequestRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	sess, err := h.sessions.AcceptRequest(c.UserContext(), int64(requestID), req.TeacherID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"session": sess})
}

// RejectRequest отклоняет заявку
func (h *Handler) RejectRequest(c *fiber.Ctx) error {
	requestID, err := c.ParamsInt("id")
	if err != nil {
		return h.fail(c, err)
	}

	var req decideRequestRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	if err := h.sessions.RejectRequest(c.UserContext(), int64(requestID), req.TeacherID); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"status": string(model.RequestStatusRejected)})
}

type startSessionRequest struct {
	TeacherID int64 `json:"teacher_id" validate:"required"`
}

// StartSession переводит занятие в in_progress внутри окна входа
func (h *Handler) StartSession(c *fiber.Ctx) error {
	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return h.fail(c, err)
	}

	var req startSessionRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	if err := h.sessions.StartSession(c.UserContext(), int64(sessionID), req.TeacherID); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"status": string(model.SessionStatusInProgress)})
}

// JoinWindow окно входа для занятия на текущий момент.
// Клиент пересчитывает его на своём тике, состояние здесь не хранится.
func (h *Handler) JoinWindow(c *fiber.Ctx) error {
	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return h.fail(c, err)
	}

	sess, window, err := h.sessions.JoinWindowFor(c.UserContext(), int64(sessionID))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"session_id":        sess.ID,
		"state":             window.State,
		"remaining_seconds": int64(window.Remaining.Seconds()),
	})
}

type attendanceRequest struct {
	StudentID int64 `json:"student_id" validate:"required"`
}

// MarkAttendance отмечает присутствие студента
func (h *Handler) MarkAttendance(c *fiber.Ctx) error {
	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return h.fail(c, err)
	}

	var req attendanceRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	if err := h.sessions.MarkAttendance(c.UserContext(), int64(sessionID), req.StudentID); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"attended": true})
}
