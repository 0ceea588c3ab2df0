package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lessonhub/tutor_platform/internal/model"
)

type publishSlotRequest struct {
	TeacherID    int64      `json:"teacher_id" validate:"required"`
	SubjectID    int64      `json:"subject_id" validate:"required"`
	Date         string     `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    time.Time  `json:"start_time" validate:"required"`
	EndTime      time.Time  `json:"end_time" validate:"required"`
	Capacity     int        `json:"capacity" validate:"required,min=1"`
	HourlyRate   float64    `json:"hourly_rate" validate:"required,gt=0"`
	AutoCancelAt *time.Time `json:"auto_cancel_at"`
}

// PublishSlot публикует слот доступности учителя
func (h *Handler) PublishSlot(c *fiber.Ctx) error {
	var req publishSlotRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return h.fail(c, err)
	}

	slot := &model.AvailabilitySlot{
		TeacherID:    req.TeacherID,
		SubjectID:    req.SubjectID,
		Date:         date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Capacity:     req.Capacity,
		HourlyRate:   req.HourlyRate,
		AutoCancelAt: req.AutoCancelAt,
	}

	if err := h.availability.PublishSlot(c.UserContext(), slot); err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(slot)
}

// ListTeacherSlots все слоты учителя
func (h *Handler) ListTeacherSlots(c *fiber.Ctx) error {
	teacherID, err := c.ParamsInt("teacherID")
	if err != nil {
		return h.fail(c, err)
	}

	slots, err := h.availability.ListTeacherSlots(c.UserContext(), int64(teacherID))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"slots": slots})
}

// ListOpenSlots открытые слоты учителя в диапазоне ?from=&to= (RFC 3339)
func (h *Handler) ListOpenSlots(c *fiber.Ctx) error {
	teacherID, err := c.ParamsInt("teacherID")
	if err != nil {
		return h.fail(c, err)
	}

	from := time.Now()
	to := from.Add(14 * 24 * time.Hour)

	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return h.fail(c, err)
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return h.fail(c, err)
		}
	}

	slots, err := h.availability.ListOpenSlots(c.UserContext(), int64(teacherID), from, to)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"slots": slots})
}

type bookSlotRequest struct {
	StudentID    int64  `json:"student_id" validate:"required"`
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email" validate:"omitempty,email"`
}

// BookSlot бронирует место в слоте. Проигравший гонку за последнее
// место получает 409 и повторяет запрос по свежему состоянию.
func (h *Handler) BookSlot(c *fiber.Ctx) error {
	slotID, err := c.ParamsInt("id")
	if err != nil {
		return h.fail(c, err)
	}

	var req bookSlotRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	sess, payment, err := h.availability.BookSlot(c.UserContext(), int64(slotID), req.StudentID, req.StudentName, req.StudentEmail)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session": sess,
		"payment": payment,
	})
}
