package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lessonhub/tutor_platform/internal/model"
	"github.com/lessonhub/tutor_platform/internal/service"
)

// Handler HTTP-обработчики поверх сервисов ядра
type Handler struct {
	availability *service.AvailabilityService
	sessions     *service.SessionService
	payments     *service.PaymentService
	otp          *service.OTPService
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewHandler(
	availability *service.AvailabilityService,
	sessions *service.SessionService,
	payments *service.PaymentService,
	otp *service.OTPService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		availability: availability,
		sessions:     sessions,
		payments:     payments,
		otp:          otp,
		validate:     validator.New(),
		logger:       logger,
	}
}

// parseBody разбирает и валидирует JSON-тело запроса
func (h *Handler) parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// fail переводит ошибку ядра в HTTP-ответ
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErrs.Error()})
	}

	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}

	// Все отказы OTP отдаются одним сообщением, без причины
	if errors.Is(err, model.ErrInvalidOrExpiredCode) {
		return c.Status(status).JSON(fiber.Map{"error": model.ErrInvalidOrExpiredCode.Error()})
	}

	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrInvalidOrExpiredCode):
		return fiber.StatusBadRequest
	case errors.Is(err, model.ErrNotOwner):
		return fiber.StatusForbidden
	case errors.Is(err, model.ErrSlotNotFound),
		errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrRequestNotFound),
		errors.Is(err, model.ErrPaymentNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrSlotUnavailable),
		errors.Is(err, model.ErrRequestNotPending),
		errors.Is(err, model.ErrJoinWindowClosed),
		errors.Is(err, model.ErrSessionNotStarted):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
