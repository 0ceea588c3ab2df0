package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/lessonhub/tutor_platform/internal/model"
	"github.com/lessonhub/tutor_platform/internal/service"
)

type webhookData struct {
	OrderID       string  `json:"order_id"`
	OrderStatus   string  `json:"order_status"`
	PaymentStatus string  `json:"payment_status"`
	OrderAmount   float64 `json:"order_amount"`
}

// Шлюз шлёт поля либо внутри data, либо на верхнем уровне
type webhookBody struct {
	Data *webhookData `json:"data"`
	webhookData
}

// PaymentWebhook входящее уведомление платёжного шлюза.
// Доставка at-least-once: повторы и неизвестные референсы
// подтверждаются 200, чтобы не провоцировать шторм повторов;
// 500 уходит только при отказе хранилища — тогда повтор шлюза
// догонит состояние, применение идемпотентно по референсу.
func (h *Handler) PaymentWebhook(c *fiber.Ctx) error {
	raw := c.Body()

	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "malformed payload",
		})
	}

	data := body.webhookData
	if body.Data != nil {
		data = *body.Data
	}

	if data.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "missing order_id",
		})
	}

	n := service.WebhookNotification{
		ExternalReferenceID: data.OrderID,
		OrderStatus:         data.OrderStatus,
		PaymentStatus:       data.PaymentStatus,
		Amount:              data.OrderAmount,
		RawPayload:          raw,
	}

	rec, err := h.payments.Reconcile(c.UserContext(), n)
	if err != nil {
		// Неизвестный референс уже залогирован для ручной сверки,
		// отправителю подтверждаем приём
		if errors.Is(err, model.ErrPaymentNotFound) {
			return c.JSON(fiber.Map{"success": true})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "storage failure",
		})
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"payment_status": rec.PaymentStatus,
	})
}
