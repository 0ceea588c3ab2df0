package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
)

type issueOTPRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	UserData json.RawMessage `json:"user_data"`
}

// IssueOTP выдаёт одноразовый код для регистрации или сброса пароля
func (h *Handler) IssueOTP(c *fiber.Ctx) error {
	var req issueOTPRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	ch, err := h.otp.Issue(c.UserContext(), req.Email, req.UserData)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"expires_at": ch.ExpiresAt,
	})
}

type checkOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// VerifyOTP проверяет код. Payload регистрации возвращается как есть.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req checkOTPRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	ch, err := h.otp.Verify(c.UserContext(), req.Email, req.Code)
	if err != nil {
		return h.fail(c, err)
	}

	resp := fiber.Map{"verified": true}
	if len(ch.UserData) > 0 {
		resp["user_data"] = json.RawMessage(ch.UserData)
	}

	return c.JSON(resp)
}

// ConsumeOTP гасит подтверждённый код перед финальным действием
func (h *Handler) ConsumeOTP(c *fiber.Ctx) error {
	var req checkOTPRequest
	if err := h.parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	if _, err := h.otp.Consume(c.UserContext(), req.Email, req.Code); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"consumed": true})
}
