package handlers

import "github.com/gofiber/fiber/v2"

// RegisterRoutes вешает маршруты ядра на приложение
func RegisterRoutes(app *fiber.App, h *Handler) {
	api := app.Group("/api")

	api.Post("/slots", h.PublishSlot)
	api.Post("/slots/:id/book", h.BookSlot)
	api.Get("/teachers/:teacherID/slots", h.ListTeacherSlots)
	api.Get("/teachers/:teacherID/slots/open", h.ListOpenSlots)

	api.Post("/requests", h.SubmitRequest)
	api.Get("/teachers/:teacherID/requests", h.ListPendingRequests)
	api.Post("/requests/:id/accept", h.AcceptRequest)
	api.Post("/requests/:id/reject", h.RejectRequest)

	api.Post("/sessions/:id/start", h.StartSession)
	api.Get("/sessions/:id/join-window", h.JoinWindow)
	api.Post("/sessions/:id/attendance", h.MarkAttendance)

	api.Post("/otp/issue", h.IssueOTP)
	api.Post("/otp/verify", h.VerifyOTP)
	api.Post("/otp/consume", h.ConsumeOTP)

	app.Post("/webhooks/payment", h.PaymentWebhook)
}
