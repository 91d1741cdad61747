package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ledgerchat/ledgerchat/internal/platform/whatsapp"
	"github.com/ledgerchat/ledgerchat/internal/router"
)

// WhatsAppHandler receives Twilio WhatsApp webhook deliveries.
type WhatsAppHandler struct {
	normalizer *whatsapp.Normalizer
	router     *router.Router
	logger     *slog.Logger
}

// NewWhatsAppHandler creates a WhatsAppHandler.
func NewWhatsAppHandler(log *slog.Logger, normalizer *whatsapp.Normalizer, r *router.Router) *WhatsAppHandler {
	return &WhatsAppHandler{
		normalizer: normalizer,
		router:     r,
		logger:     log.With(slog.String("handler", "whatsapp_webhook")),
	}
}

// Register registers the Twilio webhook route.
func (h *WhatsAppHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/twilio/whatsapp", h.Receive)
}

// Receive normalizes the form payload and routes the message. Twilio treats
// any 2xx as delivered; processing errors still acknowledge receipt so the
// idempotent store, not Twilio's retry loop, governs reprocessing.
func (h *WhatsAppHandler) Receive(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
	}
	envelope, err := h.normalizer.Parse(form)
	if err != nil {
		h.logger.Warn("payload rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.router.Handle(c.Request().Context(), envelope)
	if err != nil {
		h.logger.Error("message processing failed",
			slog.String("message_id", envelope.MessageID),
			slog.Any("error", err),
		)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":    outcome.Success,
		"message_id": envelope.MessageID,
		"duplicate":  outcome.Duplicate,
	})
}
