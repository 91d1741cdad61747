package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ledgerchat/ledgerchat/internal/platform/slackbot"
	"github.com/ledgerchat/ledgerchat/internal/router"
)

// signatureSkew bounds how stale a signed Slack request may be.
const signatureSkew = 5 * time.Minute

// SlackHandler receives Slack Events API deliveries.
type SlackHandler struct {
	normalizer    *slackbot.Normalizer
	router        *router.Router
	signingSecret string
	logger        *slog.Logger
}

// NewSlackHandler creates a SlackHandler. An empty signing secret disables
// signature verification.
func NewSlackHandler(log *slog.Logger, normalizer *slackbot.Normalizer, r *router.Router, signingSecret string) *SlackHandler {
	return &SlackHandler{
		normalizer:    normalizer,
		router:        r,
		signingSecret: signingSecret,
		logger:        log.With(slog.String("handler", "slack_webhook")),
	}
}

// Register registers the Slack events route.
func (h *SlackHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/slack/events", h.Receive)
}

// Receive verifies the request signature, answers the URL-verification
// handshake immediately, acknowledges soft-skips, and routes real messages.
func (h *SlackHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if err := h.verifySignature(c.Request(), body); err != nil {
		h.logger.Warn("signature rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	result, err := h.normalizer.Parse(body)
	if err != nil {
		h.logger.Warn("payload rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if result.Challenge != "" {
		return c.JSON(http.StatusOK, map[string]string{"challenge": result.Challenge})
	}
	if result.Skipped {
		// 200 stops Slack's retries for events the pipeline ignores.
		h.logger.Debug("event skipped", slog.String("reason", result.SkipReason))
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	outcome, err := h.router.Handle(c.Request().Context(), result.Envelope)
	if err != nil {
		h.logger.Error("message processing failed",
			slog.String("message_id", result.Envelope.MessageID),
			slog.Any("error", err),
		)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":        true,
		"success":   outcome.Success,
		"duplicate": outcome.Duplicate,
	})
}

// verifySignature checks Slack's v0 request signature:
// HMAC-SHA256 of "v0:<timestamp>:<body>" with the signing secret.
func (h *SlackHandler) verifySignature(req *http.Request, body []byte) error {
	if h.signingSecret == "" {
		return nil
	}
	timestamp := req.Header.Get("X-Slack-Request-Timestamp")
	signature := req.Header.Get("X-Slack-Signature")
	if timestamp == "" || signature == "" {
		return fmt.Errorf("missing signature headers")
	}
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	if skew := time.Since(time.Unix(seconds, 0)); skew > signatureSkew || skew < -signatureSkew {
		return fmt.Errorf("request timestamp outside allowed skew")
	}

	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
