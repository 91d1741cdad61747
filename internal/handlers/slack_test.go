package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ledgerchat/ledgerchat/internal/platform/slackbot"
)

func newSlackHandler(secret string) *SlackHandler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSlackHandler(log, slackbot.NewNormalizer(log), nil, secret)
}

func slackRequest(body string) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack/events", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func signSlackRequest(c echo.Context, secret, body string) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	c.Request().Header.Set("X-Slack-Request-Timestamp", timestamp)
	c.Request().Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
}

func TestReceiveURLVerification(t *testing.T) {
	t.Parallel()

	body := `{"type":"url_verification","challenge":"abc123"}`
	rec, c := slackRequest(body)
	if err := newSlackHandler("").Receive(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"challenge":"abc123"`) {
		t.Fatalf("expected challenge echoed, got %s", rec.Body.String())
	}
}

func TestReceiveBotMessageAcknowledged(t *testing.T) {
	t.Parallel()

	body := `{"type":"event_callback","team_id":"T1","event":{"type":"message","bot_id":"B1","channel":"C9","ts":"1.0"}}`
	rec, c := slackRequest(body)
	if err := newSlackHandler("").Receive(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("bot messages must still get 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("expected ack body, got %s", rec.Body.String())
	}
}

func TestReceiveValidSignature(t *testing.T) {
	t.Parallel()

	body := `{"type":"url_verification","challenge":"signed"}`
	rec, c := slackRequest(body)
	signSlackRequest(c, "sekrit", body)
	if err := newSlackHandler("sekrit").Receive(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestReceiveBadSignature(t *testing.T) {
	t.Parallel()

	body := `{"type":"url_verification","challenge":"signed"}`
	_, c := slackRequest(body)
	signSlackRequest(c, "wrong-secret", body)
	err := newSlackHandler("sekrit").Receive(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestReceiveStaleTimestamp(t *testing.T) {
	t.Parallel()

	body := `{"type":"url_verification","challenge":"signed"}`
	_, c := slackRequest(body)
	stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	mac := hmac.New(sha256.New, []byte("sekrit"))
	fmt.Fprintf(mac, "v0:%s:%s", stale, body)
	c.Request().Header.Set("X-Slack-Request-Timestamp", stale)
	c.Request().Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))

	err := newSlackHandler("sekrit").Receive(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stale timestamp, got %v", err)
	}
}

func TestReceiveMissingSignatureHeaders(t *testing.T) {
	t.Parallel()

	body := `{"type":"url_verification","challenge":"signed"}`
	_, c := slackRequest(body)
	err := newSlackHandler("sekrit").Receive(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned request, got %v", err)
	}
}

func TestReceiveMalformedPayload(t *testing.T) {
	t.Parallel()

	_, c := slackRequest(`{"type":`)
	err := newSlackHandler("").Receive(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
