package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerchat/ledgerchat/internal/config"
	"github.com/ledgerchat/ledgerchat/internal/platform"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// Sender delivers replies through the Twilio messages API and fetches
// inbound media. Twilio media URLs resolve without authentication.
type Sender struct {
	httpClient *http.Client
	accountSID string
	authToken  string
	from       string
	apiBase    string
	logger     *slog.Logger
}

// NewSender creates a Twilio-backed WhatsApp sender.
func NewSender(log *slog.Logger, cfg config.TwilioConfig) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		from:       strings.TrimSpace(cfg.FromNumber),
		apiBase:    twilioAPIBase,
		logger:     log.With(slog.String("component", "whatsapp_sender")),
	}
}

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SendMessage posts a text message to the bare phone number target. The
// channel prefix is re-applied on the wire.
func (s *Sender) SendMessage(ctx context.Context, target, text string) (string, error) {
	if s.accountSID == "" || s.authToken == "" {
		return "", fmt.Errorf("twilio credentials not configured")
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("target is required")
	}

	form := url.Values{}
	form.Set("To", channelPrefix+target)
	form.Set("From", channelPrefix+s.from)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.apiBase, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	startedAt := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr twilioMessageResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("twilio: %s (status %d)", apiErr.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("twilio: unexpected status %d", resp.StatusCode)
	}

	var out twilioMessageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	s.logger.Debug("message sent",
		slog.String("sid", out.SID),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
	)
	return out.SID, nil
}

// Download fetches an attachment's bytes. A missing URL is an immediate
// per-file failure.
func (s *Sender) Download(ctx context.Context, att platform.Attachment) (io.ReadCloser, error) {
	mediaURL := strings.TrimSpace(att.URL)
	if mediaURL == "" {
		return nil, fmt.Errorf("attachment %q has no media url", att.FileName)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("download media: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
