package slackbot

import (
	"bytes"
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

const slackAPIBase = "https://slack.com/api"

// Sender talks to the Slack Web API with per-workspace bot tokens. File
// downloads hit url_private_download with the same token as a bearer.
type Sender struct {
	httpClient *http.Client
	botTokens  map[string]string
	apiBase    string
	logger     *slog.Logger
}

// NewSender creates a Slack sender from config.
func NewSender(log *slog.Logger, cfg config.SlackConfig) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		botTokens:  cfg.BotTokens,
		apiBase:    slackAPIBase,
		logger:     log.With(slog.String("component", "slack_sender")),
	}
}

func (s *Sender) token(workspaceID string) (string, error) {
	token := strings.TrimSpace(s.botTokens[workspaceID])
	if token == "" {
		return "", fmt.Errorf("no bot token for workspace %q", workspaceID)
	}
	return token, nil
}

type postMessageRequest struct {
	Channel  string  `json:"channel"`
	Text     string  `json:"text"`
	Blocks   []Block `json:"blocks,omitempty"`
	ThreadTs string  `json:"thread_ts,omitempty"`
}

type slackAPIResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Ts    string `json:"ts"`
	User  *struct {
		Profile struct {
			Email string `json:"email"`
		} `json:"profile"`
	} `json:"user"`
}

// SendMessage posts a formatted message to the channel, optionally threaded.
func (s *Sender) SendMessage(ctx context.Context, workspaceID, channel string, msg FormattedMessage, threadTs string) (string, error) {
	token, err := s.token(workspaceID)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(postMessageRequest{
		Channel:  channel,
		Text:     msg.Text,
		Blocks:   msg.Blocks,
		ThreadTs: threadTs,
	})
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	out, err := s.call(ctx, token, "chat.postMessage", payload)
	if err != nil {
		return "", err
	}
	return out.Ts, nil
}

// ProfileEmail looks up a user's profile email via users.info. Used for
// first-contact identity resolution.
func (s *Sender) ProfileEmail(ctx context.Context, workspaceID, userID string) (string, error) {
	token, err := s.token(workspaceID)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/users.info?%s", s.apiBase, url.Values{"user": {userID}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("users.info: %w", err)
	}
	defer resp.Body.Close()

	out, err := decodeAPIResponse(resp)
	if err != nil {
		return "", fmt.Errorf("users.info: %w", err)
	}
	if out.User == nil {
		return "", fmt.Errorf("users.info: missing user")
	}
	return strings.TrimSpace(out.User.Profile.Email), nil
}

// Download fetches a shared file's bytes with bearer authentication. A
// missing URL is an immediate per-file failure.
func (s *Sender) Download(ctx context.Context, workspaceID string, att platform.Attachment) (io.ReadCloser, error) {
	fileURL := strings.TrimSpace(att.URL)
	if fileURL == "" {
		return nil, fmt.Errorf("attachment %q has no download url", att.FileName)
	}
	token, err := s.token(workspaceID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Sender) call(ctx context.Context, token, method string, payload []byte) (slackAPIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return slackAPIResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	startedAt := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return slackAPIResponse{}, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	out, err := decodeAPIResponse(resp)
	if err != nil {
		return slackAPIResponse{}, fmt.Errorf("%s: %w", method, err)
	}
	s.logger.Debug("slack api call",
		slog.String("method", method),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
	)
	return out, nil
}

func decodeAPIResponse(resp *http.Response) (slackAPIResponse, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return slackAPIResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return slackAPIResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out slackAPIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return slackAPIResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if !out.OK {
		return slackAPIResponse{}, fmt.Errorf("api error: %s", out.Error)
	}
	return out, nil
}
