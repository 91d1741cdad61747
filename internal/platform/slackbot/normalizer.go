// Package slackbot implements the Slack side of the pipeline: event
// normalization (including the URL-verification handshake), block-kit
// response formatting, bearer-authenticated file download, and the
// chat.postMessage client.
package slackbot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerchat/ledgerchat/internal/platform"
)

const (
	eventTypeURLVerification = "url_verification"
	eventTypeCallback        = "event_callback"

	subEventMessage    = "message"
	subEventFileShared = "file_shared"
)

// EventEnvelope is the outer Slack event-subscription payload.
type EventEnvelope struct {
	Type      string `json:"type" validate:"required"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	EventID   string `json:"event_id"`
	EventTime int64  `json:"event_time"`
	Event     *Event `json:"event"`
}

// Event is the inner event of an event_callback envelope.
type Event struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	User    string `json:"user"`
	BotID   string `json:"bot_id"`
	Channel string `json:"channel"`
	Ts      string `json:"ts"`
	Text    string `json:"text"`
	Files   []File `json:"files"`
}

// File is one Slack file reference inside an event.
type File struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Mimetype           string `json:"mimetype"`
	Size               int64  `json:"size"`
	URLPrivateDownload string `json:"url_private_download"`
}

// Result is the outcome of normalizing one Slack payload. Exactly one of
// the fields is meaningful:
//   - Challenge non-empty: answer the URL-verification handshake immediately.
//   - Skipped: acknowledge success to Slack without processing (e.g. a
//     bot-originated message); SkipReason says why.
//   - Envelope: a real inbound message to route.
type Result struct {
	Challenge  string
	Skipped    bool
	SkipReason string
	Envelope   *platform.MessageEnvelope
}

// Normalizer turns Slack event callbacks into message envelopes.
type Normalizer struct {
	logger   *slog.Logger
	validate *validator.Validate
}

// NewNormalizer creates a Slack event normalizer.
func NewNormalizer(log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		logger:   log.With(slog.String("component", "slack_normalizer")),
		validate: validator.New(),
	}
}

// Parse normalizes a Slack event payload. A body that is not valid JSON or
// fails envelope validation indicates an integration bug and returns an
// error; recognizable events the pipeline should ignore return a skip
// result so the caller can acknowledge and stop Slack's retries.
func (n *Normalizer) Parse(body []byte) (Result, error) {
	var envelope EventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Result{}, fmt.Errorf("invalid slack payload: %w", err)
	}
	if err := n.validate.Struct(envelope); err != nil {
		return Result{}, fmt.Errorf("invalid slack payload: %w", err)
	}

	if envelope.Type == eventTypeURLVerification {
		if strings.TrimSpace(envelope.Challenge) == "" {
			return Result{}, fmt.Errorf("url_verification without challenge")
		}
		return Result{Challenge: envelope.Challenge}, nil
	}
	if envelope.Type != eventTypeCallback {
		return Result{Skipped: true, SkipReason: "unsupported envelope type " + envelope.Type}, nil
	}
	if envelope.Event == nil {
		return Result{}, fmt.Errorf("event_callback without event")
	}

	event := envelope.Event
	if strings.TrimSpace(event.BotID) != "" || event.Subtype == "bot_message" {
		return Result{Skipped: true, SkipReason: "bot-originated message"}, nil
	}

	switch event.Type {
	case subEventMessage, subEventFileShared:
	default:
		return Result{Skipped: true, SkipReason: "unsupported event type " + event.Type}, nil
	}

	msg := &platform.MessageEnvelope{
		MessageID: messageID(envelope, event),
		Platform:  platform.Slack,
		Sender:    strings.TrimSpace(event.User),
		Timestamp: eventTimestamp(event.Ts, envelope.EventTime),
		Content:   strings.TrimSpace(event.Text),
		Metadata: map[string]any{
			"channel_id":   strings.TrimSpace(event.Channel),
			"workspace_id": strings.TrimSpace(envelope.TeamID),
			"event_type":   event.Type,
		},
	}
	for _, file := range event.Files {
		msg.Attachments = append(msg.Attachments, platform.Attachment{
			ID:       file.ID,
			FileName: file.Name,
			MimeType: file.Mimetype,
			Size:     file.Size,
			URL:      file.URLPrivateDownload,
		})
	}

	if msg.Sender == "" {
		return Result{Skipped: true, SkipReason: "event without user"}, nil
	}
	return Result{Envelope: msg}, nil
}

// messageID prefers the event_id (stable across Slack retries); the
// channel+ts pair is the fallback for payloads that omit it.
func messageID(envelope EventEnvelope, event *Event) string {
	if id := strings.TrimSpace(envelope.EventID); id != "" {
		return id
	}
	return strings.TrimSpace(event.Channel) + ":" + strings.TrimSpace(event.Ts)
}

func eventTimestamp(ts string, eventTime int64) time.Time {
	if seconds, err := strconv.ParseFloat(strings.TrimSpace(ts), 64); err == nil && seconds > 0 {
		return time.Unix(int64(seconds), 0).UTC()
	}
	if eventTime > 0 {
		return time.Unix(eventTime, 0).UTC()
	}
	return time.Now().UTC()
}
