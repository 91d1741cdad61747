// Package whatsapp implements the Twilio WhatsApp side of the pipeline:
// webhook payload normalization, response formatting, media download, and
// the outbound message API client.
package whatsapp

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerchat/ledgerchat/internal/platform"
)

// channelPrefix is the fixed address prefix Twilio puts on WhatsApp senders.
const channelPrefix = "whatsapp:"

// MessageKind is the coarse sub-type derived from the first media item.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindDocument MessageKind = "document"
)

// webhookFields is the validated shape of a Twilio WhatsApp webhook body.
// NumMedia is a string because Twilio form-encodes everything.
type webhookFields struct {
	MessageSid string `validate:"required"`
	From       string `validate:"required"`
	To         string `validate:"required"`
	NumMedia   string `validate:"required,number"`
}

// Normalizer turns Twilio form bodies into message envelopes.
type Normalizer struct {
	logger   *slog.Logger
	validate *validator.Validate
}

// NewNormalizer creates a Twilio WhatsApp payload normalizer.
func NewNormalizer(log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		logger:   log.With(slog.String("component", "whatsapp_normalizer")),
		validate: validator.New(),
	}
}

// Parse normalizes a Twilio webhook form body into a MessageEnvelope.
// A payload that fails field validation is a genuine integration bug and
// returns an error; a recognizable but empty payload still yields an
// envelope, with no content and no attachments.
func (n *Normalizer) Parse(form url.Values) (*platform.MessageEnvelope, error) {
	fields := webhookFields{
		MessageSid: strings.TrimSpace(form.Get("MessageSid")),
		From:       strings.TrimSpace(form.Get("From")),
		To:         strings.TrimSpace(form.Get("To")),
		NumMedia:   strings.TrimSpace(form.Get("NumMedia")),
	}
	if fields.NumMedia == "" {
		fields.NumMedia = "0"
	}
	if err := n.validate.Struct(fields); err != nil {
		return nil, fmt.Errorf("invalid twilio payload: %w", err)
	}

	numMedia, err := strconv.Atoi(fields.NumMedia)
	if err != nil || numMedia < 0 {
		return nil, fmt.Errorf("invalid twilio payload: NumMedia %q", fields.NumMedia)
	}

	envelope := &platform.MessageEnvelope{
		MessageID: fields.MessageSid,
		Platform:  platform.WhatsApp,
		Sender:    stripChannelPrefix(fields.From),
		Timestamp: time.Now().UTC(),
		Content:   strings.TrimSpace(form.Get("Body")),
		Metadata: map[string]any{
			"to":           stripChannelPrefix(fields.To),
			"profile_name": strings.TrimSpace(form.Get("ProfileName")),
		},
	}

	for i := 0; i < numMedia; i++ {
		mediaURL := strings.TrimSpace(form.Get("MediaUrl" + strconv.Itoa(i)))
		mimeType := strings.TrimSpace(form.Get("MediaContentType" + strconv.Itoa(i)))
		if mediaURL == "" && mimeType == "" {
			n.logger.Warn("twilio media slot missing",
				slog.String("message_sid", fields.MessageSid),
				slog.Int("index", i),
			)
			continue
		}
		envelope.Attachments = append(envelope.Attachments, platform.Attachment{
			ID:       fmt.Sprintf("%s-media-%d", fields.MessageSid, i),
			FileName: fileNameFromURL(mediaURL, mimeType, i),
			MimeType: mimeType,
			URL:      mediaURL,
		})
	}

	envelope.Metadata["kind"] = string(classifyKind(envelope.Attachments))
	return envelope, nil
}

// classifyKind derives the message sub-type from the first media item.
func classifyKind(attachments []platform.Attachment) MessageKind {
	if len(attachments) == 0 {
		return KindText
	}
	mime := strings.ToLower(attachments[0].MimeType)
	if strings.HasPrefix(mime, "image/") {
		return KindImage
	}
	return KindDocument
}

func stripChannelPrefix(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), channelPrefix)
}

// fileNameFromURL extracts a usable file name from a Twilio media URL,
// falling back to a synthetic name with a MIME-derived extension.
func fileNameFromURL(rawURL, mimeType string, index int) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(segments) > 0 {
			last := segments[len(segments)-1]
			if last != "" && strings.Contains(last, ".") {
				return last
			}
		}
	}
	ext := extensionForMime(mimeType)
	return fmt.Sprintf("media-%d%s", index, ext)
}

func extensionForMime(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	case "text/csv":
		return ".csv"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	default:
		return ".bin"
	}
}
