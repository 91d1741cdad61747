package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledgerchat/ledgerchat/internal/analytics"
	"github.com/ledgerchat/ledgerchat/internal/blob"
	"github.com/ledgerchat/ledgerchat/internal/identity"
	"github.com/ledgerchat/ledgerchat/internal/platform"
	"github.com/ledgerchat/ledgerchat/internal/platform/slackbot"
	"github.com/ledgerchat/ledgerchat/internal/query"
	"github.com/ledgerchat/ledgerchat/internal/respond"
)

// fileFailure is one attachment that could not be stored.
type fileFailure struct {
	FileName string
	Err      error
}

// processAttachments downloads and re-uploads every attachment
// sequentially, continuing past individual failures.
func (r *Router) processAttachments(ctx context.Context, env *platform.MessageEnvelope, resolution identity.Resolution) ([]blob.Stored, []fileFailure) {
	var (
		uploaded []blob.Stored
		failures []fileFailure
	)
	for _, att := range env.Attachments {
		stored, err := r.processAttachment(ctx, env, resolution, att)
		if err != nil {
			r.logger.Warn("attachment failed",
				slog.String("message_id", env.MessageID),
				slog.String("file_name", att.FileName),
				slog.Any("error", err),
			)
			failures = append(failures, fileFailure{FileName: displayName(att), Err: err})
			continue
		}
		uploaded = append(uploaded, stored)
	}
	return uploaded, failures
}

func (r *Router) processAttachment(ctx context.Context, env *platform.MessageEnvelope, resolution identity.Resolution, att platform.Attachment) (blob.Stored, error) {
	reader, err := r.fetch(ctx, env, att)
	if err != nil {
		return blob.Stored{}, err
	}
	defer reader.Close()

	return r.blobs.Upload(ctx, blob.UploadInput{
		Reader:     reader,
		FileName:   att.FileName,
		MimeType:   att.MimeType,
		Size:       att.Size,
		TenantID:   resolution.Tenant.TenantID,
		UploadedBy: resolution.UserID,
		Source:     env.Platform.String(),
		Metadata: map[string]any{
			"message_id": env.MessageID,
			"platform":   env.Platform.String(),
		},
	})
}

// fetch dispatches the download per platform: Slack needs the workspace bot
// token as a bearer credential, WhatsApp media URLs are fetched directly.
func (r *Router) fetch(ctx context.Context, env *platform.MessageEnvelope, att platform.Attachment) (io.ReadCloser, error) {
	switch env.Platform {
	case platform.Slack:
		if r.slack == nil {
			return nil, fmt.Errorf("slack gateway not configured")
		}
		return r.slack.Download(ctx, env.Meta("workspace_id"), att)
	case platform.WhatsApp:
		if r.whatsapp == nil {
			return nil, fmt.Errorf("whatsapp gateway not configured")
		}
		return r.whatsapp.Download(ctx, att)
	default:
		return nil, fmt.Errorf("unsupported platform %q", env.Platform)
	}
}

// uploadSummary renders the acknowledgment for an attachment batch:
// succeeded files enumerated, failed ones trailed with per-file error text.
func uploadSummary(uploaded []blob.Stored, failures []fileFailure) string {
	if len(uploaded) == 0 {
		var b strings.Builder
		b.WriteString("I couldn't store any of your files:")
		for _, failure := range failures {
			fmt.Fprintf(&b, "\n• %s: %v", failure.FileName, failure.Err)
		}
		b.WriteString("\n\nPlease try sending them again.")
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Stored %d %s:", len(uploaded), pluralFiles(len(uploaded)))
	for _, f := range uploaded {
		fmt.Fprintf(&b, "\n• %s", f.FileName)
	}
	if len(failures) > 0 {
		fmt.Fprintf(&b, "\n\n⚠️ %d %s failed:", len(failures), pluralFiles(len(failures)))
		for _, failure := range failures {
			fmt.Fprintf(&b, "\n• %s: %v", failure.FileName, failure.Err)
		}
	}
	return b.String()
}

// runQueryPipeline classifies the text and either answers conversationally
// or executes the query, always producing a sendable response.
func (r *Router) runQueryPipeline(ctx context.Context, env *platform.MessageEnvelope, resolution identity.Resolution, text string) (respond.UnifiedResponse, query.ParsedQuery) {
	qctx := query.Context{
		TenantID: resolution.Tenant.TenantID,
		UserID:   resolution.UserID,
		Platform: env.Platform.String(),
	}

	parsed, err := r.classifier.ParseQuery(ctx, text, qctx)
	if err != nil {
		r.recordAnalytics(ctx, env, resolution, query.IntentUnknown, 0, 0, err)
		return r.generator.FromError(text, query.IntentUnknown, err), query.ParsedQuery{}
	}

	if parsed.Intent.IsConversational() {
		r.recordAnalytics(ctx, env, resolution, parsed.Intent, 0, 0, nil)
		return r.generator.Conversational(text, parsed), parsed
	}

	result, err := r.executor.Execute(ctx, parsed, resolution.Tenant.TenantID)
	if err != nil {
		r.recordAnalytics(ctx, env, resolution, parsed.Intent, 0, 0, err)
		return r.generator.FromError(text, parsed.Intent, err), parsed
	}

	resp := r.generator.FromResult(text, parsed, result, env.Platform.String())
	if r.summarizer != nil {
		if summary, err := r.summarizer.GenerateSummary(ctx, text, result); err != nil {
			r.logger.Debug("summary generation skipped", slog.Any("error", err))
		} else if strings.TrimSpace(summary) != "" {
			resp.Metadata.ResponseText = summary
		}
	}

	r.recordAnalytics(ctx, env, resolution, parsed.Intent, result.Metadata.ExecutionTimeMs, resultCount(result), nil)
	return resp, parsed
}

func (r *Router) recordAnalytics(ctx context.Context, env *platform.MessageEnvelope, resolution identity.Resolution, intent query.Intent, executionTimeMs, resultCount int64, err error) {
	if r.analytics == nil {
		return
	}
	event := analytics.Event{
		TenantID:        resolution.Tenant.TenantID,
		Platform:        env.Platform.String(),
		Intent:          string(intent),
		ExecutionTimeMs: executionTimeMs,
		ResultCount:     resultCount,
	}
	if err != nil {
		event.Error = err.Error()
	}
	r.analytics.Record(ctx, event)
}

// deliver formats the response for the originating platform and sends it.
// A non-empty prefix (file-upload acknowledgment) is prepended.
func (r *Router) deliver(ctx context.Context, env *platform.MessageEnvelope, resp respond.UnifiedResponse, prefix string) (string, error) {
	switch env.Platform {
	case platform.WhatsApp:
		text := r.waFormatter.Format(resp)
		if prefix != "" {
			text = prefix + "\n\n" + text
		}
		if r.whatsapp == nil {
			return text, fmt.Errorf("whatsapp gateway not configured")
		}
		if _, err := r.whatsapp.SendMessage(ctx, env.Sender, text); err != nil {
			r.logger.Error("whatsapp send failed", slog.String("message_id", env.MessageID), slog.Any("error", err))
			return text, err
		}
		return text, nil
	case platform.Slack:
		msg := r.slFormatter.Format(resp)
		if prefix != "" {
			msg = msg.WithPrefix(prefix)
		}
		if r.slack == nil {
			return msg.Text, fmt.Errorf("slack gateway not configured")
		}
		if _, err := r.slack.SendMessage(ctx, env.Meta("workspace_id"), env.Meta("channel_id"), msg, ""); err != nil {
			r.logger.Error("slack send failed", slog.String("message_id", env.MessageID), slog.Any("error", err))
			return msg.Text, err
		}
		return msg.Text, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", env.Platform)
	}
}

// sendText sends a plain text reply, best effort.
func (r *Router) sendText(ctx context.Context, env *platform.MessageEnvelope, text string) {
	var err error
	switch {
	case env.Platform == platform.WhatsApp && r.whatsapp != nil:
		_, err = r.whatsapp.SendMessage(ctx, env.Sender, text)
	case env.Platform == platform.Slack && r.slack != nil:
		_, err = r.slack.SendMessage(ctx, env.Meta("workspace_id"), env.Meta("channel_id"), slackbot.PlainMessage(text), "")
	default:
		err = fmt.Errorf("no gateway for platform %q", env.Platform)
	}
	if err != nil {
		r.logger.Error("reply send failed", slog.String("message_id", env.MessageID), slog.Any("error", err))
	}
}

func resultCount(result query.Result) int64 {
	switch {
	case result.Records != nil:
		return int64(len(result.Records))
	case result.Buckets != nil:
		return int64(len(result.Buckets))
	default:
		return result.Count
	}
}

func displayName(att platform.Attachment) string {
	if strings.TrimSpace(att.FileName) != "" {
		return att.FileName
	}
	if strings.TrimSpace(att.ID) != "" {
		return att.ID
	}
	return "(unnamed)"
}

func pluralFiles(n int) string {
	if n == 1 {
		return "file"
	}
	return "files"
}
