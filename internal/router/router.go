// Package router orchestrates inbound message processing: dedup, identity
// resolution, idempotent storage, attachment handling, the query pipeline,
// and the platform reply.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ledgerchat/ledgerchat/internal/analytics"
	"github.com/ledgerchat/ledgerchat/internal/blob"
	"github.com/ledgerchat/ledgerchat/internal/identity"
	"github.com/ledgerchat/ledgerchat/internal/messages"
	"github.com/ledgerchat/ledgerchat/internal/platform"
	"github.com/ledgerchat/ledgerchat/internal/platform/slackbot"
	"github.com/ledgerchat/ledgerchat/internal/platform/whatsapp"
	"github.com/ledgerchat/ledgerchat/internal/query"
	"github.com/ledgerchat/ledgerchat/internal/respond"
)

const (
	emptyMessageReply = "Send me a file to store, or ask a question about your documents, like \"how many invoices this month?\"."
	notAQueryReply    = "I couldn't read that as a data question. Try something like \"show documents from Acme\" or \"total spend last month\", or send `help` for examples."
)

// MessageStore is the idempotent persistence surface the router needs.
type MessageStore interface {
	Store(ctx context.Context, input messages.StoreInput) (messages.StoreResult, error)
	RecordProcessing(ctx context.Context, storedID, parsedQuery, response string, processingTimeMs int64)
}

// Deduper is the advisory duplicate-delivery fast path. Release undoes a
// mark for a delivery that failed before the authoritative upsert, so the
// platform retry is not swallowed.
type Deduper interface {
	IsNew(ctx context.Context, messageID string) bool
	Release(ctx context.Context, messageID string)
}

// IdentityResolver maps sender identities to tenant contexts.
type IdentityResolver interface {
	Resolve(ctx context.Context, key identity.SenderKey, text string) (identity.Resolution, error)
}

// AnalyticsRecorder records pipeline outcomes, best effort.
type AnalyticsRecorder interface {
	Record(ctx context.Context, event analytics.Event)
}

// WhatsAppGateway sends WhatsApp replies and fetches inbound media.
type WhatsAppGateway interface {
	SendMessage(ctx context.Context, target, text string) (string, error)
	Download(ctx context.Context, att platform.Attachment) (io.ReadCloser, error)
}

// SlackGateway sends Slack replies and fetches shared files with the
// workspace bot token.
type SlackGateway interface {
	SendMessage(ctx context.Context, workspaceID, channel string, msg slackbot.FormattedMessage, threadTs string) (string, error)
	Download(ctx context.Context, workspaceID string, att platform.Attachment) (io.ReadCloser, error)
}

// Outcome reports what the router did with one envelope.
type Outcome struct {
	Success   bool
	Duplicate bool
	StoredID  string
	ReplyText string
	FileIDs   []string
}

// Router is the message-processing orchestrator.
type Router struct {
	dedup      Deduper
	store      MessageStore
	resolver   IdentityResolver
	classifier query.Classifier
	executor   query.Executor
	summarizer query.Summarizer
	generator  *respond.Generator
	blobs      blob.Store
	analytics  AnalyticsRecorder

	whatsapp    WhatsAppGateway
	slack       SlackGateway
	waFormatter *whatsapp.Formatter
	slFormatter *slackbot.Formatter

	logger *slog.Logger
}

// Deps bundles the router's collaborators.
type Deps struct {
	Dedup      Deduper
	Store      MessageStore
	Resolver   IdentityResolver
	Classifier query.Classifier
	Executor   query.Executor
	Summarizer query.Summarizer
	Generator  *respond.Generator
	Blobs      blob.Store
	Analytics  AnalyticsRecorder
	WhatsApp   WhatsAppGateway
	Slack      SlackGateway
}

// New creates a router.
func New(log *slog.Logger, deps Deps) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		dedup:       deps.Dedup,
		store:       deps.Store,
		resolver:    deps.Resolver,
		classifier:  deps.Classifier,
		executor:    deps.Executor,
		summarizer:  deps.Summarizer,
		generator:   deps.Generator,
		blobs:       deps.Blobs,
		analytics:   deps.Analytics,
		whatsapp:    deps.WhatsApp,
		slack:       deps.Slack,
		waFormatter: whatsapp.NewFormatter(),
		slFormatter: slackbot.NewFormatter(),
		logger:      log.With(slog.String("component", "router")),
	}
}

// Handle processes one normalized inbound message end to end and sends the
// reply through the originating platform.
func (r *Router) Handle(ctx context.Context, env *platform.MessageEnvelope) (Outcome, error) {
	if r.dedup != nil && !r.dedup.IsNew(ctx, env.MessageID) {
		r.logger.Debug("duplicate delivery short-circuited",
			slog.String("message_id", env.MessageID),
			slog.String("platform", env.Platform.String()),
		)
		return Outcome{Success: true, Duplicate: true}, nil
	}

	outcome, err := r.process(ctx, env)
	if err != nil && r.dedup != nil {
		// The message never reached the authoritative upsert; forget the
		// advisory mark so the platform retry is processed.
		r.dedup.Release(ctx, env.MessageID)
	}
	return outcome, err
}

func (r *Router) process(ctx context.Context, env *platform.MessageEnvelope) (Outcome, error) {
	startedAt := time.Now()

	shape := env.Classify()
	r.logger.Info("message received",
		slog.String("message_id", env.MessageID),
		slog.String("platform", env.Platform.String()),
		slog.String("shape", shape.String()),
	)

	if shape == platform.ShapeEmpty {
		// No row is written for genuinely empty deliveries.
		r.sendText(ctx, env, emptyMessageReply)
		return Outcome{Success: true, ReplyText: emptyMessageReply}, nil
	}

	resolution, err := r.resolver.Resolve(ctx, senderKey(env), env.Content)
	if err != nil {
		resp := r.generator.FromError(env.Content, query.IntentUnknown, err)
		text, _ := r.deliver(ctx, env, resp, "")
		return Outcome{ReplyText: text}, fmt.Errorf("resolve identity: %w", err)
	}
	if resolution.Reply != "" {
		// Command or setup reply; store the raw message for the record.
		stored, storeErr := r.store.Store(ctx, storeInput(env, env.Content, resolution))
		if storeErr != nil {
			r.logger.Error("command message store failed",
				slog.String("message_id", env.MessageID),
				slog.Any("error", storeErr),
			)
		} else if !stored.Created {
			return Outcome{Success: true, Duplicate: true, StoredID: stored.ID}, nil
		}
		r.sendText(ctx, env, resolution.Reply)
		return Outcome{Success: true, ReplyText: resolution.Reply, StoredID: stored.ID}, nil
	}

	switch shape {
	case platform.ShapeFileOnly:
		return r.handleFileOnly(ctx, env, resolution, startedAt)
	case platform.ShapeTextOnly:
		return r.handleTextOnly(ctx, env, resolution, startedAt)
	default:
		return r.handleMixed(ctx, env, resolution, startedAt)
	}
}

func (r *Router) handleFileOnly(ctx context.Context, env *platform.MessageEnvelope, resolution identity.Resolution, startedAt time.Time) (Outcome, error) {
	stored, err := r.store.Store(ctx, storeInput(env, messages.FileUploadPlaceholder, resolution))
	if err != nil {
		return r.replyStoreFailure(ctx, env, err)
	}
	if !stored.Created {
		return Outcome{Success: true, Duplicate: true, StoredID: stored.ID}, nil
	}

	uploaded, failures := r.processAttachments(ctx, env, resolution)
	text := uploadSummary(uploaded, failures)
	r.sendText(ctx, env, text)
	r.store.RecordProcessing(ctx, stored.ID, "", text, time.Since(startedAt).Milliseconds())

	if len(uploaded) == 0 {
		return Outcome{StoredID: stored.ID, ReplyText: text}, nil
	}
	return Outcome{Success: true, StoredID: stored.ID, ReplyText: text, FileIDs: fileIDs(uploaded)}, nil
}

func (r *Router) handleTextOnly(ctx context.Context, env *platform.MessageEnvelope, resolution identity.Resolution, startedAt time.Time) (Outcome, error) {
	stored, err := r.store.Store(ctx, storeInput(env, env.Content, resolution))
	if err != nil {
		return r.replyStoreFailure(ctx, env, err)
	}
	if !stored.Created {
		return Outcome{Success: true, Duplicate: true, StoredID: stored.ID}, nil
	}

	text := strings.TrimSpace(resolution.Query)
	if !r.classifier.IsQuerySupported(text) {
		r.sendText(ctx, env, notAQueryReply)
		r.store.RecordProcessing(ctx, stored.ID, "", notAQueryReply, time.Since(startedAt).Milliseconds())
		return Outcome{Success: true, StoredID: stored.ID, ReplyText: notAQueryReply}, nil
	}

	resp, parsed := r.runQueryPipeline(ctx, env, resolution, text)
	sent, _ := r.deliver(ctx, env, resp, "")
	r.store.RecordProcessing(ctx, stored.ID, parsedSummary(parsed), sent, time.Since(startedAt).Milliseconds())
	return Outcome{Success: !resp.IsError(), StoredID: stored.ID, ReplyText: sent}, nil
}

func (r *Router) handleMixed(ctx context.Context, env *platform.MessageEnvelope, resolution identity.Resolution, startedAt time.Time) (Outcome, error) {
	stored, err := r.store.Store(ctx, storeInput(env, env.Content, resolution))
	if err != nil {
		return r.replyStoreFailure(ctx, env, err)
	}
	if !stored.Created {
		return Outcome{Success: true, Duplicate: true, StoredID: stored.ID}, nil
	}

	// Uploads happen before classification so the reply can reference the
	// stored files.
	uploaded, failures := r.processAttachments(ctx, env, resolution)
	ack := uploadSummary(uploaded, failures)
	if len(uploaded) == 0 {
		r.sendText(ctx, env, ack)
		r.store.RecordProcessing(ctx, stored.ID, "", ack, time.Since(startedAt).Milliseconds())
		return Outcome{StoredID: stored.ID, ReplyText: ack}, nil
	}

	text := strings.TrimSpace(resolution.Query)
	if !r.classifier.IsQuerySupported(text) {
		combined := ack + "\n\nYou also said: \"" + text + "\". " + notAQueryReply
		r.sendText(ctx, env, combined)
		r.store.RecordProcessing(ctx, stored.ID, "", combined, time.Since(startedAt).Milliseconds())
		return Outcome{Success: true, StoredID: stored.ID, ReplyText: combined, FileIDs: fileIDs(uploaded)}, nil
	}

	resp, parsed := r.runQueryPipeline(ctx, env, resolution, text)
	sent, _ := r.deliver(ctx, env, resp, ack)
	r.store.RecordProcessing(ctx, stored.ID, parsedSummary(parsed), sent, time.Since(startedAt).Milliseconds())
	return Outcome{Success: !resp.IsError(), StoredID: stored.ID, ReplyText: sent, FileIDs: fileIDs(uploaded)}, nil
}

func (r *Router) replyStoreFailure(ctx context.Context, env *platform.MessageEnvelope, err error) (Outcome, error) {
	resp := r.generator.FromError(env.Content, query.IntentUnknown, err)
	text, _ := r.deliver(ctx, env, resp, "")
	return Outcome{ReplyText: text}, fmt.Errorf("store message: %w", err)
}

func storeInput(env *platform.MessageEnvelope, content string, resolution identity.Resolution) messages.StoreInput {
	return messages.StoreInput{
		MessageID: env.MessageID,
		Platform:  env.Platform.String(),
		Sender:    env.Sender,
		Content:   content,
		TenantID:  resolution.Tenant.TenantID,
		UserID:    resolution.UserID,
	}
}

func senderKey(env *platform.MessageEnvelope) identity.SenderKey {
	return identity.SenderKey{
		Platform:       env.Platform.String(),
		WorkspaceID:    env.Meta("workspace_id"),
		Sender:         env.Sender,
		ConversationID: env.Meta("channel_id"),
	}
}

func parsedSummary(parsed query.ParsedQuery) string {
	if parsed.Intent == "" {
		return ""
	}
	return string(parsed.Intent)
}

func fileIDs(uploaded []blob.Stored) []string {
	ids := make([]string, 0, len(uploaded))
	for _, f := range uploaded {
		ids = append(ids, f.ID)
	}
	return ids
}
