// Package openai implements the intent classifier and best-effort result
// summarizer on the OpenAI chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ledgerchat/ledgerchat/internal/config"
	"github.com/ledgerchat/ledgerchat/internal/query"
)

const classifierSystemPrompt = `You classify short chat messages sent to an accounting assistant.
Respond with strict JSON only: {"intent": "...", "confidence": 0.0, "entities": {}}.
Intents: count, list, search, aggregate, status, greeting, casual, financial, help, unknown.
Entities may include vendor, date_range, document_type, status.
Data questions get count/list/search/aggregate/status; small talk gets greeting/casual;
vague finance talk without a runnable question gets financial; anything else unknown.`

// Client is the LLM-backed classifier and summarizer.
type Client struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// New creates a classifier client from config.
func New(log *slog.Logger, cfg config.ClassifierConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("classifier.api_key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		client:         osdk.NewClient(opts...),
		model:          strings.TrimSpace(cfg.Model),
		requestTimeout: timeout,
		logger:         log.With(slog.String("component", "classifier")),
	}, nil
}

// queryKeywords drive the cheap fast path: text mentioning any of these is
// worth a full LLM parse.
var queryKeywords = []string{
	"how many", "how much", "count", "list", "show", "find", "search",
	"total", "sum", "average", "spend", "spent", "invoice", "invoices",
	"receipt", "receipts", "document", "documents", "vendor", "status",
	"breakdown", "by ", "last month", "this month", "this week", "today",
}

// IsQuerySupported is the cheap check used at message-store write time and
// before any LLM call. No network access.
func (c *Client) IsQuerySupported(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, keyword := range queryKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	// Question-shaped text is worth a parse even without keywords.
	return strings.HasSuffix(text, "?")
}

type classifierOutput struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

// ParseQuery asks the model to classify the text into a ParsedQuery.
func (c *Client) ParseQuery(ctx context.Context, text string, qctx query.Context) (query.ParsedQuery, error) {
	startedAt := time.Now()
	userPrompt := fmt.Sprintf("platform=%s\nmessage: %s", qctx.Platform, strings.TrimSpace(text))

	completion, err := c.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.SystemMessage(classifierSystemPrompt),
			osdk.UserMessage(userPrompt),
		},
	})
	if err != nil {
		c.logger.Debug("classify request failed",
			slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
			slog.Any("error", err),
		)
		return query.ParsedQuery{}, fmt.Errorf("classify: %w", err)
	}
	if len(completion.Choices) == 0 {
		return query.ParsedQuery{}, errors.New("classify: empty completion")
	}

	parsed, err := decodeClassifierOutput(completion.Choices[0].Message.Content)
	if err != nil {
		return query.ParsedQuery{}, err
	}
	c.logger.Debug("classified",
		slog.String("intent", string(parsed.Intent)),
		slog.Float64("confidence", parsed.Confidence),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
	)
	return parsed, nil
}

// GenerateSummary asks the model for a one-paragraph natural-language
// summary of the structured result. Callers treat any error as non-fatal.
func (c *Client) GenerateSummary(ctx context.Context, queryText string, result query.Result) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	completion, err := c.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.SystemMessage("Summarize the query result for a business user in one short paragraph. Plain text, no markdown."),
			osdk.UserMessage(fmt.Sprintf("question: %s\nresult: %s", queryText, payload)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("summarize: empty completion")
	}
	summary := strings.TrimSpace(completion.Choices[0].Message.Content)
	if summary == "" {
		return "", errors.New("summarize: blank summary")
	}
	return summary, nil
}

// decodeClassifierOutput parses the model's JSON, tolerating code fences,
// and clamps the fields into the closed intent set and [0,1] confidence.
func decodeClassifierOutput(content string) (query.ParsedQuery, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out classifierOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return query.ParsedQuery{}, fmt.Errorf("decode classifier output: %w", err)
	}
	intent := query.Intent(strings.ToLower(strings.TrimSpace(out.Intent)))
	switch intent {
	case query.IntentCount, query.IntentList, query.IntentSearch, query.IntentAggregate,
		query.IntentStatus, query.IntentGreeting, query.IntentCasual, query.IntentFinancial,
		query.IntentHelp, query.IntentUnknown:
	default:
		intent = query.IntentUnknown
	}
	confidence := out.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return query.ParsedQuery{
		Intent:     intent,
		Confidence: confidence,
		Entities:   out.Entities,
	}, nil
}
