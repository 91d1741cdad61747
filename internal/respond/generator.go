package respond

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ledgerchat/ledgerchat/internal/query"
)

// maxSuggestions is the cap on follow-up suggestion strings.
const maxSuggestions = 3

// Generator turns query results, conversational intents, and errors into
// UnifiedResponses.
type Generator struct {
	logger *slog.Logger
}

// NewGenerator creates a response generator.
func NewGenerator(log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{logger: log.With(slog.String("component", "response_generator"))}
}

// FromResult builds the response for an executed query. Result type and
// visualization are derived deterministically from the intent.
func (g *Generator) FromResult(queryText string, parsed query.ParsedQuery, result query.Result, platformName string) UnifiedResponse {
	resultType := resultTypeForIntent(parsed.Intent)
	response := UnifiedResponse{
		Query:  queryText,
		Intent: parsed.Intent,
		Results: Results{
			Type:          resultType,
			Count:         result.Count,
			Total:         result.Metadata.TotalCount,
			Records:       result.Records,
			Buckets:       result.Buckets,
			Visualization: visualizationForIntent(parsed.Intent),
		},
		Metadata: Metadata{
			ProcessingTimeMs: result.Metadata.ExecutionTimeMs,
			Confidence:       parsed.Confidence,
			FiltersApplied:   filtersApplied(parsed),
			QueryID:          uuid.NewString(),
		},
		Suggestions: followUpSuggestions(parsed.Intent),
	}
	response.Actions = quickActions(parsed.Intent, result, platformName)
	return response
}

// Conversational synthesizes a canned response keyed on the intent, with no
// database access. For financial intent with an extracted vendor entity the
// phrasing echoes the vendor back.
func (g *Generator) Conversational(queryText string, parsed query.ParsedQuery) UnifiedResponse {
	return UnifiedResponse{
		Query:  queryText,
		Intent: parsed.Intent,
		Results: Results{
			Type: ResultSummary,
		},
		Metadata: Metadata{
			Confidence:   parsed.Confidence,
			QueryID:      uuid.NewString(),
			ResponseText: conversationalText(parsed),
		},
	}
}

// FromError classifies err into the taxonomy and synthesizes a user-facing
// error response with suggestions instead of surfacing raw error text.
func (g *Generator) FromError(queryText string, intent query.Intent, err error) UnifiedResponse {
	code := ClassifyError(err)
	g.logger.Warn("query pipeline error",
		slog.String("code", string(code)),
		slog.Any("error", err),
	)
	return UnifiedResponse{
		Query:  queryText,
		Intent: intent,
		Results: Results{
			Type: ResultSummary,
		},
		Metadata: Metadata{
			QueryID:      uuid.NewString(),
			ErrorCode:    code,
			ResponseText: ErrorMessage(code),
		},
		Suggestions: ErrorSuggestionList(code),
	}
}

func resultTypeForIntent(intent query.Intent) ResultType {
	switch intent {
	case query.IntentCount:
		return ResultCount
	case query.IntentList, query.IntentSearch:
		return ResultList
	case query.IntentAggregate:
		return ResultAggregate
	case query.IntentStatus:
		return ResultSummary
	default:
		return ResultSummary
	}
}

func visualizationForIntent(intent query.Intent) Visualization {
	switch intent {
	case query.IntentCount:
		return VisualizationNumber
	case query.IntentList, query.IntentSearch:
		return VisualizationList
	case query.IntentAggregate:
		return VisualizationBarChart
	case query.IntentStatus:
		return VisualizationPieChart
	default:
		return ""
	}
}

func filtersApplied(parsed query.ParsedQuery) []string {
	if len(parsed.Entities) == 0 {
		return nil
	}
	filters := make([]string, 0, len(parsed.Entities))
	for key, value := range parsed.Entities {
		if strings.TrimSpace(value) == "" {
			continue
		}
		filters = append(filters, key+"="+value)
	}
	return filters
}

func followUpSuggestions(intent query.Intent) []string {
	var suggestions []string
	switch intent {
	case query.IntentCount:
		suggestions = []string{
			"Show me the list",
			"Break it down by vendor",
		}
	case query.IntentList, query.IntentSearch:
		suggestions = []string{
			"How many in total?",
			"Only this month",
		}
	case query.IntentAggregate:
		suggestions = []string{
			"Show the top vendor's documents",
			"Same breakdown for last month",
		}
	case query.IntentStatus:
		suggestions = []string{
			"List the failed ones",
		}
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

// quickActions attaches platform-appropriate quick actions; a status
// breakdown showing failures offers a retry.
func quickActions(intent query.Intent, result query.Result, platformName string) []Action {
	var actions []Action
	if intent == query.IntentStatus {
		for _, bucket := range result.Buckets {
			if strings.EqualFold(bucket.Group, "failed") && bucket.Count > 0 {
				actions = append(actions, Action{Label: "Retry failed", Value: "retry failed"})
				break
			}
		}
	}
	if platformName == "slack" && resultTypeForIntent(intent) == ResultList {
		actions = append(actions, Action{Label: "Open in dashboard", Value: "open dashboard"})
	}
	return actions
}

func conversationalText(parsed query.ParsedQuery) string {
	switch parsed.Intent {
	case query.IntentGreeting:
		return "Hi there! Ask me about your documents and invoices, or send me a file to store."
	case query.IntentCasual:
		return "Happy to chat, but I'm best at answering questions about your business data. Try asking about your invoices or receipts."
	case query.IntentFinancial:
		if vendor := strings.TrimSpace(parsed.Entity("vendor")); vendor != "" {
			return fmt.Sprintf(
				"It sounds like you're asking about %s. Try \"show documents from %s\" or \"total spend with %s\" and I'll look it up.",
				vendor, vendor, vendor,
			)
		}
		return `It sounds like a finance question. Try "total spend last month" or "show recent invoices" and I'll look it up.`
	case query.IntentHelp:
		return "You can ask things like \"how many invoices this month?\", \"show documents from Acme\", or \"total spend by vendor\". You can also send files and I'll store them."
	default:
		return `I'm not sure what you're after. Try "help" to see what I can do.`
	}
}
