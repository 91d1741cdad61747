// Package query defines the parsed-query representation produced by the
// intent classifier and the contracts for classification, execution, and
// best-effort summarization.
package query

import "context"

// Intent is the classifier's label for a piece of text.
type Intent string

const (
	IntentCount     Intent = "count"
	IntentList      Intent = "list"
	IntentSearch    Intent = "search"
	IntentAggregate Intent = "aggregate"
	IntentStatus    Intent = "status"
	IntentGreeting  Intent = "greeting"
	IntentCasual    Intent = "casual"
	IntentFinancial Intent = "financial"
	IntentHelp      Intent = "help"
	IntentUnknown   Intent = "unknown"
)

// IsConversational reports whether the intent is answered locally with
// canned text, never reaching the query executor. The set is closed.
func (i Intent) IsConversational() bool {
	switch i {
	case IntentGreeting, IntentCasual, IntentFinancial, IntentHelp, IntentUnknown:
		return true
	}
	return false
}

// ParsedQuery is the structured query the intent classifier extracts from
// natural-language text.
type ParsedQuery struct {
	Intent     Intent            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// Entity returns an extracted entity value, or "".
func (q ParsedQuery) Entity(key string) string {
	if q.Entities == nil {
		return ""
	}
	return q.Entities[key]
}

// Record is one row of tenant data returned by the executor.
type Record map[string]any

// AggregateBucket is one group of an aggregate result.
type AggregateBucket struct {
	Group string  `json:"group"`
	Count int64   `json:"count"`
	Total float64 `json:"total,omitempty"`
}

// Result is the outcome of executing a parsed query against tenant data.
// Exactly one of Count, Records, or Buckets is populated, matching the
// intent family.
type Result struct {
	Count    int64             `json:"count,omitempty"`
	Records  []Record          `json:"records,omitempty"`
	Buckets  []AggregateBucket `json:"buckets,omitempty"`
	Metadata ResultMetadata    `json:"metadata"`
}

// ResultMetadata carries execution bookkeeping.
type ResultMetadata struct {
	Confidence      float64 `json:"confidence"`
	TotalCount      int64   `json:"total_count,omitempty"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
}

// Context scopes a classification or execution call.
type Context struct {
	TenantID string
	UserID   string
	Platform string
}

// Classifier is the intent classification collaborator. IsQuerySupported is
// the cheap fast path; ParseQuery may be LLM-backed and slow.
type Classifier interface {
	IsQuerySupported(text string) bool
	ParseQuery(ctx context.Context, text string, qctx Context) (ParsedQuery, error)
}

// Summarizer produces a natural-language summary of a structured result.
// Strictly best effort: callers must tolerate any error.
type Summarizer interface {
	GenerateSummary(ctx context.Context, queryText string, result Result) (string, error)
}

// Executor runs a parsed query against tenant-scoped data.
type Executor interface {
	Execute(ctx context.Context, parsed ParsedQuery, tenantID string) (Result, error)
}
