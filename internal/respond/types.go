// Package respond builds the platform-agnostic UnifiedResponse from query
// results, conversational intents, and error conditions.
package respond

import "github.com/ledgerchat/ledgerchat/internal/query"

// ResultType is the presentation family of a response.
type ResultType string

const (
	ResultCount     ResultType = "count"
	ResultList      ResultType = "list"
	ResultAggregate ResultType = "aggregate"
	ResultSummary   ResultType = "summary"
)

// Visualization hints how a client may render the result.
type Visualization string

const (
	VisualizationNumber   Visualization = "number"
	VisualizationList     Visualization = "list"
	VisualizationBarChart Visualization = "bar_chart"
	VisualizationPieChart Visualization = "pie_chart"
)

// Results is the payload section of a UnifiedResponse. Total is the full
// match count before the executor's fetch limit; Records may be a page of
// it.
type Results struct {
	Type          ResultType              `json:"type"`
	Count         int64                   `json:"count,omitempty"`
	Total         int64                   `json:"total,omitempty"`
	Records       []query.Record          `json:"records,omitempty"`
	Buckets       []query.AggregateBucket `json:"buckets,omitempty"`
	Visualization Visualization           `json:"visualization,omitempty"`
}

// Metadata carries response bookkeeping. ResponseText, when present, is
// authoritative pre-rendered text: formatters use it verbatim instead of
// synthesizing their own summary.
type Metadata struct {
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	Confidence       float64   `json:"confidence"`
	FiltersApplied   []string  `json:"filters_applied,omitempty"`
	QueryID          string    `json:"query_id,omitempty"`
	ResponseText     string    `json:"response_text,omitempty"`
	ErrorCode        ErrorCode `json:"error_code,omitempty"`
}

// Action is a platform quick action offered alongside a response.
type Action struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// UnifiedResponse is the platform-agnostic reply shape handed to the
// platform formatters.
type UnifiedResponse struct {
	Query       string       `json:"query"`
	Intent      query.Intent `json:"intent"`
	Results     Results      `json:"results"`
	Metadata    Metadata     `json:"metadata"`
	Suggestions []string     `json:"suggestions,omitempty"`
	Actions     []Action     `json:"actions,omitempty"`
}

// IsConversational reports whether this response came from local
// conversational handling rather than a data query.
func (r UnifiedResponse) IsConversational() bool {
	return r.Intent.IsConversational()
}

// IsError reports whether this response represents a pipeline error.
func (r UnifiedResponse) IsError() bool {
	return r.Metadata.ErrorCode != ""
}
