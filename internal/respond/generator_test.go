package respond

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerchat/ledgerchat/internal/query"
)

func TestFromResultTypeMapping(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	tests := []struct {
		intent     query.Intent
		resultType ResultType
		viz        Visualization
	}{
		{query.IntentCount, ResultCount, VisualizationNumber},
		{query.IntentList, ResultList, VisualizationList},
		{query.IntentSearch, ResultList, VisualizationList},
		{query.IntentAggregate, ResultAggregate, VisualizationBarChart},
		{query.IntentStatus, ResultSummary, VisualizationPieChart},
	}
	for _, tt := range tests {
		resp := g.FromResult("q", query.ParsedQuery{Intent: tt.intent, Confidence: 0.9}, query.Result{}, "whatsapp")
		assert.Equal(t, tt.resultType, resp.Results.Type, "intent %s", tt.intent)
		assert.Equal(t, tt.viz, resp.Results.Visualization, "intent %s", tt.intent)
		assert.NotEmpty(t, resp.Metadata.QueryID)
		assert.LessOrEqual(t, len(resp.Suggestions), maxSuggestions)
	}
}

func TestFromResultFiltersApplied(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	parsed := query.ParsedQuery{
		Intent:     query.IntentList,
		Confidence: 0.9,
		Entities:   map[string]string{"vendor": "Acme", "status": ""},
	}
	resp := g.FromResult("q", parsed, query.Result{}, "whatsapp")
	require.Len(t, resp.Metadata.FiltersApplied, 1)
	assert.Equal(t, "vendor=Acme", resp.Metadata.FiltersApplied[0])
}

func TestFromResultCarriesTotal(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	result := query.Result{
		Records:  []query.Record{{"file_name": "a.pdf"}},
		Metadata: query.ResultMetadata{TotalCount: 80},
	}
	resp := g.FromResult("q", query.ParsedQuery{Intent: query.IntentList, Confidence: 0.9}, result, "whatsapp")
	assert.Equal(t, int64(80), resp.Results.Total)
}

func TestFromResultRetryActionOnFailedStatus(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	result := query.Result{
		Buckets: []query.AggregateBucket{
			{Group: "processed", Count: 9},
			{Group: "failed", Count: 2},
		},
	}
	resp := g.FromResult("status?", query.ParsedQuery{Intent: query.IntentStatus, Confidence: 0.9}, result, "whatsapp")
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "Retry failed", resp.Actions[0].Label)
}

func TestFromResultSlackListGetsDashboardAction(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	resp := g.FromResult("list", query.ParsedQuery{Intent: query.IntentList, Confidence: 0.9}, query.Result{}, "slack")
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "Open in dashboard", resp.Actions[0].Label)

	waResp := g.FromResult("list", query.ParsedQuery{Intent: query.IntentList, Confidence: 0.9}, query.Result{}, "whatsapp")
	assert.Empty(t, waResp.Actions)
}

func TestConversationalResponses(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	greeting := g.Conversational("hi", query.ParsedQuery{Intent: query.IntentGreeting, Confidence: 0.95})
	assert.True(t, greeting.IsConversational())
	assert.NotEmpty(t, greeting.Metadata.ResponseText)
	assert.Empty(t, greeting.Suggestions)

	financial := g.Conversational("what about Acme", query.ParsedQuery{
		Intent:     query.IntentFinancial,
		Confidence: 0.8,
		Entities:   map[string]string{"vendor": "Acme"},
	})
	assert.Contains(t, financial.Metadata.ResponseText, "Acme")
}

func TestFromErrorClassification(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{errors.New("context deadline exceeded"), ErrTimeout},
		{errors.New("permission denied for table documents"), ErrPermissionDenied},
		{errors.New("database connection refused"), ErrDatabase},
		{errors.New("parse failure near token"), ErrParsingFailed},
		{errors.New("no data for tenant"), ErrNoDataFound},
		{errors.New("something exploded"), ErrExecutionFailed},
	}
	for _, tt := range tests {
		resp := g.FromError("q", query.IntentList, tt.err)
		assert.Equal(t, tt.code, resp.Metadata.ErrorCode, "error %v", tt.err)
		assert.True(t, resp.IsError())
		assert.NotEmpty(t, resp.Metadata.ResponseText)
		assert.NotEmpty(t, resp.Suggestions)
	}
}
