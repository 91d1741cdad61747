package whatsapp

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ledgerchat/ledgerchat/internal/query"
	"github.com/ledgerchat/ledgerchat/internal/respond"
)

func listResponse(confidence float64, records int) respond.UnifiedResponse {
	resp := respond.UnifiedResponse{
		Query:  "show documents",
		Intent: query.IntentList,
		Results: respond.Results{
			Type: respond.ResultList,
		},
		Metadata: respond.Metadata{Confidence: confidence},
	}
	for i := 0; i < records; i++ {
		resp.Results.Records = append(resp.Results.Records, query.Record{
			"file_name": fmt.Sprintf("invoice-%d.pdf", i),
			"vendor":    "Acme",
		})
	}
	return resp
}

func TestFormatUsesResponseTextVerbatim(t *testing.T) {
	t.Parallel()

	resp := listResponse(0.9, 3)
	resp.Metadata.ResponseText = "Here is your pre-rendered answer."
	got := NewFormatter().Format(resp)
	if got != "Here is your pre-rendered answer." {
		t.Fatalf("expected verbatim response text, got %q", got)
	}
}

func TestFormatLowConfidenceDisclaimer(t *testing.T) {
	t.Parallel()

	f := NewFormatter()
	low := f.Format(listResponse(0.5, 2))
	if !strings.Contains(low, lowConfidenceDisclaimer) {
		t.Fatalf("expected disclaimer at confidence 0.5:\n%s", low)
	}
	high := f.Format(listResponse(0.9, 2))
	if strings.Contains(high, lowConfidenceDisclaimer) {
		t.Fatalf("unexpected disclaimer at confidence 0.9:\n%s", high)
	}
}

func TestFormatNoDisclaimerOnConversational(t *testing.T) {
	t.Parallel()

	resp := respond.UnifiedResponse{
		Query:  "hi",
		Intent: query.IntentGreeting,
		Results: respond.Results{
			Type: respond.ResultSummary,
		},
		Metadata: respond.Metadata{Confidence: 0.3, ResponseText: "Hi there!"},
	}
	got := NewFormatter().Format(resp)
	if got != "Hi there!" {
		t.Fatalf("conversational reply must be verbatim, got %q", got)
	}
}

func TestFormatListCap(t *testing.T) {
	t.Parallel()

	got := NewFormatter().Format(listResponse(0.9, 14))
	if count := strings.Count(got, "invoice-"); count != listDisplayCap {
		t.Fatalf("expected %d enumerated items, got %d:\n%s", listDisplayCap, count, got)
	}
	if !strings.Contains(got, "+4 more") {
		t.Fatalf("expected +4 more trailer:\n%s", got)
	}
}

func TestFormatListTotalBeyondPage(t *testing.T) {
	t.Parallel()

	resp := listResponse(0.9, 12)
	resp.Results.Total = 80
	got := NewFormatter().Format(resp)
	if !strings.Contains(got, "Found 80 documents") {
		t.Fatalf("headline must use the full match total:\n%s", got)
	}
	if !strings.Contains(got, "+70 more") {
		t.Fatalf("trailer must count beyond the fetched page:\n%s", got)
	}
}

func TestFormatQuickReplyCap(t *testing.T) {
	t.Parallel()

	resp := listResponse(0.9, 1)
	resp.Suggestions = []string{"one", "two", "three"}
	resp.Actions = []respond.Action{
		{Label: "four", Value: "four"},
		{Label: "five", Value: "five"},
		{Label: "six", Value: "six"},
	}
	got := NewFormatter().Format(resp)
	if !strings.Contains(got, "5. five") {
		t.Fatalf("expected fifth quick reply:\n%s", got)
	}
	if strings.Contains(got, "six") {
		t.Fatalf("quick replies must cap at %d:\n%s", quickReplyCap, got)
	}
}

func TestFormatErrorSkipsSuggestionTrailer(t *testing.T) {
	t.Parallel()

	resp := respond.UnifiedResponse{
		Query:  "broken",
		Intent: query.IntentList,
		Results: respond.Results{
			Type: respond.ResultSummary,
		},
		Metadata: respond.Metadata{
			ErrorCode:    respond.ErrDatabase,
			ResponseText: "Something went wrong on our side.",
		},
		Suggestions: []string{"Try again in a moment"},
	}
	got := NewFormatter().Format(resp)
	if got != "Something went wrong on our side." {
		t.Fatalf("error reply must be verbatim, got %q", got)
	}
}

func TestFormatCountAndAggregate(t *testing.T) {
	t.Parallel()

	f := NewFormatter()
	count := f.Format(respond.UnifiedResponse{
		Intent:   query.IntentCount,
		Results:  respond.Results{Type: respond.ResultCount, Count: 7},
		Metadata: respond.Metadata{Confidence: 0.95},
	})
	if !strings.Contains(count, "7") {
		t.Fatalf("expected count in output:\n%s", count)
	}

	agg := f.Format(respond.UnifiedResponse{
		Intent: query.IntentAggregate,
		Results: respond.Results{
			Type: respond.ResultAggregate,
			Buckets: []query.AggregateBucket{
				{Group: "Acme", Count: 3, Total: 120.50},
				{Group: "Globex", Count: 1},
			},
		},
		Metadata: respond.Metadata{Confidence: 0.95},
	})
	if !strings.Contains(agg, "Acme: 3 (120.50)") {
		t.Fatalf("expected bucket with total:\n%s", agg)
	}
	if !strings.Contains(agg, "Globex: 1") {
		t.Fatalf("expected bucket without total:\n%s", agg)
	}
}
