package slackbot

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ledgerchat/ledgerchat/internal/query"
	"github.com/ledgerchat/ledgerchat/internal/respond"
)

func TestFormatResponseTextVerbatim(t *testing.T) {
	t.Parallel()

	resp := respond.UnifiedResponse{
		Intent:   query.IntentGreeting,
		Results:  respond.Results{Type: respond.ResultSummary},
		Metadata: respond.Metadata{ResponseText: "Hi there!"},
	}
	msg := NewFormatter().Format(resp)
	if msg.Text != "Hi there!" {
		t.Fatalf("expected verbatim text, got %q", msg.Text)
	}
	if len(msg.Blocks) != 1 || msg.Blocks[0].Type != "section" {
		t.Fatalf("expected a single section block, got %+v", msg.Blocks)
	}
}

func TestFormatListWithDisclaimer(t *testing.T) {
	t.Parallel()

	resp := respond.UnifiedResponse{
		Intent: query.IntentList,
		Results: respond.Results{
			Type: respond.ResultList,
			Records: []query.Record{
				{"file_name": "invoice.pdf", "vendor": "Acme"},
			},
		},
		Metadata:    respond.Metadata{Confidence: 0.4},
		Suggestions: []string{"How many in total?"},
	}
	msg := NewFormatter().Format(resp)
	if !strings.Contains(msg.Text, "invoice.pdf - Acme") {
		t.Fatalf("expected record line:\n%s", msg.Text)
	}
	if !strings.Contains(msg.Text, lowConfidenceDisclaimer) {
		t.Fatalf("expected disclaimer at confidence 0.4:\n%s", msg.Text)
	}
	var hasContext bool
	for _, block := range msg.Blocks {
		if block.Type == "context" {
			hasContext = true
		}
	}
	if !hasContext {
		t.Fatal("expected a context block carrying the disclaimer")
	}
}

func TestFormatListTotalBeyondPage(t *testing.T) {
	t.Parallel()

	resp := respond.UnifiedResponse{
		Intent:   query.IntentList,
		Results:  respond.Results{Type: respond.ResultList, Total: 80},
		Metadata: respond.Metadata{Confidence: 0.9},
	}
	for i := 0; i < 12; i++ {
		resp.Results.Records = append(resp.Results.Records, query.Record{
			"file_name": fmt.Sprintf("doc-%d.pdf", i),
		})
	}
	msg := NewFormatter().Format(resp)
	if !strings.Contains(msg.Text, "Found 80 documents") {
		t.Fatalf("headline must use the full match total:\n%s", msg.Text)
	}
	if !strings.Contains(msg.Text, "+70 more") {
		t.Fatalf("trailer must count beyond the fetched page:\n%s", msg.Text)
	}
}

func TestWithPrefixPrependsSection(t *testing.T) {
	t.Parallel()

	msg := PlainMessage("body").WithPrefix("ack")
	if !strings.HasPrefix(msg.Text, "ack\n\n") {
		t.Fatalf("expected prefix in fallback text, got %q", msg.Text)
	}
	if len(msg.Blocks) != 2 || msg.Blocks[0].Text.Text != "ack" {
		t.Fatalf("expected ack as first block, got %+v", msg.Blocks)
	}
}
