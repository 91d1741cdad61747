package whatsapp

import (
	"fmt"
	"strings"

	"github.com/ledgerchat/ledgerchat/internal/query"
	"github.com/ledgerchat/ledgerchat/internal/respond"
)

const (
	// listDisplayCap bounds enumerated list items; the remainder collapses
	// into a "+N more" trailer.
	listDisplayCap = 10
	// quickReplyCap is the WhatsApp interactive-message limit.
	quickReplyCap = 5
	// lowConfidenceThreshold is the bar under which replies carry a disclaimer.
	lowConfidenceThreshold = 0.7

	lowConfidenceDisclaimer = "_I'm not fully sure I understood that. If this isn't what you meant, try rephrasing._"
)

// Formatter renders UnifiedResponses as WhatsApp plain text with light
// emoji markers.
type Formatter struct{}

// NewFormatter creates a WhatsApp formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format renders the response. ResponseText, when set, is used verbatim;
// suggestions and the confidence disclaimer only decorate genuine
// successful query responses.
func (f *Formatter) Format(resp respond.UnifiedResponse) string {
	if text := strings.TrimSpace(resp.Metadata.ResponseText); text != "" {
		return text
	}

	var b strings.Builder
	b.WriteString(renderResults(resp))

	if !resp.IsConversational() && !resp.IsError() {
		if replies := quickReplies(resp); len(replies) > 0 {
			b.WriteString("\n\n*You can also try:*")
			for i, reply := range replies {
				fmt.Fprintf(&b, "\n%d. %s", i+1, reply)
			}
		}
		if resp.Metadata.Confidence < lowConfidenceThreshold {
			b.WriteString("\n\n" + lowConfidenceDisclaimer)
		}
	}
	return b.String()
}

func renderResults(resp respond.UnifiedResponse) string {
	switch resp.Results.Type {
	case respond.ResultCount:
		return fmt.Sprintf("🔢 Found *%d* matching %s.", resp.Results.Count, plural(resp.Results.Count, "document", "documents"))
	case respond.ResultList:
		return renderList(resp.Results.Records, resp.Results.Total)
	case respond.ResultAggregate:
		return renderBuckets("📊 Here's the breakdown:", resp.Results.Buckets, true)
	default:
		if len(resp.Results.Buckets) > 0 {
			return renderBuckets("📋 Status overview:", resp.Results.Buckets, false)
		}
		return "Done."
	}
}

// renderList enumerates up to listDisplayCap records. The headline count
// and the "+N more" trailer use the full match total, which can exceed the
// fetched page.
func renderList(records []query.Record, total int64) string {
	if len(records) == 0 {
		return "📭 No matching documents found."
	}
	if total < int64(len(records)) {
		total = int64(len(records))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📄 Found %d %s:", total, plural(total, "document", "documents"))
	shown := records
	if len(shown) > listDisplayCap {
		shown = shown[:listDisplayCap]
	}
	for _, record := range shown {
		b.WriteString("\n• " + recordLine(record))
	}
	if extra := total - int64(len(shown)); extra > 0 {
		fmt.Fprintf(&b, "\n_+%d more_", extra)
	}
	return b.String()
}

func renderBuckets(header string, buckets []query.AggregateBucket, withTotals bool) string {
	if len(buckets) == 0 {
		return "📭 Nothing to report yet."
	}
	var b strings.Builder
	b.WriteString(header)
	for _, bucket := range buckets {
		if withTotals && bucket.Total != 0 {
			fmt.Fprintf(&b, "\n• %s: %d (%.2f)", bucket.Group, bucket.Count, bucket.Total)
			continue
		}
		fmt.Fprintf(&b, "\n• %s: %d", bucket.Group, bucket.Count)
	}
	return b.String()
}

func recordLine(record query.Record) string {
	name, _ := record["file_name"].(string)
	if strings.TrimSpace(name) == "" {
		name = "(unnamed)"
	}
	if vendor, _ := record["vendor"].(string); strings.TrimSpace(vendor) != "" {
		return name + " - " + vendor
	}
	return name
}

// quickReplies merges suggestions and actions into one numbered list,
// suggestions first, capped at the platform limit.
func quickReplies(resp respond.UnifiedResponse) []string {
	replies := make([]string, 0, len(resp.Suggestions)+len(resp.Actions))
	replies = append(replies, resp.Suggestions...)
	for _, action := range resp.Actions {
		replies = append(replies, action.Label)
	}
	if len(replies) > quickReplyCap {
		replies = replies[:quickReplyCap]
	}
	return replies
}

func plural(n int64, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
