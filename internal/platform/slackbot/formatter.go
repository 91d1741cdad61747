package slackbot

import (
	"fmt"
	"strings"

	"github.com/ledgerchat/ledgerchat/internal/query"
	"github.com/ledgerchat/ledgerchat/internal/respond"
)

const (
	listDisplayCap         = 10
	quickReplyCap          = 5
	lowConfidenceThreshold = 0.7

	lowConfidenceDisclaimer = "I'm not fully sure I understood that. If this isn't what you meant, try rephrasing."
)

// Block is a minimal Slack Block Kit block.
type Block struct {
	Type     string      `json:"type"`
	Text     *BlockText  `json:"text,omitempty"`
	Elements []BlockText `json:"elements,omitempty"`
	Fields   []BlockText `json:"fields,omitempty"`
}

// BlockText is a Block Kit text object.
type BlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FormattedMessage is the rendered Slack reply: fallback text plus blocks.
type FormattedMessage struct {
	Text   string
	Blocks []Block
}

// Formatter renders UnifiedResponses as Slack Block Kit messages.
type Formatter struct{}

// NewFormatter creates a Slack formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format renders the response. ResponseText, when set, is used verbatim as
// a single section; suggestions and the confidence disclaimer only decorate
// genuine successful query responses.
func (f *Formatter) Format(resp respond.UnifiedResponse) FormattedMessage {
	if text := strings.TrimSpace(resp.Metadata.ResponseText); text != "" {
		return FormattedMessage{
			Text:   text,
			Blocks: []Block{section(text)},
		}
	}

	body := renderResults(resp)
	blocks := []Block{section(body)}

	if !resp.IsConversational() && !resp.IsError() {
		if replies := quickReplies(resp); len(replies) > 0 {
			var b strings.Builder
			b.WriteString("*You can also try:*")
			for i, reply := range replies {
				fmt.Fprintf(&b, "\n%d. %s", i+1, reply)
			}
			blocks = append(blocks, section(b.String()))
		}
		if resp.Metadata.Confidence < lowConfidenceThreshold {
			blocks = append(blocks, Block{
				Type:     "context",
				Elements: []BlockText{{Type: "mrkdwn", Text: lowConfidenceDisclaimer}},
			})
			body += "\n\n" + lowConfidenceDisclaimer
		}
	}
	return FormattedMessage{Text: body, Blocks: blocks}
}

// PlainMessage wraps bare text as a single-section message, for replies
// that never pass through the response generator (commands, acks).
func PlainMessage(text string) FormattedMessage {
	return FormattedMessage{Text: text, Blocks: []Block{section(text)}}
}

// WithPrefix prepends a leading section, used for file-upload
// acknowledgments ahead of a query response.
func (m FormattedMessage) WithPrefix(text string) FormattedMessage {
	return FormattedMessage{
		Text:   text + "\n\n" + m.Text,
		Blocks: append([]Block{section(text)}, m.Blocks...),
	}
}

func section(text string) Block {
	return Block{Type: "section", Text: &BlockText{Type: "mrkdwn", Text: text}}
}

func renderResults(resp respond.UnifiedResponse) string {
	switch resp.Results.Type {
	case respond.ResultCount:
		return fmt.Sprintf(":1234: Found *%d* matching %s.", resp.Results.Count, plural(resp.Results.Count, "document", "documents"))
	case respond.ResultList:
		return renderList(resp.Results.Records, resp.Results.Total)
	case respond.ResultAggregate:
		return renderBuckets(":bar_chart: Here's the breakdown:", resp.Results.Buckets, true)
	default:
		if len(resp.Results.Buckets) > 0 {
			return renderBuckets(":clipboard: Status overview:", resp.Results.Buckets, false)
		}
		return "Done."
	}
}

// renderList enumerates up to listDisplayCap records. The headline count
// and the "+N more" trailer use the full match total, which can exceed the
// fetched page.
func renderList(records []query.Record, total int64) string {
	if len(records) == 0 {
		return ":mailbox_with_no_mail: No matching documents found."
	}
	if total < int64(len(records)) {
		total = int64(len(records))
	}
	var b strings.Builder
	fmt.Fprintf(&b, ":page_facing_up: Found %d %s:", total, plural(total, "document", "documents"))
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
		return ":mailbox_with_no_mail: Nothing to report yet."
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
