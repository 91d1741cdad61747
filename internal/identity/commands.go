package identity

import (
	"regexp"
	"strings"
)

// CommandKind classifies a chat-native tenant command.
type CommandKind int

const (
	// CommandNone means the text is not a tenant command; treat it as a
	// query in the currently active tenant.
	CommandNone CommandKind = iota
	CommandSwitch
	CommandList
	CommandCurrent
	CommandHelp
)

// Command is a parsed tenant command. For CommandSwitch, TenantRef holds the
// requested slug or name and Query holds any trailing query text to run
// after switching.
type Command struct {
	Kind      CommandKind
	TenantRef string
	Query     string
}

var (
	atSlugPattern  = regexp.MustCompile(`^@([a-zA-Z0-9][a-zA-Z0-9_-]*)(?:\s+(.*))?$`)
	switchPattern  = regexp.MustCompile(`(?i)^(?:switch|change|use)\s+(?:tenant|org|organization)\s+(.+)$`)
	listPattern    = regexp.MustCompile(`(?i)^list\s+(?:tenants|orgs|organizations)$`)
	currentPattern = regexp.MustCompile(`(?i)^(?:current|which|what)\s+(?:tenant|org|organization)\??$`)
)

// ParseCommand parses the tenant command grammar. Matching is
// case-insensitive; anything that is not a command comes back as
// CommandNone so the caller treats it as a query.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{Kind: CommandNone}
	}

	switch text {
	case "@?":
		return Command{Kind: CommandList}
	case "@@":
		return Command{Kind: CommandCurrent}
	}
	switch strings.ToLower(text) {
	case "help", "commands", "?":
		return Command{Kind: CommandHelp}
	}

	if m := atSlugPattern.FindStringSubmatch(text); m != nil {
		return Command{
			Kind:      CommandSwitch,
			TenantRef: strings.ToLower(m[1]),
			Query:     strings.TrimSpace(m[2]),
		}
	}
	if m := switchPattern.FindStringSubmatch(text); m != nil {
		return Command{Kind: CommandSwitch, TenantRef: strings.TrimSpace(m[1])}
	}
	if listPattern.MatchString(text) {
		return Command{Kind: CommandList}
	}
	if currentPattern.MatchString(text) {
		return Command{Kind: CommandCurrent}
	}

	return Command{Kind: CommandNone, Query: text}
}

// CommandHelpText is the canned reply for the help command.
const CommandHelpText = `Here's what I can do:

*Tenant commands*
- ` + "`@slug`" + ` or ` + "`@slug <question>`" + ` - switch tenant (and optionally ask right away)
- ` + "`switch tenant <name>`" + ` - switch by name or slug
- ` + "`list tenants`" + ` or ` + "`@?`" + ` - show tenants you can access
- ` + "`current tenant`" + ` or ` + "`@@`" + ` - show the active tenant

*Questions*
Just ask in plain language, e.g. "how many invoices from Acme last month?"

*Files*
Send a document or image and I'll file it for you.`
