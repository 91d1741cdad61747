package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	ListMappings(ctx context.Context, platform, workspaceID, sender string) ([]Mapping, error)
	TenantsByEmail(ctx context.Context, email string) ([]Mapping, error)
	CreateMapping(ctx context.Context, m Mapping) error
	CreateLinkToken(ctx context.Context, token LinkToken) error
	TouchMapping(ctx context.Context, mappingID string)
}

// ProfileAPI fetches a sender's profile email from the platform, used for
// first-contact auto-linking.
type ProfileAPI interface {
	ProfileEmail(ctx context.Context, workspaceID, sender string) (string, error)
}

// Resolution is the outcome of identity resolution for one inbound message.
// When Reply is non-empty the router sends it and stops: the message was a
// tenant command, or the sender still needs setup. Otherwise Tenant/UserID
// are resolved and Query holds the text to process (tenant-switch prefixes
// stripped).
type Resolution struct {
	Tenant TenantContext
	UserID string
	Reply  string
	Query  string
}

// Resolver maps platform sender identities to tenant contexts.
type Resolver struct {
	store    Store
	profiles ProfileAPI
	tokens   *LinkTokenIssuer
	cache    *ContextCache
	logger   *slog.Logger
}

// NewResolver creates an identity resolver.
func NewResolver(log *slog.Logger, store Store, profiles ProfileAPI, tokens *LinkTokenIssuer, cache *ContextCache) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if cache == nil {
		cache = NewContextCache(30 * time.Minute)
	}
	return &Resolver{
		store:    store,
		profiles: profiles,
		tokens:   tokens,
		cache:    cache,
		logger:   log.With(slog.String("component", "identity_resolver")),
	}
}

// Resolve determines the tenant context and user for a sender, handling the
// first-contact flow and the tenant command grammar. It never fails
// silently: every terminal condition produces an actionable reply.
func (r *Resolver) Resolve(ctx context.Context, key SenderKey, text string) (Resolution, error) {
	mappings, err := r.store.ListMappings(ctx, key.Platform, key.WorkspaceID, key.Sender)
	if err != nil {
		return Resolution{}, fmt.Errorf("list mappings: %w", err)
	}
	if len(mappings) == 0 {
		mappings, err = r.firstContact(ctx, key)
		if err != nil {
			return Resolution{}, err
		}
		if len(mappings) == 0 {
			reply, err := r.setupReply(ctx, key)
			if err != nil {
				return Resolution{}, err
			}
			return Resolution{Reply: reply}, nil
		}
	}

	command := ParseCommand(text)
	switch command.Kind {
	case CommandHelp:
		return Resolution{Reply: CommandHelpText}, nil
	case CommandList:
		return Resolution{Reply: r.tenantListReply(key, mappings)}, nil
	case CommandCurrent:
		return Resolution{Reply: r.currentTenantReply(key, mappings)}, nil
	case CommandSwitch:
		return r.switchTenant(ctx, key, mappings, command)
	}

	if len(mappings) == 1 {
		m := mappings[0]
		r.cache.Put(key, m.Tenant)
		r.store.TouchMapping(ctx, m.ID)
		return Resolution{Tenant: m.Tenant, UserID: m.UserID, Query: command.Query}, nil
	}

	// Multiple tenants: a prior explicit selection (cached) disambiguates.
	if tenant, ok := r.cache.Get(key); ok {
		if m, ok := findTenant(mappings, tenant.TenantSlug); ok {
			r.store.TouchMapping(ctx, m.ID)
			return Resolution{Tenant: m.Tenant, UserID: m.UserID, Query: command.Query}, nil
		}
		// Access revoked since the selection was cached.
		r.cache.Forget(key)
	}
	return Resolution{Reply: r.selectionRequiredReply(mappings)}, nil
}

// firstContact attempts email-based auto-linking: fetch the sender's profile
// email from the platform and link every tenant an account with that email
// belongs to.
func (r *Resolver) firstContact(ctx context.Context, key SenderKey) ([]Mapping, error) {
	if r.profiles == nil {
		return nil, nil
	}
	email, err := r.profiles.ProfileEmail(ctx, key.WorkspaceID, key.Sender)
	if err != nil {
		r.logger.Warn("profile email lookup failed",
			slog.String("platform", key.Platform),
			slog.String("sender", key.Sender),
			slog.Any("error", err),
		)
		return nil, nil
	}
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	candidates, err := r.store.TenantsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("tenants by email: %w", err)
	}
	linked := make([]Mapping, 0, len(candidates))
	for _, candidate := range candidates {
		mapping := Mapping{
			Platform:    key.Platform,
			WorkspaceID: key.WorkspaceID,
			Sender:      key.Sender,
			UserID:      candidate.UserID,
			Tenant:      candidate.Tenant,
		}
		if err := r.store.CreateMapping(ctx, mapping); err != nil {
			r.logger.Warn("auto-link mapping failed",
				slog.String("tenant_slug", candidate.Tenant.TenantSlug),
				slog.Any("error", err),
			)
			continue
		}
		linked = append(linked, mapping)
	}
	if len(linked) > 0 {
		r.logger.Info("auto-linked sender by profile email",
			slog.String("platform", key.Platform),
			slog.Int("tenants", len(linked)),
		)
	}
	return linked, nil
}

// setupReply mints a single-use link token and renders the manual-link
// onboarding message.
func (r *Resolver) setupReply(ctx context.Context, key SenderKey) (string, error) {
	if r.tokens == nil {
		return "Your account isn't linked yet. Please contact your administrator to get set up.", nil
	}
	token, jti, expiresAt, err := r.tokens.Issue(key.Platform, key.WorkspaceID, key.Sender)
	if err != nil {
		return "", fmt.Errorf("issue link token: %w", err)
	}
	if err := r.store.CreateLinkToken(ctx, LinkToken{
		JTI:         jti,
		Platform:    key.Platform,
		WorkspaceID: key.WorkspaceID,
		Sender:      key.Sender,
		ExpiresAt:   expiresAt,
	}); err != nil {
		return "", err
	}
	minutes := int(r.tokens.TTL().Minutes())
	return fmt.Sprintf(
		"Welcome! I couldn't find an account for you yet.\n\n"+
			"To link this chat to your account, open:\n%s\n\n"+
			"The link is valid for %d minutes and can be used once.",
		r.tokens.LinkURL(token), minutes,
	), nil
}

func (r *Resolver) switchTenant(ctx context.Context, key SenderKey, mappings []Mapping, command Command) (Resolution, error) {
	m, ok := findTenant(mappings, command.TenantRef)
	if !ok {
		// Never default to some other tenant; the cached selection stays put.
		return Resolution{Reply: fmt.Sprintf(
			"You don't have access to %q. Send `list tenants` or `@?` to see the tenants you can use.",
			command.TenantRef,
		)}, nil
	}
	r.cache.Put(key, m.Tenant)
	r.store.TouchMapping(ctx, m.ID)
	if command.Query != "" {
		// Switch-and-query in one message.
		return Resolution{Tenant: m.Tenant, UserID: m.UserID, Query: command.Query}, nil
	}
	return Resolution{Reply: fmt.Sprintf("Switched to %s (@%s).", m.Tenant.TenantName, m.Tenant.TenantSlug)}, nil
}

func (r *Resolver) tenantListReply(key SenderKey, mappings []Mapping) string {
	active, _ := r.cache.Get(key)
	if len(mappings) == 1 {
		active = mappings[0].Tenant
	}
	var b strings.Builder
	b.WriteString("You have access to:\n")
	for _, m := range mappings {
		marker := "  "
		if m.Tenant.TenantSlug == active.TenantSlug && active.TenantSlug != "" {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s%s (@%s)\n", marker, m.Tenant.TenantName, m.Tenant.TenantSlug)
	}
	b.WriteString("\nSwitch with `@slug` or `switch tenant <name>`.")
	return b.String()
}

func (r *Resolver) currentTenantReply(key SenderKey, mappings []Mapping) string {
	if len(mappings) == 1 {
		m := mappings[0]
		return fmt.Sprintf("You're working in %s (@%s).", m.Tenant.TenantName, m.Tenant.TenantSlug)
	}
	if tenant, ok := r.cache.Get(key); ok {
		return fmt.Sprintf("You're working in %s (@%s).", tenant.TenantName, tenant.TenantSlug)
	}
	return "No tenant selected yet. Send `@?` to list your tenants, then `@slug` to pick one."
}

func (r *Resolver) selectionRequiredReply(mappings []Mapping) string {
	var b strings.Builder
	b.WriteString("You belong to more than one tenant. Pick one first:\n")
	for _, m := range mappings {
		fmt.Fprintf(&b, "  %s (@%s)\n", m.Tenant.TenantName, m.Tenant.TenantSlug)
	}
	b.WriteString("\nSend `@slug` to select, or `@slug <question>` to select and ask at once.")
	return b.String()
}

// findTenant matches a slug or name reference case-insensitively.
func findTenant(mappings []Mapping, ref string) (Mapping, bool) {
	ref = strings.TrimSpace(ref)
	for _, m := range mappings {
		if strings.EqualFold(m.Tenant.TenantSlug, ref) || strings.EqualFold(m.Tenant.TenantName, ref) {
			return m, true
		}
	}
	return Mapping{}, false
}
