package identity

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	mappings     []Mapping
	byEmail      []Mapping
	created      []Mapping
	linkTokens   []LinkToken
	listErr      error
	emailErr     error
	createErr    error
	tokenRecords int
}

func (f *fakeStore) ListMappings(_ context.Context, _, _, _ string) ([]Mapping, error) {
	return f.mappings, f.listErr
}

func (f *fakeStore) TenantsByEmail(_ context.Context, _ string) ([]Mapping, error) {
	return f.byEmail, f.emailErr
}

func (f *fakeStore) CreateMapping(_ context.Context, m Mapping) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, m)
	return nil
}

func (f *fakeStore) CreateLinkToken(_ context.Context, token LinkToken) error {
	f.linkTokens = append(f.linkTokens, token)
	f.tokenRecords++
	return nil
}

func (f *fakeStore) TouchMapping(_ context.Context, _ string) {}

type fakeProfiles struct {
	email string
	err   error
}

func (f *fakeProfiles) ProfileEmail(_ context.Context, _, _ string) (string, error) {
	return f.email, f.err
}

func acmeMapping() Mapping {
	return Mapping{
		Platform: "slack",
		UserID:   "u-1",
		Tenant:   TenantContext{TenantID: "t-1", TenantName: "Acme Corp", TenantSlug: "acme"},
	}
}

func globexMapping() Mapping {
	return Mapping{
		Platform: "slack",
		UserID:   "u-2",
		Tenant:   TenantContext{TenantID: "t-2", TenantName: "Globex", TenantSlug: "globex"},
	}
}

func testKey() SenderKey {
	return SenderKey{Platform: "slack", WorkspaceID: "T1", Sender: "U7", ConversationID: "C9"}
}

func TestResolveSingleMapping(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: []Mapping{acmeMapping()}}
	cache := NewContextCache(time.Minute)
	r := NewResolver(nil, store, nil, nil, cache)

	res, err := r.Resolve(context.Background(), testKey(), "how many invoices?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply != "" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if res.Tenant.TenantSlug != "acme" || res.UserID != "u-1" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if res.Query != "how many invoices?" {
		t.Fatalf("unexpected query: %q", res.Query)
	}
	if cached, ok := cache.Get(testKey()); !ok || cached.TenantSlug != "acme" {
		t.Fatal("expected single mapping to populate the cache")
	}
}

func TestResolveMultipleMappingsRequiresSelection(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: []Mapping{acmeMapping(), globexMapping()}}
	r := NewResolver(nil, store, nil, nil, NewContextCache(time.Minute))

	res, err := r.Resolve(context.Background(), testKey(), "show documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply == "" || !strings.Contains(res.Reply, "@acme") || !strings.Contains(res.Reply, "@globex") {
		t.Fatalf("expected selection prompt listing tenants, got %q", res.Reply)
	}
}

func TestResolveSwitchAndQuery(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: []Mapping{acmeMapping(), globexMapping()}}
	cache := NewContextCache(time.Minute)
	r := NewResolver(nil, store, nil, nil, cache)

	res, err := r.Resolve(context.Background(), testKey(), "@acme show revenue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tenant.TenantSlug != "acme" {
		t.Fatalf("expected acme context, got %+v", res.Tenant)
	}
	if res.Query != "show revenue" {
		t.Fatalf("expected trailing query preserved, got %q", res.Query)
	}
	if cached, _ := cache.Get(testKey()); cached.TenantSlug != "acme" {
		t.Fatal("expected switch to update the cache")
	}
}

func TestResolveUnknownSlugKeepsCache(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: []Mapping{acmeMapping(), globexMapping()}}
	cache := NewContextCache(time.Minute)
	cache.Put(testKey(), acmeMapping().Tenant)
	r := NewResolver(nil, store, nil, nil, cache)

	res, err := r.Resolve(context.Background(), testKey(), "@bogus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Reply, "don't have access") {
		t.Fatalf("expected no-access reply, got %q", res.Reply)
	}
	if cached, _ := cache.Get(testKey()); cached.TenantSlug != "acme" {
		t.Fatalf("cached tenant must not change, got %q", cached.TenantSlug)
	}
}

func TestResolveCachedSelection(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: []Mapping{acmeMapping(), globexMapping()}}
	cache := NewContextCache(time.Minute)
	cache.Put(testKey(), globexMapping().Tenant)
	r := NewResolver(nil, store, nil, nil, cache)

	res, err := r.Resolve(context.Background(), testKey(), "list documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tenant.TenantSlug != "globex" || res.UserID != "u-2" {
		t.Fatalf("expected cached globex selection, got %+v", res)
	}
}

func TestResolveRevokedCachedSelection(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: []Mapping{acmeMapping(), globexMapping()}}
	cache := NewContextCache(time.Minute)
	cache.Put(testKey(), TenantContext{TenantID: "t-9", TenantName: "Gone", TenantSlug: "gone"})
	r := NewResolver(nil, store, nil, nil, cache)

	res, err := r.Resolve(context.Background(), testKey(), "list documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply == "" {
		t.Fatal("expected a selection prompt after revoked access")
	}
	if _, ok := cache.Get(testKey()); ok {
		t.Fatal("expected stale cache entry dropped")
	}
}

func TestResolveFirstContactAutoLink(t *testing.T) {
	t.Parallel()

	store := &fakeStore{byEmail: []Mapping{acmeMapping()}}
	r := NewResolver(nil, store, &fakeProfiles{email: "dev@acme.com"}, nil, NewContextCache(time.Minute))

	res, err := r.Resolve(context.Background(), testKey(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one auto-linked mapping, got %d", len(store.created))
	}
	if res.Tenant.TenantSlug != "acme" {
		t.Fatalf("expected auto-linked tenant resolved, got %+v", res)
	}
}

func TestResolveFirstContactSetupReply(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	tokens := NewLinkTokenIssuer("test-secret", "https://app.example.com", 15*time.Minute)
	r := NewResolver(nil, store, &fakeProfiles{email: ""}, tokens, NewContextCache(time.Minute))

	res, err := r.Resolve(context.Background(), testKey(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Reply, "https://app.example.com/link?token=") {
		t.Fatalf("expected link URL in setup reply, got %q", res.Reply)
	}
	if !strings.Contains(res.Reply, "15 minutes") {
		t.Fatalf("expected validity window in setup reply, got %q", res.Reply)
	}
	if store.tokenRecords != 1 {
		t.Fatalf("expected one persisted token record, got %d", store.tokenRecords)
	}
}

func TestResolveHelpCommand(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: []Mapping{acmeMapping()}}
	r := NewResolver(nil, store, nil, nil, NewContextCache(time.Minute))

	res, err := r.Resolve(context.Background(), testKey(), "help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply != CommandHelpText {
		t.Fatalf("expected help text, got %q", res.Reply)
	}
}

func TestResolveListMarksActive(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: []Mapping{acmeMapping(), globexMapping()}}
	cache := NewContextCache(time.Minute)
	cache.Put(testKey(), acmeMapping().Tenant)
	r := NewResolver(nil, store, nil, nil, cache)

	res, err := r.Resolve(context.Background(), testKey(), "@?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Reply, "* Acme Corp (@acme)") {
		t.Fatalf("expected active marker on acme, got %q", res.Reply)
	}
}
