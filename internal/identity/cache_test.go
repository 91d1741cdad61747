package identity

import (
	"testing"
	"time"
)

func TestContextCacheExpiry(t *testing.T) {
	t.Parallel()

	cache := NewContextCache(30 * time.Minute)
	current := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return current }

	key := SenderKey{Platform: "slack", WorkspaceID: "T1", Sender: "U7", ConversationID: "C9"}
	tenant := TenantContext{TenantID: "t-1", TenantName: "Acme", TenantSlug: "acme"}
	cache.Put(key, tenant)

	if got, ok := cache.Get(key); !ok || got.TenantSlug != "acme" {
		t.Fatalf("expected cached tenant, got %+v ok=%v", got, ok)
	}

	current = current.Add(29 * time.Minute)
	if _, ok := cache.Get(key); !ok {
		t.Fatal("entry expired before its TTL")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := cache.Get(key); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestContextCacheKeyNormalization(t *testing.T) {
	t.Parallel()

	cache := NewContextCache(time.Minute)
	cache.Put(SenderKey{Platform: "Slack", Sender: " U7 "}, TenantContext{TenantSlug: "acme"})
	if _, ok := cache.Get(SenderKey{Platform: "slack", Sender: "U7"}); !ok {
		t.Fatal("expected normalized keys to match")
	}
}

func TestContextCacheLastWriteWins(t *testing.T) {
	t.Parallel()

	cache := NewContextCache(time.Minute)
	key := SenderKey{Platform: "whatsapp", Sender: "+15550001111"}
	cache.Put(key, TenantContext{TenantSlug: "acme"})
	cache.Put(key, TenantContext{TenantSlug: "globex"})
	if got, _ := cache.Get(key); got.TenantSlug != "globex" {
		t.Fatalf("expected last write to win, got %q", got.TenantSlug)
	}
}

func TestContextCacheForget(t *testing.T) {
	t.Parallel()

	cache := NewContextCache(time.Minute)
	key := SenderKey{Platform: "slack", Sender: "U7"}
	cache.Put(key, TenantContext{TenantSlug: "acme"})
	cache.Forget(key)
	if _, ok := cache.Get(key); ok {
		t.Fatal("expected entry forgotten")
	}
}
