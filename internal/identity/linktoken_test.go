package identity

import (
	"strings"
	"testing"
	"time"
)

func TestLinkTokenRoundTrip(t *testing.T) {
	t.Parallel()

	issuer := NewLinkTokenIssuer("secret", "https://app.example.com", 15*time.Minute)
	token, jti, expiresAt, err := issuer.Issue("slack", "T1", "U7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jti == "" {
		t.Fatal("expected a jti")
	}
	if remaining := time.Until(expiresAt); remaining < 14*time.Minute || remaining > 16*time.Minute {
		t.Fatalf("unexpected expiry window: %v", remaining)
	}

	gotJTI, platformName, workspaceID, sender, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if gotJTI != jti || platformName != "slack" || workspaceID != "T1" || sender != "U7" {
		t.Fatalf("unexpected claims: %q %q %q %q", gotJTI, platformName, workspaceID, sender)
	}
}

func TestLinkTokenWrongSecret(t *testing.T) {
	t.Parallel()

	issuer := NewLinkTokenIssuer("secret", "", 15*time.Minute)
	token, _, _, err := issuer.Issue("slack", "T1", "U7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other := NewLinkTokenIssuer("different", "", 15*time.Minute)
	if _, _, _, _, err := other.Verify(token); err == nil {
		t.Fatal("expected verification failure with a different secret")
	}
}

func TestLinkURL(t *testing.T) {
	t.Parallel()

	issuer := NewLinkTokenIssuer("secret", "https://app.example.com/", 15*time.Minute)
	url := issuer.LinkURL("tok")
	if url != "https://app.example.com/link?token=tok" {
		t.Fatalf("unexpected link url: %q", url)
	}
	if !strings.HasPrefix(NewLinkTokenIssuer("s", "", 0).LinkURL("tok"), "https://") {
		t.Fatal("expected default base url")
	}
}

func TestLinkTokenMissingSecret(t *testing.T) {
	t.Parallel()

	issuer := NewLinkTokenIssuer("", "", 15*time.Minute)
	if _, _, _, err := issuer.Issue("slack", "T1", "U7"); err == nil {
		t.Fatal("expected error without a secret")
	}
}
