package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	if cfg.Postgres.Host != DefaultPGHost || cfg.Postgres.Port != DefaultPGPort {
		t.Fatalf("unexpected postgres defaults: %+v", cfg.Postgres)
	}
	if cfg.Redis.Addr != "" {
		t.Fatal("redis must be disabled by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[server]
addr = ":9090"

[postgres]
password = "hunter2"

[slack]
signing_secret = "sekrit"

[slack.bot_tokens]
T1 = "xoxb-1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	if cfg.Postgres.Database != DefaultPGDatabase {
		t.Fatal("untouched sections must keep their defaults")
	}
	if cfg.Slack.BotTokens["T1"] != "xoxb-1" {
		t.Fatalf("unexpected bot tokens: %v", cfg.Slack.BotTokens)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[log]
level = "loud"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestTokenTTLDuration(t *testing.T) {
	t.Parallel()

	if d := (LinkingConfig{TokenTTL: "30m"}).TokenTTLDuration(); d != 30*time.Minute {
		t.Fatalf("unexpected ttl: %v", d)
	}
	if d := (LinkingConfig{TokenTTL: "bogus"}).TokenTTLDuration(); d != DefaultLinkTTL {
		t.Fatalf("expected fallback ttl, got %v", d)
	}
}
