// Package config loads the ledgerchat server configuration from a TOML file,
// applying defaults for every section before decoding.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath = "config.toml"
	DefaultHTTPAddr   = ":8080"
	DefaultPGHost     = "127.0.0.1"
	DefaultPGPort     = 5432
	DefaultPGUser     = "postgres"
	DefaultPGDatabase = "ledgerchat"
	DefaultPGSSLMode  = "disable"
	DefaultBlobRoot   = "data"
	DefaultLinkTTL    = 15 * time.Minute
	DefaultContextTTL = 30 * time.Minute
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Twilio     TwilioConfig     `toml:"twilio"`
	Slack      SlackConfig      `toml:"slack"`
	Classifier ClassifierConfig `toml:"classifier"`
	Blob       BlobConfig       `toml:"blob"`
	Linking    LinkingConfig    `toml:"linking"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"min=1,max=65535"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
}

// RedisConfig configures the optional webhook dedup fast path.
// An empty Addr disables Redis; the Postgres upsert remains the
// authoritative dedup mechanism either way.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type TwilioConfig struct {
	AccountSID string `toml:"account_sid"`
	AuthToken  string `toml:"auth_token"`
	FromNumber string `toml:"from_number"`
}

// SlackConfig carries per-workspace bot tokens keyed by team ID.
// Workspace installation (OAuth) happens outside this service; tokens
// land here once minted.
type SlackConfig struct {
	SigningSecret string            `toml:"signing_secret"`
	BotTokens     map[string]string `toml:"bot_tokens"`
}

type ClassifierConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type BlobConfig struct {
	DataRoot string `toml:"data_root"`
}

type LinkingConfig struct {
	BaseURL   string `toml:"base_url"`
	JWTSecret string `toml:"jwt_secret"`
	TokenTTL  string `toml:"token_ttl"`
}

// TokenTTLDuration parses the configured token TTL, falling back to 15 minutes.
func (c LinkingConfig) TokenTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil || d <= 0 {
		return DefaultLinkTTL
	}
	return d
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Classifier: ClassifierConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
		Blob: BlobConfig{
			DataRoot: DefaultBlobRoot,
		},
		Linking: LinkingConfig{
			TokenTTL: "15m",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
