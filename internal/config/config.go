package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultEnvFile       = ".env"
	DefaultHTTPAddr      = ":8080"
	DefaultDataRoot      = "data"
	DefaultOpenAIModel   = "gpt-4.1"
	DefaultAgentTimeout  = "10m"
	DefaultFetchTimeout  = "30s"
	DefaultStagingMaxAge = "6h"
	DefaultJanitorSpec   = "@every 15m"
	DefaultWaitMessage   = "Working on it! 🧪"
	DefaultMaxConcurrent = 4
	DefaultFetchMaxBytes = 4 << 20

	ScanOldestFirst = "oldest_first"
	ScanNewestFirst = "newest_first"
)

// Environment variables holding the three process credentials.
const (
	EnvSlackBotToken = "SLACK_BOT_TOKEN"
	EnvSlackAppToken = "SLACK_APP_TOKEN"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvConfigPath    = "CONFIG_PATH"
)

type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Slack        SlackConfig        `toml:"slack"`
	OpenAI       OpenAIConfig       `toml:"openai"`
	Agent        AgentConfig        `toml:"agent"`
	Fetch        FetchConfig        `toml:"fetch"`
	Conversation ConversationConfig `toml:"conversation"`
	Staging      StagingConfig      `toml:"staging"`
	Bridge       BridgeConfig       `toml:"bridge"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr    string `toml:"addr"`
	Enabled bool   `toml:"enabled"`
}

type SlackConfig struct {
	BotToken string `toml:"bot_token" validate:"required"`
	AppToken string `toml:"app_token" validate:"required"`
	Debug    bool   `toml:"debug"`
}

type OpenAIConfig struct {
	APIKey  string `toml:"api_key" validate:"required"`
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
	Model   string `toml:"model" validate:"required"`
}

type AgentConfig struct {
	Timeout      string `toml:"timeout"`
	Instructions string `toml:"instructions"`
}

type FetchConfig struct {
	Timeout       string  `toml:"timeout"`
	UserAgent     string  `toml:"user_agent"`
	MaxBytes      int64   `toml:"max_bytes" validate:"gte=0"`
	RatePerSecond float64 `toml:"rate_per_second" validate:"gte=0"`
}

type ConversationConfig struct {
	ScanOrder string `toml:"scan_order" validate:"oneof=oldest_first newest_first"`
}

type StagingConfig struct {
	DataRoot    string `toml:"data_root" validate:"required"`
	MaxAge      string `toml:"max_age"`
	JanitorSpec string `toml:"janitor_spec"`
}

type BridgeConfig struct {
	WaitMessage   string `toml:"wait_message"`
	MaxConcurrent int    `toml:"max_concurrent" validate:"gte=1"`
}

// AgentTimeout parses Agent.Timeout, falling back to the default.
func (c Config) AgentTimeout() time.Duration {
	return parseDuration(c.Agent.Timeout, DefaultAgentTimeout)
}

// FetchTimeout parses Fetch.Timeout, falling back to the default.
func (c Config) FetchTimeout() time.Duration {
	return parseDuration(c.Fetch.Timeout, DefaultFetchTimeout)
}

// StagingMaxAge parses Staging.MaxAge, falling back to the default.
func (c Config) StagingMaxAge() time.Duration {
	return parseDuration(c.Staging.MaxAge, DefaultStagingMaxAge)
}

func parseDuration(raw, fallback string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the loaded configuration, including the credentials.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, raw := range map[string]string{
		"agent.timeout":   c.Agent.Timeout,
		"fetch.timeout":   c.Fetch.Timeout,
		"staging.max_age": c.Staging.MaxAge,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	return nil
}

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:    DefaultHTTPAddr,
			Enabled: true,
		},
		OpenAI: OpenAIConfig{
			Model: DefaultOpenAIModel,
		},
		Agent: AgentConfig{
			Timeout: DefaultAgentTimeout,
		},
		Fetch: FetchConfig{
			Timeout:       DefaultFetchTimeout,
			UserAgent:     "codi/1.0 (+https://github.com/codibridge/codi)",
			MaxBytes:      DefaultFetchMaxBytes,
			RatePerSecond: 2,
		},
		Conversation: ConversationConfig{
			ScanOrder: ScanOldestFirst,
		},
		Staging: StagingConfig{
			DataRoot:    DefaultDataRoot,
			MaxAge:      DefaultStagingMaxAge,
			JanitorSpec: DefaultJanitorSpec,
		},
		Bridge: BridgeConfig{
			WaitMessage:   DefaultWaitMessage,
			MaxConcurrent: DefaultMaxConcurrent,
		},
	}
}

// Load reads the TOML file at path (when present) over the defaults and then
// applies credentials from the environment. A .env file next to the process is
// loaded first without overriding variables that are already set.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(DefaultEnvFile); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("load %s: %w", DefaultEnvFile, err)
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvSlackBotToken)); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSlackAppToken)); v != "" {
		cfg.Slack.AppToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey)); v != "" {
		cfg.OpenAI.APIKey = v
	}
}
