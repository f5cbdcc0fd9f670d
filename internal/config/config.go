package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN"`

	CompletionBackend     string        `env:"COMPLETION_BACKEND" envDefault:"openai"`
	OpenAIAPIKey          string        `env:"OPENAI_API_KEY"`
	GeminiAPIKey          string        `env:"GEMINI_API_KEY"`
	CompletionKeyRequired bool          `env:"COMPLETION_KEY_REQUIRED" envDefault:"true"`
	Model                 string        `env:"GPT_MODEL"`
	CompletionBaseURL     string        `env:"COMPLETION_BASE_URL"`
	MaxTokens             int           `env:"COMPLETION_MAX_TOKENS" envDefault:"500"`
	Temperature           float64       `env:"COMPLETION_TEMPERATURE" envDefault:"0.8"`
	TopP                  float64       `env:"COMPLETION_TOP_P" envDefault:"0.95"`
	CompletionTimeout     time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`

	DatabaseURL      string `env:"DATABASE_URL" envDefault:"doni_memory.sqlite"`
	HistoryLimit     int    `env:"HISTORY_LIMIT" envDefault:"5"`
	SerializePerUser bool   `env:"SERIALIZE_PER_USER" envDefault:"true"`

	Port          int           `env:"PORT" envDefault:"8080"`
	StatsInterval time.Duration `env:"STATS_INTERVAL" envDefault:"1h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env config: %w", err)
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.CompletionBackend = strings.ToLower(strings.TrimSpace(cfg.CompletionBackend))
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.CompletionBaseURL = strings.TrimSpace(cfg.CompletionBaseURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "doni_memory.sqlite"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 60 * time.Second
	}
	if cfg.StatsInterval < 0 {
		cfg.StatsInterval = 0
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	switch cfg.CompletionBackend {
	case BackendOpenAI:
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
	case BackendGemini:
		if cfg.Model == "" {
			cfg.Model = "gemini-1.5-flash"
		}
	default:
		return cfg, fmt.Errorf("unsupported COMPLETION_BACKEND %q", cfg.CompletionBackend)
	}

	if cfg.CompletionKeyRequired && cfg.CompletionAPIKey() == "" {
		return cfg, fmt.Errorf("%s is required for backend %s", cfg.completionKeyName(), cfg.CompletionBackend)
	}

	return cfg, nil
}

// CompletionAPIKey returns the credential of the selected backend.
func (c Config) CompletionAPIKey() string {
	if c.CompletionBackend == BackendGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

func (c Config) completionKeyName() string {
	if c.CompletionBackend == BackendGemini {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// Addr is the listen address of the liveness endpoint.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
