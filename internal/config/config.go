package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete context engine configuration
type Config struct {
	Port        string             `mapstructure:"port"`
	JWTSecret   string             `mapstructure:"jwt_secret"`
	DatabaseURL string             `mapstructure:"database_url"`
	LLM         LLMConfig          `mapstructure:"llm"`
	Extractor   ExtractorConfig    `mapstructure:"extractor"`
	Convo       ConversationConfig `mapstructure:"conversation"`
	Incidents   IncidentsConfig    `mapstructure:"incidents"`
	Logging     LoggingConfig      `mapstructure:"logging"`
}

// LLMConfig controls the completion backends and model routing
type LLMConfig struct {
	BaseURL          string   `mapstructure:"base_url"`
	APIKey           string   `mapstructure:"api_key"`
	AnthropicBaseURL string   `mapstructure:"anthropic_base_url"`
	AnthropicAPIKey  string   `mapstructure:"anthropic_api_key"`
	// Cascade is the ordered fallback list tried when a model is rate limited
	Cascade             []string      `mapstructure:"cascade"`
	ConversationModel   string        `mapstructure:"conversation_model"`
	CodeGenerationModel string        `mapstructure:"code_generation_model"`
	RefinementModel     string        `mapstructure:"refinement_model"`
	DocumentModel       string        `mapstructure:"document_model"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
}

// ExtractorConfig points at the external text extraction service
type ExtractorConfig struct {
	// URL is optional; without it only UTF-8 uploads yield text
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// ConversationConfig bounds per-conversation state
type ConversationConfig struct {
	HistoryWindow  int           `mapstructure:"history_window"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	IdleTTL        time.Duration `mapstructure:"idle_ttl"`
	// EvictSchedule is a cron expression; empty disables eviction
	EvictSchedule string `mapstructure:"evict_schedule"`
}

// IncidentsConfig selects where rate limit incidents are recorded besides the log
type IncidentsConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns a Config with every default applied
func Default() *Config {
	return &Config{
		Port: "8080",
		LLM: LLMConfig{
			BaseURL:             "https://api.openai.com/v1",
			AnthropicBaseURL:    "https://api.anthropic.com",
			Cascade:             []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"},
			ConversationModel:   "gpt-4o-mini",
			CodeGenerationModel: "gpt-4o-mini",
			RefinementModel:     "gpt-4o-mini",
			DocumentModel:       "gpt-4o",
			CallTimeout:         60 * time.Second,
		},
		Extractor: ExtractorConfig{
			Timeout:        30 * time.Second,
			MaxConcurrency: 4,
		},
		Convo: ConversationConfig{
			HistoryWindow:  20,
			MaxUploadBytes: 20 << 20,
			IdleTTL:        24 * time.Hour,
			EvictSchedule:  "@every 10m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("port", defaults.Port)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("database_url", "")

	v.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.anthropic_base_url", defaults.LLM.AnthropicBaseURL)
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.cascade", defaults.LLM.Cascade)
	v.SetDefault("llm.conversation_model", defaults.LLM.ConversationModel)
	v.SetDefault("llm.code_generation_model", defaults.LLM.CodeGenerationModel)
	v.SetDefault("llm.refinement_model", defaults.LLM.RefinementModel)
	v.SetDefault("llm.document_model", defaults.LLM.DocumentModel)
	v.SetDefault("llm.call_timeout", defaults.LLM.CallTimeout)

	v.SetDefault("extractor.url", "")
	v.SetDefault("extractor.timeout", defaults.Extractor.Timeout)
	v.SetDefault("extractor.max_concurrency", defaults.Extractor.MaxConcurrency)

	v.SetDefault("conversation.history_window", defaults.Convo.HistoryWindow)
	v.SetDefault("conversation.max_upload_bytes", defaults.Convo.MaxUploadBytes)
	v.SetDefault("conversation.idle_ttl", defaults.Convo.IdleTTL)
	v.SetDefault("conversation.evict_schedule", defaults.Convo.EvictSchedule)

	v.SetDefault("incidents.sqlite_path", "")

	v.SetDefault("logging.level", defaults.Logging.Level)
}

// New builds a viper instance that reads config.yaml (if present) and the
// environment. Nested keys map to env vars with dots replaced by underscores,
// so llm.api_key is read from LLM_API_KEY.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/plc-copilot")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from viper into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.LLM.Cascade = normalizeList(cfg.LLM.Cascade)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	cfg.warnDefaults()
	return &cfg, nil
}

const (
	// main call, corrective call and chat backfill
	turnCalls = 3
	// a rate-limited attempt is retried once on the next cascade model
	attemptsPerCall = 2
	turnMargin      = 30 * time.Second
)

// TurnBudget is the longest a single turn can run: every model call of the
// turn and the document analysis of its uploads, each with its fallback
// retry, plus the text extractor and a margin for merging and encoding.
// Uploads are analyzed concurrently, so one document call is counted.
func (c *Config) TurnBudget() time.Duration {
	call := attemptsPerCall * c.LLM.CallTimeout
	return turnCalls*call + c.Extractor.Timeout + call + turnMargin
}

func (c *Config) warnDefaults() {
	if c.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, operator login disabled and incidents logged only")
	}
	if c.Extractor.URL == "" {
		slog.Warn("EXTRACTOR_URL not set, defaulting to UTF-8 extraction only")
	}
	if c.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY not set, OpenAI-compatible backend will be called without credentials")
	}
}

// normalizeList splits comma separated entries that arrive as a single env value
func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
