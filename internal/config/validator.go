package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a single configuration validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the configuration and returns every problem found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.JWTSecret == "" {
		errs = append(errs, ValidationError{Field: "jwt_secret", Value: "", Message: "is required"})
	}
	if c.Port == "" {
		errs = append(errs, ValidationError{Field: "port", Value: c.Port, Message: "is required"})
	}
	if len(c.LLM.Cascade) == 0 {
		errs = append(errs, ValidationError{Field: "llm.cascade", Value: c.LLM.Cascade, Message: "must list at least one model"})
	}
	if c.LLM.CallTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "llm.call_timeout", Value: c.LLM.CallTimeout, Message: "must be positive"})
	}
	for field, model := range map[string]string{
		"llm.conversation_model":    c.LLM.ConversationModel,
		"llm.code_generation_model": c.LLM.CodeGenerationModel,
		"llm.refinement_model":      c.LLM.RefinementModel,
		"llm.document_model":        c.LLM.DocumentModel,
	} {
		if model == "" {
			errs = append(errs, ValidationError{Field: field, Value: model, Message: "is required"})
		}
	}
	if c.Extractor.MaxConcurrency < 1 {
		errs = append(errs, ValidationError{Field: "extractor.max_concurrency", Value: c.Extractor.MaxConcurrency, Message: "must be at least 1"})
	}
	if c.Convo.HistoryWindow < 1 {
		errs = append(errs, ValidationError{Field: "conversation.history_window", Value: c.Convo.HistoryWindow, Message: "must be at least 1"})
	}
	if c.Convo.MaxUploadBytes < 1 {
		errs = append(errs, ValidationError{Field: "conversation.max_upload_bytes", Value: c.Convo.MaxUploadBytes, Message: "must be positive"})
	}
	if c.Convo.IdleTTL <= 0 {
		errs = append(errs, ValidationError{Field: "conversation.idle_ttl", Value: c.Convo.IdleTTL, Message: "must be positive"})
	}
	if c.Convo.EvictSchedule != "" {
		if _, err := cron.ParseStandard(c.Convo.EvictSchedule); err != nil {
			errs = append(errs, ValidationError{Field: "conversation.evict_schedule", Value: c.Convo.EvictSchedule, Message: "must be a cron expression"})
		}
	}
	if _, ok := ParseLevel(c.Logging.Level); !ok {
		errs = append(errs, ValidationError{Field: "logging.level", Value: c.Logging.Level, Message: "must be one of debug, info, warn, error"})
	}

	return errs
}

// ParseLevel maps a level name onto slog
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
