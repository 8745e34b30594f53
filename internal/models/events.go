package models

import (
	"time"
)

// TurnEvent is a progress event streamed to websocket clients while a turn runs
type TurnEvent struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	EventType      string                 `json:"event_type"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Event types
const (
	EventTypeTurnStarted   = "turn.started"
	EventTypeFileExtracted = "file.extracted"
	EventTypeTurnCompleted = "turn.completed"
	EventTypeTurnFailed    = "turn.failed"
	EventTypeTurnResult    = "turn.result"
	EventTypeError         = "error"
)

// Incident records a rate-limit fallback that operators should hear about
type Incident struct {
	ID             string    `json:"id" db:"id"`
	PrimaryModel   string    `json:"primary_model" db:"primary_model"`
	FallbackModel  string    `json:"fallback_model" db:"fallback_model"`
	ErrorText      string    `json:"error_text" db:"error_text"`
	ConversationID string    `json:"conversation_id,omitempty" db:"conversation_id"`
	OccurredAt     time.Time `json:"occurred_at" db:"occurred_at"`
}
