package models

import (
	"time"
)

// ChatTurn is one message kept in a conversation's bounded history
type ChatTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the per-conversation snapshot held by the store
type ConversationState struct {
	ID        string         `json:"id"`
	Stage     Stage          `json:"stage"`
	Context   ProjectContext `json:"context"`
	Progress  *float64       `json:"progress,omitempty"`
	History   []ChatTurn     `json:"history"`
	TurnCount int            `json:"turn_count"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// GeneratedCode is the latest program produced in a code stage
	GeneratedCode string `json:"generated_code,omitempty"`
}

// Clone returns a deep copy of the state
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = s.Context.Clone()
	out.History = append([]ChatTurn(nil), s.History...)
	if s.Progress != nil {
		p := *s.Progress
		out.Progress = &p
	}
	return &out
}

// Summary returns the list view of the state
func (s *ConversationState) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           s.ID,
		Stage:        s.Stage,
		TurnCount:    s.TurnCount,
		MessageCount: len(s.History),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// ConversationSummary is one entry of the conversation list
type ConversationSummary struct {
	ID           string    `json:"conversation_id"`
	Stage        Stage     `json:"current_stage"`
	TurnCount    int       `json:"turn_count"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ConversationList is returned by the conversation list endpoint
type ConversationList struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// ConversationMessages is the stored chat history of a conversation
type ConversationMessages struct {
	ConversationID string     `json:"conversation_id"`
	Messages       []ChatTurn `json:"messages"`
}

// StageSuggestion is an advisory stage classification. It never changes
// the conversation's stage.
type StageSuggestion struct {
	ConversationID   string   `json:"conversation_id"`
	CurrentStage     Stage    `json:"current_stage"`
	ValidTransitions []Stage  `json:"valid_transitions"`
	SuggestedStage   Stage    `json:"suggested_stage"`
	Confidence       float64  `json:"confidence"`
	TransitionReady  bool     `json:"transition_ready"`
	Reasoning        string   `json:"reasoning"`
	RequiredActions  []string `json:"required_actions"`
	Progress         *float64 `json:"progress,omitempty"`
}
