package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bizmatters/plc-copilot/context-engine/internal/llm"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const (
	suggestionMaxTokens  = 200
	suggestionConfidence = 0.5
	unparsedConfidence   = 0.3
)

// Messages returns the stored chat history of a conversation
func (s *Service) Messages(ctx context.Context, id string) (*models.ConversationMessages, error) {
	state, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	messages := state.History
	if messages == nil {
		messages = []models.ChatTurn{}
	}
	return &models.ConversationMessages{ConversationID: id, Messages: messages}, nil
}

// ListConversations returns every stored conversation, most recent first
func (s *Service) ListConversations(ctx context.Context) (*models.ConversationList, error) {
	summaries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return &models.ConversationList{Conversations: summaries}, nil
}

// DeleteConversation drops a conversation. A turn already running on it
// finishes first.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.delete")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return &llm.TimeoutError{Cause: err}
	}
	defer unlock()

	return s.store.Delete(ctx, id)
}

// ResetConversation clears the context, history and generated code of a
// conversation and puts it back into requirements gathering
func (s *Service) ResetConversation(ctx context.Context, id string) (*models.ConversationState, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.reset")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return nil, &llm.TimeoutError{Cause: err}
	}
	defer unlock()

	state, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reset := &models.ConversationState{
		ID:        state.ID,
		Stage:     models.StageGatheringRequirements,
		Context:   models.ProjectContext{DeviceConstants: models.DeviceConstants{}},
		History:   []models.ChatTurn{},
		CreatedAt: state.CreatedAt,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.Put(ctx, reset); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}
	return reset, nil
}

// SuggestStage asks the conversation model which stage the conversation
// should move to. The result is advisory: the stored stage is never changed.
// A failed or unparsable classification suggests staying in the current stage.
func (s *Service) SuggestStage(ctx context.Context, id string) (*models.StageSuggestion, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.suggest_stage")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	state, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	current := state.Stage
	if !current.Valid() {
		current = models.StageGatheringRequirements
	}
	reachable := ReachableStages(current)
	suggestion := &models.StageSuggestion{
		ConversationID:   id,
		CurrentStage:     current,
		ValidTransitions: reachable,
		SuggestedStage:   current,
		Confidence:       suggestionConfidence,
		RequiredActions:  []string{},
		Progress:         state.Progress,
	}
	state.Stage = current

	task := s.settings.Conversation
	task.MaxTokens = suggestionMaxTokens
	completion, err := s.complete(ctx, task, []llm.Message{
		{Role: "system", Content: "You classify PLC copilot conversations. Reply with JSON only."},
		{Role: "user", Content: buildSuggestionPrompt(state, reachable)},
	}, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &llm.TimeoutError{Cause: ctx.Err()}
		}
		span.RecordError(err)
		slog.Warn("stage suggestion call failed", "conversation_id", id, "error", err)
		suggestion.Reasoning = "Stage classification is unavailable; staying in the current stage."
		return suggestion, nil
	}

	obj, err := llm.ParseJSONObject(completion.Text)
	if err != nil {
		slog.Warn("stage suggestion was not a JSON object", "conversation_id", id, "error", err)
		suggestion.Confidence = unparsedConfidence
		suggestion.Reasoning = "The stage classification could not be read; staying in the current stage."
		return suggestion, nil
	}

	if stage, err := models.ParseStage(strings.TrimSpace(stringValue(obj["suggested_stage"]))); err == nil && CanTransition(current, stage) {
		suggestion.SuggestedStage = stage
	}
	if c, ok := numberValue(obj["confidence"]); ok {
		suggestion.Confidence = clamp01(c)
	}
	suggestion.TransitionReady = boolValue(obj["transition_ready"]) && suggestion.SuggestedStage != current
	suggestion.Reasoning = strings.TrimSpace(stringValue(obj["reasoning"]))
	if suggestion.Reasoning == "" {
		suggestion.Reasoning = "Stage analysis completed."
	}
	if actions := stringList(obj["required_actions"]); actions != nil {
		suggestion.RequiredActions = actions
	}

	span.SetAttributes(
		attribute.String("stage.suggested", string(suggestion.SuggestedStage)),
		attribute.Float64("stage.confidence", suggestion.Confidence),
	)
	slog.Info("stage suggestion computed",
		"conversation_id", id,
		"current_stage", current,
		"suggested_stage", suggestion.SuggestedStage,
		"confidence", suggestion.Confidence,
	)
	return suggestion, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
