package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

func seedConversation(t *testing.T, store *MemoryStore, stage models.Stage) *models.ConversationState {
	t.Helper()
	progress := 0.6
	state := &models.ConversationState{
		ID:    "conv-1",
		Stage: stage,
		Context: models.ProjectContext{
			DeviceConstants: models.DeviceConstants{"M1": map[string]interface{}{"Power": "2kW"}},
			Information:     "Conveyor with one motor",
		},
		Progress: &progress,
		History: []models.ChatTurn{
			{Role: "user", Content: "Conveyor with motor M1"},
			{Role: "assistant", Content: "What safety devices are installed?"},
		},
		TurnCount:     1,
		GeneratedCode: "PROGRAM Main\nEND_PROGRAM",
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
	}
	require.NoError(t, store.Put(context.Background(), state))
	return state
}

func TestService_MessagesAndList(t *testing.T) {
	service, store, _ := newTestService(&MockCompleter{script: []scriptedReply{{text: "{}"}}}, nil)
	ctx := context.Background()
	seedConversation(t, store, models.StageGatheringRequirements)

	msgs, err := service.Messages(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", msgs.ConversationID)
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, "assistant", msgs.Messages[1].Role)

	_, err = service.Messages(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	list, err := service.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, 2, list.Conversations[0].MessageCount)
	assert.Equal(t, 1, list.Conversations[0].TurnCount)
}

func TestService_DeleteConversation(t *testing.T) {
	service, store, _ := newTestService(&MockCompleter{script: []scriptedReply{{text: "{}"}}}, nil)
	ctx := context.Background()
	seedConversation(t, store, models.StageGatheringRequirements)

	t.Run("waits for the running turn", func(t *testing.T) {
		unlock, err := store.Lock(ctx, "conv-1")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- service.DeleteConversation(ctx, "conv-1") }()

		select {
		case <-done:
			t.Fatal("delete finished while the turn held the conversation")
		case <-time.After(50 * time.Millisecond):
		}
		assert.Equal(t, 1, store.Len())

		unlock()
		require.NoError(t, <-done)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("unknown conversation", func(t *testing.T) {
		assert.ErrorIs(t, service.DeleteConversation(ctx, "conv-1"), ErrConversationNotFound)
	})
}

func TestService_ResetConversation(t *testing.T) {
	service, store, _ := newTestService(&MockCompleter{script: []scriptedReply{{text: "{}"}}}, nil)
	ctx := context.Background()
	seeded := seedConversation(t, store, models.StageRefinementTesting)
	service.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }

	state, err := service.ResetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageGatheringRequirements, state.Stage)
	assert.Empty(t, state.Context.DeviceConstants)
	assert.NotNil(t, state.Context.DeviceConstants)
	assert.Empty(t, state.Context.Information)
	assert.Empty(t, state.History)
	assert.Empty(t, state.GeneratedCode)
	assert.Nil(t, state.Progress)
	assert.Zero(t, state.TurnCount)
	assert.Equal(t, seeded.CreatedAt, state.CreatedAt)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), state.UpdatedAt)

	stored, err := store.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageGatheringRequirements, stored.Stage)
	assert.Empty(t, stored.GeneratedCode)

	_, err = service.ResetConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestService_SuggestStage(t *testing.T) {
	tests := []struct {
		name       string
		stage      models.Stage
		reply      scriptedReply
		wantStage  models.Stage
		wantConf   float64
		wantReady  bool
		wantAction []string
	}{
		{
			name:  "ready for code",
			stage: models.StageGatheringRequirements,
			reply: scriptedReply{text: "```json\n" + `{"suggested_stage":"code_generation","confidence":0.85,"transition_ready":true,
				"reasoning":"Safety and I/O are specified.","required_actions":[]}` + "\n```"},
			wantStage:  models.StageCodeGeneration,
			wantConf:   0.85,
			wantReady:  true,
			wantAction: []string{},
		},
		{
			name:  "unreachable stage stays put",
			stage: models.StageGatheringRequirements,
			reply: scriptedReply{text: `{"suggested_stage":"refinement_testing","confidence":0.9,"transition_ready":true,
				"reasoning":"Skip ahead.","required_actions":["Confirm PLC platform"]}`},
			wantStage:  models.StageGatheringRequirements,
			wantConf:   0.9,
			wantReady:  false,
			wantAction: []string{"Confirm PLC platform"},
		},
		{
			name:       "confidence is clamped",
			stage:      models.StageCodeGeneration,
			reply:      scriptedReply{text: `{"suggested_stage":"refinement_testing","confidence":3,"transition_ready":"true","reasoning":"Code exists."}`},
			wantStage:  models.StageRefinementTesting,
			wantConf:   1,
			wantReady:  true,
			wantAction: []string{},
		},
		{
			name:       "unparsable answer",
			stage:      models.StageCodeGeneration,
			reply:      scriptedReply{text: "SUGGESTED_STAGE: refinement_testing"},
			wantStage:  models.StageCodeGeneration,
			wantConf:   unparsedConfidence,
			wantAction: []string{},
		},
		{
			name:       "model call fails",
			stage:      models.StageRefinementTesting,
			reply:      scriptedReply{err: errors.New("upstream unavailable")},
			wantStage:  models.StageRefinementTesting,
			wantConf:   suggestionConfidence,
			wantAction: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &MockCompleter{script: []scriptedReply{tt.reply}}
			service, store, _ := newTestService(completer, nil)
			ctx := context.Background()
			seedConversation(t, store, tt.stage)

			got, err := service.SuggestStage(ctx, "conv-1")
			require.NoError(t, err)
			assert.Equal(t, tt.stage, got.CurrentStage)
			assert.Equal(t, tt.wantStage, got.SuggestedStage)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
			assert.Equal(t, tt.wantReady, got.TransitionReady)
			assert.Equal(t, tt.wantAction, got.RequiredActions)
			assert.Equal(t, ReachableStages(tt.stage), got.ValidTransitions)
			assert.NotEmpty(t, got.Reasoning)

			require.Equal(t, 1, completer.Calls())
			req := completer.requests[0]
			assert.Equal(t, "gpt-4o-mini", req.Model)
			assert.Equal(t, suggestionMaxTokens, req.MaxTokens)
			assert.True(t, strings.Contains(req.Messages[1].Content, "What safety devices are installed?"))

			// advisory only
			stored, err := store.Get(ctx, "conv-1")
			require.NoError(t, err)
			assert.Equal(t, tt.stage, stored.Stage)
		})
	}

	t.Run("unknown conversation", func(t *testing.T) {
		completer := &MockCompleter{script: []scriptedReply{{text: "{}"}}}
		service, _, _ := newTestService(completer, nil)
		_, err := service.SuggestStage(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrConversationNotFound)
		assert.Zero(t, completer.Calls())
	})
}
