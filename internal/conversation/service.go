package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/plc-copilot/context-engine/internal/llm"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const (
	defaultProgress      = 0.5
	backfillMaxTokens    = 200
	errorFallbackMessage = "I encountered an error processing your request. Please try again."
)

// Completer issues one completion call
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error)
}

// FileProcessor turns uploads into extraction results, one per file, in order
type FileProcessor interface {
	ProcessAll(ctx context.Context, conversationID string, files []models.UploadedFile, onResult func(int, models.FileProcessingResult)) []models.FileProcessingResult
}

// TurnRecorder receives turn-level metrics
type TurnRecorder interface {
	RecordTurnStarted(ctx context.Context, stage string)
	RecordTurnCompleted(ctx context.Context, stage string, degraded bool, duration time.Duration)
	RecordTurnFailed(ctx context.Context, stage, errorType string, duration time.Duration)
	RecordFileExtraction(ctx context.Context, degraded bool)
}

// EventFunc receives progress events while a turn runs. It may be called
// from several goroutines while files are extracted.
type EventFunc func(models.TurnEvent)

// TaskConfig is the model and sampling setup for one kind of call
type TaskConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ModelSettings holds the per-stage task configs
type ModelSettings struct {
	Conversation   TaskConfig
	CodeGeneration TaskConfig
	Refinement     TaskConfig
}

// NewModelSettings applies the standard sampling setup to the given models
func NewModelSettings(conversationModel, codeGenerationModel, refinementModel string) ModelSettings {
	return ModelSettings{
		Conversation:   TaskConfig{Model: conversationModel, Temperature: 1.0, MaxTokens: 1024},
		CodeGeneration: TaskConfig{Model: codeGenerationModel, Temperature: 1.0, MaxTokens: 2048},
		Refinement:     TaskConfig{Model: refinementModel, Temperature: 1.0, MaxTokens: 1536},
	}
}

func (m ModelSettings) forStage(stage models.Stage) TaskConfig {
	switch stage {
	case models.StageCodeGeneration:
		return m.CodeGeneration
	case models.StageRefinementTesting:
		return m.Refinement
	default:
		return m.Conversation
	}
}

// Service runs conversation turns: file extraction, context merge, the main
// model call with its response contract, and stage transitions
type Service struct {
	completer Completer
	files     FileProcessor
	store     Store
	settings  ModelSettings
	recorder  TurnRecorder
	rng       *rand.Rand
	now       func() time.Time
	tracer    trace.Tracer
}

// NewService creates a conversation service
func NewService(completer Completer, files FileProcessor, store Store, settings ModelSettings) *Service {
	return &Service{
		completer: completer,
		files:     files,
		store:     store,
		settings:  settings,
		now:       time.Now,
		tracer:    otel.Tracer("conversation-service"),
	}
}

// SetRecorder attaches a metrics recorder
func (s *Service) SetRecorder(recorder TurnRecorder) {
	s.recorder = recorder
}

// ProcessUpdate runs one turn. Malformed model output and extraction failures
// degrade to a successful response; exhausted rate limits, unsupported
// parameters and timeouts on the main call are returned as errors.
func (s *Service) ProcessUpdate(ctx context.Context, req models.ContextUpdateRequest, emit EventFunc) (*models.ContextUpdateResponse, error) {
	if _, err := models.ParseStage(string(req.CurrentStage)); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, req.CurrentStage)
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	ctx, span := s.tracer.Start(ctx, "conversation.process_update")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", req.ConversationID),
		attribute.Int("files.count", len(req.Files)),
	)

	unlock, err := s.store.Lock(ctx, req.ConversationID)
	if err != nil {
		span.RecordError(err)
		return nil, &llm.TimeoutError{Cause: err}
	}
	defer unlock()

	if req.ContinueFromStored {
		if err := s.resume(ctx, &req); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	if req.CurrentContext.DeviceConstants == nil {
		req.CurrentContext.DeviceConstants = models.DeviceConstants{}
	}
	stage, err := models.ParseStage(string(req.CurrentStage))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, req.CurrentStage)
	}
	span.SetAttributes(attribute.String("stage", string(stage)))

	start := time.Now()
	if s.recorder != nil {
		s.recorder.RecordTurnStarted(ctx, string(stage))
	}

	userMessage := BuildUserMessage(req)
	s.emit(emit, req.ConversationID, models.EventTypeTurnStarted, map[string]interface{}{
		"stage": string(stage),
		"files": len(req.Files),
	})

	resp, degraded, err := s.runTurn(ctx, req, stage, userMessage, emit)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		slog.Error("conversation turn failed",
			"conversation_id", req.ConversationID,
			"stage", stage,
			"error", err,
		)
		if s.recorder != nil {
			s.recorder.RecordTurnFailed(ctx, string(stage), llm.Outcome(err), duration)
		}
		s.emit(emit, req.ConversationID, models.EventTypeTurnFailed, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	changes, err := s.save(ctx, req.ConversationID, stage, userMessage, resp)
	if err != nil {
		slog.Error("failed to store conversation state", "conversation_id", req.ConversationID, "error", err)
	}
	if s.recorder != nil {
		s.recorder.RecordTurnCompleted(ctx, string(stage), degraded, duration)
	}
	span.SetAttributes(attribute.Bool("turn.degraded", degraded))
	completed := map[string]interface{}{
		"degraded": degraded,
		"is_mcq":   resp.IsMCQ,
	}
	if changes != nil {
		completed["code_changes"] = changes.eventData()
		span.SetAttributes(
			attribute.Int("code.lines_added", changes.Added),
			attribute.Int("code.lines_removed", changes.Removed),
		)
	}
	s.emit(emit, req.ConversationID, models.EventTypeTurnCompleted, completed)
	return resp, nil
}

// resume loads the stored context and stage into req. It runs under the turn
// lock, so a queued turn starts from the result of the turn before it.
func (s *Service) resume(ctx context.Context, req *models.ContextUpdateRequest) error {
	state, err := s.store.Get(ctx, req.ConversationID)
	switch {
	case errors.Is(err, ErrConversationNotFound):
		req.CurrentContext = models.ProjectContext{DeviceConstants: models.DeviceConstants{}}
	case err != nil:
		return fmt.Errorf("failed to load conversation: %w", err)
	default:
		req.CurrentContext = state.Context
		if req.CurrentStage == "" {
			req.CurrentStage = state.Stage
		}
	}
	return nil
}

func (s *Service) runTurn(ctx context.Context, req models.ContextUpdateRequest, stage models.Stage, userMessage string, emit EventFunc) (*models.ContextUpdateResponse, bool, error) {
	id := req.ConversationID

	if isKickoff(req, stage) {
		slog.Info("small talk on an empty project, offering sample projects", "conversation_id", id)
		return kickoffResponse(id, pickSampleProjects(s.rng, kickoffChoices)), false, nil
	}

	working := req.CurrentContext.Clone()
	var extractions []models.FileProcessingResult
	var fileTexts []string
	if len(req.Files) > 0 {
		extractions = s.files.ProcessAll(ctx, id, req.Files, func(i int, result models.FileProcessingResult) {
			if s.recorder != nil {
				s.recorder.RecordFileExtraction(ctx, result.Degraded)
			}
			s.emit(emit, id, models.EventTypeFileExtracted, map[string]interface{}{
				"index":     i,
				"file_name": result.FileName,
				"summary":   result.ProcessingSummary,
				"degraded":  result.Degraded,
			})
		})
		for _, result := range extractions {
			working = MergeExtraction(working, result)
			if info := strings.TrimSpace(result.ExtractedInformation); info != "" {
				fileTexts = append(fileTexts, "File: "+fileHeading(result)+"\n"+info)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, false, &llm.TimeoutError{Cause: err}
	}

	task := s.settings.forStage(stage)
	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	messages = append(messages, s.history(ctx, id)...)
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: buildTurnPrompt(working, stage, userMessage, req.MCQResponses, fileTexts),
	})

	completion, err := s.complete(ctx, task, messages, id)
	if err != nil {
		if surfaced(ctx, err) {
			return nil, false, err
		}
		slog.Error("main model call failed, returning fallback response", "conversation_id", id, "error", err)
		return errorResponse(req, stage, extractions), true, nil
	}

	reply, err := DecodeReply(completion.Text, 1)
	if err != nil {
		slog.Warn("model response violated the contract, issuing corrective call", "conversation_id", id, "error", err)
		reply, err = s.correct(ctx, task, stage, userMessage, req.MCQResponses, completion.Text, id)
		if err != nil {
			slog.Error("corrective call did not recover, returning fallback response", "conversation_id", id, "error", err)
			return errorResponse(req, stage, extractions), true, nil
		}
	}

	final := MergeProposed(working, reply.Context)
	degraded := false
	chat := reply.ChatMessage
	if chat == "" {
		chat, degraded = s.backfill(ctx, task, final, stage, userMessage, id)
	}

	resp := &models.ContextUpdateResponse{
		ConversationID:  id,
		UpdatedContext:  final,
		ChatMessage:     chat,
		CurrentStage:    stage,
		IsMCQ:           reply.IsMCQ,
		IsMultiselect:   reply.IsMultiselect,
		MCQQuestion:     reply.MCQQuestion,
		MCQOptions:      reply.MCQOptions,
		FileExtractions: extractions,
	}
	if resp.MCQOptions == nil {
		resp.MCQOptions = []string{}
	}
	if stage == models.StageGatheringRequirements {
		progress := clampProgress(reply.Progress)
		resp.GatheringRequirementsEstimatedProgress = &progress
	} else {
		resp.GeneratedCode = reply.GeneratedCode
	}
	return resp, degraded, nil
}

// correct issues the single corrective call after an unparsable answer
func (s *Service) correct(ctx context.Context, task TaskConfig, stage models.Stage, userMessage string, mcq []string, badOutput, id string) (*ModelReply, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildCorrectivePrompt(stage, userMessage, mcq, badOutput)},
	}
	completion, err := s.complete(ctx, task, messages, id)
	if err != nil {
		return nil, fmt.Errorf("failed to run corrective call: %w", err)
	}
	return DecodeReply(completion.Text, 2)
}

// backfill asks for a short chat message when a valid answer omitted one.
// The bool result reports whether the canned fallback had to be used.
func (s *Service) backfill(ctx context.Context, task TaskConfig, final models.ProjectContext, stage models.Stage, userMessage, id string) (string, bool) {
	messages := []llm.Message{
		{Role: "system", Content: "You are a PLC programming copilot. Reply with plain text only."},
		{Role: "user", Content: buildBackfillPrompt(final, stage, userMessage)},
	}
	task.MaxTokens = backfillMaxTokens

	completion, err := s.complete(ctx, task, messages, id)
	if err != nil {
		slog.Warn("chat message backfill failed", "conversation_id", id, "error", err)
		return fallbackChat(stage), true
	}
	text := strings.TrimSpace(llm.StripCodeFences(completion.Text))
	if text == "" {
		return fallbackChat(stage), true
	}
	return text, false
}

func (s *Service) complete(ctx context.Context, task TaskConfig, messages []llm.Message, id string) (*llm.Completion, error) {
	return s.completer.Complete(ctx, llm.CompletionRequest{
		Model:          task.Model,
		Messages:       messages,
		Temperature:    task.Temperature,
		MaxTokens:      task.MaxTokens,
		ConversationID: id,
	})
}

func (s *Service) history(ctx context.Context, id string) []llm.Message {
	state, err := s.store.Get(ctx, id)
	if err != nil {
		return nil
	}
	messages := make([]llm.Message, 0, len(state.History))
	for _, turn := range state.History {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

// save appends the turn to the stored conversation. When the turn replaced
// earlier generated code it also returns the line changes.
func (s *Service) save(ctx context.Context, id string, stage models.Stage, userMessage string, resp *models.ContextUpdateResponse) (*CodeChanges, error) {
	now := s.now().UTC()
	state, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrConversationNotFound) {
		state = &models.ConversationState{ID: id, CreatedAt: now}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var changes *CodeChanges
	if resp.GeneratedCode != nil && *resp.GeneratedCode != "" {
		if state.GeneratedCode != "" {
			diff := DiffCode(state.GeneratedCode, *resp.GeneratedCode)
			changes = &diff
		}
		state.GeneratedCode = *resp.GeneratedCode
	}

	state.Stage = stage
	state.Context = resp.UpdatedContext.Clone()
	state.Progress = nil
	if resp.GatheringRequirementsEstimatedProgress != nil {
		p := *resp.GatheringRequirementsEstimatedProgress
		state.Progress = &p
	}
	state.History = append(state.History,
		models.ChatTurn{Role: "user", Content: userMessage, Timestamp: now},
		models.ChatTurn{Role: "assistant", Content: resp.ChatMessage, Timestamp: now},
	)
	state.TurnCount++
	state.UpdatedAt = now

	if err := s.store.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}
	return changes, nil
}

// Transition validates a stage change and records the new stage for a known
// conversation. A rejected transition returns Success=false and changes nothing.
func (s *Service) Transition(ctx context.Context, req models.StageTransitionRequest) (*models.StageTransitionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.transition")
	defer span.End()

	var state *models.ConversationState
	if req.ConversationID != "" {
		unlock, err := s.store.Lock(ctx, req.ConversationID)
		if err != nil {
			return nil, &llm.TimeoutError{Cause: err}
		}
		defer unlock()

		state, err = s.store.Get(ctx, req.ConversationID)
		if err != nil && !errors.Is(err, ErrConversationNotFound) {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
	}

	from := req.CurrentStage
	if from == "" && state != nil {
		from = state.Stage
	}
	if from == "" {
		from = models.StageGatheringRequirements
	}
	span.SetAttributes(
		attribute.String("stage.from", string(from)),
		attribute.String("stage.to", string(req.TargetStage)),
		attribute.Bool("force", req.Force),
	)

	if err := ValidateTransition(from, req.TargetStage, req.Force); err != nil {
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			slog.Info("stage transition rejected", "conversation_id", req.ConversationID, "from", from, "to", req.TargetStage)
			return &models.StageTransitionResponse{
				NewStage: from,
				Message:  invalid.Reason,
				Success:  false,
			}, nil
		}
		return nil, err
	}

	if state != nil {
		state.Stage = req.TargetStage
		state.UpdatedAt = s.now().UTC()
		if err := s.store.Put(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to save conversation: %w", err)
		}
	}

	return &models.StageTransitionResponse{
		NewStage: req.TargetStage,
		Message:  fmt.Sprintf("Successfully transitioned to %s", req.TargetStage),
		Success:  true,
	}, nil
}

// Conversation returns the stored snapshot for id
func (s *Service) Conversation(ctx context.Context, id string) (*models.ConversationState, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) emit(emit EventFunc, conversationID, eventType string, data map[string]interface{}) {
	if emit == nil {
		return
	}
	emit(models.TurnEvent{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		EventType:      eventType,
		Data:           data,
		Timestamp:      s.now().UTC(),
	})
}

// surfaced reports whether a main-call error must reach the caller
func surfaced(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var unsupported *llm.UnsupportedParameterError
	var timeout *llm.TimeoutError
	return llm.IsRateLimited(err) || errors.As(err, &unsupported) || errors.As(err, &timeout)
}

func errorResponse(req models.ContextUpdateRequest, stage models.Stage, extractions []models.FileProcessingResult) *models.ContextUpdateResponse {
	resp := &models.ContextUpdateResponse{
		ConversationID:  req.ConversationID,
		UpdatedContext:  req.CurrentContext.Clone(),
		ChatMessage:     errorFallbackMessage,
		CurrentStage:    stage,
		MCQOptions:      []string{},
		FileExtractions: extractions,
	}
	if stage == models.StageGatheringRequirements {
		progress := defaultProgress
		resp.GatheringRequirementsEstimatedProgress = &progress
	}
	return resp
}

func fallbackChat(stage models.Stage) string {
	switch stage {
	case models.StageCodeGeneration:
		return "I've generated the Structured Text code based on your requirements. You can now review and refine it."
	case models.StageRefinementTesting:
		return "I've updated the project based on your input."
	default:
		return "I've updated the project context. What would you like to specify next?"
	}
}
