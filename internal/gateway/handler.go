package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/plc-copilot/context-engine/internal/auth"
	"github.com/bizmatters/plc-copilot/context-engine/internal/conversation"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const tokenTTL = 24 * time.Hour

// ConversationIDKey is set on the gin context once a turn has a conversation id
const ConversationIDKey = "conversation_id"

// ConversationService runs conversation turns and stage transitions
type ConversationService interface {
	ProcessUpdate(ctx context.Context, req models.ContextUpdateRequest, emit conversation.EventFunc) (*models.ContextUpdateResponse, error)
	Transition(ctx context.Context, req models.StageTransitionRequest) (*models.StageTransitionResponse, error)
	Conversation(ctx context.Context, id string) (*models.ConversationState, error)
	Messages(ctx context.Context, id string) (*models.ConversationMessages, error)
	ListConversations(ctx context.Context) (*models.ConversationList, error)
	DeleteConversation(ctx context.Context, id string) error
	ResetConversation(ctx context.Context, id string) (*models.ConversationState, error)
	SuggestStage(ctx context.Context, id string) (*models.StageSuggestion, error)
}

// Authenticator verifies operator credentials
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.Operator, error)
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	service        ConversationService
	jwtManager     *auth.JWTManager
	operators      Authenticator
	maxUploadBytes int64
	tracer         trace.Tracer
}

// NewHandler creates a new gateway handler. operators may be nil, in which
// case login is disabled.
func NewHandler(service ConversationService, jwtManager *auth.JWTManager, operators Authenticator, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		jwtManager:     jwtManager,
		operators:      operators,
		maxUploadBytes: maxUploadBytes,
		tracer:         otel.Tracer("gateway-handler"),
	}
}

// Login godoc
// @Summary Operator login
// @Description Authenticate an operator and return a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	if h.operators == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error: "Login is not configured",
			Code:  models.ErrCodeInternalError,
		})
		return
	}

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request",
			Code:  models.ErrCodeInvalidRequest,
		})
		return
	}

	ctx := c.Request.Context()
	op, err := h.operators.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrOperatorNotFound) && !errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Error("operator lookup failed", "email", req.Email, "error", err)
		} else {
			slog.Warn("login rejected", "email", req.Email)
		}
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error: "Invalid email or password",
			Code:  models.ErrCodeUnauthorized,
		})
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(ctx, op.ID, op.Email, []string{"operator"}, tokenTTL)
	if err != nil {
		slog.Error("failed to generate token", "operator_id", op.ID, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to generate token",
			Code:  models.ErrCodeInternalError,
		})
		return
	}

	slog.Info("operator logged in", "operator_id", op.ID)
	c.JSON(http.StatusOK, models.LoginResponse{
		Token:      token,
		ExpiresAt:  expiresAt,
		OperatorID: op.ID,
	})
}

// UpdateContext godoc
// @Summary Run one conversation turn
// @Description Merge uploaded files and the operator's message into the project context and return the copilot's reply
// @Tags context
// @Accept multipart/form-data
// @Produce json
// @Param current_context formData string true "Project context JSON"
// @Param message formData string false "Operator message"
// @Param mcq_responses formData string false "JSON list of selected options"
// @Param previous_copilot_message formData string false "Last copilot message shown to the operator"
// @Param current_stage formData string false "Workflow stage"
// @Param conversation_id formData string false "Conversation ID"
// @Param files formData file false "Uploaded documents"
// @Success 200 {object} models.ContextUpdateResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Failure 504 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /context/update [post]
func (h *Handler) UpdateContext(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.update_context")
	defer span.End()

	req, err := h.bindUpdate(c)
	if err != nil {
		span.RecordError(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Error: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
				Code:  models.ErrCodeInvalidRequest,
			})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: err.Error(),
			Code:  models.ErrCodeInvalidRequest,
		})
		return
	}
	span.SetAttributes(
		attribute.String("conversation.id", req.ConversationID),
		attribute.String("operator.id", c.GetString(auth.OperatorIDKey)),
		attribute.Int("files.count", len(req.Files)),
	)

	resp, err := h.service.ProcessUpdate(ctx, req, nil)
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}

	c.Set(ConversationIDKey, resp.ConversationID)
	c.JSON(http.StatusOK, resp)
}

// bindUpdate accepts multipart forms and, for clients without files, a JSON body
func (h *Handler) bindUpdate(c *gin.Context) (models.ContextUpdateRequest, error) {
	var req models.ContextUpdateRequest
	if h.maxUploadBytes > 0 {
		if c.Request.ContentLength > h.maxUploadBytes {
			return req, &http.MaxBytesError{Limit: h.maxUploadBytes}
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body struct {
			models.ContextUpdateRequest
			CurrentContext *models.ProjectContext `json:"current_context"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			return req, fmt.Errorf("invalid request body: %w", err)
		}
		if body.CurrentContext == nil {
			return req, errors.New("current_context is required")
		}
		req = body.ContextUpdateRequest
		req.CurrentContext = *body.CurrentContext
		return req, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return req, fmt.Errorf("invalid multipart form: %w", err)
	}
	field := func(name string) string {
		if values := form.Value[name]; len(values) > 0 {
			return values[0]
		}
		return ""
	}

	raw := field("current_context")
	if strings.TrimSpace(raw) == "" {
		return req, errors.New("current_context is required")
	}
	if err := json.Unmarshal([]byte(raw), &req.CurrentContext); err != nil {
		return req, fmt.Errorf("current_context is not valid JSON: %w", err)
	}
	if mcq := field("mcq_responses"); strings.TrimSpace(mcq) != "" {
		if err := json.Unmarshal([]byte(mcq), &req.MCQResponses); err != nil {
			return req, fmt.Errorf("mcq_responses must be a JSON list of strings: %w", err)
		}
	}
	req.Message = field("message")
	req.PreviousCopilotMessage = field("previous_copilot_message")
	req.CurrentStage = models.Stage(field("current_stage"))
	req.ConversationID = field("conversation_id")

	headers := append(form.File["files"], form.File["files[]"]...)
	for _, fh := range headers {
		file, err := readUpload(fh)
		if err != nil {
			return req, err
		}
		req.Files = append(req.Files, file)
	}
	return req, nil
}

func readUpload(fh *multipart.FileHeader) (models.UploadedFile, error) {
	f, err := fh.Open()
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}
	return models.UploadedFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

// Transition godoc
// @Summary Change workflow stage
// @Description Validate and apply a stage transition for a conversation
// @Tags context
// @Accept json
// @Produce json
// @Param request body models.StageTransitionRequest true "Transition request"
// @Success 200 {object} models.StageTransitionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.StageTransitionResponse
// @Security BearerAuth
// @Router /context/transition [post]
func (h *Handler) Transition(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.transition")
	defer span.End()

	var req models.StageTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request",
			Code:  models.ErrCodeInvalidRequest,
		})
		return
	}

	resp, err := h.service.Transition(ctx, req)
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	if !resp.Success {
		c.JSON(http.StatusConflict, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetConversation godoc
// @Summary Get conversation state
// @Description Return the stored stage, context and recent history of a conversation
// @Tags context
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.ConversationState
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id} [get]
func (h *Handler) GetConversation(c *gin.Context) {
	state, err := h.service.Conversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// ListConversations godoc
// @Summary List conversations
// @Description Return a summary of every stored conversation, most recently updated first
// @Tags conversations
// @Produce json
// @Success 200 {object} models.ConversationList
// @Security BearerAuth
// @Router /conversations [get]
func (h *Handler) ListConversations(c *gin.Context) {
	list, err := h.service.ListConversations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetMessages godoc
// @Summary Get conversation messages
// @Description Return the stored chat history of a conversation
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.ConversationMessages
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/messages [get]
func (h *Handler) GetMessages(c *gin.Context) {
	msgs, err := h.service.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// SuggestStage godoc
// @Summary Suggest the next stage
// @Description Classify the conversation and suggest a stage with a confidence. The stored stage is not changed.
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.StageSuggestion
// @Failure 404 {object} models.ErrorResponse
// @Failure 504 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/stage/suggestions [get]
func (h *Handler) SuggestStage(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.suggest_stage")
	defer span.End()

	suggestion, err := h.service.SuggestStage(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestion)
}

// ResetConversation godoc
// @Summary Reset a conversation
// @Description Clear the context, history and generated code and return to requirements gathering
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.ConversationState
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/reset [post]
func (h *Handler) ResetConversation(c *gin.Context) {
	state, err := h.service.ResetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	slog.Info("conversation reset", "conversation_id", state.ID, "operator_id", c.GetString(auth.OperatorIDKey))
	c.JSON(http.StatusOK, state)
}

// DeleteConversation godoc
// @Summary Delete a conversation
// @Description Drop a conversation and its history
// @Tags conversations
// @Param id path string true "Conversation ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id} [delete]
func (h *Handler) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.DeleteConversation(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	slog.Info("conversation deleted", "conversation_id", id, "operator_id", c.GetString(auth.OperatorIDKey))
	c.Status(http.StatusNoContent)
}
