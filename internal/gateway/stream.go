package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// UpdateFrame is one turn sent by a client over the conversation stream.
// File contents are base64 encoded. When CurrentContext is omitted the
// stored context and stage of the conversation are used.
type UpdateFrame struct {
	Message                string                 `json:"message"`
	MCQResponses           []string               `json:"mcq_responses"`
	PreviousCopilotMessage string                 `json:"previous_copilot_message"`
	CurrentContext         *models.ProjectContext `json:"current_context"`
	CurrentStage           models.Stage           `json:"current_stage"`
	Files                  []FrameFile            `json:"files"`
}

// FrameFile is an uploaded file carried inside an UpdateFrame
type FrameFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// ConversationStream runs conversation turns over a websocket and streams
// turn progress events back to the client
type ConversationStream struct {
	service       ConversationService
	maxFrameBytes int64
	tracer        trace.Tracer
	upgrader      websocket.Upgrader
}

// NewConversationStream creates a websocket endpoint for conversation turns
func NewConversationStream(service ConversationService, maxFrameBytes int64) *ConversationStream {
	return &ConversationStream{
		service:       service,
		maxFrameBytes: maxFrameBytes,
		tracer:        otel.Tracer("conversation-stream"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to the copilot UI origins once they are configurable
				slog.Debug("websocket connection", "origin", r.Header.Get("Origin"))
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Stream handles WebSocket /api/ws/conversations/:id
// @Summary Stream conversation turns
// @Description WebSocket endpoint accepting update frames and emitting turn.started, file.extracted, turn.completed, turn.result and error events
// @Tags context
// @Param id path string true "Conversation ID"
// @Param token query string false "JWT for browsers that cannot set headers on upgrade"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/conversations/{id} [get]
func (s *ConversationStream) Stream(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "conversation_stream.stream")
	defer span.End()

	conversationID := c.Param("id")
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		slog.Warn("failed to upgrade connection", "conversation_id", conversationID, "error", err)
		return
	}
	defer conn.Close()

	if s.maxFrameBytes > 0 {
		conn.SetReadLimit(s.maxFrameBytes)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &eventWriter{conn: conn}
	go w.keepAlive(ctx)

	slog.Info("conversation stream opened", "conversation_id", conversationID)
	defer slog.Info("conversation stream closed", "conversation_id", conversationID)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				span.RecordError(err)
				slog.Warn("conversation stream read error", "conversation_id", conversationID, "error", err)
			}
			return
		}

		if err := s.handleFrame(ctx, w, conversationID, payload); err != nil {
			slog.Warn("failed to write to conversation stream", "conversation_id", conversationID, "error", err)
			return
		}
	}
}

// handleFrame runs one turn. Only write failures are returned; turn
// failures are reported to the client as error events.
func (s *ConversationStream) handleFrame(ctx context.Context, w *eventWriter, conversationID string, payload []byte) error {
	var frame UpdateFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return w.send(errorEvent(conversationID, http.StatusBadRequest, models.ErrorResponse{
			Error: "frame is not valid JSON",
			Code:  models.ErrCodeInvalidRequest,
		}))
	}

	req := s.request(conversationID, frame)

	var writeErr error
	var once sync.Once
	emit := func(event models.TurnEvent) {
		if err := w.send(event); err != nil {
			once.Do(func() { writeErr = err })
		}
	}

	resp, err := s.service.ProcessUpdate(ctx, req, emit)
	if err != nil {
		status, body := errorBody(err)
		return w.send(errorEvent(conversationID, status, body))
	}
	if writeErr != nil {
		return writeErr
	}

	return w.send(models.TurnEvent{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		EventType:      models.EventTypeTurnResult,
		Data:           map[string]interface{}{"response": resp},
		Timestamp:      time.Now().UTC(),
	})
}

func (s *ConversationStream) request(conversationID string, frame UpdateFrame) models.ContextUpdateRequest {
	req := models.ContextUpdateRequest{
		ConversationID:         conversationID,
		Message:                frame.Message,
		MCQResponses:           frame.MCQResponses,
		PreviousCopilotMessage: frame.PreviousCopilotMessage,
		CurrentStage:           frame.CurrentStage,
	}
	for _, f := range frame.Files {
		req.Files = append(req.Files, models.UploadedFile{
			Name:        f.Name,
			ContentType: f.ContentType,
			Content:     f.Content,
		})
	}

	if frame.CurrentContext != nil {
		req.CurrentContext = *frame.CurrentContext
	} else {
		req.ContinueFromStored = true
	}
	return req
}

func errorEvent(conversationID string, status int, body models.ErrorResponse) models.TurnEvent {
	data := map[string]interface{}{
		"status": status,
		"error":  body.Error,
		"code":   body.Code,
	}
	if len(body.Details) > 0 {
		data["details"] = body.Details
	}
	return models.TurnEvent{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		EventType:      models.EventTypeError,
		Data:           data,
		Timestamp:      time.Now().UTC(),
	}
}

// eventWriter serialises writes; file extraction emits events from several goroutines
type eventWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *eventWriter) send(event models.TurnEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteJSON(event)
}

func (w *eventWriter) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
