package gateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/plc-copilot/context-engine/internal/conversation"
	"github.com/bizmatters/plc-copilot/context-engine/internal/llm"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

func dialStream(t *testing.T, svc ConversationService, conversationID string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stream := NewConversationStream(svc, 1<<20)
	router := gin.New()
	router.GET("/api/ws/conversations/:id", stream.Stream)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/conversations/" + conversationID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.TurnEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event models.TurnEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestNewConversationStream(t *testing.T) {
	stream := NewConversationStream(&MockConversationService{}, 1024)

	assert.NotNil(t, stream.service)
	assert.NotNil(t, stream.tracer)
	assert.Equal(t, int64(1024), stream.maxFrameBytes)
	assert.Equal(t, 10*time.Second, stream.upgrader.HandshakeTimeout)
}

func TestConversationStream_TurnEvents(t *testing.T) {
	svc := &MockConversationService{
		updateResponse: okResponse(),
		events: []models.TurnEvent{
			{ID: "e1", EventType: models.EventTypeTurnStarted},
			{ID: "e2", EventType: models.EventTypeFileExtracted, Data: map[string]interface{}{"file_name": "motor.txt"}},
			{ID: "e3", EventType: models.EventTypeTurnCompleted},
		},
	}
	conn := dialStream(t, svc, "conv-1")

	ctx := models.ProjectContext{DeviceConstants: models.DeviceConstants{}}
	require.NoError(t, conn.WriteJSON(UpdateFrame{
		Message:        "Motor M1 is 2kW",
		CurrentContext: &ctx,
		CurrentStage:   models.StageGatheringRequirements,
		Files:          []FrameFile{{Name: "motor.txt", ContentType: "text/plain", Content: []byte("Motor M1 2kW")}},
	}))

	var types []string
	for i := 0; i < 3; i++ {
		event := readEvent(t, conn)
		assert.Equal(t, "conv-1", event.ConversationID)
		types = append(types, event.EventType)
	}
	assert.Equal(t, []string{models.EventTypeTurnStarted, models.EventTypeFileExtracted, models.EventTypeTurnCompleted}, types)

	result := readEvent(t, conn)
	require.Equal(t, models.EventTypeTurnResult, result.EventType)
	response, ok := result.Data["response"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "What is the sensor type?", response["chat_message"])

	got := svc.lastRequest()
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.False(t, got.ContinueFromStored)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "Motor M1 2kW", string(got.Files[0].Content))
	assert.Equal(t, "text/plain", got.Files[0].ContentType)
}

func TestConversationStream_FrameWithoutContextContinuesFromStore(t *testing.T) {
	svc := &MockConversationService{updateResponse: okResponse()}
	conn := dialStream(t, svc, "conv-2")

	require.NoError(t, conn.WriteJSON(UpdateFrame{Message: "Add a second sensor"}))
	assert.Equal(t, models.EventTypeTurnResult, readEvent(t, conn).EventType)

	got := svc.lastRequest()
	assert.True(t, got.ContinueFromStored)
	assert.Empty(t, got.CurrentStage)
	assert.Equal(t, "Add a second sensor", got.Message)
}

// gatedCompleter holds its first call until release is closed
type gatedCompleter struct {
	mu      sync.Mutex
	calls   int
	replies []string
	started chan struct{}
	release chan struct{}
}

func (g *gatedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.mu.Unlock()

	if n == 0 {
		close(g.started)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n >= len(g.replies) {
		n = len(g.replies) - 1
	}
	return &llm.Completion{Text: g.replies[n], Model: req.Model}, nil
}

func readUntilResult(t *testing.T, conn *websocket.Conn) models.TurnEvent {
	t.Helper()
	for {
		event := readEvent(t, conn)
		if event.EventType == models.EventTypeTurnResult || event.EventType == models.EventTypeError {
			return event
		}
	}
}

func TestConversationStream_QueuedTurnSeesPreviousTurn(t *testing.T) {
	completer := &gatedCompleter{
		replies: []string{
			`{"chat_message":"Noted","updated_context":{"device_constants":{"M1":{"Power":"2kW"}},"information":"Motor M1"}}`,
			`{"chat_message":"Updated","updated_context":{"information":"B"}}`,
		},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := conversation.NewMemoryStore(20)
	svc := conversation.NewService(completer, nil, store, conversation.NewModelSettings("gpt-4o-mini", "gpt-4o", "gpt-4o-mini"))

	first := dialStream(t, svc, "c1")
	second := dialStream(t, svc, "c1")

	require.NoError(t, first.WriteJSON(UpdateFrame{Message: "Motor M1 is rated 2kW"}))
	select {
	case <-completer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never reached the model")
	}

	// second turn arrives while the first one holds the conversation
	require.NoError(t, second.WriteJSON(UpdateFrame{Message: "Rename the project to B"}))
	time.Sleep(100 * time.Millisecond)
	close(completer.release)

	assert.Equal(t, models.EventTypeTurnResult, readUntilResult(t, first).EventType)
	assert.Equal(t, models.EventTypeTurnResult, readUntilResult(t, second).EventType)

	state, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, state.TurnCount)
	assert.Equal(t, "B", state.Context.Information)
	require.Contains(t, state.Context.DeviceConstants, "M1")
	assert.Equal(t, "2kW", state.Context.DeviceConstants["M1"].(map[string]interface{})["Power"])
}

func TestConversationStream_MalformedFrameKeepsConnection(t *testing.T) {
	svc := &MockConversationService{updateResponse: okResponse()}
	conn := dialStream(t, svc, "conv-3")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	event := readEvent(t, conn)
	assert.Equal(t, models.EventTypeError, event.EventType)
	assert.Equal(t, models.ErrCodeInvalidRequest, event.Data["code"])
	assert.Equal(t, float64(400), event.Data["status"])

	require.NoError(t, conn.WriteJSON(UpdateFrame{Message: "hello again"}))
	assert.Equal(t, models.EventTypeTurnResult, readEvent(t, conn).EventType)
}

func TestConversationStream_TurnErrorBecomesErrorEvent(t *testing.T) {
	svc := &MockConversationService{updateError: &llm.RateLimitedError{Model: "gpt-3.5-turbo", Message: "quota"}}
	conn := dialStream(t, svc, "conv-4")

	require.NoError(t, conn.WriteJSON(UpdateFrame{Message: "Motor M1"}))
	event := readEvent(t, conn)
	assert.Equal(t, models.EventTypeError, event.EventType)
	assert.Equal(t, models.ErrCodeRateLimited, event.Data["code"])
	assert.Equal(t, float64(429), event.Data["status"])
}
