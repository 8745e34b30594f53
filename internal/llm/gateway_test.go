package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// MockBackend answers per model from a scripted table
type MockBackend struct {
	mu      sync.Mutex
	answers map[string][]error
	calls   []string
	delay   time.Duration
}

func (m *MockBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Model)
	var err error
	if queue := m.answers[req.Model]; len(queue) > 0 {
		err = queue[0]
		m.answers[req.Model] = queue[1:]
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Completion{Text: "ok from " + req.Model}, nil
}

func (m *MockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockNotifier records incidents
type MockNotifier struct {
	mu        sync.Mutex
	incidents []models.Incident
}

func (m *MockNotifier) SendIncident(ctx context.Context, incident models.Incident) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, incident)
	return true
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.incidents)
}

type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []string
	fallbacks [][2]string
}

func (o *recordingObserver) RecordModelCall(ctx context.Context, model, outcome string, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, model+":"+outcome)
}

func (o *recordingObserver) RecordFallback(ctx context.Context, from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, [2]string{from, to})
}

func rateLimited(model string) error {
	return &RateLimitedError{Model: model, Message: "Error code: 429 - Rate limit reached"}
}

func TestGateway_Complete(t *testing.T) {
	t.Run("success on requested model", func(t *testing.T) {
		backend := &MockBackend{}
		g := NewGateway(backend, NewSelector([]string{"A", "B"}), nil, time.Second)

		completion, err := g.Complete(context.Background(), CompletionRequest{Model: "A"})
		require.NoError(t, err)
		assert.Equal(t, "ok from A", completion.Text)
		assert.Equal(t, "A", completion.Model)
		assert.Equal(t, []string{"A"}, backend.Calls())
	})

	t.Run("rate limit falls back once and notifies", func(t *testing.T) {
		backend := &MockBackend{answers: map[string][]error{"A": {rateLimited("A")}}}
		notifier := &MockNotifier{}
		observer := &recordingObserver{}
		g := NewGateway(backend, NewSelector([]string{"A", "B", "C"}), notifier, time.Second)
		g.SetObserver(observer)

		completion, err := g.Complete(context.Background(), CompletionRequest{Model: "A", ConversationID: "conv-1"})
		require.NoError(t, err)
		assert.Equal(t, "ok from B", completion.Text)
		assert.Equal(t, []string{"A", "B"}, backend.Calls())
		assert.True(t, g.Selector().IsRateLimited("A"))
		assert.Equal(t, [][2]string{{"A", "B"}}, observer.fallbacks)
		assert.Equal(t, []string{"A:rate_limited", "B:success"}, observer.outcomes)

		require.Equal(t, 1, notifier.Count())
		incident := notifier.incidents[0]
		assert.Equal(t, "A", incident.PrimaryModel)
		assert.Equal(t, "B", incident.FallbackModel)
		assert.Equal(t, "conv-1", incident.ConversationID)
		assert.Contains(t, incident.ErrorText, "429")
	})

	t.Run("later calls skip the limited model", func(t *testing.T) {
		backend := &MockBackend{answers: map[string][]error{"A": {rateLimited("A")}}}
		g := NewGateway(backend, NewSelector([]string{"A", "B"}), nil, time.Second)

		_, err := g.Complete(context.Background(), CompletionRequest{Model: "A"})
		require.NoError(t, err)
		_, err = g.Complete(context.Background(), CompletionRequest{Model: "A"})
		require.NoError(t, err)

		assert.Equal(t, []string{"A", "B", "B"}, backend.Calls())
	})

	t.Run("second rate limit returns the original error", func(t *testing.T) {
		original := rateLimited("A")
		backend := &MockBackend{answers: map[string][]error{
			"A": {original},
			"B": {rateLimited("B")},
		}}
		g := NewGateway(backend, NewSelector([]string{"A", "B", "C"}), nil, time.Second)

		_, err := g.Complete(context.Background(), CompletionRequest{Model: "A"})
		require.Error(t, err)
		assert.Same(t, original, err)
		assert.Equal(t, []string{"A", "B"}, backend.Calls(), "only one retry per call")
		assert.True(t, g.Selector().IsRateLimited("B"))
	})

	t.Run("exhausted cascade does not retry", func(t *testing.T) {
		backend := &MockBackend{answers: map[string][]error{"A": {rateLimited("A")}}}
		g := NewGateway(backend, NewSelector([]string{"A"}), nil, time.Second)

		_, err := g.Complete(context.Background(), CompletionRequest{Model: "A"})
		require.Error(t, err)
		assert.True(t, IsRateLimited(err))
		assert.Equal(t, []string{"A"}, backend.Calls())
	})

	t.Run("unsupported parameter is never retried", func(t *testing.T) {
		backend := &MockBackend{answers: map[string][]error{
			"A": {&UnsupportedParameterError{Model: "A", Param: "temperature"}},
		}}
		g := NewGateway(backend, NewSelector([]string{"A", "B"}), nil, time.Second)

		_, err := g.Complete(context.Background(), CompletionRequest{Model: "A"})
		var unsupported *UnsupportedParameterError
		require.True(t, errors.As(err, &unsupported))
		assert.Equal(t, "temperature", unsupported.Param)
		assert.Equal(t, []string{"A"}, backend.Calls())
		assert.False(t, g.Selector().IsRateLimited("A"))
	})

	t.Run("notification sent once per window", func(t *testing.T) {
		backend := &MockBackend{answers: map[string][]error{
			"A": {rateLimited("A")},
			"B": {rateLimited("B")},
		}}
		notifier := &MockNotifier{}
		g := NewGateway(backend, NewSelector([]string{"A", "B", "C"}), notifier, time.Second)

		_, _ = g.Complete(context.Background(), CompletionRequest{Model: "A"})
		_, _ = g.Complete(context.Background(), CompletionRequest{Model: "A"})

		assert.Equal(t, 1, notifier.Count())
	})
}

func TestGateway_Timeouts(t *testing.T) {
	t.Run("call deadline becomes a timeout error", func(t *testing.T) {
		backend := &MockBackend{delay: 200 * time.Millisecond}
		g := NewGateway(backend, NewSelector([]string{"A"}), nil, 20*time.Millisecond)

		_, err := g.Complete(context.Background(), CompletionRequest{Model: "A"})
		var timeout *TimeoutError
		require.True(t, errors.As(err, &timeout))
		assert.Equal(t, 20*time.Millisecond, timeout.Timeout)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("caller cancellation becomes a timeout error", func(t *testing.T) {
		backend := &MockBackend{delay: time.Second}
		g := NewGateway(backend, NewSelector([]string{"A"}), nil, 5*time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := g.Complete(ctx, CompletionRequest{Model: "A"})
		var timeout *TimeoutError
		require.True(t, errors.As(err, &timeout))
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeRateLimited, Outcome(rateLimited("A")))
	assert.Equal(t, OutcomeUnsupported, Outcome(&UnsupportedParameterError{}))
	assert.Equal(t, OutcomeTimeout, Outcome(&TimeoutError{}))
	assert.Equal(t, OutcomeError, Outcome(errors.New("boom")))
}
