package extraction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/plc-copilot/context-engine/internal/llm"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// MockCompleter returns a fixed reply and records requests
type MockCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	delay    time.Duration
	requests []llm.CompletionRequest

	inFlight    int32
	maxInFlight int32
}

func (m *MockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	current := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&m.maxInFlight)
		if current <= seen || atomic.CompareAndSwapInt32(&m.maxInFlight, seen, current) {
			break
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Completion{Text: m.reply, Model: req.Model}, nil
}

const motorReply = "```json\n" + `{
  "devices": {"Motor M1": {"Type": "Induction motor", "Power": "5.5 kW"}},
  "information": "## Motors\n- M1 5.5 kW",
  "summary": "Extracted one motor"
}` + "\n```"

func TestPipelineProcess(t *testing.T) {
	file := models.UploadedFile{Name: "motors.txt", Content: []byte("Motor M1 5.5 kW")}

	t.Run("successful extraction", func(t *testing.T) {
		completer := &MockCompleter{reply: motorReply}
		pipeline := NewPipeline(UTF8Extractor{}, completer, "gpt-4o", 2)

		result := pipeline.Process(context.Background(), "conv-1", file)

		assert.Equal(t, "motors.txt", result.FileName)
		assert.False(t, result.Degraded)
		assert.Equal(t, "## Motors\n- M1 5.5 kW", result.ExtractedInformation)
		assert.Equal(t, "Extracted one motor", result.ProcessingSummary)

		entry, ok := result.ExtractedDevices["Motor M1"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "file", entry["origin"])
		data := entry["data"].(map[string]interface{})
		assert.Equal(t, "5.5 kW", data["Power"])

		require.Len(t, completer.requests, 1)
		req := completer.requests[0]
		assert.Equal(t, "gpt-4o", req.Model)
		assert.Equal(t, 0.3, req.Temperature)
		assert.Equal(t, 1500, req.MaxTokens)
		assert.Equal(t, "conv-1", req.ConversationID)
		assert.Contains(t, req.Messages[1].Content, "Motor M1 5.5 kW")
	})

	t.Run("already canonical entries keep their data", func(t *testing.T) {
		completer := &MockCompleter{reply: `{"devices":{"PLC":{"data":{"Model":"S7-1500"},"origin":"file"}},"information":"","summary":""}`}
		pipeline := NewPipeline(UTF8Extractor{}, completer, "gpt-4o", 1)

		result := pipeline.Process(context.Background(), "", file)

		entry := result.ExtractedDevices["PLC"].(map[string]interface{})
		assert.Equal(t, map[string]interface{}{"Model": "S7-1500"}, entry["data"])
		assert.Equal(t, "Extracted device data from motors.txt.", result.ProcessingSummary)
	})

	t.Run("model failure degrades to excerpt", func(t *testing.T) {
		long := strings.Repeat("a", 2500)
		completer := &MockCompleter{err: errors.New("upstream down")}
		pipeline := NewPipeline(UTF8Extractor{}, completer, "gpt-4o", 1)

		result := pipeline.Process(context.Background(), "", models.UploadedFile{Name: "big.txt", Content: []byte(long)})

		assert.True(t, result.Degraded)
		assert.Empty(t, result.ExtractedDevices)
		assert.Equal(t, strings.Repeat("a", 2000)+"...[truncated]", result.ExtractedInformation)
		assert.Contains(t, result.ProcessingSummary, "degraded")
	})

	t.Run("unparsable output degrades", func(t *testing.T) {
		completer := &MockCompleter{reply: "I could not find any devices."}
		pipeline := NewPipeline(UTF8Extractor{}, completer, "gpt-4o", 1)

		result := pipeline.Process(context.Background(), "", file)

		assert.True(t, result.Degraded)
		assert.Equal(t, "Motor M1 5.5 kW", result.ExtractedInformation)
	})

	t.Run("no text skips the model", func(t *testing.T) {
		completer := &MockCompleter{reply: motorReply}
		pipeline := NewPipeline(UTF8Extractor{}, completer, "gpt-4o", 1)

		result := pipeline.Process(context.Background(), "", models.UploadedFile{Name: "scan.pdf", Content: []byte("%PDF-1.4 binary")})

		assert.False(t, result.Degraded)
		assert.Empty(t, result.ExtractedDevices)
		assert.Empty(t, result.ExtractedInformation)
		assert.Contains(t, result.ProcessingSummary, "scan.pdf")
		assert.Empty(t, completer.requests)
	})

	t.Run("extractor error yields empty result", func(t *testing.T) {
		completer := &MockCompleter{reply: motorReply}
		pipeline := NewPipeline(stubExtractor{err: errors.New("service down")}, completer, "gpt-4o", 1)

		result := pipeline.Process(context.Background(), "", file)

		assert.Contains(t, result.ProcessingSummary, "text extraction failed")
		assert.Empty(t, completer.requests)
	})
}

func TestPipelineProcessAll(t *testing.T) {
	t.Run("preserves input order and bounds concurrency", func(t *testing.T) {
		completer := &MockCompleter{reply: motorReply, delay: 20 * time.Millisecond}
		pipeline := NewPipeline(UTF8Extractor{}, completer, "gpt-4o", 2)

		files := []models.UploadedFile{
			{Name: "a.txt", Content: []byte("a")},
			{Name: "b.txt", Content: []byte("b")},
			{Name: "c.txt", Content: []byte("c")},
			{Name: "d.txt", Content: []byte("d")},
			{Name: "e.txt", Content: []byte("e")},
		}

		var mu sync.Mutex
		var seen []int
		results := pipeline.ProcessAll(context.Background(), "conv", files, func(i int, r models.FileProcessingResult) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		})

		require.Len(t, results, len(files))
		for i, r := range results {
			assert.Equal(t, files[i].Name, r.FileName)
		}
		assert.Len(t, seen, len(files))
		assert.LessOrEqual(t, atomic.LoadInt32(&completer.maxInFlight), int32(2))
	})

	t.Run("no files", func(t *testing.T) {
		pipeline := NewPipeline(UTF8Extractor{}, &MockCompleter{}, "gpt-4o", 2)
		assert.Empty(t, pipeline.ProcessAll(context.Background(), "", nil, nil))
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...[truncated]", Truncate("abcdef", 2))
	// "é" is two bytes; cutting at 1 must not split it
	assert.Equal(t, "...[truncated]", Truncate("éa", 1))
}
