package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bizmatters/plc-copilot/context-engine/internal/llm"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const (
	documentTemperature = 0.3
	documentMaxTokens   = 1500
	maxPromptChars      = 6000
	maxExcerptChars     = 2000
	truncationMarker    = "...[truncated]"
)

// Completer issues one completion call
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error)
}

// Pipeline converts uploaded files into FileProcessingResults. It never
// fails: every problem degrades to an empty or excerpt-only result.
type Pipeline struct {
	extractor      TextExtractor
	completer      Completer
	model          string
	maxConcurrency int
	tracer         trace.Tracer
}

// NewPipeline creates a file extraction pipeline
func NewPipeline(extractor TextExtractor, completer Completer, model string, maxConcurrency int) *Pipeline {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Pipeline{
		extractor:      extractor,
		completer:      completer,
		model:          model,
		maxConcurrency: maxConcurrency,
		tracer:         otel.Tracer("file-extraction"),
	}
}

// ProcessAll extracts every file concurrently and returns results in input
// order. onResult, when set, is called as each file finishes and may be
// called from several goroutines at once.
func (p *Pipeline) ProcessAll(ctx context.Context, conversationID string, files []models.UploadedFile, onResult func(int, models.FileProcessingResult)) []models.FileProcessingResult {
	results := make([]models.FileProcessingResult, len(files))
	if len(files) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrency)
	for i, file := range files {
		g.Go(func() error {
			results[i] = p.Process(gctx, conversationID, file)
			if onResult != nil {
				onResult(i, results[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Process extracts a single file
func (p *Pipeline) Process(ctx context.Context, conversationID string, file models.UploadedFile) models.FileProcessingResult {
	ctx, span := p.tracer.Start(ctx, "file_extraction.process")
	defer span.End()

	span.SetAttributes(
		attribute.String("file.name", file.Name),
		attribute.Int("file.size", len(file.Content)),
	)

	text, err := p.extractor.ExtractText(ctx, file)
	if err != nil {
		span.RecordError(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		reason := "no readable text was found"
		if err != nil {
			reason = "text extraction failed"
		}
		slog.Warn("no text extracted from upload", "file", file.Name, "reason", reason)
		return models.FileProcessingResult{
			FileName:          file.Name,
			ExtractedDevices:  models.DeviceConstants{},
			ProcessingSummary: fmt.Sprintf("No information extracted from %s: %s.", displayName(file), reason),
		}
	}

	completion, err := p.completer.Complete(ctx, llm.CompletionRequest{
		Model: p.model,
		Messages: []llm.Message{
			{Role: "system", Content: documentSystemPrompt},
			{Role: "user", Content: buildDocumentPrompt(text)},
		},
		Temperature:    documentTemperature,
		MaxTokens:      documentMaxTokens,
		ConversationID: conversationID,
	})
	if err != nil {
		span.RecordError(err)
		slog.Warn("document analysis call failed", "file", file.Name, "error", err)
		return degraded(file, text)
	}

	obj, err := llm.ParseJSONObject(completion.Text)
	if err != nil {
		span.RecordError(err)
		slog.Warn("document analysis returned unparsable output", "file", file.Name, "error", err)
		return degraded(file, text)
	}

	result := models.FileProcessingResult{
		FileName:             file.Name,
		ExtractedDevices:     fileDevices(obj["devices"]),
		ExtractedInformation: stringField(obj, "information"),
		ProcessingSummary:    stringField(obj, "summary"),
	}
	if result.ProcessingSummary == "" {
		result.ProcessingSummary = fmt.Sprintf("Extracted device data from %s.", displayName(file))
	}
	span.SetAttributes(attribute.Int("devices.extracted", len(result.ExtractedDevices)))
	return result
}

// degraded keeps a raw excerpt so the turn still learns something from the file
func degraded(file models.UploadedFile, text string) models.FileProcessingResult {
	return models.FileProcessingResult{
		FileName:             file.Name,
		ExtractedDevices:     models.DeviceConstants{},
		ExtractedInformation: Truncate(text, maxExcerptChars),
		ProcessingSummary:    fmt.Sprintf("Automatic analysis of %s was unavailable; a raw excerpt was kept (degraded).", displayName(file)),
		Degraded:             true,
	}
}

// fileDevices normalizes the model's devices object into canonical entries
// tagged with the file origin
func fileDevices(raw interface{}) models.DeviceConstants {
	devices := models.DeviceConstants{}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return devices
	}
	for name, value := range m {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch v := value.(type) {
		case map[string]interface{}:
			if data, ok := v["data"].(map[string]interface{}); ok {
				devices[name] = models.NewDeviceEntry(data, models.OriginFile)
			} else {
				devices[name] = models.NewDeviceEntry(v, models.OriginFile)
			}
		case nil:
			continue
		default:
			devices[name] = v
		}
	}
	return devices
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func displayName(file models.UploadedFile) string {
	if file.Name == "" {
		return "the uploaded file"
	}
	return file.Name
}

// Truncate cuts s to at most n bytes on a rune boundary and marks the cut
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
