package extraction

import (
	"bytes"
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
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// TextExtractor turns an uploaded file into plain text. An empty string with
// a nil error means the extractor does not handle this file.
type TextExtractor interface {
	ExtractText(ctx context.Context, file models.UploadedFile) (string, error)
}

// Chain tries each extractor in order and returns the first non-empty text
type Chain []TextExtractor

// ExtractText implements TextExtractor
func (c Chain) ExtractText(ctx context.Context, file models.UploadedFile) (string, error) {
	var errs []error
	for _, extractor := range c {
		text, err := extractor.ExtractText(ctx, file)
		if err != nil {
			slog.Warn("text extraction strategy failed", "file", file.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "", nil
}

// UTF8Extractor accepts files whose bytes are already valid UTF-8 text
type UTF8Extractor struct{}

// ExtractText implements TextExtractor
func (UTF8Extractor) ExtractText(ctx context.Context, file models.UploadedFile) (string, error) {
	if IsPDF(file.Content) || !utf8.Valid(file.Content) {
		return "", nil
	}
	if bytes.IndexByte(file.Content, 0) >= 0 {
		return "", nil
	}
	return string(file.Content), nil
}

// IsPDF reports whether content starts with the PDF magic header
func IsPDF(content []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(content, "\r\n\t "), []byte("%PDF-"))
}

// HTTPExtractor delegates binary documents to an external extraction
// service that answers POST /extract with {"text": "..."}
type HTTPExtractor struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

type extractResponse struct {
	Text     string `json:"text"`
	Strategy string `json:"strategy,omitempty"`
}

// NewHTTPExtractor creates a client for the extraction service at baseURL
func NewHTTPExtractor(baseURL string, timeout time.Duration) *HTTPExtractor {
	settings := gobreaker.Settings{
		Name:        "text-extractor",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &HTTPExtractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tracer:  otel.Tracer("text-extractor-client"),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// ExtractText implements TextExtractor
func (e *HTTPExtractor) ExtractText(ctx context.Context, file models.UploadedFile) (string, error) {
	ctx, span := e.tracer.Start(ctx, "text_extractor.extract")
	defer span.End()

	span.SetAttributes(
		attribute.String("file.name", file.Name),
		attribute.Int("file.size", len(file.Content)),
	)

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.extractInternal(ctx, file)
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to extract text from %s: %w", file.Name, err)
	}

	resp := result.(*extractResponse)
	span.SetAttributes(attribute.String("extract.strategy", resp.Strategy))
	return resp.Text, nil
}

func (e *HTTPExtractor) extractInternal(ctx context.Context, file models.UploadedFile) (*extractResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("text extractor returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &decoded, nil
}
