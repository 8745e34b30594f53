package conversation

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bizmatters/plc-copilot/context-engine/internal/llm"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// MalformedResponseError is returned when model output does not satisfy the
// response contract
type MalformedResponseError struct {
	Attempt int
	Cause   error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response on attempt %d: %v", e.Attempt, e.Cause)
}

// Unwrap returns the parse error
func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

// ModelReply is a main-call answer that passed the response contract
type ModelReply struct {
	Context       *ProposedContext
	ChatMessage   string
	IsMCQ         bool
	IsMultiselect bool
	MCQQuestion   *string
	MCQOptions    []string
	GeneratedCode *string
	Progress      *float64
}

// DecodeReply parses raw model text into a ModelReply
func DecodeReply(text string, attempt int) (*ModelReply, error) {
	obj, err := llm.ParseJSONObject(text)
	if err != nil {
		return nil, &MalformedResponseError{Attempt: attempt, Cause: err}
	}
	obj = dropReservedKeys(obj).(map[string]interface{})

	reply := &ModelReply{
		ChatMessage:   strings.TrimSpace(stringValue(obj["chat_message"])),
		IsMCQ:         boolValue(obj["is_mcq"]),
		IsMultiselect: boolValue(obj["is_multiselect"]),
		MCQOptions:    stringList(obj["mcq_options"]),
	}

	if uc, ok := obj["updated_context"].(map[string]interface{}); ok {
		proposed := &ProposedContext{}
		if devices, ok := uc["device_constants"].(map[string]interface{}); ok {
			proposed.DeviceConstants = models.DeviceConstants(devices)
		}
		if info, ok := uc["information"].(string); ok {
			proposed.Information = &info
		}
		reply.Context = proposed
	}

	if q := strings.TrimSpace(stringValue(obj["mcq_question"])); q != "" {
		reply.MCQQuestion = &q
	}
	if code := stringValue(obj["generated_code"]); strings.TrimSpace(code) != "" {
		reply.GeneratedCode = &code
	}
	if p, ok := numberValue(obj["gathering_requirements_estimated_progress"]); ok {
		reply.Progress = &p
	}

	if reply.IsMCQ && len(reply.MCQOptions) == 0 {
		slog.Warn("model asked a multiple choice question without options; treating as free text")
		reply.IsMCQ = false
		reply.IsMultiselect = false
	}
	if !reply.IsMCQ {
		reply.IsMultiselect = false
		reply.MCQOptions = nil
	}
	return reply, nil
}

// dropReservedKeys removes double-underscore keys the model sometimes emits
func dropReservedKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			if strings.HasPrefix(k, "__") {
				delete(t, k)
				continue
			}
			t[k] = dropReservedKeys(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = dropReservedKeys(inner)
		}
		return t
	default:
		return v
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func boolValue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}

func numberValue(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		case nil:
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// clampProgress bounds an estimate to [0,1], defaulting an absent one to 0.5
func clampProgress(p *float64) float64 {
	if p == nil {
		return defaultProgress
	}
	switch {
	case *p < 0:
		return 0
	case *p > 1:
		return 1
	}
	return *p
}
