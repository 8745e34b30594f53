package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotObject is returned when model output parses as JSON but not as an object
var ErrNotObject = errors.New("model output is not a JSON object")

// StripCodeFences removes a surrounding ``` or ```json fence from model output
func StripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			lang := strings.TrimSpace(s[:nl])
			if lang == "" || !strings.ContainsAny(lang, "{[\" ") {
				s = s[nl+1:]
			}
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseJSONObject strips fences and decodes a top-level JSON object
func ParseJSONObject(text string) (map[string]interface{}, error) {
	cleaned := StripCodeFences(text)
	if cleaned == "" {
		return nil, fmt.Errorf("failed to parse model output: empty")
	}

	var value interface{}
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to parse model output: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("failed to parse model output: trailing data after JSON value")
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, ErrNotObject
	}
	return normalizeNumbers(obj).(map[string]interface{}), nil
}

// normalizeNumbers converts json.Number into int64 or float64 so merged
// context values re-encode the way callers sent them
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
