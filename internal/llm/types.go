package llm

import (
	"context"
	"strings"
)

// Message is one chat message sent to a backend
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting when the backend provides it
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is a single structured completion call
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// ConversationID is carried for incident reporting only
	ConversationID string
}

// Completion is the normalized result of a backend call
type Completion struct {
	Text  string
	Usage Usage
	Model string
}

// Backend is one family of completion APIs (OpenAI-compatible, Anthropic)
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Router picks the backend that serves a model id
type Router struct {
	fallback Backend
	prefixes []prefixRoute
}

type prefixRoute struct {
	prefix  string
	backend Backend
}

// NewRouter creates a router that sends unmatched models to fallback
func NewRouter(fallback Backend) *Router {
	return &Router{fallback: fallback}
}

// Route registers backend for every model id starting with prefix
func (r *Router) Route(prefix string, backend Backend) *Router {
	r.prefixes = append(r.prefixes, prefixRoute{prefix: prefix, backend: backend})
	return r
}

// Complete dispatches to the backend for req.Model
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	for _, route := range r.prefixes {
		if strings.HasPrefix(req.Model, route.prefix) {
			return route.backend.Complete(ctx, req)
		}
	}
	return r.fallback.Complete(ctx, req)
}
