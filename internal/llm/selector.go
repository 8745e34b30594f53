package llm

import (
	"log/slog"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// SelectionState is a point-in-time copy of the selector's bookkeeping
type SelectionState struct {
	RateLimitedModels  []string `json:"rate_limited_models"`
	CurrentActiveModel string   `json:"current_active_model"`
	LastResetDate      string   `json:"last_reset_date"`
	NotificationSent   bool     `json:"notification_sent_this_window"`
}

// Selector chooses the model for each call and remembers which models hit
// their rate limit during the current UTC day. It is shared by all
// conversations in the process.
type Selector struct {
	mu               sync.Mutex
	cascade          []string
	rateLimited      map[string]struct{}
	currentActive    string
	lastResetDate    string
	notificationSent bool
	now              func() time.Time
}

// NewSelector creates a selector over an ordered fallback cascade
func NewSelector(cascade []string) *Selector {
	return NewSelectorWithClock(cascade, time.Now)
}

// NewSelectorWithClock is NewSelector with an injectable clock
func NewSelectorWithClock(cascade []string, now func() time.Time) *Selector {
	s := &Selector{
		cascade:     append([]string(nil), cascade...),
		rateLimited: make(map[string]struct{}),
		now:         now,
	}
	s.lastResetDate = s.today()
	if len(cascade) > 0 {
		s.currentActive = cascade[0]
	}
	return s
}

func (s *Selector) today() string {
	return s.now().UTC().Format(dateLayout)
}

// resetIfNewDay must be called with s.mu held
func (s *Selector) resetIfNewDay() {
	today := s.today()
	if today <= s.lastResetDate {
		return
	}
	if len(s.rateLimited) > 0 || s.notificationSent {
		slog.Info("daily model selection reset",
			"previous_date", s.lastResetDate,
			"date", today,
			"cleared_models", len(s.rateLimited),
		)
	}
	s.rateLimited = make(map[string]struct{})
	s.notificationSent = false
	s.lastResetDate = today
}

// Select returns the model to use for a call that asked for requested.
// If every candidate is exhausted the requested model is returned anyway.
func (s *Selector) Select(requested string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetIfNewDay()

	chosen := requested
	if _, limited := s.rateLimited[requested]; limited {
		for _, candidate := range s.cascade {
			if _, limited := s.rateLimited[candidate]; !limited {
				chosen = candidate
				break
			}
		}
	}

	if chosen != requested {
		slog.Debug("model substituted", "requested", requested, "selected", chosen)
	}
	s.currentActive = chosen
	return chosen
}

// MarkRateLimited records that model is exhausted for the rest of the UTC day
func (s *Selector) MarkRateLimited(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, already := s.rateLimited[model]; already {
		return
	}
	s.rateLimited[model] = struct{}{}
	slog.Warn("model marked rate limited", "model", model, "date", s.lastResetDate)
}

// IsRateLimited reports whether model is marked for the current window
func (s *Selector) IsRateLimited(model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, limited := s.rateLimited[model]
	return limited
}

// ClaimNotification returns true exactly once per reset window
func (s *Selector) ClaimNotification() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetIfNewDay()
	if s.notificationSent {
		return false
	}
	s.notificationSent = true
	return true
}

// State returns a copy of the current selection bookkeeping
func (s *Selector) State() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	limited := make([]string, 0, len(s.rateLimited))
	for _, model := range s.cascade {
		if _, ok := s.rateLimited[model]; ok {
			limited = append(limited, model)
		}
	}
	for model := range s.rateLimited {
		if !contains(s.cascade, model) {
			limited = append(limited, model)
		}
	}
	return SelectionState{
		RateLimitedModels:  limited,
		CurrentActiveModel: s.currentActive,
		LastResetDate:      s.lastResetDate,
		NotificationSent:   s.notificationSent,
	}
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
