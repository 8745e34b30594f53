package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// ErrConversationNotFound is returned by Get for an unknown id
var ErrConversationNotFound = errors.New("conversation not found")

// Store holds per-conversation state. Lock serializes turns of one
// conversation in arrival order; the returned func releases it.
type Store interface {
	Lock(ctx context.Context, conversationID string) (func(), error)
	Get(ctx context.Context, conversationID string) (*models.ConversationState, error)
	Put(ctx context.Context, state *models.ConversationState) error
	Delete(ctx context.Context, conversationID string) error
	List(ctx context.Context) ([]models.ConversationSummary, error)
}

// MemoryStore is an in-process Store. State does not survive a restart.
type MemoryStore struct {
	mu            sync.Mutex
	states        map[string]*models.ConversationState
	locks         map[string]*turnLock
	historyWindow int
}

// turnLock is a FIFO lock: waiters are handed the lock in queue order
type turnLock struct {
	held    bool
	waiters []chan struct{}
}

// NewMemoryStore creates a store keeping at most historyWindow chat turns
// per conversation. A non-positive window keeps everything.
func NewMemoryStore(historyWindow int) *MemoryStore {
	return &MemoryStore{
		states:        make(map[string]*models.ConversationState),
		locks:         make(map[string]*turnLock),
		historyWindow: historyWindow,
	}
}

// Lock implements Store
func (s *MemoryStore) Lock(ctx context.Context, conversationID string) (func(), error) {
	s.mu.Lock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &turnLock{}
		s.locks[conversationID] = lock
	}
	if !lock.held {
		lock.held = true
		s.mu.Unlock()
		return s.releaser(conversationID, lock), nil
	}

	ready := make(chan struct{})
	lock.waiters = append(lock.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return s.releaser(conversationID, lock), nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range lock.waiters {
			if w == ready {
				lock.waiters = append(lock.waiters[:i], lock.waiters[i+1:]...)
				s.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		s.mu.Unlock()
		// handed the lock while cancelling: pass it on
		s.release(conversationID, lock)
		return nil, ctx.Err()
	}
}

func (s *MemoryStore) releaser(conversationID string, lock *turnLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() { s.release(conversationID, lock) })
	}
}

func (s *MemoryStore) release(conversationID string, lock *turnLock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(lock.waiters) > 0 {
		next := lock.waiters[0]
		lock.waiters = lock.waiters[1:]
		close(next)
		return
	}
	lock.held = false
	if s.locks[conversationID] == lock {
		delete(s.locks, conversationID)
	}
}

// Get implements Store. The returned state is a copy.
func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return state.Clone(), nil
}

// Put implements Store, trimming history to the configured window
func (s *MemoryStore) Put(ctx context.Context, state *models.ConversationState) error {
	if state == nil || state.ID == "" {
		return errors.New("conversation state requires an id")
	}
	stored := state.Clone()
	if s.historyWindow > 0 && len(stored.History) > s.historyWindow {
		stored.History = append([]models.ChatTurn(nil), stored.History[len(stored.History)-s.historyWindow:]...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ID] = stored
	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[conversationID]; !ok {
		return ErrConversationNotFound
	}
	delete(s.states, conversationID)
	return nil
}

// List implements Store, most recently updated first
func (s *MemoryStore) List(ctx context.Context) ([]models.ConversationSummary, error) {
	s.mu.Lock()
	out := make([]models.ConversationSummary, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, state.Summary())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Len returns the number of stored conversations
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// EvictIdle drops conversations last updated before cutoff. Conversations
// with a turn in progress are kept.
func (s *MemoryStore) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, state := range s.states {
		if _, busy := s.locks[id]; busy {
			continue
		}
		if state.UpdatedAt.Before(cutoff) {
			delete(s.states, id)
			evicted++
		}
	}
	return evicted
}
