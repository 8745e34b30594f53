package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Evicter drops conversations that have been idle since before cutoff
type Evicter interface {
	EvictIdle(cutoff time.Time) int
}

// Janitor evicts idle conversations from the store on a cron schedule
type Janitor struct {
	store    Evicter
	schedule string
	idleTTL  time.Duration
	now      func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewJanitor creates a janitor. schedule uses standard cron syntax or
// descriptors such as "@every 10m"; an empty schedule disables it.
func NewJanitor(store Evicter, schedule string, idleTTL time.Duration) *Janitor {
	return &Janitor{
		store:    store,
		schedule: schedule,
		idleTTL:  idleTTL,
		now:      time.Now,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		logger:   slog.Default().With("component", "conversation.janitor"),
	}
}

// Start schedules eviction until ctx is cancelled
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.schedule == "" {
		j.logger.Info("eviction schedule not configured, skipping janitor")
		return nil
	}
	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", j.schedule, err)
	}
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce() }); err != nil {
		return fmt.Errorf("failed to schedule eviction: %w", err)
	}

	j.cron.Start()
	j.running = true
	j.logger.Info("conversation janitor started", "schedule", j.schedule, "idle_ttl", j.idleTTL)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// RunOnce evicts conversations idle longer than the TTL and returns how many were dropped
func (j *Janitor) RunOnce() int {
	evicted := j.store.EvictIdle(j.now().Add(-j.idleTTL))
	if evicted > 0 {
		j.logger.Info("evicted idle conversations", "count", evicted)
	} else {
		j.logger.Debug("no idle conversations to evict")
	}
	return evicted
}

// Stop stops the scheduler and waits for a running eviction to finish
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		<-j.cron.Stop().Done()
		j.running = false
		j.logger.Info("conversation janitor stopped")
	}
}

// IsRunning reports whether the schedule is active
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// NextRun returns the next scheduled eviction, or nil when not scheduled
func (j *Janitor) NextRun() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := j.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
