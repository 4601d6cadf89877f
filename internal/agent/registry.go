package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Registry is the process-wide Conversations table described in spec §3's
// Ownership paragraph: keyed by conversation id, mutated only by the
// orchestrator, read by consumers through the narrow Orchestrator surface.
// Modeled on the teacher's jobs.MemoryStore (internal/jobs/store.go):
// RWMutex-guarded map plus insertion-order keys.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Conversation
	order []string
}

// NewRegistry returns an empty conversation registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Conversation)}
}

// Put inserts or replaces a conversation record.
func (r *Registry) Put(c *Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[c.ID]; !exists {
		r.order = append(r.order, c.ID)
	}
	r.byID[c.ID] = c
}

// Get returns the conversation for id, or nil if absent.
func (r *Registry) Get(id string) *Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Remove deletes the conversation record for id. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// TerminalOlderThan returns the ids of every conversation whose status is
// terminal and has been so for longer than ttl, for the janitor sweep.
func (r *Registry) TerminalOlderThan(ttl time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []string
	for id, c := range r.byID {
		if age := c.TerminalAge(); age > 0 && age >= ttl {
			stale = append(stale, id)
		}
	}
	return stale
}

// Janitor periodically removes terminal conversations older than a TTL by
// issuing the same cleanup operation a consumer could call itself (spec §4.2
// `cleanup`). Grounded on the teacher's use of github.com/robfig/cron/v3 for
// scheduled maintenance; spec §3/§6 retain a conversation "until explicit
// cleanup" and require no persisted state, which permits but does not
// mandate an automatic sweeper.
type Janitor struct {
	registry *Registry
	ttl      time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJanitor builds a janitor that sweeps every interval, removing
// conversations terminal for longer than ttl.
func NewJanitor(registry *Registry, interval, ttl time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithSeconds())
	j := &Janitor{registry: registry, ttl: ttl, logger: logger, cron: c}
	spec := "@every " + interval.String()
	if _, err := c.AddFunc(spec, j.sweep); err != nil {
		logger.Error("janitor: failed to schedule sweep", "error", err)
	}
	return j
}

// Start begins the cron scheduler. Stop via ctx cancellation or Stop.
func (j *Janitor) Start(ctx context.Context) {
	j.cron.Start()
	go func() {
		<-ctx.Done()
		j.Stop()
	}()
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }

func (j *Janitor) sweep() {
	stale := j.registry.TerminalOlderThan(j.ttl)
	for _, id := range stale {
		j.registry.Remove(id)
	}
	if len(stale) > 0 {
		j.logger.Info("janitor: swept terminal conversations", "count", len(stale))
	}
}
