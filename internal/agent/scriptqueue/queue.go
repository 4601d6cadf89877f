// Package scriptqueue implements the Script Execution Queue (spec §4.5): a
// per-target FIFO broker that marshals code strings to an external
// page-side runner and awaits their results with a hard timeout, without
// direct RPC between producer and consumer.
//
// Grounded on the teacher's internal/jobs/store.go (Job/Store/MemoryStore:
// RWMutex-guarded map, insertion-order keys, a cancelFunc carried on the
// record) adapted from a poll-status job store into the one-shot-channel
// future design spec §9's Design Notes calls for: "an arena+index
// representation of PendingExecution keyed by id, plus a FIFO index per
// target... a oneshot channel per entry carries the eventual result."
package scriptqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const executionTimeout = 30 * time.Second

// outcome is the one-shot payload delivered through a PendingExecution's
// result channel.
type outcome struct {
	result string
	err    error
}

// PendingExecution is one enqueued code snippet awaiting a runner result
// (spec §3).
type PendingExecution struct {
	ID        string
	TargetID  string
	Code      string
	CreatedAt time.Time
	Deadline  time.Time

	mu       sync.Mutex
	settled  bool
	resultCh chan outcome
	timer    *time.Timer
}

func (p *PendingExecution) settle(o outcome) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.settled {
		return false // poisoned: a prior resolve/reject/timeout already won
	}
	p.settled = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.resultCh <- o
	close(p.resultCh)
	return true
}

// Future lets the enqueuing tool handler await a PendingExecution's
// eventual result.
type Future struct {
	pending *PendingExecution
	queue   *Queue
}

// Wait blocks until the execution resolves, rejects, times out, or ctx is
// cancelled (conversation abort). Cancellation rejects the execution with
// ExecutionCancelled and poisons it exactly as a timeout would.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case o, ok := <-f.pending.resultCh:
		if !ok {
			return "", errExecutionCancelled
		}
		return o.result, o.err
	case <-ctx.Done():
		if f.pending.settle(outcome{err: errExecutionCancelled}) {
			f.queue.remove(f.pending.ID)
		}
		return "", errExecutionCancelled
	}
}

// Queue is the Script Execution Queue: a pending-executions table plus a
// per-target FIFO of ids awaiting dequeue.
type Queue struct {
	mu       sync.Mutex
	pending  map[string]*PendingExecution
	fifo     map[string][]string // target_id -> queued ids not yet dequeued
	onExpire func()
}

// New returns an empty Script Execution Queue. onExpire, if non-nil, is
// called once per timeout for metrics (e.g. agent.Metrics.ScriptQueueDepth).
func New(onExpire func()) *Queue {
	return &Queue{
		pending: make(map[string]*PendingExecution),
		fifo:    make(map[string][]string),
		onExpire: onExpire,
	}
}

// Depth returns the number of pending (not yet settled) executions, for
// metrics.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Enqueue creates a PendingExecution with a 30-second deadline and returns a
// Future resolving to the runner's result.
func (q *Queue) Enqueue(targetID, code string) *Future {
	p := &PendingExecution{
		ID:        uuid.NewString(),
		TargetID:  targetID,
		Code:      code,
		CreatedAt: time.Now(),
		resultCh:  make(chan outcome, 1),
	}
	p.Deadline = p.CreatedAt.Add(executionTimeout)

	q.mu.Lock()
	q.pending[p.ID] = p
	q.fifo[targetID] = append(q.fifo[targetID], p.ID)
	q.mu.Unlock()

	p.timer = time.AfterFunc(executionTimeout, func() {
		if p.settle(outcome{err: errExecutionTimeout}) {
			q.remove(p.ID)
			if q.onExpire != nil {
				q.onExpire()
			}
		}
	})

	return &Future{pending: p, queue: q}
}

// DequeuedItem is what a runner receives from Dequeue.
type DequeuedItem struct {
	ID   string
	Code string
}

// Dequeue returns the head of target's FIFO without removing the
// PendingExecution from the pending table — only resolve/reject/timeout
// remove it, so a runner crashing between dequeue and result surfaces as a
// timeout (spec §4.5).
func (q *Queue) Dequeue(targetID string) (DequeuedItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	queue := q.fifo[targetID]
	if len(queue) == 0 {
		return DequeuedItem{}, false
	}
	id := queue[0]
	q.fifo[targetID] = queue[1:]
	p, ok := q.pending[id]
	if !ok {
		return DequeuedItem{}, false
	}
	return DequeuedItem{ID: p.ID, Code: p.Code}, true
}

// Resolve completes a PendingExecution successfully. Idempotent: a call
// after the execution already settled (resolved, rejected, or timed out) is
// a no-op, per spec §4.5 and §8 ("a resolve arriving after a reject is a
// no-op").
func (q *Queue) Resolve(id, result string) {
	q.mu.Lock()
	p, ok := q.pending[id]
	q.mu.Unlock()
	if !ok {
		return
	}
	if p.settle(outcome{result: result}) {
		q.remove(id)
	}
}

// Reject completes a PendingExecution with an error. Idempotent.
func (q *Queue) Reject(id string, err error) {
	q.mu.Lock()
	p, ok := q.pending[id]
	q.mu.Unlock()
	if !ok {
		return
	}
	if p.settle(outcome{err: err}) {
		q.remove(id)
	}
}

// CancelTarget rejects every pending execution for targetID with
// TargetClosed, per spec §4.5.
func (q *Queue) CancelTarget(targetID string) {
	q.mu.Lock()
	ids := make([]string, 0)
	for id, p := range q.pending {
		if p.TargetID == targetID {
			ids = append(ids, id)
		}
	}
	delete(q.fifo, targetID)
	q.mu.Unlock()

	for _, id := range ids {
		q.Reject(id, errTargetClosed)
	}
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
}
