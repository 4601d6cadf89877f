package agent

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of a Conversation.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusAborted   Status = "aborted"
)

func (s Status) terminal() bool { return s != StatusStreaming }

// LoopState tracks consecutive identical tool failures for loop detection
// (spec §4.2).
type LoopState struct {
	LastFailingTool    string
	ConsecutiveFailures int
}

// Conversation is the per-conversation record described in spec §3. All
// mutation happens from the orchestrator's goroutine; DrainChunks may be
// called concurrently from a consumer's goroutine and is therefore
// serialized with appends by mu, per spec §4.3 and §5.
type Conversation struct {
	ID       string
	TargetID string

	mu        sync.Mutex
	status    Status
	messages  []Message
	chunks    []StreamChunk
	tokensIn  int
	tokensOut int
	loopState LoopState

	createdAt    time.Time
	terminalAt   time.Time
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewConversation creates a conversation in the streaming state, owning a
// fresh cancellation context derived from parent.
func NewConversation(id, targetID string, parent context.Context) *Conversation {
	ctx, cancel := context.WithCancel(parent)
	return &Conversation{
		ID:        id,
		TargetID:  targetID,
		status:    StatusStreaming,
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
	}
}

// Context returns the conversation's cancellation context, observed by the
// Model Client, the Tool Executor, and the Script Execution Queue.
func (c *Conversation) Context() context.Context { return c.ctx }

// Cancel triggers the conversation's cancel token. It does not itself change
// status; the orchestrator transitions to aborted at the next observation
// point, per spec §4.2/§5.
func (c *Conversation) Cancel() { c.cancel() }

// Cancelled reports whether the cancel token has fired.
func (c *Conversation) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Status returns the current status.
func (c *Conversation) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetStatus transitions status. Per spec §3/§8, status is monotone: once
// terminal it never returns to streaming. Transitioning to a terminal state
// records terminalAt for the janitor sweep.
func (c *Conversation) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.terminal() {
		return
	}
	c.status = s
	if s.terminal() {
		c.terminalAt = time.Now()
	}
}

// TerminalAge returns how long the conversation has been in a terminal
// state, or 0 if it is still streaming.
func (c *Conversation) TerminalAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.terminal() || c.terminalAt.IsZero() {
		return 0
	}
	return time.Since(c.terminalAt)
}

// Messages returns a snapshot copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// AppendMessage appends one message to history, then trims to
// maxHistoryMessages preserving the tool_use/tool_result pairing invariant
// (spec §3, §9: "trim only at user-message boundaries").
func (c *Conversation) AppendMessage(m Message, maxHistoryMessages int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	c.messages = trimHistory(c.messages, maxHistoryMessages)
}

// PopTrailingUserMessage removes and returns the last message if it is an
// unprocessed user message, used on the error path (spec §4.2, §7: "removes
// a trailing user message if present, so resubmission does not double it").
func (c *Conversation) PopTrailingUserMessage() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	last := c.messages[len(c.messages)-1]
	if last.Role != RoleUser {
		return Message{}, false
	}
	c.messages = c.messages[:len(c.messages)-1]
	return last, true
}

// trimHistory drops the oldest messages until at most max remain, cutting
// only at a boundary that starts with a user message so no tool_use /
// tool_result pair (which always lives within a single assistant message in
// this data model) is ever split. If no user message follows the oldest
// excess entries, nothing is dropped and the history stays longer than max.
func trimHistory(messages []Message, max int) []Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	excess := len(messages) - max
	cut := excess
	for cut < len(messages) && messages[cut].Role != RoleUser {
		cut++
	}
	if cut >= len(messages) {
		return messages
	}
	return messages[cut:]
}

// AppendChunk appends an outbound chunk. Per spec §3's invariant, once
// status is non-streaming only a terminal finish/error chunk may still be
// appended (the orchestrator enforces this by only calling AppendChunk for
// the chunk that performs the transition itself).
func (c *Conversation) AppendChunk(ch StreamChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, ch)
}

// DrainChunks atomically returns and clears the buffered chunks.
func (c *Conversation) DrainChunks() []StreamChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chunks) == 0 {
		return nil
	}
	out := c.chunks
	c.chunks = nil
	return out
}

// FullText concatenates the text content of every assistant message in
// history, for the poll response's full_text field.
func (c *Conversation) FullText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out string
	for _, m := range c.messages {
		if m.Role == RoleAssistant {
			out += m.TextContent()
		}
	}
	return out
}

// AddTokens accumulates usage counters.
func (c *Conversation) AddTokens(in, out int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokensIn += in
	c.tokensOut += out
}

// Tokens returns cumulative usage counters.
func (c *Conversation) Tokens() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokensIn, c.tokensOut
}

// RecordToolOutcome updates loop_state per spec §4.2's loop-detection rule
// and reports whether consecutive_failures has reached the fatal threshold.
func (c *Conversation) RecordToolOutcome(toolName string, failed bool) (state LoopState, detected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !failed {
		c.loopState = LoopState{}
		return c.loopState, false
	}
	if c.loopState.LastFailingTool == toolName {
		c.loopState.ConsecutiveFailures++
	} else {
		c.loopState = LoopState{LastFailingTool: toolName, ConsecutiveFailures: 1}
	}
	return c.loopState, c.loopState.ConsecutiveFailures >= 3
}
