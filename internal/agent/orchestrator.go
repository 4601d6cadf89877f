package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pagewarden/warden/internal/agent/providers"
)

// DefaultMaxHistoryMessages and DefaultMaxTurns are the spec §3/§4.2
// defaults.
const (
	DefaultMaxHistoryMessages = 10
	DefaultMaxTurns           = 500
)

// Orchestrator is the agent loop (spec §4.2): it alternates Model Client
// calls and Tool Executor dispatches until the conversation reaches a
// terminal state. Grounded on the teacher's internal/agent/loop.go
// (AgenticLoop/LoopState/Run/streamPhase/executeToolsPhase), adapted from
// its parallel multi-iteration-cap design to the single authoritative loop
// contract of spec §4.2 (steps 1-6) and its stricter sequential tool
// dispatch (spec §5).
type Orchestrator struct {
	registry *Registry
	client   providers.ModelClient
	executor *Executor
	tools    *ToolRegistry
	system   string
	model    string
	maxTok   int

	maxHistoryMessages int
	maxTurns            int

	logger  *slog.Logger
	metrics *Metrics
}

// Config configures a new Orchestrator.
type Config struct {
	Registry *Registry
	Client   providers.ModelClient
	Executor *Executor
	Tools    *ToolRegistry
	System   string
	Model    string
	MaxTokens int

	MaxHistoryMessages int
	MaxTurns           int

	Logger  *slog.Logger
	Metrics *Metrics
}

// NewOrchestrator builds an Orchestrator from cfg, filling unset bounds with
// spec defaults.
func NewOrchestrator(cfg Config) *Orchestrator {
	maxHistory := cfg.MaxHistoryMessages
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistoryMessages
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Orchestrator{
		registry:           cfg.Registry,
		client:             cfg.Client,
		executor:           cfg.Executor,
		tools:              cfg.Tools,
		system:             cfg.System,
		model:              cfg.Model,
		maxTok:             maxTokens,
		maxHistoryMessages: maxHistory,
		maxTurns:           maxTurns,
		logger:             logger,
		metrics:            cfg.Metrics,
	}
}

// Start creates or continues a Conversation, appends the user's prompt, and
// schedules the loop to run on its own goroutine, per spec §4.2.
func (o *Orchestrator) Start(parentCtx context.Context, conversationID, prompt, targetID string) {
	conv := o.registry.Get(conversationID)
	if conv == nil {
		conv = NewConversation(conversationID, targetID, parentCtx)
		o.registry.Put(conv)
	}
	conv.AppendMessage(Message{Role: RoleUser, Parts: []Part{TextPart(prompt)}}, o.maxHistoryMessages)
	o.logger.Info("orchestrator: starting turn", "conversation_id", conversationID, "target_id", targetID)
	if o.metrics != nil {
		o.metrics.ActiveConversations.Inc()
	}
	go o.run(conv)
}

// Poll atomically drains buffered chunks and reports the current status and
// accumulated text, per spec §4.2/§6.
func (o *Orchestrator) Poll(conversationID string) (chunks []StreamChunk, status Status, fullText string, err error) {
	conv := o.registry.Get(conversationID)
	if conv == nil {
		return nil, "", "", ErrConversationNotFound
	}
	return conv.DrainChunks(), conv.Status(), conv.FullText(), nil
}

// Abort triggers the conversation's cancel token. Idempotent: aborting a
// conversation more than once, or one already terminal, is a no-op beyond
// the first.
func (o *Orchestrator) Abort(conversationID string) error {
	conv := o.registry.Get(conversationID)
	if conv == nil {
		return ErrConversationNotFound
	}
	conv.Cancel()
	return nil
}

// Cleanup removes the conversation record. Idempotent; a still-streaming
// conversation's run goroutine holds its own *Conversation reference and
// keeps running to completion against a now-unregistered conversation,
// same as the teacher's jobs.MemoryStore.Delete behavior.
func (o *Orchestrator) Cleanup(conversationID string) error {
	o.registry.Remove(conversationID)
	return nil
}

// run drives conv to a terminal state, per the loop contract in spec §4.2.
func (o *Orchestrator) run(conv *Conversation) {
	defer func() {
		if o.metrics != nil {
			o.metrics.ActiveConversations.Dec()
		}
	}()

	for iteration := 0; ; iteration++ {
		if conv.Cancelled() {
			conv.SetStatus(StatusAborted)
			return
		}
		if iteration >= o.maxTurns {
			o.terminateFatal(conv, "exceeded maximum turns", &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: ErrTurnCapExceeded})
			return
		}
		if o.metrics != nil {
			o.metrics.Turns.Inc()
		}

		done, err := o.turn(conv, iteration)
		if err != nil {
			o.terminateFatal(conv, err.Error(), &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: err})
			return
		}
		if done {
			return
		}
	}
}

// turn executes one model call, folds its events, and (if the model
// requested tools) dispatches them and appends the combined turn to
// history. The returned bool reports whether the loop should stop (the
// conversation already reached a terminal state).
func (o *Orchestrator) turn(conv *Conversation, iteration int) (bool, error) {
	ctx := conv.Context()

	req := o.buildRequest(conv.Messages())
	start := time.Now()
	events, err := o.client.Stream(ctx, &req)
	if err != nil {
		return false, fmt.Errorf("model client: %w", err)
	}

	fold := newTurnFold()
	for ev := range events {
		if fatal := fold.observe(ev); fatal != nil {
			if o.metrics != nil {
				o.metrics.ModelCallDuration.Observe(time.Since(start).Seconds())
			}
			return false, fatal
		}
		if ev.Type == providers.EventTextDelta && ev.Text != "" {
			conv.AppendChunk(StreamChunk{Type: ChunkTextDelta, Text: ev.Text})
		}
		if ev.Type == providers.EventToolUse {
			argsJSON := ev.Input
			conv.AppendChunk(StreamChunk{Type: ChunkToolCall, ToolCallID: ev.ToolUseID, ToolName: ev.ToolName, Args: argsJSON})
		}
		if ev.Type == providers.EventToolArgsParse {
			conv.AppendChunk(StreamChunk{Type: ChunkError, Message: fmt.Sprintf("tool arguments for block %d did not parse as JSON", ev.Index)})
		}
	}
	if o.metrics != nil {
		o.metrics.ModelCallDuration.Observe(time.Since(start).Seconds())
	}
	conv.AddTokens(fold.tokensIn, fold.tokensOut)

	// The event channel can close because decodeSSE observed ctx
	// cancellation mid-stream rather than because the model actually
	// finished; an empty fold.toolCalls in that case must not be read as
	// "the model produced a text-only turn." Check before the completion
	// branch below so an abort during text-only streaming lands on
	// StatusAborted with no finish chunk, per spec §8 Scenario 5.
	if conv.Cancelled() {
		conv.SetStatus(StatusAborted)
		return true, nil
	}

	assistantParts := fold.assistantParts()

	if len(fold.toolCalls) == 0 || fold.stopReason == "end_turn" {
		conv.AppendMessage(Message{Role: RoleAssistant, Parts: assistantParts}, o.maxHistoryMessages)
		conv.AppendChunk(StreamChunk{Type: ChunkFinish})
		conv.SetStatus(StatusCompleted)
		return true, nil
	}

	outcomes := o.executor.ExecuteSequence(conv.Context(), conv.TargetID, fold.toolCalls)

	var detected bool
	var failingTool string
	for _, outcome := range outcomes {
		conv.AppendChunk(StreamChunk{
			Type: ChunkToolResult, ToolCallID: outcome.Request.ID, ToolName: outcome.Request.Name,
			Result: outcome.Result.ResultJSON(),
		})
		assistantParts = append(assistantParts, ToolResultPart(outcome.Request.ID, outcome.Result.ContentString(), outcome.Result.IsError))

		failed := outcome.Result.IsError
		_, loopHit := conv.RecordToolOutcome(outcome.Request.Name, failed)
		if loopHit {
			detected = true
			failingTool = outcome.Request.Name
		}
	}

	conv.AppendMessage(Message{Role: RoleAssistant, Parts: assistantParts}, o.maxHistoryMessages)

	if detected {
		if o.metrics != nil {
			o.metrics.LoopDetections.Inc()
		}
		o.terminateFatal(conv, fmt.Sprintf("model is repeatedly misusing tool %s", failingTool), ErrLoopDetected)
		return true, nil
	}

	return false, nil
}

// terminateFatal implements spec §7's fatal-error propagation policy: pop a
// trailing unprocessed user message if present, emit exactly one error
// chunk, and set status to error. Logged cause is kept out of the
// user-visible chunk (which carries only message) but recorded for
// operators.
func (o *Orchestrator) terminateFatal(conv *Conversation, message string, cause error) {
	conv.PopTrailingUserMessage()
	conv.AppendChunk(StreamChunk{Type: ChunkError, Message: message})
	conv.SetStatus(StatusError)
	o.logger.Warn("orchestrator: conversation terminated", "conversation_id", conv.ID, "cause", cause)
}

// buildRequest converts conv's history and the registered tools into a
// providers.CompletionRequest.
func (o *Orchestrator) buildRequest(messages []Message) providers.CompletionRequest {
	return providers.CompletionRequest{
		Model:       o.model,
		Messages:    convertToWire(messages),
		System:      o.system,
		Tools:       convertTools(o.tools.AsLLMTools()),
		MaxTokens:   o.maxTok,
		Temperature: 0,
	}
}

// convertToWire turns the internal, structured-parts history into the wire
// message sequence the Model Client expects. Per spec §9's resolution of
// the structured-vs-string-parts open question, our own history keeps
// tool_use and tool_result together in one assistant "turn" record; the
// wire protocol itself still expects tool_result content in a following
// user message, so an assistant record carrying both is split into two wire
// messages here rather than at the data-model layer.
func convertToWire(messages []Message) []providers.CompletionMessage {
	var wire []providers.CompletionMessage
	for _, m := range messages {
		if m.Role == RoleUser {
			wire = append(wire, providers.CompletionMessage{Role: "user", Content: contentBlocksFor(m.Parts, PartText)})
			continue
		}

		assistantBlocks := contentBlocksFor(m.Parts, PartText, PartToolUse)
		if len(assistantBlocks) > 0 {
			wire = append(wire, providers.CompletionMessage{Role: "assistant", Content: assistantBlocks})
		}
		resultBlocks := contentBlocksFor(m.Parts, PartToolResult)
		if len(resultBlocks) > 0 {
			wire = append(wire, providers.CompletionMessage{Role: "user", Content: resultBlocks})
		}
	}
	return wire
}

func contentBlocksFor(parts []Part, kinds ...PartType) []providers.ContentBlock {
	allowed := make(map[PartType]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	var blocks []providers.ContentBlock
	for _, p := range parts {
		if !allowed[p.Type] {
			continue
		}
		switch p.Type {
		case PartText:
			blocks = append(blocks, providers.ContentBlock{Type: providers.BlockText, Text: p.Text})
		case PartToolUse:
			blocks = append(blocks, providers.ContentBlock{Type: providers.BlockToolUse, ToolUseID: p.ToolUseID, ToolName: p.ToolName, Input: p.Input})
		case PartToolResult:
			blocks = append(blocks, providers.ContentBlock{Type: providers.BlockToolResult, ToolResultFor: p.ToolResultFor, Content: p.Content, IsError: p.IsError})
		}
	}
	return blocks
}

func convertTools(schemas []LLMToolSchema) []providers.ToolSchema {
	out := make([]providers.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, providers.ToolSchema{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema})
	}
	return out
}

// turnFold accumulates one turn's ProtocolEvent stream into the pieces
// needed to assemble the assistant message and decide what happens next,
// per spec §4.2 steps 3-5.
type turnFold struct {
	text       strings.Builder
	toolCalls  []ToolCallRequest
	stopReason string
	tokensIn   int
	tokensOut  int
}

func newTurnFold() *turnFold { return &turnFold{} }

// observe folds one event in. It returns a non-nil error only for the fatal
// model-level failures of spec §7 (ModelHttpError/ModelTransportError or an
// upstream "error" SSE event); every other event updates fold state.
func (f *turnFold) observe(ev providers.ProtocolEvent) error {
	switch ev.Type {
	case providers.EventUsageStart:
		f.tokensIn += ev.TokensIn
	case providers.EventTextDelta:
		f.text.WriteString(ev.Text)
	case providers.EventToolUse:
		f.toolCalls = append(f.toolCalls, ToolCallRequest{ID: ev.ToolUseID, Name: ev.ToolName, Input: ev.Input})
	case providers.EventUsage:
		f.tokensOut += ev.TokensOut
	case providers.EventStopReason:
		f.stopReason = ev.StopReason
	case providers.EventError:
		return ev.Err
	}
	return nil
}

// assistantParts builds the text + tool_use parts of the assembled
// assistant message, in wire order (text first, then tool_use blocks — our
// fold collapses all text deltas into a single part, which is sufficient
// since spec §3's Message model does not require preserving interleaving
// between multiple text blocks and tool_use blocks within one turn).
func (f *turnFold) assistantParts() []Part {
	var parts []Part
	if f.text.Len() > 0 {
		parts = append(parts, TextPart(f.text.String()))
	}
	for _, tc := range f.toolCalls {
		parts = append(parts, ToolUsePart(tc.ID, tc.Name, tc.Input))
	}
	return parts
}
