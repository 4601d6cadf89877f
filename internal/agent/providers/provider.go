// Package providers implements the Model Client component (spec §4.1): it
// issues a streaming HTTP request to an LLM endpoint and turns its
// server-sent events into a typed, ordered sequence of ProtocolEvents.
package providers

import (
	"context"
	"encoding/json"
)

// CompletionMessage is the wire form of one Message, converted from
// agent.Message by the caller.
type CompletionMessage struct {
	Role    string
	Content []ContentBlock
}

// ContentBlockType tags the variant of a ContentBlock.
type ContentBlockType string

const (
	BlockText       ContentBlockType = "text"
	BlockToolUse    ContentBlockType = "tool_use"
	BlockToolResult ContentBlockType = "tool_result"
)

// ContentBlock is one block of a CompletionMessage's content.
type ContentBlock struct {
	Type ContentBlockType

	Text string

	ToolUseID string
	ToolName  string
	Input     json.RawMessage

	ToolResultFor string
	Content       string
	IsError       bool
}

// CompletionRequest is the input to Stream, per spec §4.1.
type CompletionRequest struct {
	Model       string
	Messages    []CompletionMessage
	System      string
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float64
}

// ToolSchema is the JSON-schema form of one tool, as advertised in the
// request's `tools` field.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// EventType tags the variant of a ProtocolEvent, matching spec §4.1's table
// plus the two event-derived synthetic variants (ToolUse, ToolArgsParseError)
// produced by tool-argument reassembly.
type EventType string

const (
	EventUsageStart      EventType = "usage_start"
	EventBlockStart      EventType = "block_start"
	EventTextDelta       EventType = "text_delta"
	EventToolArgsDelta   EventType = "tool_args_delta"
	EventBlockStop       EventType = "block_stop"
	EventUsage           EventType = "usage"
	EventStopReason      EventType = "stop_reason"
	EventMessageStop     EventType = "message_stop"
	EventToolUse         EventType = "tool_use"
	EventToolArgsParse   EventType = "tool_args_parse_error"
	EventError           EventType = "error"
)

// BlockKind distinguishes a content block's kind at BlockStart.
type BlockKind string

const (
	KindText    BlockKind = "text"
	KindToolUse BlockKind = "tool_use"
)

// ProtocolEvent is one typed delta yielded by the Model Client. Only the
// fields relevant to Type are populated — the tagged-struct convention
// used throughout this codebase (see agent.Part, agent.StreamChunk),
// grounded on the teacher's providers.CompletionChunk.
type ProtocolEvent struct {
	Type EventType

	// EventUsageStart
	TokensIn int

	// EventBlockStart / EventBlockStop / EventToolArgsDelta / EventToolUse /
	// EventToolArgsParse
	Index int

	// EventBlockStart
	Kind     BlockKind
	ToolUseID string
	ToolName  string

	// EventTextDelta
	Text string

	// EventToolArgsDelta
	JSONFragment string

	// EventToolUse
	Input json.RawMessage

	// EventUsage
	TokensOut int

	// EventStopReason
	StopReason string

	// EventError / EventToolArgsParse
	Err error
}

// ModelClient issues one streaming request per call and yields a finite
// ordered sequence of ProtocolEvents on the returned channel. The channel is
// closed when the sequence terminates (message_stop, upstream EOF, error, or
// ctx cancellation); at most one terminal EventError precedes closure on a
// failure path. Stream itself only returns a non-nil error if the request
// could not even be constructed (e.g. a malformed URL); HTTP- and
// transport-level failures are delivered as an EventError on the channel so
// callers always drain it the same way.
type ModelClient interface {
	Stream(ctx context.Context, req *CompletionRequest) (<-chan ProtocolEvent, error)
}
