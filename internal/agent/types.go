// Package agent implements the conversation orchestrator: the streaming
// agent loop, its message history, and the tool-execution engine that backs
// it.
package agent

import "encoding/json"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType tags the variant of a Part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
)

// Part is one typed content part of a Message. Only the fields relevant to
// Type are populated; this mirrors the teacher's tagged-struct convention
// (see providers.CompletionChunk) rather than an interface-per-variant
// design, since every field is small and the set is closed.
type Part struct {
	Type PartType `json:"type"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartToolUse
	ToolUseID string          `json:"id,omitempty"`
	ToolName  string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`

	// PartToolResult
	ToolResultFor string `json:"tool_use_id,omitempty"`
	Content       string `json:"content,omitempty"`
	IsError       bool   `json:"is_error,omitempty"`
}

// TextPart builds a text content part.
func TextPart(str string) Part { return Part{Type: PartText, Text: str} }

// ToolUsePart builds a tool_use content part.
func ToolUsePart(id, name string, input json.RawMessage) Part {
	return Part{Type: PartToolUse, ToolUseID: id, ToolName: name, Input: input}
}

// ToolResultPart builds a tool_result content part.
func ToolResultPart(toolUseID, content string, isError bool) Part {
	return Part{Type: PartToolResult, ToolResultFor: toolUseID, Content: content, IsError: isError}
}

// Message is one entry in a Conversation's history.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// ToolUseIDs returns the ids of every tool_use part in the message, in
// order.
func (m Message) ToolUseIDs() []string {
	var ids []string
	for _, p := range m.Parts {
		if p.Type == PartToolUse {
			ids = append(ids, p.ToolUseID)
		}
	}
	return ids
}

// UnresolvedToolUseIDs returns tool_use ids in m that have no matching
// tool_result part within the same message.
func (m Message) UnresolvedToolUseIDs() []string {
	resolved := make(map[string]bool)
	for _, p := range m.Parts {
		if p.Type == PartToolResult {
			resolved[p.ToolResultFor] = true
		}
	}
	var unresolved []string
	for _, id := range m.ToolUseIDs() {
		if !resolved[id] {
			unresolved = append(unresolved, id)
		}
	}
	return unresolved
}

// TextContent concatenates every text part of the message.
func (m Message) TextContent() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// ChunkType tags the variant of a StreamChunk.
type ChunkType string

const (
	ChunkTextDelta  ChunkType = "text_delta"
	ChunkToolCall   ChunkType = "tool_call"
	ChunkToolResult ChunkType = "tool_result"
	ChunkError      ChunkType = "error"
	ChunkFinish     ChunkType = "finish"
)

// StreamChunk is one outbound event buffered in a Conversation for consumer
// polling.
type StreamChunk struct {
	Type ChunkType `json:"type"`

	// ChunkTextDelta
	Text string `json:"text,omitempty"`

	// ChunkToolCall / ChunkToolResult
	ToolCallID string          `json:"id,omitempty"`
	ToolName   string          `json:"name,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	// ChunkError
	Message string `json:"message,omitempty"`
}
