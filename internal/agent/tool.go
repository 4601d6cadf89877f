package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolResult is the outcome of a tool execution. Value is whatever
// JSON-marshalable data the tool produced; it becomes both the chunk's
// result_obj (spec §3 StreamChunk.tool_result) and, stringified, the
// tool_result part's content_str (spec §3 Message part tool_result).
type ToolResult struct {
	Value   any
	IsError bool
}

// ContentString renders Value the way it is stored in conversation history:
// a string value is used verbatim (this is how execute_javascript's combined
// result+console-log string flows through unchanged); anything else is
// JSON-marshaled.
func (r *ToolResult) ContentString() string {
	if r == nil {
		return ""
	}
	if s, ok := r.Value.(string); ok {
		return s
	}
	b, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Sprintf(`{"error":"result not serializable: %v"}`, err)
	}
	return string(b)
}

// ResultJSON renders Value as the chunk's result_obj.
func (r *ToolResult) ResultJSON() json.RawMessage {
	if r == nil {
		return json.RawMessage("null")
	}
	if s, ok := r.Value.(string); ok {
		b, _ := json.Marshal(s)
		return b
	}
	b, err := json.Marshal(r.Value)
	if err != nil {
		return json.RawMessage(`{"error":"result not serializable"}`)
	}
	return b
}

// ErrorResult builds an {"error": reason} ToolResult, the structured-error
// shape spec §4.4/§7 require for recoverable tool failures.
func ErrorResult(reason string) *ToolResult {
	return &ToolResult{Value: map[string]string{"error": reason}, IsError: true}
}

// IsStructuredError reports whether v looks like the {"error": ...} shape.
// The orchestrator's loop detection does not call it; it reads
// ToolResult.IsError.
func IsStructuredError(v any) bool {
	m, ok := v.(map[string]string)
	if ok {
		_, has := m["error"]
		return has
	}
	mm, ok := v.(map[string]any)
	if ok {
		_, has := mm["error"]
		return has
	}
	return false
}

// Tool is a named, schema-described action the model may invoke. Execute
// receives the conversation's target_id (captured at conversation start,
// per spec §4.4) and the raw JSON input already validated against Schema.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, targetID string, input json.RawMessage) (*ToolResult, error)
}

// LLMToolSchema is the JSON-schema form of a tool advertised to the Model
// Client as part of the outbound request (spec §4.1 "tools (JSON-schema
// forms)").
type LLMToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolRegistry holds the registered tools plus a compiled validator per
// tool, grounded on the teacher's internal/agent/tool_registry.go
// (RWMutex-guarded map, Register/Get/Execute with length and size guards).
type ToolRegistry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*jsonschema.Schema
}

// MaxToolNameLength and MaxToolParamsSize bound pathological model output,
// mirroring the teacher's tool_registry.go constants of the same name.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 1 << 20
)

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool), validators: make(map[string]*jsonschema.Schema)}
}

// Register compiles t's schema and adds it to the registry.
func (r *ToolRegistry) Register(t Tool) error {
	compiler := jsonschema.NewCompiler()
	url := "mem://" + t.Name() + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(t.Schema()))); err != nil {
		return fmt.Errorf("tool %q: compiling schema: %w", t.Name(), err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %q: resolving schema: %w", t.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.validators[t.Name()] = schema
	return nil
}

// Get returns the registered tool for name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted, for ToolNotFound
// messages.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AsLLMTools returns the JSON-schema forms of every registered tool, for the
// outbound model request.
func (r *ToolRegistry) AsLLMTools() []LLMToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LLMToolSchema, 0, len(r.tools))
	for _, name := range r.sortedNamesLocked() {
		t := r.tools[name]
		out = append(out, LLMToolSchema{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()})
	}
	return out
}

func (r *ToolRegistry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks name/size bounds and JSON-schema-validates input,
// returning a *ToolInputValidationError describing the first problem found,
// or ErrToolNotFound when name is not registered. A nil return means input
// is well formed for this tool.
func (r *ToolRegistry) Validate(name string, input json.RawMessage) error {
	if len(name) > MaxToolNameLength {
		return &ToolInputValidationError{ToolName: name, Reason: "tool name too long"}
	}
	if len(input) > MaxToolParamsSize {
		return &ToolInputValidationError{ToolName: name, Reason: "input too large"}
	}
	r.mu.RLock()
	schema, ok := r.validators[name]
	r.mu.RUnlock()
	if !ok {
		return ErrToolNotFound
	}
	var doc any
	if len(input) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(input, &doc); err != nil {
		return &ToolInputValidationError{ToolName: name, Reason: "input is not valid JSON"}
	}
	if err := schema.Validate(doc); err != nil {
		return &ToolInputValidationError{ToolName: name, Reason: err.Error()}
	}
	return nil
}
