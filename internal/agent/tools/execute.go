package tools

import (
	"context"
	"encoding/json"

	"github.com/pagewarden/warden/internal/agent"
	"github.com/pagewarden/warden/internal/agent/scriptqueue"
)

type executeJavaScriptInput struct {
	Code string `json:"code" jsonschema:"required,description=JavaScript source to evaluate in the page"`
}

// ExecuteJavaScript implements the execute_javascript tool: the single
// asynchronous tool class spec §2 describes, backed entirely by the Script
// Execution Queue. Its result is the runner's combined return-value and
// console-log string, surfaced verbatim (spec §4.5 "Result format").
type ExecuteJavaScript struct {
	Queue *scriptqueue.Queue
}

func (t *ExecuteJavaScript) Name() string        { return "execute_javascript" }
func (t *ExecuteJavaScript) Description() string { return "Execute JavaScript in the context of the current page and return its result plus any console output." }
func (t *ExecuteJavaScript) Schema() json.RawMessage { return reflectSchema(executeJavaScriptInput{}) }

func (t *ExecuteJavaScript) Execute(ctx context.Context, targetID string, raw json.RawMessage) (*agent.ToolResult, error) {
	var in executeJavaScriptInput
	if err := json.Unmarshal(raw, &in); err != nil || in.Code == "" {
		return agent.ErrorResult("code is required"), nil
	}

	future := t.Queue.Enqueue(targetID, in.Code)
	result, err := future.Wait(ctx)
	if err != nil {
		return agent.ErrorResult(classifyQueueError(err)), nil
	}
	return &agent.ToolResult{Value: result}, nil
}
