package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pagewarden/warden/internal/agent"
	"github.com/pagewarden/warden/internal/agent/scriptqueue"
	"github.com/pagewarden/warden/internal/networkcache"
)

// pageNamespace is the well-known window global expose_request_data
// publishes under, per spec §4.4's contract.
const pageNamespace = "__warden"

type exposeRequestDataInput struct {
	RequestIDs   []string `json:"requestIds" jsonschema:"required"`
	VariableName *string  `json:"variableName,omitempty" jsonschema:"description=default 'data'"`
}

type exposeRequestDataResult struct {
	ExposedCount int    `json:"exposedCount"`
	VariableName string `json:"variableName"`
	AccessPath   string `json:"accessPath"`
}

// ExposeRequestData implements the expose_request_data tool: it resolves
// each id to a NetworkEntry, JSON-parses response bodies that look like
// JSON, and asks the Script Execution Queue to publish the resulting array
// under window.<namespace>.<variableName>, per spec §4.4.
type ExposeRequestData struct {
	Cache *networkcache.Cache
	Queue *scriptqueue.Queue
}

func (t *ExposeRequestData) Name() string        { return "expose_request_data" }
func (t *ExposeRequestData) Description() string { return "Publish selected captured request/response data into the page under a global variable for manual inspection." }
func (t *ExposeRequestData) Schema() json.RawMessage { return reflectSchema(exposeRequestDataInput{}) }

func (t *ExposeRequestData) Execute(ctx context.Context, targetID string, raw json.RawMessage) (*agent.ToolResult, error) {
	var in exposeRequestDataInput
	if err := json.Unmarshal(raw, &in); err != nil || len(in.RequestIDs) == 0 {
		return agent.ErrorResult("requestIds is required and must be non-empty"), nil
	}
	variableName := "data"
	if in.VariableName != nil && *in.VariableName != "" {
		variableName = *in.VariableName
	}

	var payload []map[string]any
	for _, id := range in.RequestIDs {
		e := t.Cache.Entry(targetID, id)
		if e == nil {
			continue
		}
		entry := map[string]any{
			"id":       e.ID,
			"url":      e.Request.URL,
			"method":   e.Request.Method,
			"status":   e.Response.Status,
			"request":  e.Request.Body,
			"response": maybeParseJSON(e.Response.ContentType, e.Response.Body),
		}
		payload = append(payload, entry)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return agent.ErrorResult("failed to serialize exposed data: " + err.Error()), nil
	}

	code := fmt.Sprintf(
		"(function(){window.%s=window.%s||{};window.%s.%s=%s;return 'ok';})();",
		pageNamespace, pageNamespace, pageNamespace, variableName, string(payloadJSON),
	)

	future := t.Queue.Enqueue(targetID, code)
	if _, err := future.Wait(ctx); err != nil {
		return agent.ErrorResult(classifyQueueError(err)), nil
	}

	return &agent.ToolResult{Value: exposeRequestDataResult{
		ExposedCount: len(payload),
		VariableName: variableName,
		AccessPath:   fmt.Sprintf("window.%s.%s", pageNamespace, variableName),
	}}, nil
}

// maybeParseJSON returns body parsed as a JSON value when contentType
// suggests JSON, else the raw string, per expose_request_data's contract.
func maybeParseJSON(contentType, body string) any {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var v any
		if err := json.Unmarshal([]byte(body), &v); err == nil {
			return v
		}
	}
	return body
}

// classifyQueueError maps a scriptqueue.Future error into the structured
// tool-result reason strings spec §7 names (ExecutionTimeout/
// ExecutionCancelled/TargetClosed).
func classifyQueueError(err error) string {
	switch {
	case scriptqueue.IsTimeout(err):
		return "ExecutionTimeout"
	case scriptqueue.IsCancelled(err):
		return "ExecutionCancelled"
	case scriptqueue.IsTargetClosed(err):
		return "TargetClosed"
	default:
		return err.Error()
	}
}
