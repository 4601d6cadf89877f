// Package tools implements the eight registered tools of spec §4.4: the
// read-only network-inspection tools, expose_request_data, and
// execute_javascript.
package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflectSchema turns a Go input struct into the JSON Schema document a
// Tool advertises (spec §4.1's "tools (JSON-schema forms)") and that
// internal/agent.ToolRegistry compiles with santhosh-tekuri/jsonschema/v5
// for input validation. One struct is the source of truth for both.
func reflectSchema(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(v)
	b, err := json.Marshal(schema)
	if err != nil {
		// v is always a static, compile-time-known input struct; a failure
		// here means a tool definition is broken, not a runtime condition.
		panic("tools: reflecting schema: " + err.Error())
	}
	return b
}
