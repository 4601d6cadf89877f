package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions the orchestrator checks with errors.Is.
var (
	ErrConversationNotFound = errors.New("agent: conversation not found")
	ErrToolNotFound         = errors.New("agent: tool not found")
	ErrExecutionTimeout     = errors.New("agent: ExecutionTimeout")
	ErrExecutionCancelled   = errors.New("agent: ExecutionCancelled")
	ErrTargetClosed         = errors.New("agent: TargetClosed")
	ErrLoopDetected         = errors.New("agent: LoopDetected")
	ErrTurnCapExceeded      = errors.New("agent: TurnCapExceeded")
)

// ModelHttpError and ModelTransportError (spec §7) are produced by
// internal/agent/providers as providers.ModelHTTPError and
// providers.ModelTransportError; the orchestrator surfaces their Error()
// text directly in the terminal error chunk rather than re-wrapping them
// into a second parallel type here.

// ToolArgsParseError reports that a tool_use block's accumulated JSON
// fragments never parsed as valid JSON.
type ToolArgsParseError struct {
	Index     int
	ToolUseID string
	ToolName  string
	Cause     error
}

func (e *ToolArgsParseError) Error() string {
	return fmt.Sprintf("tool_use arguments at block %d (%s/%s) did not parse: %v", e.Index, e.ToolName, e.ToolUseID, e.Cause)
}
func (e *ToolArgsParseError) Unwrap() error { return e.Cause }

// ToolInputValidationError reports a structurally invalid tool input. It is
// never returned as a Go error from the executor; it is converted into a
// structured {"error": ...} tool result so the model can self-correct, per
// spec §4.4 and §7.
type ToolInputValidationError struct {
	ToolName string
	Reason   string
}

func (e *ToolInputValidationError) Error() string {
	return fmt.Sprintf("invalid input for tool %q: %s", e.ToolName, e.Reason)
}

// LoopPhase names the stage of the agent loop an error occurred in.
type LoopPhase string

const (
	PhaseInit     LoopPhase = "init"
	PhaseStream   LoopPhase = "stream"
	PhaseExecute  LoopPhase = "execute_tools"
	PhaseContinue LoopPhase = "continue"
)

// LoopError wraps a fatal error with the loop phase and turn it occurred on.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Cause     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent loop failed in phase %s at turn %d: %v", e.Phase, e.Iteration, e.Cause)
}
func (e *LoopError) Unwrap() error { return e.Cause }
