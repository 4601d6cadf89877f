package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ToolCallRequest is one tool_use block the Orchestrator dispatches through
// the Executor.
type ToolCallRequest struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolCallOutcome pairs a request with its result. Every failure path
// (unknown tool, validation, panic, execution error) is folded into Result
// as a structured {"error": ...} value per spec §4.4, so the caller never
// has to special-case a Go error.
type ToolCallOutcome struct {
	Request ToolCallRequest
	Result  *ToolResult
}

// Executor dispatches tool_use blocks against a ToolRegistry. Grounded on
// the teacher's internal/agent/executor.go (Execute/executeWithTimeout), but
// simplified to sequential, single-attempt dispatch: spec §5 requires tool
// calls within one turn to run "strictly in the order they appeared in the
// model's content blocks," which rules out the teacher's
// WaitGroup-parallel ExecuteAll; and spec §7's taxonomy has no tool-level
// retry/backoff path (ExecutionTimeout/ExecutionCancelled come from the
// Script Execution Queue's own 30s deadline, not from a generic executor
// retry loop), so that machinery is dropped rather than carried unused.
type Executor struct {
	registry *ToolRegistry
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

// NewExecutor builds an Executor. timeout bounds any single tool call
// (defensive; spec imposes no generic per-tool deadline, only execute_
// javascript's 30s queue timeout, which this wraps transparently).
func NewExecutor(registry *ToolRegistry, timeout time.Duration, logger *slog.Logger, metrics *Metrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{registry: registry, timeout: timeout, logger: logger, metrics: metrics}
}

// ExecuteSequence runs calls in order, waiting for each to finish before
// starting the next (spec §5's wire-order guarantee).
func (e *Executor) ExecuteSequence(ctx context.Context, targetID string, calls []ToolCallRequest) []ToolCallOutcome {
	outcomes := make([]ToolCallOutcome, 0, len(calls))
	for _, call := range calls {
		outcomes = append(outcomes, e.execute(ctx, targetID, call))
	}
	return outcomes
}

func (e *Executor) execute(ctx context.Context, targetID string, call ToolCallRequest) ToolCallOutcome {
	start := time.Now()
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.logger.Warn("tool not found", "tool", call.Name)
		names := e.registry.Names()
		return ToolCallOutcome{
			Request: call,
			Result:  ErrorResult(fmt.Sprintf("unknown tool %q; available tools: %v", call.Name, names)),
		}
	}

	if err := e.registry.Validate(call.Name, call.Input); err != nil {
		e.logger.Debug("tool input validation failed", "tool", call.Name, "error", err)
		if e.metrics != nil {
			e.metrics.ToolValidationFailures.WithLabelValues(call.Name).Inc()
		}
		return ToolCallOutcome{Request: call, Result: ErrorResult(err.Error())}
	}

	result := e.runWithRecover(ctx, tool, targetID, call)
	if e.metrics != nil {
		e.metrics.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}
	return ToolCallOutcome{Request: call, Result: result}
}

func (e *Executor) runWithRecover(ctx context.Context, tool Tool, targetID string, call ToolCallRequest) (result *ToolResult) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		result *ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tool panicked", "tool", tool.Name(), "recovered", r)
				done <- outcome{result: ErrorResult(fmt.Sprintf("tool %q panicked: %v", tool.Name(), r))}
			}
		}()
		res, err := tool.Execute(execCtx, targetID, call.Input)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return ErrorResult(out.err.Error())
		}
		if out.result == nil {
			return ErrorResult("tool returned no result")
		}
		return out.result
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return ErrorResult("cancelled")
		}
		return ErrorResult(fmt.Sprintf("tool %q timed out after %s", tool.Name(), e.timeout))
	}
}
