package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pagewarden/warden/internal/agent/scriptqueue"
)

func TestExecuteJavaScript_RequiresCode(t *testing.T) {
	tool := &ExecuteJavaScript{Queue: scriptqueue.New(nil)}

	res, err := tool.Execute(context.Background(), "t1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !res.IsError {
		t.Error("expected an error result when code is missing")
	}
}

func TestExecuteJavaScript_RoundTripsThroughTheQueue(t *testing.T) {
	q := scriptqueue.New(nil)
	tool := &ExecuteJavaScript{Queue: q}

	type execResult struct {
		val any
		err error
	}
	resultCh := make(chan execResult, 1)
	go func() {
		res, err := tool.Execute(context.Background(), "target-1", json.RawMessage(`{"code":"1+1"}`))
		if err != nil {
			resultCh <- execResult{err: err}
			return
		}
		resultCh <- execResult{val: res.Value}
	}()

	deadline := time.Now().Add(time.Second)
	var item scriptqueue.DequeuedItem
	var ok bool
	for time.Now().Before(deadline) {
		item, ok = q.Dequeue("target-1")
		if ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !ok {
		t.Fatal("expected the enqueued execution to be dequeued")
	}
	if item.Code != "1+1" {
		t.Errorf("Code = %q, want %q", item.Code, "1+1")
	}
	q.Resolve(item.ID, "2")

	select {
	case r := <-resultCh:
		if r.err != nil {
			t.Fatalf("Execute error: %v", r.err)
		}
		if r.val != "2" {
			t.Errorf("Value = %v, want %q", r.val, "2")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Execute to return")
	}
}

func TestExecuteJavaScript_RejectedExecutionClassifiesError(t *testing.T) {
	q := scriptqueue.New(nil)
	tool := &ExecuteJavaScript{Queue: q}

	type rejectResult struct {
		isErr  bool
		reason string
	}
	resultCh := make(chan rejectResult, 1)
	go func() {
		res, _ := tool.Execute(context.Background(), "target-1", json.RawMessage(`{"code":"x"}`))
		reason := ""
		if m, ok := res.Value.(map[string]string); ok {
			reason = m["error"]
		}
		resultCh <- rejectResult{res.IsError, reason}
	}()

	var ok bool
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok = q.Dequeue("target-1"); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !ok {
		t.Fatal("expected the enqueued execution to be dequeued")
	}
	q.CancelTarget("target-1")

	select {
	case r := <-resultCh:
		if !r.isErr || r.reason != "TargetClosed" {
			t.Errorf("got isErr=%v reason=%q, want TargetClosed", r.isErr, r.reason)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Execute to return")
	}
}
