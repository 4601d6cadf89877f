package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func drain(t *testing.T, ch <-chan ProtocolEvent, timeout time.Duration) []ProtocolEvent {
	t.Helper()
	var events []ProtocolEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for stream to close, got %d events so far", len(events))
		}
	}
}

func sseServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/event-stream")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestNewAnthropicClient_MissingAPIKey(t *testing.T) {
	if _, err := NewAnthropicClient(AnthropicConfig{}); err == nil {
		t.Error("expected an error when APIKey is empty")
	}
}

func TestNewAnthropicClient_Defaults(t *testing.T) {
	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewAnthropicClient error: %v", err)
	}
	if c.baseURL != "https://api.anthropic.com" {
		t.Errorf("baseURL = %q, want default", c.baseURL)
	}
	if c.apiVersion != "2023-06-01" {
		t.Errorf("apiVersion = %q, want default", c.apiVersion)
	}
}

func TestAnthropicClient_Stream_TextOnly(t *testing.T) {
	body := "" +
		"event: message_start\n" +
		"data: {\"message\":{\"usage\":{\"input_tokens\":12}}}\n\n" +
		"event: content_block_start\n" +
		"data: {\"index\":0,\"content_block\":{\"type\":\"text\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n\n" +
		"event: content_block_stop\n" +
		"data: {\"index\":0}\n\n" +
		"event: message_delta\n" +
		"data: {\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":3}}\n\n" +
		"event: message_stop\n" +
		"data: {}\n\n"

	srv := sseServer(t, body, http.StatusOK)
	defer srv.Close()

	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient error: %v", err)
	}

	ch, err := client.Stream(context.Background(), &CompletionRequest{MaxTokens: 100})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	events := drain(t, ch, 2*time.Second)

	var sawUsageStart, sawTextDelta, sawStopReason, sawMessageStop bool
	for _, ev := range events {
		switch ev.Type {
		case EventUsageStart:
			sawUsageStart = true
			if ev.TokensIn != 12 {
				t.Errorf("TokensIn = %d, want 12", ev.TokensIn)
			}
		case EventTextDelta:
			sawTextDelta = true
			if ev.Text != "hi" {
				t.Errorf("Text = %q, want %q", ev.Text, "hi")
			}
		case EventStopReason:
			sawStopReason = true
			if ev.StopReason != "end_turn" {
				t.Errorf("StopReason = %q, want %q", ev.StopReason, "end_turn")
			}
		case EventMessageStop:
			sawMessageStop = true
		}
	}
	if !sawUsageStart || !sawTextDelta || !sawStopReason || !sawMessageStop {
		t.Errorf("missing expected events, got %+v", events)
	}
}

func TestAnthropicClient_Stream_ToolUseReassembly(t *testing.T) {
	body := "" +
		"event: content_block_start\n" +
		"data: {\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"call-1\",\"name\":\"search\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"q\\\":\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"\\\"hello\\\"}\"}}\n\n" +
		"event: content_block_stop\n" +
		"data: {\"index\":0}\n\n" +
		"event: message_stop\n" +
		"data: {}\n\n"

	srv := sseServer(t, body, http.StatusOK)
	defer srv.Close()

	client, _ := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	ch, err := client.Stream(context.Background(), &CompletionRequest{MaxTokens: 100})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	events := drain(t, ch, 2*time.Second)

	var toolUse *ProtocolEvent
	for i := range events {
		if events[i].Type == EventToolUse {
			toolUse = &events[i]
		}
	}
	if toolUse == nil {
		t.Fatalf("expected an EventToolUse, got %+v", events)
	}
	if toolUse.ToolUseID != "call-1" || toolUse.ToolName != "search" {
		t.Errorf("ToolUseID/ToolName = %q/%q, want call-1/search", toolUse.ToolUseID, toolUse.ToolName)
	}
	if string(toolUse.Input) != `{"q":"hello"}` {
		t.Errorf("reassembled Input = %s, want %s", toolUse.Input, `{"q":"hello"}`)
	}
}

func TestAnthropicClient_Stream_InvalidToolJSON(t *testing.T) {
	body := "" +
		"event: content_block_start\n" +
		"data: {\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"call-1\",\"name\":\"search\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"not-json\"}}\n\n" +
		"event: content_block_stop\n" +
		"data: {\"index\":0}\n\n" +
		"event: message_stop\n" +
		"data: {}\n\n"

	srv := sseServer(t, body, http.StatusOK)
	defer srv.Close()

	client, _ := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	ch, err := client.Stream(context.Background(), &CompletionRequest{MaxTokens: 100})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	events := drain(t, ch, 2*time.Second)

	var sawParseErr bool
	for _, ev := range events {
		if ev.Type == EventToolArgsParse {
			sawParseErr = true
			if ev.ToolUseID != "call-1" {
				t.Errorf("ToolUseID = %q, want call-1", ev.ToolUseID)
			}
		}
		if ev.Type == EventToolUse {
			t.Error("malformed tool input must not produce an EventToolUse")
		}
	}
	if !sawParseErr {
		t.Error("expected an EventToolArgsParse for malformed partial_json")
	}
}

func TestAnthropicClient_Stream_HTTPError(t *testing.T) {
	srv := sseServer(t, `{"error":"nope"}`, http.StatusUnauthorized)
	defer srv.Close()

	client, _ := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	ch, err := client.Stream(context.Background(), &CompletionRequest{MaxTokens: 100})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	events := drain(t, ch, 2*time.Second)
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("events = %+v, want a single EventError", events)
	}
	var httpErr *ModelHTTPError
	if e, ok := events[0].Err.(*ModelHTTPError); ok {
		httpErr = e
	}
	if httpErr == nil || httpErr.Status != http.StatusUnauthorized {
		t.Errorf("Err = %v, want *ModelHTTPError with status 401", events[0].Err)
	}
}

func TestAnthropicClient_Stream_MidStreamError(t *testing.T) {
	body := "" +
		"event: content_block_start\n" +
		"data: {\"index\":0,\"content_block\":{\"type\":\"text\"}}\n\n" +
		"event: error\n" +
		"data: {\"error\":{\"type\":\"overloaded_error\",\"message\":\"try again\"}}\n\n"

	srv := sseServer(t, body, http.StatusOK)
	defer srv.Close()

	client, _ := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	ch, err := client.Stream(context.Background(), &CompletionRequest{MaxTokens: 100})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	events := drain(t, ch, 2*time.Second)

	var sawError bool
	for _, ev := range events {
		if ev.Type == EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("expected an EventError for a mid-stream error record, got %+v", events)
	}
}

func TestAnthropicClient_Stream_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, ok := w.(http.Flusher)
		if ok {
			flusher.Flush()
		}
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client, _ := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := client.Stream(ctx, &CompletionRequest{MaxTokens: 100})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected the channel to close without further events after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the stream to close after context cancellation")
	}
}

func TestBuildWireRequest(t *testing.T) {
	req := &CompletionRequest{
		System:    "be careful",
		MaxTokens: 50,
		Messages: []CompletionMessage{
			{Role: "user", Content: []ContentBlock{{Type: BlockText, Text: "hello"}}},
			{Role: "assistant", Content: []ContentBlock{
				{Type: BlockToolUse, ToolUseID: "call-1", ToolName: "search", Input: []byte(`{"q":"x"}`)},
			}},
			{Role: "user", Content: []ContentBlock{
				{Type: BlockToolResult, ToolResultFor: "call-1", Content: "result text"},
			}},
		},
		Tools: []ToolSchema{{Name: "search", Description: "search the web", InputSchema: []byte(`{"type":"object"}`)}},
	}
	wr := buildWireRequest(req, "default-model")
	if wr.Model != "default-model" {
		t.Errorf("Model = %q, want %q", wr.Model, "default-model")
	}
	if len(wr.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(wr.Messages))
	}
	if wr.Messages[1].Content[0].Type != "tool_use" || wr.Messages[1].Content[0].Name != "search" {
		t.Errorf("tool_use block not translated correctly: %+v", wr.Messages[1].Content[0])
	}
	if wr.Messages[2].Content[0].Type != "tool_result" || wr.Messages[2].Content[0].ToolUseID != "call-1" {
		t.Errorf("tool_result block not translated correctly: %+v", wr.Messages[2].Content[0])
	}
	if len(wr.Tools) != 1 || wr.Tools[0].Name != "search" {
		t.Errorf("Tools = %+v, want one tool named search", wr.Tools)
	}
}

func TestBuildWireRequest_UsesRequestModelOverDefault(t *testing.T) {
	req := &CompletionRequest{Model: "claude-opus-4", MaxTokens: 10}
	wr := buildWireRequest(req, "default-model")
	if wr.Model != "claude-opus-4" {
		t.Errorf("Model = %q, want request override %q", wr.Model, "claude-opus-4")
	}
}
