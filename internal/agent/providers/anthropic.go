package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string // default https://api.anthropic.com
	APIVersion string // default 2023-06-01
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AnthropicClient is a hand-rolled SSE client for the Anthropic Messages
// streaming API. It deliberately does not use the vendor SDK's ssestream
// package: spec §4.1 requires implementing the incremental line-splitting,
// blank-line record discipline, and per-index tool-argument reassembly
// directly, which is exactly what a vendor streaming helper would hide.
// Grounded on the teacher's internal/agent/providers/anthropic.go
// processStream state machine and its exported ParseSSEStream helper, with
// the SDK dependency itself removed.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient validates cfg and returns a ready client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("providers: APIKey is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2023-06-01"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0} // streaming: caller's ctx governs, not a fixed deadline
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		model:      cfg.Model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// wireRequest is the JSON body posted to /v1/messages, per spec §6.
type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type wireContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func buildWireRequest(req *CompletionRequest, defaultModel string) wireRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	wr := wireRequest{
		Model:       model,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}
	for _, m := range req.Messages {
		wm := wireMessage{Role: m.Role}
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				wm.Content = append(wm.Content, wireContent{Type: "text", Text: b.Text})
			case BlockToolUse:
				wm.Content = append(wm.Content, wireContent{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.Input})
			case BlockToolResult:
				wm.Content = append(wm.Content, wireContent{Type: "tool_result", ToolUseID: b.ToolResultFor, Content: b.Content, IsError: b.IsError})
			}
		}
		wr.Messages = append(wr.Messages, wm)
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return wr
}

// Stream implements ModelClient. A non-nil error here means the request
// could not even be built; HTTP and transport failures surface as an
// EventError on the returned channel instead (spec §4.1 failure semantics).
func (c *AnthropicClient) Stream(ctx context.Context, req *CompletionRequest) (<-chan ProtocolEvent, error) {
	body, err := json.Marshal(buildWireRequest(req, c.model))
	if err != nil {
		return nil, fmt.Errorf("providers: encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("providers: building request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.apiVersion)

	out := make(chan ProtocolEvent, 16)
	go c.run(ctx, httpReq, out)
	return out, nil
}

func (c *AnthropicClient) run(ctx context.Context, httpReq *http.Request, out chan<- ProtocolEvent) {
	defer close(out)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return // cancellation: terminate cleanly, no event
		}
		emit(ctx, out, ProtocolEvent{Type: EventError, Err: &ModelTransportError{Cause: err}})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		emit(ctx, out, ProtocolEvent{Type: EventError, Err: &ModelHTTPError{Status: resp.StatusCode, Body: string(respBody)}})
		return
	}

	decodeSSE(ctx, resp.Body, c.logger, out)
}

// toolBuffer accumulates a tool_use block's incremental JSON fragments,
// keyed by SSE index, per spec §4.1's "Tool-argument reassembly."
type toolBuffer struct {
	id, name string
	data     strings.Builder
}

// decodeSSE implements spec §4.1's wire parse discipline directly over the
// response body: decode incrementally, split on LF (bufio.Scanner's default
// split function retains a trailing partial line across reads for us, the
// same guarantee the teacher's ParseSSEStream provides manually), and treat
// a blank line as the record terminator. Grounded on
// providers.ParseSSEStream and processStream in the teacher repo.
func decodeSSE(ctx context.Context, body io.Reader, logger *slog.Logger, out chan<- ProtocolEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	toolBlocks := make(map[int]*toolBuffer)
	var eventName string
	var dataLines []string

	emitRecord := func() bool {
		if len(dataLines) == 0 {
			eventName = ""
			return true
		}
		data := strings.Join(dataLines, "\n")
		name := eventName
		eventName, dataLines = "", nil
		return handleRecord(ctx, name, data, toolBlocks, logger, out)
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			if !emitRecord() {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		emit(ctx, out, ProtocolEvent{Type: EventError, Err: &ModelTransportError{Cause: err}})
		return
	}
	// A stream that ends without a trailing blank line still carries a
	// final record; flush it rather than silently dropping message_stop.
	emitRecord()
}

func handleRecord(ctx context.Context, eventName, data string, toolBlocks map[int]*toolBuffer, logger *slog.Logger, out chan<- ProtocolEvent) bool {
	switch eventName {
	case "message_start":
		var payload struct {
			Message struct {
				Usage struct {
					InputTokens int `json:"input_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger.Debug("sse: skipping invalid message_start", "error", err)
			return true
		}
		emit(ctx, out, ProtocolEvent{Type: EventUsageStart, TokensIn: payload.Message.Usage.InputTokens})

	case "content_block_start":
		var payload struct {
			Index        int `json:"index"`
			ContentBlock struct {
				Type string `json:"type"`
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"content_block"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger.Debug("sse: skipping invalid content_block_start", "error", err)
			return true
		}
		switch payload.ContentBlock.Type {
		case "tool_use":
			toolBlocks[payload.Index] = &toolBuffer{id: payload.ContentBlock.ID, name: payload.ContentBlock.Name}
			emit(ctx, out, ProtocolEvent{Type: EventBlockStart, Index: payload.Index, Kind: KindToolUse, ToolUseID: payload.ContentBlock.ID, ToolName: payload.ContentBlock.Name})
		default:
			emit(ctx, out, ProtocolEvent{Type: EventBlockStart, Index: payload.Index, Kind: KindText})
		}

	case "content_block_delta":
		var payload struct {
			Index int `json:"index"`
			Delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				PartialJSON string `json:"partial_json"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger.Debug("sse: skipping invalid content_block_delta", "error", err)
			return true
		}
		switch payload.Delta.Type {
		case "text_delta":
			emit(ctx, out, ProtocolEvent{Type: EventTextDelta, Index: payload.Index, Text: payload.Delta.Text})
		case "input_json_delta":
			if tb, ok := toolBlocks[payload.Index]; ok {
				tb.data.WriteString(payload.Delta.PartialJSON)
			}
			emit(ctx, out, ProtocolEvent{Type: EventToolArgsDelta, Index: payload.Index, JSONFragment: payload.Delta.PartialJSON})
		}

	case "content_block_stop":
		var payload struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger.Debug("sse: skipping invalid content_block_stop", "error", err)
			return true
		}
		emit(ctx, out, ProtocolEvent{Type: EventBlockStop, Index: payload.Index})
		if tb, ok := toolBlocks[payload.Index]; ok {
			delete(toolBlocks, payload.Index)
			raw := tb.data.String()
			if raw == "" {
				raw = "{}"
			}
			if !json.Valid([]byte(raw)) {
				emit(ctx, out, ProtocolEvent{Type: EventToolArgsParse, Index: payload.Index, ToolUseID: tb.id, ToolName: tb.name, Err: fmt.Errorf("invalid json: %q", raw)})
			} else {
				emit(ctx, out, ProtocolEvent{Type: EventToolUse, Index: payload.Index, ToolUseID: tb.id, ToolName: tb.name, Input: json.RawMessage(raw)})
			}
		}

	case "message_delta":
		var payload struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Usage struct {
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger.Debug("sse: skipping invalid message_delta", "error", err)
			return true
		}
		emit(ctx, out, ProtocolEvent{Type: EventUsage, TokensOut: payload.Usage.OutputTokens})
		emit(ctx, out, ProtocolEvent{Type: EventStopReason, StopReason: payload.Delta.StopReason})

	case "message_stop":
		emit(ctx, out, ProtocolEvent{Type: EventMessageStop})
		return false

	case "error":
		var payload struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal([]byte(data), &payload)
		emit(ctx, out, ProtocolEvent{Type: EventError, Err: fmt.Errorf("model stream error: %s: %s", payload.Error.Type, payload.Error.Message)})
		return false

	default:
		// Unrecognized event names are ignored per spec §6: "any additional
		// event names are ignored."
	}
	return true
}

func emit(ctx context.Context, out chan<- ProtocolEvent, ev ProtocolEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// ModelHTTPError reports a non-2xx response from the model endpoint
// (spec §7).
type ModelHTTPError struct {
	Status int
	Body   string
}

func (e *ModelHTTPError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "...(truncated)"
	}
	return fmt.Sprintf("model endpoint returned status %d: %s", e.Status, body)
}

// ModelTransportError reports a mid-stream decode or IO failure (spec §7).
type ModelTransportError struct {
	Cause error
}

func (e *ModelTransportError) Error() string { return fmt.Sprintf("model transport error: %v", e.Cause) }
func (e *ModelTransportError) Unwrap() error { return e.Cause }
