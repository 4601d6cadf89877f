package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pagewarden/warden/internal/agent"
	"github.com/pagewarden/warden/internal/networkcache"
)

// RequestSummary is the compact form of a NetworkEntry returned in list/
// search results, per spec §4.4's result shapes.
type RequestSummary struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Method     string `json:"method"`
	Status     int    `json:"status"`
	Type       string `json:"type,omitempty"`
	DurationMs int64  `json:"durationMs"`
	HasError   bool   `json:"hasError"`
}

func summarize(e *networkcache.Entry) RequestSummary {
	return RequestSummary{
		ID:         e.ID,
		URL:        e.Request.URL,
		Method:     e.Request.Method,
		Status:     e.Response.Status,
		Type:       e.Metadata.RequestType,
		DurationMs: e.Timing.DurationMs,
		HasError:   e.Metadata.HasError,
	}
}

func truncateBody(body string, previewSize int) string {
	if len(body) <= previewSize {
		return body
	}
	return body[:previewSize]
}

// --- get_network_requests ---------------------------------------------

type getNetworkRequestsInput struct {
	Limit  *int `json:"limit,omitempty" jsonschema:"description=Max requests to return (default 10, capped at 20)"`
	Offset *int `json:"offset,omitempty" jsonschema:"description=Number of requests to skip (default 0)"`
}

type getNetworkRequestsResult struct {
	Total    int              `json:"total"`
	Returned int              `json:"returned"`
	Offset   int              `json:"offset"`
	HasMore  bool             `json:"hasMore"`
	Requests []RequestSummary `json:"requests"`
}

// GetNetworkRequests implements the get_network_requests tool.
type GetNetworkRequests struct{ Cache *networkcache.Cache }

func (t *GetNetworkRequests) Name() string        { return "get_network_requests" }
func (t *GetNetworkRequests) Description() string { return "List recently captured network requests for the current target, newest activity included, paginated." }
func (t *GetNetworkRequests) Schema() json.RawMessage { return reflectSchema(getNetworkRequestsInput{}) }

func (t *GetNetworkRequests) Execute(ctx context.Context, targetID string, raw json.RawMessage) (*agent.ToolResult, error) {
	var in getNetworkRequestsInput
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return agent.ErrorResult("invalid input: " + err.Error()), nil
		}
	}
	limit := 10
	if in.Limit != nil {
		limit = *in.Limit
	}
	if limit > 20 {
		limit = 20
	}
	if limit < 0 {
		limit = 0
	}
	offset := 0
	if in.Offset != nil {
		offset = *in.Offset
	}
	if offset < 0 {
		offset = 0
	}

	all := t.Cache.EntriesForTarget(targetID)
	total := len(all)

	var page []RequestSummary
	if offset < total && limit > 0 {
		end := offset + limit
		if end > total {
			end = total
		}
		for _, e := range all[offset:end] {
			page = append(page, summarize(e))
		}
	}

	return &agent.ToolResult{Value: getNetworkRequestsResult{
		Total:    total,
		Returned: len(page),
		Offset:   offset,
		HasMore:  offset+len(page) < total,
		Requests: page,
	}}, nil
}

// --- get_request_details ------------------------------------------------

type getRequestDetailsInput struct {
	RequestID       string `json:"requestId" jsonschema:"required,description=Id of the network entry to fetch"`
	BodyPreviewSize *int   `json:"bodyPreviewSize,omitempty" jsonschema:"description=Max characters of body to include (default 500, max 1500)"`
}

type requestDetails struct {
	ID       string            `json:"id"`
	Request  requestDetail     `json:"request"`
	Response responseDetail    `json:"response"`
	Timing   timingDetail      `json:"timing"`
	Metadata map[string]any    `json:"metadata"`
}

type requestDetail struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body,omitempty"`
	Timestamp string            `json:"timestamp"`
}

type responseDetail struct {
	Status      int               `json:"status"`
	StatusText  string            `json:"statusText"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
}

type timingDetail struct {
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	DurationMs int64  `json:"durationMs"`
}

// GetRequestDetails implements the get_request_details tool.
type GetRequestDetails struct{ Cache *networkcache.Cache }

func (t *GetRequestDetails) Name() string        { return "get_request_details" }
func (t *GetRequestDetails) Description() string { return "Fetch the full detail of one captured network request, with bodies truncated to a preview size." }
func (t *GetRequestDetails) Schema() json.RawMessage { return reflectSchema(getRequestDetailsInput{}) }

func (t *GetRequestDetails) Execute(ctx context.Context, targetID string, raw json.RawMessage) (*agent.ToolResult, error) {
	var in getRequestDetailsInput
	if err := json.Unmarshal(raw, &in); err != nil || in.RequestID == "" {
		return agent.ErrorResult("requestId is required"), nil
	}
	previewSize := 500
	if in.BodyPreviewSize != nil {
		previewSize = *in.BodyPreviewSize
	}
	if previewSize > 1500 {
		previewSize = 1500
	}

	e := t.Cache.Entry(targetID, in.RequestID)
	if e == nil {
		return agent.ErrorResult(fmt.Sprintf("Request not found: %s", in.RequestID)), nil
	}

	return &agent.ToolResult{Value: requestDetails{
		ID: e.ID,
		Request: requestDetail{
			URL: e.Request.URL, Method: e.Request.Method, Headers: e.Request.Headers,
			Body: truncateBody(e.Request.Body, previewSize), Timestamp: e.Request.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		},
		Response: responseDetail{
			Status: e.Response.Status, StatusText: e.Response.StatusText, Headers: e.Response.Headers,
			Body: truncateBody(e.Response.Body, previewSize), ContentType: e.Response.ContentType,
		},
		Timing: timingDetail{
			StartTime:  e.Timing.StartTime.Format("2006-01-02T15:04:05.000Z07:00"),
			EndTime:    e.Timing.EndTime.Format("2006-01-02T15:04:05.000Z07:00"),
			DurationMs: e.Timing.DurationMs,
		},
		Metadata: map[string]any{
			"requestType":  e.Metadata.RequestType,
			"hasError":     e.Metadata.HasError,
			"errorMessage": e.Metadata.ErrorMessage,
		},
	}}, nil
}

// --- get_request_body_chunk ---------------------------------------------

type getRequestBodyChunkInput struct {
	RequestID string `json:"requestId" jsonschema:"required"`
	BodyType  string `json:"bodyType" jsonschema:"required,enum=request,enum=response"`
	Offset    *int   `json:"offset,omitempty"`
	Length    *int   `json:"length,omitempty" jsonschema:"description=default 2000, max 5000"`
}

type bodyChunkResult struct {
	RequestID  string `json:"requestId"`
	BodyType   string `json:"bodyType"`
	Offset     int    `json:"offset"`
	ChunkSize  int    `json:"chunkSize"`
	TotalSize  int    `json:"totalSize"`
	HasMore    bool   `json:"hasMore"`
	NextOffset *int   `json:"nextOffset"`
	Chunk      string `json:"chunk"`
}

// GetRequestBodyChunk implements the get_request_body_chunk tool.
type GetRequestBodyChunk struct{ Cache *networkcache.Cache }

func (t *GetRequestBodyChunk) Name() string        { return "get_request_body_chunk" }
func (t *GetRequestBodyChunk) Description() string { return "Read a byte-offset window of a captured request or response body too large for get_request_details." }
func (t *GetRequestBodyChunk) Schema() json.RawMessage { return reflectSchema(getRequestBodyChunkInput{}) }

func (t *GetRequestBodyChunk) Execute(ctx context.Context, targetID string, raw json.RawMessage) (*agent.ToolResult, error) {
	var in getRequestBodyChunkInput
	if err := json.Unmarshal(raw, &in); err != nil || in.RequestID == "" {
		return agent.ErrorResult("requestId is required"), nil
	}
	if in.BodyType != "request" && in.BodyType != "response" {
		return agent.ErrorResult("bodyType must be 'request' or 'response'"), nil
	}

	e := t.Cache.Entry(targetID, in.RequestID)
	if e == nil {
		return agent.ErrorResult(fmt.Sprintf("Request not found: %s", in.RequestID)), nil
	}

	body := e.Request.Body
	if in.BodyType == "response" {
		body = e.Response.Body
	}
	totalSize := len(body)

	offset := 0
	if in.Offset != nil {
		offset = *in.Offset
	}
	if offset < 0 {
		offset = 0
	}
	length := 2000
	if in.Length != nil {
		length = *in.Length
	}
	if length > 5000 {
		length = 5000
	}
	if length < 0 {
		length = 0
	}

	if offset >= totalSize {
		return &agent.ToolResult{Value: bodyChunkResult{
			RequestID: in.RequestID, BodyType: in.BodyType, Offset: offset,
			ChunkSize: 0, TotalSize: totalSize, HasMore: false, NextOffset: nil, Chunk: "",
		}}, nil
	}

	end := offset + length
	if end > totalSize {
		end = totalSize
	}
	chunk := body[offset:end]
	hasMore := end < totalSize
	var next *int
	if hasMore {
		n := end
		next = &n
	}

	return &agent.ToolResult{Value: bodyChunkResult{
		RequestID: in.RequestID, BodyType: in.BodyType, Offset: offset,
		ChunkSize: len(chunk), TotalSize: totalSize, HasMore: hasMore, NextOffset: next, Chunk: chunk,
	}}, nil
}

// --- search_requests ------------------------------------------------

type searchRequestsInput struct {
	URL       *string `json:"url,omitempty"`
	Method    *string `json:"method,omitempty"`
	MinStatus *int    `json:"minStatus,omitempty"`
	MaxStatus *int    `json:"maxStatus,omitempty"`
}

type searchRequestsResult struct {
	Found    int                    `json:"found"`
	Filters  map[string]any         `json:"filters"`
	Requests []RequestSummary       `json:"requests"`
}

// SearchRequests implements the search_requests tool.
type SearchRequests struct{ Cache *networkcache.Cache }

func (t *SearchRequests) Name() string            { return "search_requests" }
func (t *SearchRequests) Description() string     { return "Filter captured network requests by URL substring, method, and/or status range." }
func (t *SearchRequests) Schema() json.RawMessage  { return reflectSchema(searchRequestsInput{}) }

func (t *SearchRequests) Execute(ctx context.Context, targetID string, raw json.RawMessage) (*agent.ToolResult, error) {
	var in searchRequestsInput
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return agent.ErrorResult("invalid input: " + err.Error()), nil
		}
	}

	var matches []*networkcache.Entry
	if in.URL != nil && *in.URL != "" {
		matches = t.Cache.SearchByURL(targetID, *in.URL)
	} else {
		matches = t.Cache.EntriesForTarget(targetID)
	}

	filters := map[string]any{}
	var filtered []*networkcache.Entry
	for _, e := range matches {
		if in.Method != nil && *in.Method != "" && !strings.EqualFold(e.Request.Method, *in.Method) {
			continue
		}
		if in.MinStatus != nil && e.Response.Status < *in.MinStatus {
			continue
		}
		if in.MaxStatus != nil && e.Response.Status > *in.MaxStatus {
			continue
		}
		filtered = append(filtered, e)
	}
	if in.URL != nil {
		filters["url"] = *in.URL
	}
	if in.Method != nil {
		filters["method"] = *in.Method
	}
	if in.MinStatus != nil {
		filters["minStatus"] = *in.MinStatus
	}
	if in.MaxStatus != nil {
		filters["maxStatus"] = *in.MaxStatus
	}

	if len(filtered) > 10 {
		filtered = filtered[:10]
	}
	summaries := make([]RequestSummary, 0, len(filtered))
	for _, e := range filtered {
		summaries = append(summaries, summarize(e))
	}

	return &agent.ToolResult{Value: searchRequestsResult{Found: len(summaries), Filters: filters, Requests: summaries}}, nil
}

// --- search_request_content ------------------------------------------------

type searchRequestContentInput struct {
	Query    string  `json:"query" jsonschema:"required"`
	SearchIn *string `json:"searchIn,omitempty" jsonschema:"enum=all,enum=url,enum=request_body,enum=response_body"`
	Limit    *int    `json:"limit,omitempty" jsonschema:"description=default 10, max 15"`
}

type contentMatchResult struct {
	RequestSummary
	MatchedIn []string `json:"matchedIn"`
}

type searchRequestContentResult struct {
	Query    string               `json:"query"`
	SearchIn string               `json:"searchIn"`
	Found    int                  `json:"found"`
	Results  []contentMatchResult `json:"results"`
}

// SearchRequestContent implements the search_request_content tool.
type SearchRequestContent struct{ Cache *networkcache.Cache }

func (t *SearchRequestContent) Name() string        { return "search_request_content" }
func (t *SearchRequestContent) Description() string { return "Full-text search captured request/response bodies and URLs for a substring." }
func (t *SearchRequestContent) Schema() json.RawMessage { return reflectSchema(searchRequestContentInput{}) }

func (t *SearchRequestContent) Execute(ctx context.Context, targetID string, raw json.RawMessage) (*agent.ToolResult, error) {
	var in searchRequestContentInput
	if err := json.Unmarshal(raw, &in); err != nil || in.Query == "" {
		return agent.ErrorResult("query is required"), nil
	}
	searchIn := networkcache.SearchAll
	if in.SearchIn != nil && *in.SearchIn != "" {
		searchIn = networkcache.SearchIn(*in.SearchIn)
	}
	limit := 10
	if in.Limit != nil {
		limit = *in.Limit
	}
	if limit > 15 {
		limit = 15
	}
	if limit < 0 {
		limit = 0
	}

	matches := t.Cache.SearchContent(targetID, in.Query, searchIn)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	results := make([]contentMatchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, contentMatchResult{RequestSummary: summarize(m.Entry), MatchedIn: m.MatchedIn})
	}

	return &agent.ToolResult{Value: searchRequestContentResult{
		Query: in.Query, SearchIn: string(searchIn), Found: len(results), Results: results,
	}}, nil
}

// --- get_cache_statistics ------------------------------------------------

type getCacheStatisticsInput struct{}

// GetCacheStatistics implements the get_cache_statistics tool.
type GetCacheStatistics struct{ Cache *networkcache.Cache }

func (t *GetCacheStatistics) Name() string            { return "get_cache_statistics" }
func (t *GetCacheStatistics) Description() string     { return "Summarize captured traffic for the current target: totals by method, status, and type." }
func (t *GetCacheStatistics) Schema() json.RawMessage  { return reflectSchema(getCacheStatisticsInput{}) }

func (t *GetCacheStatistics) Execute(ctx context.Context, targetID string, raw json.RawMessage) (*agent.ToolResult, error) {
	stats := t.Cache.StatisticsFor(targetID)
	return &agent.ToolResult{Value: map[string]any{
		"totalRequests": stats.TotalEntries,
		"byMethod":      stats.ByMethod,
		"byStatus":      stats.ByStatus,
		"byType":        stats.ByType,
		"errorCount":    stats.ErrorCount,
	}}, nil
}
