// Package networkcache provides an in-memory reference implementation of
// the Network Cache collaborator described in spec §6. The real capture
// pipeline is explicitly out of scope (spec §1); this package exists so the
// Tool Executor's network-inspection tools are link-complete and testable.
package networkcache

import (
	"strings"
	"sync"
	"time"
)

// Request is the captured request half of a NetworkEntry.
type Request struct {
	URL       string
	Method    string
	Headers   map[string]string
	Body      string
	Timestamp time.Time
}

// Response is the captured response half of a NetworkEntry.
type Response struct {
	Status      int
	StatusText  string
	Headers     map[string]string
	Body        string
	ContentType string
}

// Timing records when a request started and ended.
type Timing struct {
	StartTime  time.Time
	EndTime    time.Time
	DurationMs int64
}

// Metadata carries derived/auxiliary fields about a NetworkEntry.
type Metadata struct {
	RequestType  string
	HasError     bool
	ErrorMessage string
	Cookies      map[string]string
	AuthHeaders  map[string]string
}

// Entry is one captured network exchange, per spec §3/§6.
type Entry struct {
	ID       string
	TargetID string
	Request  Request
	Response Response
	Timing   Timing
	Metadata Metadata
}

// Filter selects entries by method and/or status range, per spec §6.
type Filter struct {
	Method    string
	MinStatus int
	MaxStatus int
}

// Statistics summarizes a target's captured traffic, per spec §6.
type Statistics struct {
	TotalEntries int
	ByMethod     map[string]int
	ByStatus     map[int]int
	ByType       map[string]int
	ErrorCount   int
}

// Cache is a thread-safe, append-only, in-memory store of Entries keyed by
// target, implementing the read-only query interface spec §6 requires of
// the Network Cache collaborator. Grounded on the teacher's convention of a
// mutex-guarded map of slices (see internal/jobs.MemoryStore) rather than a
// database: spec §1 places the real capture pipeline out of scope, so this
// is a stand-in, not the production implementation.
type Cache struct {
	mu      sync.RWMutex
	byTgt   map[string][]*Entry
	byTgtID map[string]map[string]*Entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		byTgt:   make(map[string][]*Entry),
		byTgtID: make(map[string]map[string]*Entry),
	}
}

// Record appends an entry, for use by whatever capture pipeline feeds this
// cache in a full deployment (out of this spec's core scope, but needed so
// tests and a demo mode have data to query).
func (c *Cache) Record(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTgt[e.TargetID] = append(c.byTgt[e.TargetID], e)
	if c.byTgtID[e.TargetID] == nil {
		c.byTgtID[e.TargetID] = make(map[string]*Entry)
	}
	c.byTgtID[e.TargetID][e.ID] = e
}

// EntriesForTarget returns every entry for target, oldest-first. Stability
// within a call is all spec §6 requires.
func (c *Cache) EntriesForTarget(targetID string) []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.byTgt[targetID]
	out := make([]*Entry, len(src))
	copy(out, src)
	return out
}

// Entry returns a single entry by id, or nil if absent.
func (c *Cache) Entry(targetID, id string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.byTgtID[targetID]
	if m == nil {
		return nil
	}
	return m[id]
}

// SearchByURL returns entries whose URL case-insensitively contains
// substring.
func (c *Cache) SearchByURL(targetID, substring string) []*Entry {
	needle := strings.ToLower(substring)
	var out []*Entry
	for _, e := range c.EntriesForTarget(targetID) {
		if strings.Contains(strings.ToLower(e.Request.URL), needle) {
			out = append(out, e)
		}
	}
	return out
}

// Filter returns entries matching f's non-zero fields.
func (c *Cache) Filter(targetID string, f Filter) []*Entry {
	var out []*Entry
	for _, e := range c.EntriesForTarget(targetID) {
		if f.Method != "" && !strings.EqualFold(e.Request.Method, f.Method) {
			continue
		}
		if f.MinStatus != 0 && e.Response.Status < f.MinStatus {
			continue
		}
		if f.MaxStatus != 0 && e.Response.Status > f.MaxStatus {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SearchContent scans URL, request body, and/or response body for query,
// returning matching entries alongside which field(s) matched.
type ContentMatch struct {
	Entry     *Entry
	MatchedIn []string
}

// SearchIn selects which fields SearchContent scans.
type SearchIn string

const (
	SearchAll           SearchIn = "all"
	SearchURL           SearchIn = "url"
	SearchRequestBody   SearchIn = "request_body"
	SearchResponseBody  SearchIn = "response_body"
)

// SearchContent implements the free-text search behind
// search_request_content.
func (c *Cache) SearchContent(targetID, query string, in SearchIn) []ContentMatch {
	if in == "" {
		in = SearchAll
	}
	needle := strings.ToLower(query)
	var out []ContentMatch
	for _, e := range c.EntriesForTarget(targetID) {
		var matched []string
		if (in == SearchAll || in == SearchURL) && strings.Contains(strings.ToLower(e.Request.URL), needle) {
			matched = append(matched, "url")
		}
		if (in == SearchAll || in == SearchRequestBody) && strings.Contains(strings.ToLower(e.Request.Body), needle) {
			matched = append(matched, "request_body")
		}
		if (in == SearchAll || in == SearchResponseBody) && strings.Contains(strings.ToLower(e.Response.Body), needle) {
			matched = append(matched, "response_body")
		}
		if len(matched) > 0 {
			out = append(out, ContentMatch{Entry: e, MatchedIn: matched})
		}
	}
	return out
}

// StatisticsFor computes aggregate statistics for target.
func (c *Cache) StatisticsFor(targetID string) Statistics {
	entries := c.EntriesForTarget(targetID)
	stats := Statistics{
		ByMethod: make(map[string]int),
		ByStatus: make(map[int]int),
		ByType:   make(map[string]int),
	}
	for _, e := range entries {
		stats.TotalEntries++
		stats.ByMethod[strings.ToUpper(e.Request.Method)]++
		stats.ByStatus[e.Response.Status]++
		if e.Metadata.RequestType != "" {
			stats.ByType[e.Metadata.RequestType]++
		}
		if e.Metadata.HasError {
			stats.ErrorCount++
		}
	}
	return stats
}
