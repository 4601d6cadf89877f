package networkcache

import (
	"testing"
	"time"
)

func sampleEntry(id, targetID, url, method string, status int) *Entry {
	return &Entry{
		ID:       id,
		TargetID: targetID,
		Request:  Request{URL: url, Method: method, Timestamp: time.Now()},
		Response: Response{Status: status, ContentType: "application/json"},
		Timing:   Timing{DurationMs: 42},
	}
}

func TestCache_RecordAndEntriesForTarget(t *testing.T) {
	c := New()
	c.Record(sampleEntry("1", "t1", "https://example.com/a", "GET", 200))
	c.Record(sampleEntry("2", "t1", "https://example.com/b", "POST", 500))
	c.Record(sampleEntry("3", "t2", "https://example.com/c", "GET", 200))

	entries := c.EntriesForTarget("t1")
	if len(entries) != 2 {
		t.Fatalf("len(EntriesForTarget(t1)) = %d, want 2", len(entries))
	}

	if len(c.EntriesForTarget("unknown")) != 0 {
		t.Error("expected no entries for an unknown target")
	}
}

func TestCache_Entry(t *testing.T) {
	c := New()
	c.Record(sampleEntry("1", "t1", "https://example.com/a", "GET", 200))

	if e := c.Entry("t1", "1"); e == nil {
		t.Fatal("expected entry 1 to be found")
	}
	if e := c.Entry("t1", "missing"); e != nil {
		t.Error("expected nil for an unknown entry id")
	}
	if e := c.Entry("other-target", "1"); e != nil {
		t.Error("entries must be scoped per target")
	}
}

func TestCache_SearchByURL(t *testing.T) {
	c := New()
	c.Record(sampleEntry("1", "t1", "https://example.com/api/users", "GET", 200))
	c.Record(sampleEntry("2", "t1", "https://example.com/static/app.js", "GET", 200))

	matches := c.SearchByURL("t1", "API")
	if len(matches) != 1 || matches[0].ID != "1" {
		t.Errorf("SearchByURL is case-insensitive; got %v", matches)
	}
}

func TestCache_Filter(t *testing.T) {
	c := New()
	c.Record(sampleEntry("1", "t1", "https://example.com/a", "GET", 200))
	c.Record(sampleEntry("2", "t1", "https://example.com/b", "POST", 404))
	c.Record(sampleEntry("3", "t1", "https://example.com/c", "GET", 500))

	got := c.Filter("t1", Filter{Method: "get"})
	if len(got) != 2 {
		t.Errorf("Filter(method=get) len = %d, want 2 (method match is case-insensitive)", len(got))
	}

	got = c.Filter("t1", Filter{MinStatus: 400})
	if len(got) != 2 {
		t.Errorf("Filter(minStatus=400) len = %d, want 2", len(got))
	}

	got = c.Filter("t1", Filter{MinStatus: 400, MaxStatus: 404})
	if len(got) != 1 {
		t.Errorf("Filter(minStatus=400,maxStatus=404) len = %d, want 1", len(got))
	}
}

func TestCache_SearchContent(t *testing.T) {
	c := New()
	e1 := sampleEntry("1", "t1", "https://example.com/secret-token", "GET", 200)
	e1.Request.Body = "hello"
	e2 := sampleEntry("2", "t1", "https://example.com/other", "GET", 200)
	e2.Response.Body = `{"token":"secret-token"}`
	c.Record(e1)
	c.Record(e2)

	matches := c.SearchContent("t1", "secret-token", SearchAll)
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}

	urlOnly := c.SearchContent("t1", "secret-token", SearchURL)
	if len(urlOnly) != 1 || urlOnly[0].Entry.ID != "1" {
		t.Errorf("SearchIn=url should only match entry 1's URL, got %v", urlOnly)
	}

	bodyOnly := c.SearchContent("t1", "secret-token", SearchResponseBody)
	if len(bodyOnly) != 1 || bodyOnly[0].Entry.ID != "2" {
		t.Errorf("SearchIn=response_body should only match entry 2, got %v", bodyOnly)
	}
}

func TestCache_StatisticsFor(t *testing.T) {
	c := New()
	c.Record(sampleEntry("1", "t1", "https://example.com/a", "GET", 200))
	c.Record(sampleEntry("2", "t1", "https://example.com/b", "get", 500))
	e3 := sampleEntry("3", "t1", "https://example.com/c", "POST", 200)
	e3.Metadata.HasError = true
	c.Record(e3)

	stats := c.StatisticsFor("t1")
	if stats.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3", stats.TotalEntries)
	}
	if stats.ByMethod["GET"] != 2 {
		t.Errorf("ByMethod[GET] = %d, want 2 (method casing should be normalized)", stats.ByMethod["GET"])
	}
	if stats.ByStatus[200] != 2 || stats.ByStatus[500] != 1 {
		t.Errorf("unexpected ByStatus: %v", stats.ByStatus)
	}
	if stats.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", stats.ErrorCount)
	}
}
