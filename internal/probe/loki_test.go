package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const lokiStreams = `{
	"status": "success",
	"data": {
		"resultType": "streams",
		"result": [
			{
				"stream": {"service_name": "web-api", "level": "error"},
				"values": [
					["1756500000000000000", "connection reset by peer"],
					["1756499990000000000", "upstream timeout"]
				]
			},
			{
				"stream": {"service_name": "web-api", "level": "warn"},
				"values": [
					["1756499980000000000", "slow query"]
				]
			}
		]
	}
}`

func TestLokiRecentLines(t *testing.T) {
	t.Parallel()

	var gotQuery, gotDirection, gotTenant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/query_range" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotDirection = r.URL.Query().Get("direction")
		gotTenant = r.Header.Get("X-Scope-OrgID")
		_, _ = w.Write([]byte(lokiStreams))
	}))
	defer srv.Close()

	l := NewLoki(srv.URL, "tenant-1")
	lines, err := l.RecentLines(context.Background(), `{service_name="web-api"}`, time.Hour, 10)
	if err != nil {
		t.Fatalf("recent lines: %v", err)
	}

	if gotQuery != `{service_name="web-api"}` {
		t.Errorf("query = %q", gotQuery)
	}
	if gotDirection != "backward" {
		t.Errorf("direction = %q", gotDirection)
	}
	if gotTenant != "tenant-1" {
		t.Errorf("tenant header = %q", gotTenant)
	}

	if len(lines) != 3 {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[0].Line != "connection reset by peer" {
		t.Errorf("line[0] = %+v", lines[0])
	}
	// labels attach to the first entry of each stream only
	if lines[0].Labels["level"] != "error" || lines[1].Labels != nil {
		t.Errorf("label placement: %+v / %+v", lines[0].Labels, lines[1].Labels)
	}
	if lines[2].Labels["level"] != "warn" {
		t.Errorf("second stream labels = %+v", lines[2].Labels)
	}
}

func TestLokiRecentLines_CapsLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(lokiStreams))
	}))
	defer srv.Close()

	lines, err := NewLoki(srv.URL, "").RecentLines(context.Background(), "{}", time.Hour, 2)
	if err != nil {
		t.Fatalf("recent lines: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("lines = %d, want capped at 2", len(lines))
	}
}

func TestLokiRecentLines_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewLoki("", "").RecentLines(context.Background(), "{}", time.Hour, 10); err == nil {
		t.Error("unconfigured probe must error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "parse error", http.StatusBadRequest)
	}))
	defer srv.Close()
	if _, err := NewLoki(srv.URL, "").RecentLines(context.Background(), "{bad", time.Hour, 10); err == nil {
		t.Error("4xx response must error")
	}
}

func TestLokiSnippet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != `{service_name="web-api"} |= "error"` {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(lokiStreams))
	}))
	defer srv.Close()

	got, err := NewLoki(srv.URL, "").Snippet(context.Background(), "web-api", 5)
	if err != nil {
		t.Fatalf("snippet: %v", err)
	}
	want := "connection reset by peer\nupstream timeout\nslow query"
	if got != want {
		t.Errorf("snippet = %q, want %q", got, want)
	}
}

func TestLokiSnippet_NoLines(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[]}}`))
	}))
	defer srv.Close()

	got, err := NewLoki(srv.URL, "").Snippet(context.Background(), "web-api", 5)
	if err != nil {
		t.Fatalf("snippet: %v", err)
	}
	if got != "no recent error logs" {
		t.Errorf("snippet = %q", got)
	}
}
