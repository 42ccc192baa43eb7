package notion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/docstore"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// recorder captures every request and answers through handler.
type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) add(req *http.Request) recordedRequest {
	var body map[string]any
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		if len(data) > 0 {
			json.Unmarshal(data, &body)
		}
	}
	rr := recordedRequest{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery, Body: body}
	r.mu.Lock()
	r.requests = append(r.requests, rr)
	r.mu.Unlock()
	return rr
}

func (r *recorder) matching(method, pathPrefix string) []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedRequest
	for _, rr := range r.requests {
		if rr.Method == method && strings.HasPrefix(rr.Path, pathPrefix) {
			out = append(out, rr)
		}
	}
	return out
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, req recordedRequest)) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Notion-Version"); got != DefaultVersion {
			t.Errorf("Notion-Version = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret_test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, rec.add(r))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{
		APIKey:            "secret_test",
		DatabaseID:        "db-records",
		RollupDatabaseID:  "db-rollups",
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.http.InitialBackoff = time.Millisecond
	return c, rec
}

func writeJSON(w http.ResponseWriter, v any) {
	json.NewEncoder(w).Encode(v)
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Options{DatabaseID: "db"}); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := New(Options{APIKey: "k"}); err == nil {
		t.Error("expected error without database id")
	}
}

func TestChildren_Paginates(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		if strings.Contains(req.Query, "start_cursor=c2") {
			writeJSON(w, map[string]any{
				"results":  []any{map[string]any{"id": "b3", "type": "divider", "divider": map[string]any{}}},
				"has_more": false,
			})
			return
		}
		writeJSON(w, map[string]any{
			"results": []any{
				map[string]any{"id": "b1", "type": "divider", "divider": map[string]any{}},
				map[string]any{"id": "b2", "type": "paragraph", "paragraph": map[string]any{
					"rich_text": []any{map[string]any{"type": "text", "text": map[string]any{"content": "hi"}, "plain_text": "hi"}},
				}},
			},
			"has_more":    true,
			"next_cursor": "c2",
		})
	})

	got, err := docstore.AllChildren(context.Background(), c, "page-1")
	if err != nil {
		t.Fatalf("AllChildren: %v", err)
	}
	if len(got) != 3 || got[1].PlainText() != "hi" || got[2].ID != "b3" {
		t.Errorf("children = %+v", got)
	}
	reqs := rec.matching(http.MethodGet, "/blocks/page-1/children")
	if len(reqs) != 2 || !strings.Contains(reqs[0].Query, "page_size=100") {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestAppendChildren_Chunks(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		writeJSON(w, map[string]any{"results": []any{}})
	})

	bs := make([]blocks.Block, 250)
	for i := range bs {
		bs[i] = blocks.Paragraph(blocks.Plain("x"))
	}
	if err := c.AppendChildren(context.Background(), "page-1", bs); err != nil {
		t.Fatalf("AppendChildren: %v", err)
	}

	reqs := rec.matching(http.MethodPatch, "/blocks/page-1/children")
	if len(reqs) != 3 {
		t.Fatalf("got %d append requests, want 3", len(reqs))
	}
	for i, want := range []int{100, 100, 50} {
		if n := len(reqs[i].Body["children"].([]any)); n != want {
			t.Errorf("chunk %d has %d blocks, want %d", i, n, want)
		}
	}
}

func TestDeleteBlock_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"object": "error", "code": "object_not_found"})
	})

	err := c.DeleteBlock(context.Background(), "gone")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("DeleteBlock error = %v, want ErrNotFound", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FindRecord(context.Background(), "U1")
	var ioErr *docstore.IOError
	if !errors.As(err, &ioErr) || ioErr.Status != http.StatusBadGateway {
		t.Fatalf("error = %v, want 502 IOError", err)
	}
	if !docstore.IsTransient(err) {
		t.Error("expected transient error")
	}
}

func TestRetriesOn429(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{"results": []any{}})
	})

	if _, err := c.FindRecord(context.Background(), "U1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("FindRecord error = %v, want ErrNotFound after retry", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func recordPage(id, updateID, updatedAt string) map[string]any {
	return map[string]any{
		"id":               id,
		"last_edited_time": "2025-01-10T10:00:00.000Z",
		"properties": map[string]any{
			PropName:       map[string]any{"type": "title", "title": []any{map[string]any{"type": "text", "text": map[string]any{"content": "Auth"}}}},
			PropProjectID:  map[string]any{"type": "rich_text", "rich_text": []any{map[string]any{"type": "text", "text": map[string]any{"content": "P1"}}}},
			PropTeam:       map[string]any{"type": "rich_text", "rich_text": []any{map[string]any{"type": "text", "text": map[string]any{"content": "Core & Web"}}}},
			PropWeekEnding: map[string]any{"type": "date", "date": map[string]any{"start": "2025-01-10"}},
			PropUpdateID:   map[string]any{"type": "rich_text", "rich_text": []any{map[string]any{"type": "text", "text": map[string]any{"content": updateID}}}},
			PropUpdatedAt:  map[string]any{"type": "rich_text", "rich_text": []any{map[string]any{"type": "text", "text": map[string]any{"content": updatedAt}}}},
			PropMultiTeam:  map[string]any{"type": "checkbox", "checkbox": true},
		},
	}
}

func TestFindRecord(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		writeJSON(w, map[string]any{"results": []any{recordPage("page-1", "U1", "2025-01-10T10:00:00.000Z")}})
	})

	got, err := c.FindRecord(context.Background(), "U1")
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	want := docstore.Record{
		PageID:       "page-1",
		UpdateID:     "U1",
		CategoryID:   "P1",
		CategoryName: "Auth",
		Team:         "Core & Web",
		MultiTeam:    true,
		WeekEnding:   "2025-01-10",
		UpdatedAt:    "2025-01-10T10:00:00.000Z",
		LastEdited:   "2025-01-10T10:00:00.000Z",
	}
	if got != want {
		t.Errorf("FindRecord = %+v\nwant %+v", got, want)
	}

	reqs := rec.matching(http.MethodPost, "/databases/db-records/query")
	if len(reqs) != 1 {
		t.Fatalf("query requests = %d", len(reqs))
	}
	filter := reqs[0].Body["filter"].(map[string]any)
	if filter["property"] != PropUpdateID {
		t.Errorf("filter = %v", filter)
	}
}

func TestCreateRecord_SplitsLargeChildren(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		if req.Path == "/pages" {
			writeJSON(w, map[string]any{"id": "new-page", "last_edited_time": "2025-01-10T10:00:00.000Z"})
			return
		}
		writeJSON(w, map[string]any{"results": []any{}})
	})

	children := make([]blocks.Block, 130)
	for i := range children {
		children[i] = blocks.Divider()
	}
	got, err := c.CreateRecord(context.Background(), docstore.Record{
		UpdateID: "U1", CategoryName: "Auth", WeekEnding: "2025-01-10", UpdatedAt: "2025-01-10T10:00:00.000Z",
	}, children)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if got.PageID != "new-page" {
		t.Errorf("PageID = %q", got.PageID)
	}

	create := rec.matching(http.MethodPost, "/pages")[0]
	if n := len(create.Body["children"].([]any)); n != 100 {
		t.Errorf("create carried %d children, want 100", n)
	}
	parent := create.Body["parent"].(map[string]any)
	if parent["database_id"] != "db-records" {
		t.Errorf("parent = %v", parent)
	}
	props := create.Body["properties"].(map[string]any)
	updatedAt := props[PropUpdatedAt].(map[string]any)["rich_text"].([]any)[0].(map[string]any)["text"].(map[string]any)["content"]
	if updatedAt != "2025-01-10T10:00:00.000Z" {
		t.Errorf("Updated At = %v, must be verbatim", updatedAt)
	}

	appends := rec.matching(http.MethodPatch, "/blocks/new-page/children")
	if len(appends) != 1 || len(appends[0].Body["children"].([]any)) != 30 {
		t.Errorf("follow-up appends = %+v", appends)
	}
}

func TestQueryRecords_Cursor(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		if req.Body["start_cursor"] == "next" {
			writeJSON(w, map[string]any{"results": []any{recordPage("p2", "U2", "t")}})
			return
		}
		writeJSON(w, map[string]any{"results": []any{recordPage("p1", "U1", "t")}, "has_more": true, "next_cursor": "next"})
	})

	all, err := docstore.AllRecords(context.Background(), c, "2025-01-10")
	if err != nil {
		t.Fatalf("AllRecords: %v", err)
	}
	if len(all) != 2 || all[0].UpdateID != "U1" || all[1].UpdateID != "U2" {
		t.Errorf("records = %+v", all)
	}
	if n := len(rec.matching(http.MethodPost, "/databases/db-records/query")); n != 2 {
		t.Errorf("query requests = %d", n)
	}
}

func TestRollups(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		switch req.Path {
		case "/databases/db-rollups/query":
			writeJSON(w, map[string]any{"results": []any{}})
		case "/pages":
			writeJSON(w, map[string]any{"id": "rollup-1"})
		}
	})

	ctx := context.Background()
	if _, err := c.FindRollup(ctx, "Weekly Update @2025-01-10", "2025-01-10"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("FindRollup error = %v, want ErrNotFound", err)
	}
	r, err := c.CreateRollup(ctx, "Weekly Update @2025-01-10", "2025-01-10")
	if err != nil {
		t.Fatalf("CreateRollup: %v", err)
	}
	if r.PageID != "rollup-1" {
		t.Errorf("PageID = %q", r.PageID)
	}

	create := rec.matching(http.MethodPost, "/pages")[0]
	if create.Body["parent"].(map[string]any)["database_id"] != "db-rollups" {
		t.Errorf("rollup parent = %v", create.Body["parent"])
	}
	if create.Body["icon"].(map[string]any)["emoji"] != DefaultIcon {
		t.Errorf("icon = %v", create.Body["icon"])
	}
}

func contactPage(prop map[string]any) map[string]any {
	return map[string]any{"id": "page-1", "properties": map[string]any{PropContact: prop}}
}

func TestAddContact(t *testing.T) {
	users := map[string]any{"results": []any{
		map[string]any{"object": "user", "id": "u-ada", "name": "Ada Lovelace", "person": map[string]any{"email": "ada@example.com"}},
		map[string]any{"object": "user", "id": "u-grace", "name": "Grace Hopper"},
	}}

	tests := []struct {
		name      string
		contact   string
		prop      map[string]any
		wantPatch bool
		check     func(t *testing.T, value map[string]any)
	}{
		{
			name:      "rich text appends",
			contact:   "Grace",
			prop:      map[string]any{"type": "rich_text", "rich_text": []any{map[string]any{"type": "text", "text": map[string]any{"content": "Ada"}}}},
			wantPatch: true,
			check: func(t *testing.T, value map[string]any) {
				content := value["rich_text"].([]any)[0].(map[string]any)["text"].(map[string]any)["content"]
				if content != "Ada, Grace" {
					t.Errorf("content = %v", content)
				}
			},
		},
		{
			name:    "rich text already present",
			contact: "Grace",
			prop:    map[string]any{"type": "rich_text", "rich_text": []any{map[string]any{"type": "text", "text": map[string]any{"content": "Ada, Grace"}}}},
		},
		{
			name:      "multi select appends",
			contact:   "Grace",
			prop:      map[string]any{"type": "multi_select", "multi_select": []any{map[string]any{"name": "Ada"}}},
			wantPatch: true,
			check: func(t *testing.T, value map[string]any) {
				if n := len(value["multi_select"].([]any)); n != 2 {
					t.Errorf("multi_select has %d options", n)
				}
			},
		},
		{
			name:      "people matches email substring",
			contact:   "ADA@EXAMPLE",
			prop:      map[string]any{"type": "people", "people": []any{map[string]any{"object": "user", "id": "u-grace"}}},
			wantPatch: true,
			check: func(t *testing.T, value map[string]any) {
				people := value["people"].([]any)
				if len(people) != 2 || people[1].(map[string]any)["id"] != "u-ada" {
					t.Errorf("people = %v", people)
				}
			},
		},
		{
			name:    "people unknown user skipped",
			contact: "Linus",
			prop:    map[string]any{"type": "people", "people": []any{}},
		},
		{
			name:    "people already present",
			contact: "grace",
			prop:    map[string]any{"type": "people", "people": []any{map[string]any{"object": "user", "id": "u-grace"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
				switch {
				case req.Method == http.MethodGet && req.Path == "/users":
					writeJSON(w, users)
				case req.Method == http.MethodGet:
					writeJSON(w, contactPage(tt.prop))
				default:
					writeJSON(w, map[string]any{"id": "page-1"})
				}
			})

			if err := c.AddContact(context.Background(), "page-1", tt.contact); err != nil {
				t.Fatalf("AddContact: %v", err)
			}
			patches := rec.matching(http.MethodPatch, "/pages/page-1")
			if tt.wantPatch != (len(patches) == 1) {
				t.Fatalf("patches = %d, wantPatch %v", len(patches), tt.wantPatch)
			}
			if tt.check != nil {
				value := patches[0].Body["properties"].(map[string]any)[PropContact].(map[string]any)
				tt.check(t, value)
			}
		})
	}
}
