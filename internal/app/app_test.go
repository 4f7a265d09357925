package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"digestbot/internal/actions"
	"digestbot/internal/digest"
)

type fakeNotion struct {
	mu      sync.Mutex
	results []any
	pages   map[string]any
	queries int
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/databases/db-actions/query":
		f.queries++
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "results": f.results, "has_more": false})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/pages/"):
		p, ok := f.pages[strings.TrimPrefix(r.URL.Path, "/v1/pages/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"object":"error","status":404,"code":"object_not_found","message":"missing"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","status":400,"code":"invalid_request_url","message":"unexpected"}`))
	}
}

type slackPost struct{ channel, text string }

type fakeSlack struct {
	mu    sync.Mutex
	posts []slackPost
	got   chan struct{}
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.posts = append(f.posts, slackPost{channel: r.FormValue("channel"), text: r.FormValue("text")})
	f.mu.Unlock()
	if f.got != nil {
		select {
		case f.got <- struct{}{}:
		default:
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"channel":"` + r.FormValue("channel") + `","ts":"1718000000.000100"}`))
}

func (f *fakeSlack) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.posts))
	for _, p := range f.posts {
		out = append(out, p.text)
	}
	return out
}

func page(id, title, dueStart, dueEnd, start, status, priority, account string) map[string]any {
	date := func(s, e string) any {
		if s == "" && e == "" {
			return nil
		}
		m := map[string]any{"start": nil, "end": nil}
		if s != "" {
			m["start"] = s
		}
		if e != "" {
			m["end"] = e
		}
		return m
	}
	rel := []any{}
	if account != "" {
		rel = append(rel, map[string]any{"id": account})
	}
	return map[string]any{
		"object":       "page",
		"id":           id,
		"url":          "https://www.notion.so/" + id,
		"created_time": "2024-05-01T09:30:00.000Z",
		"properties": map[string]any{
			"Short Description": map[string]any{"title": []any{map[string]any{"plain_text": title}}},
			"Due Date":          map[string]any{"date": date(dueStart, dueEnd)},
			"Start Date":        map[string]any{"date": date(start, "")},
			"Status":            map[string]any{"status": map[string]any{"name": status}},
			"Priority":          map[string]any{"select": map[string]any{"name": priority}},
			"Accounts":          map[string]any{"relation": rel},
		},
	}
}

type harness struct {
	notion  *fakeNotion
	slack   *fakeSlack
	cfgPath string
	env     map[string]string
}

func newHarness(t *testing.T, runOnStart bool) *harness {
	t.Helper()
	h := &harness{
		notion: &fakeNotion{pages: map[string]any{}},
		slack:  &fakeSlack{got: make(chan struct{}, 64)},
		env:    map[string]string{"NOTION_API_KEY": "secret_notion", "SLACK_API_KEY": "xoxb-test"},
	}
	ns := httptest.NewServer(h.notion)
	t.Cleanup(ns.Close)
	ss := httptest.NewServer(h.slack)
	t.Cleanup(ss.Close)

	cfg := map[string]any{
		"notion": map[string]any{
			"databases": map[string]any{"actions": "db-actions"},
			"base_url":  ns.URL,
		},
		"slack":    map[string]any{"api_url": ss.URL + "/", "rate_per_sec": 100, "burst": 100},
		"digest":   map[string]any{"timezone": "America/Los_Angeles"},
		"schedule": map[string]any{"at": "05:00", "run_on_start": runOnStart},
		"logging":  map[string]any{"level": "error", "console": false},
		"users": []any{
			map[string]any{"name": "Alice", "notionid": "user-1", "slackid": "U1", "items": "10"},
		},
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	h.cfgPath = filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(h.cfgPath, b, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return h
}

func (h *harness) app(t *testing.T, users ...string) *App {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	a, err := NewApp(h.cfgPath, Options{
		Getenv:    func(k string) string { return h.env[k] },
		Users:     users,
		NoConsole: true,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return a
}

func TestRunCycleSendsDigest(t *testing.T) {
	h := newHarness(t, false)
	h.notion.results = []any{
		page("a1", "Renew contract", "2023-12-15", "2024-01-01", "", "3 - Active", "0 - Urgent", "acct-1"),
		page("a2", "Plan kickoff", "2024-07-01", "", "2024-06-10", "2 - Planned", "2 - Medium", ""),
	}
	h.notion.pages["acct-1"] = map[string]any{
		"object": "page",
		"properties": map[string]any{
			"Name":     map[string]any{"title": []any{map[string]any{"plain_text": "Acme"}}},
			"Website":  map[string]any{"url": "https://acme.example"},
			"Priority": map[string]any{"select": map[string]any{"name": "1 - High"}},
		},
	}
	a := h.app(t)
	defer a.Close()

	if err := a.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	got := h.slack.texts()
	if len(got) != 6 {
		t.Fatalf("posted %d messages, want 6: %q", len(got), got)
	}
	if got[0] != digest.Separator {
		t.Fatalf("first message = %q", got[0])
	}
	if !strings.Contains(got[1], "TOP NotionCRM ACTION ITEMS for Alice on 2024-06-15 12:00:00") {
		t.Fatalf("header = %q", got[1])
	}
	if !strings.Contains(got[2], "https://www.notion.so/db-actions") {
		t.Fatalf("link = %q", got[2])
	}
	want := ":project_red_urgent_enterprise: #1: Renew contract (Urgent, Active)\nAcme (P1): due 2024-01-01, start 2023-12-15"
	if got[3] != want {
		t.Fatalf("line 1 = %q\nwant %q", got[3], want)
	}
	if !strings.HasPrefix(got[4], ":project_") || !strings.Contains(got[4], "#2: Plan kickoff") {
		t.Fatalf("line 2 = %q", got[4])
	}
	if got[5] != digest.Footer {
		t.Fatalf("footer = %q", got[5])
	}
	for _, p := range h.slack.posts {
		if p.channel != "U1" {
			t.Fatalf("posted to %q, want U1", p.channel)
		}
	}
}

func TestRunCycleMalformedDateIsFatal(t *testing.T) {
	h := newHarness(t, false)
	h.notion.results = []any{page("bad", "Broken", "06/01/2024", "", "", "3 - Active", "2 - Medium", "")}
	a := h.app(t)
	defer a.Close()

	err := a.RunCycle(context.Background())
	var de *actions.DateError
	if !errors.As(err, &de) {
		t.Fatalf("RunCycle error = %v, want *actions.DateError", err)
	}
	if de.RecordID != "bad" || !IsFatal(err) {
		t.Fatalf("unexpected date error: %+v", de)
	}
	if n := len(h.slack.texts()); n != 0 {
		t.Fatalf("posted %d messages after fatal error", n)
	}
}

func TestRunCycleUserFilter(t *testing.T) {
	h := newHarness(t, false)
	a := h.app(t, "nobody")
	defer a.Close()

	if err := a.RunCycle(context.Background()); err == nil || !strings.Contains(err.Error(), "nobody") {
		t.Fatalf("RunCycle error = %v", err)
	}
	if h.notion.queries != 0 {
		t.Fatalf("queried notion %d times", h.notion.queries)
	}
}

func TestPreviewDoesNotSend(t *testing.T) {
	h := newHarness(t, false)
	h.notion.results = []any{page("a1", "Call back", "2024-06-01", "", "2024-06-01", "3 - Active", "1 - High", "")}
	a := h.app(t)
	defer a.Close()

	lines, err := a.Preview(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(lines) != 5 || !strings.Contains(lines[3], "#1: Call back") {
		t.Fatalf("preview = %q", lines)
	}
	if n := len(h.slack.texts()); n != 0 {
		t.Fatalf("preview posted %d messages", n)
	}
	if _, err := a.Preview(context.Background(), "bob"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestStartRunsStartupCycle(t *testing.T) {
	h := newHarness(t, true)
	h.notion.results = []any{page("a1", "Call back", "2024-06-01", "", "2024-06-01", "3 - Active", "1 - High", "")}
	a := h.app(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for len(h.slack.texts()) < 5 {
		select {
		case <-h.slack.got:
		case <-deadline:
			t.Fatalf("startup cycle posted %d messages", len(h.slack.texts()))
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartupDateErrorStopsApp(t *testing.T) {
	h := newHarness(t, true)
	h.notion.results = []any{page("bad", "Broken", "2024-13-45", "", "", "3 - Active", "2 - Medium", "")}
	a := h.app(t)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after fatal cycle error")
	}
	var de *actions.DateError
	if !errors.As(a.Err(), &de) {
		t.Fatalf("Err() = %v, want *actions.DateError", a.Err())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, StopFatalError)
}

func TestStatusReportsLastCycle(t *testing.T) {
	h := newHarness(t, false)
	h.notion.results = []any{page("a1", "Call back", "2024-06-01", "", "2024-06-01", "3 - Active", "1 - High", "")}
	a := h.app(t)
	defer a.Close()

	doc := a.Status().(map[string]any)
	if _, ok := doc["last_cycle"]; ok {
		t.Fatalf("last_cycle present before any cycle: %v", doc)
	}
	if err := a.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	doc = a.Status().(map[string]any)
	last, ok := doc["last_cycle"].(*CycleStatus)
	if !ok {
		t.Fatalf("last_cycle = %#v", doc["last_cycle"])
	}
	if last.Users != 1 || last.Sent != 5 || last.Failed != 0 || last.Error != "" {
		t.Fatalf("last cycle = %+v", last)
	}
	if doc["schedule"] != "05:00" || doc["timezone"] != "America/Los_Angeles" {
		t.Fatalf("status = %v", doc)
	}
}
