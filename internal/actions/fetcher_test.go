package actions

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"digestbot/internal/notion"
	logx "digestbot/pkg/logx"
)

type fakeStore struct {
	results  []any
	queryErr error
	pages    map[string]any
	gets     []string
	queries  []notion.Query
}

func (s *fakeStore) QueryDatabase(_ context.Context, dbID string, q notion.Query) ([]any, error) {
	s.queries = append(s.queries, q)
	return s.results, s.queryErr
}

func (s *fakeStore) GetPage(_ context.Context, id string) (any, error) {
	s.gets = append(s.gets, id)
	p, ok := s.pages[id]
	if !ok {
		return nil, &notion.APIError{Status: 404, Code: "object_not_found", Message: "missing"}
	}
	return p, nil
}

type action struct {
	id, title                 string
	dueStart, dueEnd, start   string
	created, status, priority string
	account                   string
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func richTitle(s string) map[string]any {
	if s == "" {
		return map[string]any{"title": []any{}}
	}
	return map[string]any{"title": []any{map[string]any{"plain_text": s}}}
}

func (a action) doc() any {
	props := map[string]any{
		"Short Description": richTitle(a.title),
		"Due Date":          map[string]any{"date": nil},
		"Start Date":        map[string]any{"date": nil},
		"Status":            map[string]any{"status": nil},
		"Priority":          map[string]any{"select": nil},
		"Accounts":          map[string]any{"relation": []any{}},
	}
	if a.dueStart != "" || a.dueEnd != "" {
		props["Due Date"] = map[string]any{"date": map[string]any{"start": nullable(a.dueStart), "end": nullable(a.dueEnd)}}
	}
	if a.start != "" {
		props["Start Date"] = map[string]any{"date": map[string]any{"start": a.start, "end": nil}}
	}
	if a.status != "" {
		props["Status"] = map[string]any{"status": map[string]any{"name": a.status}}
	}
	if a.priority != "" {
		props["Priority"] = map[string]any{"select": map[string]any{"name": a.priority}}
	}
	if a.account != "" {
		props["Accounts"] = map[string]any{"relation": []any{map[string]any{"id": a.account}}}
	}
	created := a.created
	if created == "" {
		created = "2024-05-01T09:30:00.000Z"
	}
	return map[string]any{
		"object":       "page",
		"id":           a.id,
		"url":          "https://www.notion.so/" + a.id,
		"created_time": created,
		"properties":   props,
	}
}

func accountPage(name, priority string) any {
	props := map[string]any{
		"Name":     richTitle(name),
		"Website":  map[string]any{"url": "https://example.com"},
		"Priority": map[string]any{"select": nil},
	}
	if priority != "" {
		props["Priority"] = map[string]any{"select": map[string]any{"name": priority}}
	}
	return map[string]any{"object": "page", "properties": props}
}

func pacific(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func newFetcher(t *testing.T, st *fakeStore, skip bool) *Fetcher {
	loc := pacific(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	return NewFetcher(st, Options{
		ActionsDB:          "db-actions",
		ExcludedStatuses:   []string{"8 - Done", "9 - Expired"},
		Location:           loc,
		SkipMalformedDates: skip,
		Now:                func() time.Time { return now },
	}, logx.Nop())
}

func docs(as ...action) []any {
	out := make([]any, 0, len(as))
	for _, a := range as {
		out = append(out, a.doc())
	}
	return out
}

func TestFetchUrgentEnterpriseScenario(t *testing.T) {
	st := &fakeStore{
		results: docs(action{
			id: "a1", title: "Renew contract",
			dueStart: "2023-12-15", dueEnd: "2024-01-01",
			status: "3 - Active", priority: "0 - Urgent", account: "acct-1",
		}),
		pages: map[string]any{"acct-1": accountPage("Acme", "1 - High")},
	}
	lines, err := newFetcher(t, st, false).Fetch(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := ":project_red_urgent_enterprise: #1: Renew contract (Urgent, Active)\nAcme (P1): due 2024-01-01, start 2023-12-15"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("lines = %q\nwant %q", lines, want)
	}
	if !reflect.DeepEqual(st.gets, []string{"acct-1"}) {
		t.Fatalf("account lookups = %v", st.gets)
	}
}

func TestFetchSeparators(t *testing.T) {
	tests := []struct {
		name string
		act  action
		page any
		want string
	}{
		{
			name: "no priority no account",
			act:  action{id: "a", title: "Plan", start: "2024-06-01", dueStart: "2024-07-01", status: "3 - Active"},
			want: ":project_green_normal_customer: #1: Plan (Active)\n due 2024-07-01, start 2024-06-01",
		},
		{
			name: "priority without account",
			act:  action{id: "a", title: "Plan", start: "2024-06-01", dueStart: "2024-07-01", status: "3 - Active", priority: "1 - Important"},
			want: ":project_green_important_customer: #1: Plan (Important, Active)\n: due 2024-07-01, start 2024-06-01",
		},
		{
			name: "account without priority",
			act:  action{id: "a", title: "Plan", start: "2024-06-01", dueStart: "2024-07-01", account: "acct"},
			page: accountPage("Globex", "2 - Medium"),
			want: ":project_green_normal_customer: #1: Plan ()\nGlobex (P2): due 2024-07-01, start 2024-06-01",
		},
		{
			name: "priority without status",
			act:  action{id: "a", title: "Plan", start: "2024-06-01", dueStart: "2024-07-01", priority: "2 - Normal"},
			want: ":project_green_normal_customer: #1: Plan (Normal)\n: due 2024-07-01, start 2024-06-01",
		},
		{
			name: "failed account lookup",
			act:  action{id: "a", title: "Plan", start: "2024-06-01", dueStart: "2024-07-01", account: "gone"},
			want: ":project_green_normal_customer: #1: Plan ()\n due 2024-07-01, start 2024-06-01",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{results: docs(tt.act), pages: map[string]any{}}
			if tt.page != nil {
				st.pages[tt.act.account] = tt.page
			}
			lines, err := newFetcher(t, st, false).Fetch(context.Background(), "u", 5)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if len(lines) != 1 || lines[0] != tt.want {
				t.Fatalf("lines = %q\nwant %q", lines, tt.want)
			}
		})
	}
}

func TestFetchSkipsFutureItemsWithoutCounting(t *testing.T) {
	st := &fakeStore{
		results: docs(
			action{id: "f", title: "Later", start: "2024-07-01", dueEnd: "2024-08-01", dueStart: "2024-07-01", account: "acct"},
			action{id: "n", title: "Now", dueStart: "2024-06-01"},
		),
		pages: map[string]any{"acct": accountPage("Acme", "1 - High")},
	}
	lines, err := newFetcher(t, st, false).Fetch(context.Background(), "u", 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], " #1: Now ") {
		t.Fatalf("lines = %q", lines)
	}
	if len(st.gets) != 0 {
		t.Fatalf("future item account should not be fetched, got %v", st.gets)
	}
}

func TestFetchFutureDueWithoutEndStartsAtCreation(t *testing.T) {
	st := &fakeStore{results: docs(action{
		id: "d", title: "Prepare review", dueStart: "2024-07-01",
		created: "2024-05-01T09:30:00.000Z", status: "3 - Active",
	})}
	lines, err := newFetcher(t, st, false).Fetch(context.Background(), "u", 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := ":project_green_normal_customer: #1: Prepare review (Active)\n due 2024-07-01, start 2024-05-01"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("lines = %q\nwant %q", lines, want)
	}
}

func TestFetchLimitPreservesOrder(t *testing.T) {
	var as []action
	titles := []string{"one", "two", "future", "three", "four", "five"}
	for _, title := range titles {
		a := action{id: title, title: title, dueStart: "2024-06-10", account: "acct-" + title}
		if title == "future" {
			a.start = "2024-12-01"
		}
		as = append(as, a)
	}
	pages := map[string]any{}
	for _, title := range titles {
		pages["acct-"+title] = accountPage(title, "")
	}
	st := &fakeStore{results: docs(as...), pages: pages}

	lines, err := newFetcher(t, st, false).Fetch(context.Background(), "u", 3)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for i, title := range []string{"one", "two", "three"} {
		prefix := ":project_red_normal_customer: #" + string(rune('1'+i)) + ": " + title + " "
		if !strings.HasPrefix(lines[i], prefix) {
			t.Fatalf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
	}
	if want := []string{"acct-one", "acct-two", "acct-three"}; !reflect.DeepEqual(st.gets, want) {
		t.Fatalf("account lookups = %v, want %v", st.gets, want)
	}
}

func TestFetchIsIdempotent(t *testing.T) {
	st := &fakeStore{
		results: docs(
			action{id: "a", title: "A", dueStart: "2024-06-01", dueEnd: "2024-06-20", priority: "0 - Urgent", status: "2 - Waiting", account: "x"},
			action{id: "b", title: "B", dueStart: "2024-06-02", priority: "3 - Low"},
		),
		pages: map[string]any{"x": accountPage("Initech", "1 - Top")},
	}
	f := newFetcher(t, st, false)
	first, err := f.Fetch(context.Background(), "u", 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	second, err := f.Fetch(context.Background(), "u", 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("fetch not idempotent:\n%q\n%q", first, second)
	}
}

func TestFetchMalformedDate(t *testing.T) {
	bad := action{id: "bad", title: "Bad", dueStart: "2024-06-01", dueEnd: "2024-06-20T10:00:00.000-07:00"}
	good := action{id: "good", title: "Good", dueStart: "2024-06-01"}

	st := &fakeStore{results: docs(good, bad, good)}
	_, err := newFetcher(t, st, false).Fetch(context.Background(), "u", 10)
	var de *DateError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DateError, got %v", err)
	}
	if de.RecordID != "bad" || de.Field != "due" {
		t.Fatalf("unexpected date error %+v", de)
	}

	lines, err := newFetcher(t, st, true).Fetch(context.Background(), "u", 10)
	if err != nil {
		t.Fatalf("Fetch with skip: %v", err)
	}
	if len(lines) != 2 || !strings.Contains(lines[1], " #2: Good ") {
		t.Fatalf("lines = %q", lines)
	}
}

func TestFetchQueryFailureYieldsNoLines(t *testing.T) {
	st := &fakeStore{queryErr: errors.New("boom")}
	lines, err := newFetcher(t, st, false).Fetch(context.Background(), "u", 10)
	if err != nil || len(lines) != 0 {
		t.Fatalf("lines=%q err=%v", lines, err)
	}
}

func TestQueryFilter(t *testing.T) {
	st := &fakeStore{}
	_, _ = newFetcher(t, st, false).Fetch(context.Background(), "user-9", 10)
	if len(st.queries) != 1 {
		t.Fatalf("queries = %d", len(st.queries))
	}
	q := st.queries[0]
	if q.Filter == nil || len(q.Filter.And) != 3 {
		t.Fatalf("unexpected filter %+v", q.Filter)
	}
	if q.Filter.And[0].People.Contains != "user-9" || q.Filter.And[2].Status.DoesNotEqual != "9 - Expired" {
		t.Fatalf("unexpected filter %+v", q.Filter.And)
	}
	if len(q.Sorts) != 2 || q.Sorts[0].Property != "Priority" || q.Sorts[1].Property != "Due Date" {
		t.Fatalf("unexpected sorts %+v", q.Sorts)
	}
}
