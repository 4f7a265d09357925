package actions

import (
	"fmt"
	"strings"
	"time"

	"digestbot/internal/record"
)

// DateLayout is the calendar date format used by Notion date properties.
const DateLayout = "2006-01-02"

// ActionItem is one action record after date resolution.
type ActionItem struct {
	ID        string
	Title     string
	DueRaw    string
	StartRaw  string
	DueDate   time.Time
	StartDate time.Time
	Status    string
	Priority  string
	URL       string
	AccountID string
}

// DateError reports a resolved date string that is not YYYY-MM-DD.
type DateError struct {
	RecordID string
	Field    string
	Value    string
	Err      error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("actions: record %s: invalid %s date %q: %v", e.RecordID, e.Field, e.Value, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }

// resolveDates applies the date fallback chain and returns the raw due and
// start strings:
//
//	start unset and due end set -> start = due start
//	due end unset               -> due = due start
//	start still unset           -> start = created_time date portion
//
// The steps run in this order, so a due date without an end keeps the
// creation date as its start.
func resolveDates(rec any) (due, start string) {
	dueStart := record.String(rec, "properties", "Due Date", "date", "start")
	due = record.String(rec, "properties", "Due Date", "date", "end")
	start = record.String(rec, "properties", "Start Date", "date", "start")
	if start == "" && due != "" {
		start = dueStart
	}
	if due == "" {
		due = dueStart
	}
	if start == "" {
		start, _, _ = strings.Cut(record.String(rec, "created_time"), "T")
	}
	return due, start
}

// parseItem extracts the fields of an action record and parses its dates in loc.
func parseItem(rec any, loc *time.Location) (ActionItem, error) {
	it := ActionItem{
		ID:    record.String(rec, "id"),
		Title: record.String(rec, "properties", "Short Description", "title", 0, "plain_text"),
	}
	it.DueRaw, it.StartRaw = resolveDates(rec)

	var err error
	if it.StartDate, err = time.ParseInLocation(DateLayout, it.StartRaw, loc); err != nil {
		return it, &DateError{RecordID: it.ID, Field: "start", Value: it.StartRaw, Err: err}
	}
	if it.DueDate, err = time.ParseInLocation(DateLayout, it.DueRaw, loc); err != nil {
		return it, &DateError{RecordID: it.ID, Field: "due", Value: it.DueRaw, Err: err}
	}
	return it, nil
}

// fillDetails extracts the fields only needed for visible items.
func fillDetails(it *ActionItem, rec any) {
	it.URL = record.String(rec, "url")
	it.Status = dropRunes(record.String(rec, "properties", "Status", "status", "name"), 4)
	it.Priority = dropRunes(record.String(rec, "properties", "Priority", "select", "name"), 4)
	it.AccountID = record.String(rec, "properties", "Accounts", "relation", 0, "id")
}

// dropRunes removes the first n runes of s ("0 - Urgent" -> "Urgent").
func dropRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
