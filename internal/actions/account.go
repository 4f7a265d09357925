package actions

import (
	"context"
	"strings"

	"digestbot/internal/record"
	logx "digestbot/pkg/logx"
)

// AccountSummary is the projection of an account page used in a digest line.
// ID is always set; the other fields are "" when unknown.
type AccountSummary struct {
	ID       string
	Name     string
	Website  string
	Priority string
}

// Suffix renders the account priority badge, e.g. " (P1)" for "1 - High".
func (a AccountSummary) Suffix() string {
	if a.Priority == "" {
		return ""
	}
	return " (P" + firstRune(a.Priority) + ")"
}

// Enterprise reports whether the account priority label starts with "1".
func (a AccountSummary) Enterprise() bool {
	return strings.HasPrefix(a.Priority, "1")
}

type PageGetter interface {
	GetPage(ctx context.Context, id string) (any, error)
}

// Resolver looks up account pages. Results are not cached.
type Resolver struct {
	pages PageGetter
	log   logx.Logger
}

func NewResolver(pages PageGetter, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{pages: pages, log: log}
}

// Resolve fetches one account page. Fetch failures are logged and yield a
// summary with only ID set.
func (r *Resolver) Resolve(ctx context.Context, id string) AccountSummary {
	acct := AccountSummary{ID: id}
	page, err := r.pages.GetPage(ctx, id)
	if err != nil {
		r.log.Warn("account lookup failed", logx.String("account_id", id), logx.Err(err))
		return acct
	}
	acct.Name = record.String(page, "properties", "Name", "title", 0, "plain_text")
	acct.Website = record.String(page, "properties", "Website", "url")
	acct.Priority = record.String(page, "properties", "Priority", "select", "name")
	return acct
}
