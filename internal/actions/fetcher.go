// Package actions turns a user's open Notion action items into digest lines.
package actions

import (
	"context"
	"errors"
	"time"

	"digestbot/internal/notion"
	logx "digestbot/pkg/logx"
)

// Store is the subset of the Notion client the fetcher needs.
type Store interface {
	PageGetter
	QueryDatabase(ctx context.Context, dbID string, q notion.Query) ([]any, error)
}

// Property names in the actions database.
const (
	PropOwner    = "Owner"
	PropStatus   = "Status"
	PropPriority = "Priority"
	PropDueDate  = "Due Date"
)

type Options struct {
	ActionsDB        string
	ExcludedStatuses []string
	Location         *time.Location
	// SkipMalformedDates logs and skips records with unparseable dates.
	// When false a *DateError is returned from Fetch.
	SkipMalformedDates bool
	Now                func() time.Time
}

type Fetcher struct {
	store    Store
	accounts *Resolver
	opts     Options
	log      logx.Logger
}

func NewFetcher(store Store, opts Options, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{
		store:    store,
		accounts: NewResolver(store, log.With(logx.String("comp", "accounts"))),
		opts:     opts,
		log:      log,
	}
}

// Query builds the action query for one Notion user: owned by the user,
// status not excluded, sorted by priority then due date.
func (f *Fetcher) Query(userID string) notion.Query {
	filters := []notion.Filter{notion.PeopleContains(PropOwner, userID)}
	for _, s := range f.opts.ExcludedStatuses {
		filters = append(filters, notion.StatusNot(PropStatus, s))
	}
	return notion.Query{
		Filter: notion.And(filters...),
		Sorts: []notion.Sort{
			{Property: PropPriority, Direction: notion.Ascending},
			{Property: PropDueDate, Direction: notion.Ascending},
		},
	}
}

// Fetch returns up to limit formatted lines for userID in query order.
// Items whose start date is in the future are skipped without counting.
// A failed query is logged and yields no lines.
func (f *Fetcher) Fetch(ctx context.Context, userID string, limit int) ([]string, error) {
	log := f.log.With(logx.String("notion_user", userID))
	recs, err := f.store.QueryDatabase(ctx, f.opts.ActionsDB, f.Query(userID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("action query failed", logx.String("db", f.opts.ActionsDB), logx.Err(err))
		return nil, nil
	}

	now := f.opts.Now().In(f.opts.Location)
	lines := make([]string, 0, max(0, min(len(recs), limit)))
	i := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return lines, err
		}
		it, err := parseItem(rec, f.opts.Location)
		if err != nil {
			var de *DateError
			if f.opts.SkipMalformedDates && errors.As(err, &de) {
				log.Warn("skipping record with malformed date",
					logx.String("record", de.RecordID),
					logx.String("field", de.Field),
					logx.String("value", de.Value),
				)
				continue
			}
			return lines, err
		}

		overdue := it.DueDate.Before(now)
		if it.StartDate.After(now) {
			continue
		}
		i++
		if i > limit {
			break
		}

		fillDetails(&it, rec)
		var acct AccountSummary
		if it.AccountID != "" {
			acct = f.accounts.Resolve(ctx, it.AccountID)
		}
		lines = append(lines, FormatLine(i, it, acct, overdue))
	}
	log.Debug("actions fetched", logx.Int("records", len(recs)), logx.Int("lines", len(lines)))
	return lines, nil
}
