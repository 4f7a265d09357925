// Package digest wraps a user's action lines with the header and footer
// posted to chat.
package digest

import (
	"fmt"
	"strings"
	"time"
)

const (
	TimestampLayout = "2006-01-02 15:04:05"
	Footer          = "---\n"
)

// Separator opens every digest.
var Separator = strings.Repeat("-", 58)

type Assembler struct {
	actionsDB string
	loc       *time.Location
	now       func() time.Time
}

func New(actionsDB string, loc *time.Location, now func() time.Time) *Assembler {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Assembler{actionsDB: actionsDB, loc: loc, now: now}
}

// Assemble returns the messages for one user: separator, header, link,
// the action lines and the closing footer.
func (a *Assembler) Assemble(name string, lines []string) []string {
	out := make([]string, 0, len(lines)+4)
	out = append(out,
		Separator,
		fmt.Sprintf("\n*TOP NotionCRM ACTION ITEMS for %s on %s", name, a.now().In(a.loc).Format(TimestampLayout)),
		fmt.Sprintf("\nSee <https://www.notion.so/%s|NotionCRM Actions> for more detail", a.actionsDB),
	)
	out = append(out, lines...)
	return append(out, Footer)
}
