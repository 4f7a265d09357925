package actions

import (
	"strconv"
	"strings"
)

// Icon builds the emoji tag for an item. The tier part carries the closing
// colon, so the result is e.g. ":project_red_urgent_enterprise:".
func Icon(overdue bool, priority string, acct AccountSummary) string {
	color := "green"
	if overdue {
		color = "red"
	}
	urgency := "normal"
	if p := strings.ToLower(priority); p == "urgent" || p == "important" {
		urgency = p
	}
	tier := "customer:"
	if acct.Enterprise() {
		tier = "enterprise:"
	}
	return strings.Join([]string{":project", color, urgency, tier}, "_")
}

// FormatLine renders one digest line:
//
//	{icon} #{i}: {title} ({priority}{sep2}{status})
//	{account}{suffix}{sep} due {due}, start {start}
func FormatLine(i int, it ActionItem, acct AccountSummary, overdue bool) string {
	sep := ":"
	if it.Priority == "" && acct.Name == "" {
		sep = ""
	}
	sep2 := ""
	if it.Status != "" && it.Priority != "" {
		sep2 = ", "
	}

	var b strings.Builder
	b.WriteString(Icon(overdue, it.Priority, acct))
	b.WriteString(" #")
	b.WriteString(strconv.Itoa(i))
	b.WriteString(": ")
	b.WriteString(it.Title)
	b.WriteString(" (")
	b.WriteString(it.Priority)
	b.WriteString(sep2)
	b.WriteString(it.Status)
	b.WriteString(")\n")
	b.WriteString(acct.Name)
	b.WriteString(acct.Suffix())
	b.WriteString(sep)
	b.WriteString(" due ")
	b.WriteString(it.DueRaw)
	b.WriteString(", start ")
	b.WriteString(it.StartRaw)
	return b.String()
}
