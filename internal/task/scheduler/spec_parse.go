package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind describes the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecDaily
)

// ParsedSpec represents a parsed schedule string.
//
// Supported forms:
//   - Daily local time: "05:00", "5:30"
//   - Cron (crontab.guru-style): "0 5 * * 1-5", "@daily", "@every 6h"
//
// The "cron:" prefix forces cron parsing.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string // cron spec; for daily schedules "M H * * *"
	Hour   int
	Minute int
	Source string // "cron" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// cronParser accepts 5-field and 6-field (with seconds) specs and descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a schedule string into a cron spec.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return parseCron(expr)
	}

	// any whitespace or leading '@' => cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}

	if reHHMM.MatchString(s) {
		h, m, err := parseHHMM(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecDaily, Cron: fmt.Sprintf("%d %d * * *", m, h), Hour: h, Minute: m, Source: "hhmm"}, nil
	}

	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use HH:MM like '05:00' or cron like '0 5 * * 1-5')",
		raw,
	)
}

func parseCron(expr string) (ParsedSpec, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
}

// NextRun returns the first trigger of spec strictly after from, evaluated
// in loc. A nil loc means time.Local.
func NextRun(spec string, from time.Time, loc *time.Location) (time.Time, error) {
	ps, err := ParseSchedule(spec)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := cronParser.Parse(ps.Cron)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	return sched.Next(from.In(loc)), nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
