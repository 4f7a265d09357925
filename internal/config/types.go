package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Config struct {
	Notion   NotionConfig   `json:"notion"`
	Slack    SlackConfig    `json:"slack,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Digest   DigestConfig   `json:"digest,omitempty"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Debug    DebugConfig    `json:"debug,omitempty"`
	Users    []User         `json:"users"`
}

// NotionConfig controls the document store client.
//
// Token is normally left empty and supplied through NOTION_API_KEY.
type NotionConfig struct {
	Token      string          `json:"token,omitempty"`
	Databases  NotionDatabases `json:"databases"`
	BaseURL    string          `json:"base_url,omitempty"`     // default: "https://api.notion.com"
	Version    string          `json:"version,omitempty"`      // default: "2022-06-28"
	RatePerSec int             `json:"rate_per_sec,omitempty"` // default: 3
	// Timeout is a Go duration string (e.g. "30s").
	Timeout string `json:"timeout,omitempty"`
	// ExcludedStatuses are the status labels filtered out of the action query.
	// Default: ["8 - Done", "9 - Expired"].
	ExcludedStatuses []string `json:"excluded_statuses,omitempty"`
}

type NotionDatabases struct {
	Actions string `json:"actions"`
}

type SlackConfig struct {
	Token string `json:"token,omitempty"`
	// APIURL overrides the Slack Web API base (must end with "/").
	APIURL     string `json:"api_url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default: 1
	Burst      int    `json:"burst,omitempty"`        // default: 3
}

type TelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	URL        string `json:"url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default: 1
}

type DigestConfig struct {
	// Timezone is used for "now", date comparisons and the header timestamp.
	// Default: "US/Pacific".
	Timezone string `json:"timezone,omitempty"`
	// SkipMalformedDates logs and skips records whose dates do not parse
	// instead of aborting the whole cycle.
	SkipMalformedDates bool `json:"skip_malformed_dates,omitempty"`
	// DryRun logs digests instead of sending them.
	DryRun bool `json:"dry_run,omitempty"`
}

type ScheduleConfig struct {
	// At is the daily local trigger time as HH:MM. Default: "05:00".
	At string `json:"at,omitempty"`
	// Cron overrides At with a full cron spec (5 or 6 fields, or a descriptor).
	Cron string `json:"cron,omitempty"`
	// RunOnStart runs one cycle immediately at startup. Default: true.
	RunOnStart *bool `json:"run_on_start,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings to a Slack channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DebugConfig controls the optional debug HTTP listener (pprof, health and
// last-cycle status).
type DebugConfig struct {
	Enabled              bool   `json:"enabled"`
	Address              string `json:"address,omitempty"` // default: "127.0.0.1:6060"
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}

// User is one digest recipient.
type User struct {
	Name       string `json:"name"`
	NotionID   string `json:"notionid"`
	SlackID    string `json:"slackid,omitempty"`
	TelegramID string `json:"telegramid,omitempty"`
	Items      Items  `json:"items"`
}

// Items is the maximum number of action items in a digest. It accepts a JSON
// number or a numeric string ("10").
type Items int

func (n *Items) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("items: invalid number %q", s)
		}
		*n = Items(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("items: %w", err)
	}
	*n = Items(v)
	return nil
}

// Defaults used when the matching field is omitted.
const (
	DefaultNotionBaseURL = "https://api.notion.com"
	DefaultNotionVersion = "2022-06-28"
	DefaultTimezone      = "US/Pacific"
	DefaultDailyAt       = "05:00"
)

var DefaultExcludedStatuses = []string{"8 - Done", "9 - Expired"}

func (c *Config) RunOnStart() bool {
	if c.Schedule.RunOnStart == nil {
		return true
	}
	return *c.Schedule.RunOnStart
}

func (c *Config) Timezone() string {
	if tz := strings.TrimSpace(c.Digest.Timezone); tz != "" {
		return tz
	}
	return DefaultTimezone
}

// ScheduleSpec returns the raw schedule string: the cron override if set,
// otherwise the daily HH:MM.
func (c *Config) ScheduleSpec() string {
	if s := strings.TrimSpace(c.Schedule.Cron); s != "" {
		return "cron:" + s
	}
	if s := strings.TrimSpace(c.Schedule.At); s != "" {
		return s
	}
	return DefaultDailyAt
}

func (c *Config) ExcludedStatuses() []string {
	if len(c.Notion.ExcludedStatuses) == 0 {
		return append([]string(nil), DefaultExcludedStatuses...)
	}
	return append([]string(nil), c.Notion.ExcludedStatuses...)
}

// FindUser returns the user with the given display name (case-insensitive).
func (c *Config) FindUser(name string) (User, bool) {
	for _, u := range c.Users {
		if strings.EqualFold(strings.TrimSpace(u.Name), strings.TrimSpace(name)) {
			return u, true
		}
	}
	return User{}, false
}
