package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

var reHHMM = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// cronParser accepts the same cron dialect as the scheduler.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks the config for values the bot cannot run with.
// Secrets are checked separately by the components that need them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Notion.Databases.Actions) == "" {
		errs = append(errs, errors.New("notion.databases.actions is required"))
	}
	if cfg.Notion.RatePerSec < 0 {
		errs = append(errs, errors.New("notion.rate_per_sec must be >= 0"))
	}
	if _, err := ParseDurationField("notion.timeout", cfg.Notion.Timeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Slack.RatePerSec < 0 || cfg.Slack.Burst < 0 {
		errs = append(errs, errors.New("slack.rate_per_sec and slack.burst must be >= 0"))
	}
	if _, err := time.LoadLocation(cfg.Timezone()); err != nil {
		errs = append(errs, fmt.Errorf("digest.timezone: invalid %q: %w", cfg.Timezone(), err))
	}
	if spec := strings.TrimSpace(cfg.Schedule.Cron); spec != "" {
		if _, err := cronParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule.cron: invalid %q: %w", spec, err))
		}
	} else if at := strings.TrimSpace(cfg.Schedule.At); at != "" && !reHHMM.MatchString(at) {
		errs = append(errs, fmt.Errorf("schedule.at: invalid %q, expected HH:MM", at))
	}
	if cfg.Logging.Chat.Enabled && strings.TrimSpace(cfg.Logging.Chat.Channel) == "" {
		errs = append(errs, errors.New("logging.chat.channel is required when logging.chat.enabled"))
	}

	if cfg.Debug.BlockProfileRate < 0 || cfg.Debug.MutexProfileFraction < 0 {
		errs = append(errs, errors.New("debug profile rates must be >= 0"))
	}

	if len(cfg.Users) == 0 {
		errs = append(errs, errors.New("users: at least one user is required"))
	}
	seen := map[string]bool{}
	for i, u := range cfg.Users {
		p := fmt.Sprintf("users[%d]", i)
		name := strings.TrimSpace(u.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", p))
		} else if seen[strings.ToLower(name)] {
			errs = append(errs, fmt.Errorf("%s.name %q is duplicated", p, name))
		}
		seen[strings.ToLower(name)] = true
		if strings.TrimSpace(u.NotionID) == "" {
			errs = append(errs, fmt.Errorf("%s.notionid is required", p))
		}
		if u.Items <= 0 {
			errs = append(errs, fmt.Errorf("%s.items must be > 0", p))
		}
		if strings.TrimSpace(u.SlackID) == "" && strings.TrimSpace(u.TelegramID) == "" {
			errs = append(errs, fmt.Errorf("%s: slackid or telegramid is required", p))
		}
	}
	return errors.Join(errs...)
}
