package config

import (
	"reflect"
	"strings"

	logx "digestbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// fields for a reload log line. Tokens are never included; only whether
// one is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	fields := make([]logx.Field, 0, 12)

	on, nn := oldCfg.Notion, newCfg.Notion
	if on.Databases != nn.Databases ||
		strings.TrimSpace(on.BaseURL) != strings.TrimSpace(nn.BaseURL) ||
		on.Version != nn.Version ||
		on.RatePerSec != nn.RatePerSec ||
		on.Timeout != nn.Timeout ||
		!reflect.DeepEqual(oldCfg.ExcludedStatuses(), newCfg.ExcludedStatuses()) ||
		(on.Token != "") != (nn.Token != "") {
		changed = append(changed, "notion")
		fields = append(fields,
			logx.String("notion.actions", nn.Databases.Actions),
			logx.Bool("notion.token_set", nn.Token != ""),
		)
	}

	if oldCfg.Slack.APIURL != newCfg.Slack.APIURL ||
		oldCfg.Slack.RatePerSec != newCfg.Slack.RatePerSec ||
		oldCfg.Slack.Burst != newCfg.Slack.Burst ||
		(oldCfg.Slack.Token != "") != (newCfg.Slack.Token != "") {
		changed = append(changed, "slack")
		fields = append(fields, logx.Bool("slack.token_set", newCfg.Slack.Token != ""))
	}

	if oldCfg.Telegram.Enabled != newCfg.Telegram.Enabled ||
		oldCfg.Telegram.URL != newCfg.Telegram.URL ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec ||
		(oldCfg.Telegram.Token != "") != (newCfg.Telegram.Token != "") {
		changed = append(changed, "telegram")
		fields = append(fields, logx.Bool("telegram.enabled", newCfg.Telegram.Enabled))
	}

	if oldCfg.Digest != newCfg.Digest {
		changed = append(changed, "digest")
		fields = append(fields,
			logx.String("digest.timezone", newCfg.Timezone()),
			logx.Bool("digest.dry_run", newCfg.Digest.DryRun),
		)
	}

	if oldCfg.ScheduleSpec() != newCfg.ScheduleSpec() || oldCfg.RunOnStart() != newCfg.RunOnStart() {
		changed = append(changed, "schedule")
		fields = append(fields, logx.String("schedule", newCfg.ScheduleSpec()))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		fields = append(fields,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.address", newCfg.Debug.Address),
		)
	}

	if !reflect.DeepEqual(oldCfg.Users, newCfg.Users) {
		changed = append(changed, "users")
		names := make([]string, 0, len(newCfg.Users))
		for _, u := range newCfg.Users {
			names = append(names, u.Name)
		}
		fields = append(fields, logx.Strings("users", names))
	}

	return changed, fields
}
