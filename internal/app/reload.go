package app

import (
	"context"
	"strings"

	"digestbot/internal/config"
	"digestbot/internal/task/scheduler"
	logx "digestbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(ctx, cfg)
		}
	}
}

// applyConfig hot-applies a validated config. Transport credentials are
// bound at startup and need a restart.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	old := a.Config()
	changed, fields := config.SummarizeConfigChange(old, cfg)
	if len(changed) == 0 {
		a.log.Debug("config reloaded (no effective change)")
		return
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.Strings("changed", changed)}, fields...)...)

	if strings.TrimSpace(old.Slack.Token) != strings.TrimSpace(cfg.Slack.Token) ||
		strings.TrimSpace(old.Telegram.Token) != strings.TrimSpace(cfg.Telegram.Token) ||
		old.Telegram.Enabled != cfg.Telegram.Enabled ||
		old.Slack.APIURL != cfg.Slack.APIURL ||
		old.Telegram.URL != cfg.Telegram.URL {
		a.log.Warn("chat transport settings changed; restart required to take effect")
	}

	a.logs.Apply(mapLogConfig(cfg, a.opts.NoConsole))
	a.disp.Apply(mapDispatchConfig(cfg))
	if err := a.applyPipeline(cfg); err != nil {
		a.log.Error("config apply failed; keeping previous pipeline", logx.Err(err))
		return
	}
	a.sched.Apply(scheduler.Config{Timezone: cfg.Timezone()})
	a.debug.Apply(ctx, mapDebugConfig(cfg))

	if old.ScheduleSpec() != cfg.ScheduleSpec() {
		if err := a.sched.AddSchedule(digestJob, cfg.ScheduleSpec(), 0, a.cycleJob); err != nil {
			a.log.Error("schedule update failed", logx.String("schedule", cfg.ScheduleSpec()), logx.Err(err))
			return
		}
		a.log.Info("schedule updated",
			logx.String("schedule", cfg.ScheduleSpec()),
			logx.Time("next_run", a.sched.Next(digestJob)),
		)
	}
}
