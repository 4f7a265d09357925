package app

import (
	"errors"
	"strings"
	"time"

	"digestbot/internal/config"
	"digestbot/internal/dispatch"
	"digestbot/internal/notion"
	"digestbot/internal/observability/debugsrv"
	"digestbot/internal/transport"
	slacktransport "digestbot/internal/transport/slack"
	telegramtransport "digestbot/internal/transport/telegram"
	logx "digestbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config, noConsole bool) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console && !noConsole,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			Channel:    cfg.Logging.Chat.Channel,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapNotionConfig(cfg *config.Config) (notion.Config, error) {
	timeout, err := config.ParseDurationOrDefault("notion.timeout", cfg.Notion.Timeout, notion.DefaultTimeout)
	if err != nil {
		return notion.Config{}, err
	}
	return notion.Config{
		Token:      cfg.Notion.Token,
		BaseURL:    cfg.Notion.BaseURL,
		Version:    cfg.Notion.Version,
		RatePerSec: cfg.Notion.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	return debugsrv.Config{
		Enabled:              cfg.Debug.Enabled,
		Address:              cfg.Debug.Address,
		BlockProfileRate:     cfg.Debug.BlockProfileRate,
		MutexProfileFraction: cfg.Debug.MutexProfileFraction,
	}
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{
		DryRun:   cfg.Digest.DryRun,
		Slack:    dispatch.Pace{RatePerSec: cfg.Slack.RatePerSec, Burst: cfg.Slack.Burst},
		Telegram: dispatch.Pace{RatePerSec: cfg.Telegram.RatePerSec},
	}
}

// buildSenders constructs the chat transports that have credentials.
// Missing transports are returned as nil interfaces.
func buildSenders(cfg *config.Config, log logx.Logger) (slack, telegram transport.Sender, err error) {
	if strings.TrimSpace(cfg.Slack.Token) != "" {
		s, err := slacktransport.New(slacktransport.Config{
			Token:  cfg.Slack.Token,
			APIURL: cfg.Slack.APIURL,
		}, log.With(logx.String("comp", "slack")))
		if err != nil {
			return nil, nil, err
		}
		slack = s
	}
	tgTok := strings.TrimSpace(cfg.Telegram.Token)
	if cfg.Telegram.Enabled && tgTok == "" {
		return nil, nil, errors.New("telegram.enabled is true but no token is set (TELEGRAM_TOKEN or telegram.token)")
	}
	if tgTok != "" {
		t, err := telegramtransport.New(telegramtransport.Config{
			Token:   tgTok,
			URL:     cfg.Telegram.URL,
			Timeout: 15 * time.Second,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, nil, err
		}
		telegram = t
	}
	return slack, telegram, nil
}

func loadLocation(cfg *config.Config) (*time.Location, error) {
	return time.LoadLocation(cfg.Timezone())
}
