package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables holding secrets. They win over config file values.
const (
	EnvNotionKey     = "NOTION_API_KEY"
	EnvSlackKey      = "SLACK_API_KEY"
	EnvTelegramToken = "TELEGRAM_TOKEN"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set are left untouched. A missing file is not an error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overlays secrets from the environment onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvNotionKey)); v != "" {
		cfg.Notion.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvSlackKey)); v != "" {
		cfg.Slack.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
}
