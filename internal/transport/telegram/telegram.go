// Package telegram sends digests to Telegram chats through telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"digestbot/internal/transport"
	logx "digestbot/pkg/logx"
)

// Telegram rejects messages over 4096 characters; leave some headroom.
const textLimit = 4000

type Config struct {
	Token string
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL     string
	Timeout time.Duration
}

type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

var _ transport.Sender = (*Sender)(nil)

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// Offline skips getMe at construction; the bot only sends.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.URL, "/"),
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b, log: log}, nil
}

func (s *Sender) Name() string { return "telegram" }

// Send posts text to the numeric chat id in to. Long texts are split on
// newline boundaries.
func (s *Sender) Send(ctx context.Context, to string, text string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return transport.ErrNoDestination
	}
	id, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", to)
	}
	chat := &tele.Chat{ID: id}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return fmt.Errorf("telegram: send to %d: %w", id, err)
		}
	}
	return nil
}

// splitText splits s into chunks of at most limit runes, preferring newline
// boundaries when the chunk would not get too small.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}
