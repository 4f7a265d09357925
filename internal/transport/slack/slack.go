// Package slack posts digest messages through the Slack Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"digestbot/internal/transport"
	logx "digestbot/pkg/logx"
)

// ErrNoToken is returned by New when no bot token is configured.
var ErrNoToken = errors.New("slack: token is empty")

type Config struct {
	Token string
	// APIURL overrides the Web API base URL; it must end with "/".
	APIURL  string
	Timeout time.Duration
}

type Sender struct {
	api *slack.Client
	log logx.Logger
}

var _ transport.Sender = (*Sender)(nil)

func New(cfg Config, log logx.Logger) (*Sender, error) {
	tok := strings.TrimSpace(cfg.Token)
	if tok == "" {
		return nil, ErrNoToken
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: timeout})}
	if u := strings.TrimSpace(cfg.APIURL); u != "" {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		opts = append(opts, slack.OptionAPIURL(u))
	}
	return &Sender{api: slack.New(tok, opts...), log: log}, nil
}

func (s *Sender) Name() string { return "slack" }

// Send posts text as a plain message to a channel or user id.
func (s *Sender) Send(ctx context.Context, to string, text string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return transport.ErrNoDestination
	}
	_, ts, err := s.api.PostMessageContext(ctx, to, slack.MsgOptionText(text, false))
	if err != nil {
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) {
			s.log.Warn("rate limited", logx.String("channel", to), logx.Duration("retry_after", rl.RetryAfter))
		}
		return fmt.Errorf("slack: post to %s: %w", to, err)
	}
	s.log.Debug("message posted", logx.String("channel", to), logx.String("ts", ts))
	return nil
}
