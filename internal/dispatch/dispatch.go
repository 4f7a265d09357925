// Package dispatch delivers a user's digest messages to their chat
// destinations, one message per line, in order.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"digestbot/internal/config"
	"digestbot/internal/transport"
	logx "digestbot/pkg/logx"
)

// Pace limits outgoing messages for one transport.
type Pace struct {
	RatePerSec int
	Burst      int
}

type Config struct {
	DryRun   bool
	Slack    Pace
	Telegram Pace
}

// Result summarizes one Send call.
type Result struct {
	Sent   int
	Failed int
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Sent += o.Sent
	r.Failed += o.Failed
}

type Dispatcher struct {
	log logx.Logger

	mu       sync.Mutex
	cfg      Config
	senders  map[string]transport.Sender
	limiters map[string]*rate.Limiter
}

// New builds a dispatcher. Either sender may be nil when that transport is
// not configured.
func New(cfg Config, slack, telegram transport.Sender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{log: log, senders: map[string]transport.Sender{}}
	if slack != nil {
		d.senders["slack"] = slack
	}
	if telegram != nil {
		d.senders["telegram"] = telegram
	}
	d.Apply(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.limiters = map[string]*rate.Limiter{
		"slack":    newLimiter(cfg.Slack),
		"telegram": newLimiter(cfg.Telegram),
	}
}

func newLimiter(p Pace) *rate.Limiter {
	rps := p.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	burst := p.Burst
	if burst <= 0 {
		burst = 3
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Send posts every line to each destination the user has. A failed line is
// logged and counted; the remaining lines are still sent.
func (d *Dispatcher) Send(ctx context.Context, u config.User, lines []string) Result {
	var res Result
	if to := strings.TrimSpace(u.SlackID); to != "" {
		res.Add(d.sendAll(ctx, "slack", to, u.Name, lines))
	}
	if to := strings.TrimSpace(u.TelegramID); to != "" {
		res.Add(d.sendAll(ctx, "telegram", to, u.Name, lines))
	}
	return res
}

func (d *Dispatcher) sendAll(ctx context.Context, name, to, user string, lines []string) Result {
	// Snapshot mutable dependencies to avoid races with Apply().
	d.mu.Lock()
	sender := d.senders[name]
	lim := d.limiters[name]
	dry := d.cfg.DryRun
	d.mu.Unlock()

	log := d.log.With(logx.String("transport", name), logx.String("to", to), logx.String("user", user))
	var res Result
	if dry {
		for i, line := range lines {
			log.Info("dry run message", logx.Int("n", i), logx.String("text", line))
			res.Sent++
		}
		return res
	}
	if sender == nil {
		log.Warn("transport not configured, digest dropped", logx.Int("lines", len(lines)))
		res.Failed = len(lines)
		return res
	}

	start := time.Now()
	for i, line := range lines {
		if err := lim.Wait(ctx); err != nil {
			res.Failed += len(lines) - i
			log.Warn("send aborted", logx.Int("remaining", len(lines)-i), logx.Err(err))
			return res
		}
		if err := sender.Send(ctx, to, line); err != nil {
			res.Failed++
			log.Error("error publishing message", logx.Int("n", i), logx.Err(err))
			continue
		}
		res.Sent++
	}
	log.Debug("digest sent", logx.Int("sent", res.Sent), logx.Int("failed", res.Failed), logx.Duration("took", time.Since(start)))
	return res
}
