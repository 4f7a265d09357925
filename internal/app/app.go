// Package app wires config, logging, the Notion pipeline, chat transports
// and the scheduler into the long-running digest bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"digestbot/internal/actions"
	"digestbot/internal/config"
	"digestbot/internal/digest"
	"digestbot/internal/dispatch"
	"digestbot/internal/notion"
	"digestbot/internal/observability/debugsrv"
	rtsup "digestbot/internal/runtime/supervisor"
	"digestbot/internal/task/scheduler"
	logx "digestbot/pkg/logx"
)

const digestJob = "digest.daily"

type Options struct {
	// EnvFile is loaded into the environment before the config is read.
	EnvFile string
	// Getenv overrides the environment lookup for secrets (tests).
	Getenv func(string) string
	// Users limits RunCycle to these user names (case-insensitive).
	Users []string
	// NoConsole disables console logging, e.g. when stdout carries output.
	NoConsole bool
	// Now overrides the clock (tests).
	Now func() time.Time
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	root logx.Logger
	log  logx.Logger
	logs *logx.Service

	disp  *dispatch.Dispatcher
	sched *scheduler.Service
	debug *debugsrv.Server

	// pipeline state, swapped on config reload
	mu        sync.Mutex
	cfg       *config.Config
	loc       *time.Location
	notion    *notion.Client
	fetcher   *actions.Fetcher
	assembler *digest.Assembler

	// cycleMu keeps cycles strictly sequential.
	cycleMu sync.Mutex

	statusMu  sync.Mutex
	lastCycle *CycleStatus
}

// CycleStatus describes the most recent digest cycle.
type CycleStatus struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Users      int       `json:"users"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

func NewApp(cfgPath string, opts Options) (*App, error) {
	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetGetenv(opts.Getenv)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	slack, telegram, err := buildSenders(cfg, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg, opts.NoConsole), slack)
	if cfg.Logging.Chat.Enabled && slack == nil {
		log.Warn("logging.chat enabled but no slack token; chat sink disabled")
	}

	a := &App{
		opts:  opts,
		cfgm:  cfgm,
		root:  log,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		disp:  dispatch.New(mapDispatchConfig(cfg), slack, telegram, log.With(logx.String("comp", "dispatch"))),
		sched: scheduler.New(scheduler.Config{Timezone: cfg.Timezone()}, log.With(logx.String("comp", "scheduler"))),
	}
	a.debug = debugsrv.New(log.With(logx.String("comp", "debug")), a.Status)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	if err := a.applyPipeline(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	if strings.TrimSpace(cfg.Notion.Token) == "" {
		a.log.Warn("notion token not set", logx.String("env", config.EnvNotionKey))
	}
	if slack == nil && telegram == nil && !cfg.Digest.DryRun {
		a.log.Warn("no chat transport configured; digests will be dropped",
			logx.String("env", config.EnvSlackKey))
	}
	a.log.Info("config loaded",
		logx.String("path", cfgPath),
		logx.Int("users", len(cfg.Users)),
		logx.String("tz", cfg.Timezone()),
		logx.String("schedule", cfg.ScheduleSpec()),
	)
	return a, nil
}

// applyPipeline rebuilds the config-derived Notion client, fetcher and
// assembler.
func (a *App) applyPipeline(cfg *config.Config) error {
	loc, err := loadLocation(cfg)
	if err != nil {
		return fmt.Errorf("digest.timezone: %w", err)
	}
	ncfg, err := mapNotionConfig(cfg)
	if err != nil {
		return err
	}
	nc := notion.New(ncfg, a.root.With(logx.String("comp", "notion")))
	f := actions.NewFetcher(nc, actions.Options{
		ActionsDB:          cfg.Notion.Databases.Actions,
		ExcludedStatuses:   cfg.ExcludedStatuses(),
		Location:           loc,
		SkipMalformedDates: cfg.Digest.SkipMalformedDates,
		Now:                a.opts.Now,
	}, a.root.With(logx.String("comp", "actions")))

	a.mu.Lock()
	a.cfg = cfg
	a.loc = loc
	a.notion = nc
	a.fetcher = f
	a.assembler = digest.New(cfg.Notion.Databases.Actions, loc, a.opts.Now)
	a.mu.Unlock()
	return nil
}

type pipeline struct {
	cfg       *config.Config
	loc       *time.Location
	notion    *notion.Client
	fetcher   *actions.Fetcher
	assembler *digest.Assembler
}

func (a *App) snapshot() pipeline {
	a.mu.Lock()
	defer a.mu.Unlock()
	return pipeline{cfg: a.cfg, loc: a.loc, notion: a.notion, fetcher: a.fetcher, assembler: a.assembler}
}

// Logger returns the app logger.
func (a *App) Logger() logx.Logger { return a.log }

// Config returns the active config.
func (a *App) Config() *config.Config { return a.snapshot().cfg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// IsFatal reports whether a cycle error must stop the process.
func IsFatal(err error) bool {
	var de *actions.DateError
	return errors.As(err, &de)
}

func (a *App) selected(u config.User) bool {
	if len(a.opts.Users) == 0 {
		return true
	}
	for _, n := range a.opts.Users {
		if strings.EqualFold(strings.TrimSpace(n), strings.TrimSpace(u.Name)) {
			return true
		}
	}
	return false
}

// RunCycle builds and sends one digest per configured user, sequentially.
// A malformed date aborts the cycle with a *actions.DateError.
func (a *App) RunCycle(ctx context.Context) (err error) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	p := a.snapshot()
	start := a.opts.Now()
	var (
		total dispatch.Result
		users int
	)
	defer func() {
		st := &CycleStatus{StartedAt: start, FinishedAt: a.opts.Now(), Users: users, Sent: total.Sent, Failed: total.Failed}
		if err != nil {
			st.Error = err.Error()
		}
		a.statusMu.Lock()
		a.lastCycle = st
		a.statusMu.Unlock()
	}()
	a.log.Info("daily process starting", logx.String("at", start.In(p.loc).Format(digest.TimestampLayout)))

	for _, u := range p.cfg.Users {
		if !a.selected(u) {
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		users++
		ulog := a.log.With(logx.String("user", u.Name))
		ulog.Info("generating digest", logx.Int("items", int(u.Items)))

		lines, ferr := p.fetcher.Fetch(ctx, u.NotionID, int(u.Items))
		if ferr != nil {
			return fmt.Errorf("digest for %s: %w", u.Name, ferr)
		}
		res := a.disp.Send(ctx, u, p.assembler.Assemble(u.Name, lines))
		total.Add(res)
		ulog.Info("digest dispatched", logx.Int("actions", len(lines)), logx.Int("sent", res.Sent), logx.Int("failed", res.Failed))
	}
	if users == 0 && len(a.opts.Users) > 0 {
		return fmt.Errorf("no configured user matches %s", strings.Join(a.opts.Users, ", "))
	}

	fields := []logx.Field{
		logx.Int("users", users),
		logx.Int("sent", total.Sent),
		logx.Int("failed", total.Failed),
		logx.Duration("took", a.opts.Now().Sub(start)),
	}
	if next, nerr := scheduler.NextRun(p.cfg.ScheduleSpec(), a.opts.Now(), p.loc); nerr == nil && !next.IsZero() {
		fields = append(fields,
			logx.String("next_run", next.Format(digest.TimestampLayout)),
			logx.Int64("seconds_until", int64(next.Sub(a.opts.Now()).Seconds())),
		)
	}
	a.log.Info("complete", fields...)
	return nil
}

// Status is the document served by the debug listener at /status.
func (a *App) Status() any {
	p := a.snapshot()
	a.statusMu.Lock()
	last := a.lastCycle
	a.statusMu.Unlock()

	doc := map[string]any{
		"schedule": p.cfg.ScheduleSpec(),
		"timezone": p.cfg.Timezone(),
		"users":    len(p.cfg.Users),
		"dry_run":  p.cfg.Digest.DryRun,
	}
	if next := a.sched.Next(digestJob); !next.IsZero() {
		doc["next_run"] = next
	}
	if last != nil {
		doc["last_cycle"] = last
	}
	return doc
}

// Preview fetches and assembles the digest for one user without sending it.
func (a *App) Preview(ctx context.Context, name string) ([]string, error) {
	p := a.snapshot()
	u, ok := p.cfg.FindUser(name)
	if !ok {
		return nil, fmt.Errorf("user %q not found in config", name)
	}
	lines, err := p.fetcher.Fetch(ctx, u.NotionID, int(u.Items))
	if err != nil {
		return nil, err
	}
	return p.assembler.Assemble(u.Name, lines), nil
}

// ListUsers lists Notion person users, optionally filtered by name.
func (a *App) ListUsers(ctx context.Context, include ...string) ([]notion.Person, error) {
	return a.snapshot().notion.ListUsers(ctx, include...)
}

// cycleJob runs a cycle and escalates fatal errors to the supervisor.
func (a *App) cycleJob(ctx context.Context) error {
	err := a.RunCycle(ctx)
	if err != nil && IsFatal(err) {
		a.log.Error("fatal cycle error", logx.Err(err))
		a.sup.Fail(err)
	}
	return err
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.root.With(logx.String("comp", "supervisor"))), rtsup.WithCancelOnError(true))
	cfg := a.Config()

	if err := a.sched.AddSchedule(digestJob, cfg.ScheduleSpec(), 0, a.cycleJob); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	a.sched.Start(a.sup.Context())
	a.debug.Apply(a.sup.Context(), mapDebugConfig(cfg))

	if cfg.RunOnStart() {
		a.sup.Go("cycle.startup", func(c context.Context) error {
			if err := a.RunCycle(c); err != nil && IsFatal(err) {
				a.log.Error("fatal cycle error", logx.Err(err))
				return err
			} else if err != nil {
				a.log.Warn("startup cycle failed", logx.Err(err))
			}
			return nil
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.String("schedule", cfg.ScheduleSpec()),
		logx.Time("next_run", a.sched.Next(digestJob)),
		logx.Bool("run_on_start", cfg.RunOnStart()),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error {
		a.sched.Stop(c)
		return nil
	})
	a.step(ctx, "debug", 2*time.Second, func(c context.Context) error {
		a.debug.Stop(c)
		return nil
	})
	a.step(ctx, "supervisor", 10*time.Second, func(c context.Context) error {
		return a.sup.Wait(c)
	})
	a.log.Info("stopped", logx.String("reason", string(reason)))
	_ = a.logs.Close()
	return a.sup.Err()
}

// Close releases logging resources for apps that were never started.
func (a *App) Close() error {
	return a.logs.Close()
}
