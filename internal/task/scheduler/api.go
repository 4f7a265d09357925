package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "digestbot/pkg/logx"
)

// AddSchedule parses schedule (see ParseSchedule) and registers job under
// name, replacing any schedule with the same name.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	return s.AddCron(name, ps.Cron, timeout, job)
}

// AddDaily runs job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name string, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name so hot reloads don't duplicate schedules.
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job})
	if s.c != nil {
		s.registerLocked(&s.defs[len(s.defs)-1])
	}
	return nil
}

// Remove unschedules name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Next returns the next trigger time of name, or the zero time if unknown.
func (s *Service) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			return s.c.Entry(d.entryID).Next
		}
		sched, err := s.parser.Parse(d.spec)
		if err != nil {
			return time.Time{}
		}
		return sched.Next(time.Now().In(s.loadLocationLocked()))
	}
	return time.Time{}
}

// Schedules lists registered schedules sorted by name.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Spec: d.spec}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// removeLocked drops all defs named name and unregisters them from cron.
// Call with s.mu held.
func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// registerLocked adds d to the running cron. Call with s.mu held.
func (s *Service) registerLocked(d *scheduleDef) {
	name, timeout, run := d.name, d.timeout, d.job
	base := s.base
	job := cron.FuncJob(func() {
		ctx := base
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(base, timeout)
			defer cancel()
		}
		start := time.Now()
		s.log.Debug("job triggered", logx.String("name", name))
		if err := run(ctx); err != nil {
			s.log.Error("job failed", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
			return
		}
		s.log.Debug("job finished", logx.String("name", name), logx.Duration("took", time.Since(start)))
	})

	eid, err := s.c.AddJob(d.spec, job)
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = eid
	args := []logx.Field{logx.String("name", d.name), logx.String("spec", d.spec)}
	if next := s.previewNextRunsLocked(d.spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.loc = s.loadLocationLocked()
	s.c = s.newCronLocked()
	for i := range s.defs {
		s.registerLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewNextRunsLocked returns upcoming run times for spec, only when debug
// logging is on. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
