package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"chispitas/pkg/logx"
)

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		runner: runner,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		once:   map[string]*onceDef{},
		busy:   map[string]*atomic.Bool{},
	}
}

// Location is the zone daily triggers are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		return s.loadLocationLocked()
	}
	return s.loc
}

// Apply takes a new config. A timezone change restarts cron with every
// daily registration.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c != nil && changed {
		<-s.c.Stop().Done()
		s.startCronLocked()
	}
}

// Start begins triggering. Registrations made before Start are kept and
// activated here.
func (s *Service) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.startCronLocked()
}

func (s *Service) startCronLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.daily {
		s.addCronLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("daily", len(s.daily)))
}

// Stop halts cron and every pending one-shot timer. Running jobs are not
// interrupted; they end with the Runner's context.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	for name, d := range s.once {
		d.timer.Stop()
		delete(s.once, name)
	}
	s.tmu.Unlock()
	s.log.Info("scheduler stopped")
}

// AddDaily runs job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

// AddCron registers a cron spec, replacing any schedule with the same name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.Remove(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	d := &dailyDef{name: name, spec: spec, timeout: timeout, job: job}
	s.daily = append(s.daily, d)
	if s.c != nil {
		s.addCronLocked(d)
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

func (s *Service) addCronLocked(d *dailyDef) {
	id, err := s.c.AddFunc(d.spec, func() { s.exec(d.name, d.timeout, d.job) })
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.Err(err))
		return
	}
	d.entryID = id
}

// AddOnce runs job once at at, replacing any schedule with the same name.
// A time in the past fires immediately.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name required")
	}
	if at.IsZero() {
		return fmt.Errorf("at required")
	}
	s.Remove(name)

	s.tmu.Lock()
	defer s.tmu.Unlock()
	s.ver++
	d := &onceDef{at: at, timeout: timeout, job: job, ver: s.ver}
	d.timer = time.AfterFunc(max(time.Until(at), 0), func() { s.fireOnce(name, d.ver) })
	s.once[name] = d
	s.log.Debug("one-shot registered", logx.String("name", name), logx.Time("at", at))
	return nil
}

// fireOnce ignores callbacks from timers that were replaced or removed.
func (s *Service) fireOnce(name string, ver uint64) {
	s.tmu.Lock()
	d, ok := s.once[name]
	if !ok || d.ver != ver {
		s.tmu.Unlock()
		return
	}
	delete(s.once, name)
	s.tmu.Unlock()
	s.exec(name, d.timeout, d.job)
}

// Remove drops every schedule named name and reports whether one existed.
func (s *Service) Remove(name string) bool {
	removed := false

	s.mu.Lock()
	n := 0
	for _, d := range s.daily {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.daily[n] = d
		n++
	}
	s.daily = s.daily[:n]
	s.mu.Unlock()

	s.tmu.Lock()
	if d, ok := s.once[name]; ok {
		d.timer.Stop()
		delete(s.once, name)
		removed = true
	}
	s.tmu.Unlock()
	return removed
}

// Pending reports the due time of one-shot name, if registered.
func (s *Service) Pending(name string) (time.Time, bool) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[name]
	if !ok {
		return time.Time{}, false
	}
	return d.at, true
}

// Schedules lists registrations with their next fire time.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	now := time.Now().In(loc)
	out := make([]ScheduleInfo, 0, len(s.daily))
	for _, d := range s.daily {
		info := ScheduleInfo{Name: d.name, Kind: "daily", Spec: d.spec}
		if sched, err := s.parser.Parse(d.spec); err == nil {
			info.Next = sched.Next(now)
		}
		out = append(out, info)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	for name, d := range s.once {
		out = append(out, ScheduleInfo{Name: name, Kind: "once", Spec: "@once", Next: d.at.In(loc)})
	}
	s.tmu.Unlock()
	return out
}

// exec runs one job unless the previous run of name is still active.
func (s *Service) exec(name string, timeout time.Duration, job Job) {
	s.busyMu.Lock()
	flag, ok := s.busy[name]
	if !ok {
		flag = &atomic.Bool{}
		s.busy[name] = flag
	}
	s.busyMu.Unlock()
	if !flag.CompareAndSwap(false, true) {
		s.log.Warn("job skipped; previous run still active", logx.String("name", name))
		return
	}

	run := func(ctx context.Context) error {
		defer flag.Store(false)
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		err := job(ctx)
		if err != nil {
			s.log.Warn("job failed", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
			return nil
		}
		s.log.Debug("job done", logx.String("name", name), logx.Duration("took", time.Since(start)))
		return nil
	}

	if s.runner != nil {
		s.runner.Go("job:"+name, run)
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				flag.Store(false)
				s.log.Error("job panicked", logx.String("name", name), logx.Any("panic", r))
			}
		}()
		_ = run(context.Background())
	}()
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

func parseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil || !strings.Contains(s, ":") {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	if hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
