package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"belltower/internal/eventbus"
	"belltower/internal/notifier"
	"belltower/internal/schedule"
	"belltower/internal/storage"
	logx "belltower/pkg/logx"
)

// Config controls the runner service.
type Config struct {
	Enabled bool
	// Timezone is the IANA zone "today" is computed in, e.g. "Asia/Jakarta".
	// Empty means the process-local zone.
	Timezone string
	// CycleTimeout bounds one cycle's store read + enqueue work.
	CycleTimeout time.Duration
}

// Announcer receives each cycle's resolved triggers.
type Announcer interface {
	Announce(ctx context.Context, t notifier.Trigger) error
}

// CycleEvent is published on the bus after every cycle.
type CycleEvent struct {
	Day    string `json:"day"`
	Clock  string `json:"clock"`
	Events int    `json:"events"`
	Fired  int    `json:"fired"`
	Error  string `json:"error,omitempty"`
}

// Service drives the engine once per clock minute: it computes today's
// date and the truncated time once per cycle, reads one consistent store
// snapshot, resolves the trigger set, and hands it to the announcer.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	bus      eventbus.Bus
	store    storage.Store
	announce Announcer

	cfg Config
	loc *time.Location
	c   *cron.Cron

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time

	// lastMinute guards against a duplicate cron tick inside one minute.
	lastMinute time.Time
}

func New(cfg Config, store storage.Store, announce Announcer, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		bus:      bus,
		store:    store,
		announce: announce,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply updates the config. A timezone change restarts the cron loop in
// the new location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Debug("runner disabled")
		return
	}
	_ = ctx
	s.startLocked()
}

func (s *Service) startLocked() {
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithLocation(loc))
	// One entry, every minute. The cycle itself decides what fires.
	_, _ = s.c.AddFunc("* * * * *", s.tick)
	s.c.Start()
	s.log.Info("runner started", logx.String("tz", loc.String()))
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	s.startLocked()
	s.log.Info("runner restarted", logx.String("tz", s.loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("runner stopped")
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// tick runs one cycle. Each cycle carries its own error boundary: a store
// failure or panic is logged and published, and the next minute runs
// regardless.
func (s *Service) tick() {
	s.mu.Lock()
	if s.loc == nil {
		s.loc = s.loadLocationLocked()
	}
	loc := s.loc
	timeout := s.cfg.CycleTimeout
	s.mu.Unlock()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	now := s.now().In(loc).Truncate(time.Minute)

	s.mu.Lock()
	if now.Equal(s.lastMinute) {
		s.mu.Unlock()
		s.log.Debug("duplicate tick for minute; skipping", logx.Time("minute", now))
		return
	}
	s.lastMinute = now
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.runCycle(ctx, now)
}

func (s *Service) runCycle(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in runner cycle",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			s.publishCycle(CycleEvent{Error: fmt.Sprint(r)}, true)
		}
	}()

	// "Today" is computed once per cycle and passed down; nothing below
	// reads the clock again.
	day := schedule.DateOf(now)
	clock := schedule.ClockOf(now)

	snap, err := s.store.SnapshotForDay(ctx, day)
	if err != nil {
		s.log.Error("cycle store read failed",
			logx.String("day", day.String()),
			logx.String("clock", clock.String()),
			logx.Err(err),
		)
		s.publishCycle(CycleEvent{Day: day.String(), Clock: clock.String(), Error: err.Error()}, true)
		return
	}

	results := schedule.TriggersAt(snap.Events, snap.Lookup, day, clock)
	fired := 0
	for _, r := range results {
		t := notifier.Trigger{
			EventID: r.EventID,
			Name:    r.Name,
			Type:    r.Type,
			Day:     day,
			At:      r.At,
			VoiceID: r.VoiceID,
		}
		if err := s.announce.Announce(ctx, t); err != nil {
			s.log.Warn("trigger enqueue failed", logx.String("event", r.EventID), logx.Err(err))
			continue
		}
		fired++
	}

	if fired > 0 {
		s.log.Info("cycle fired triggers",
			logx.String("day", day.String()),
			logx.String("clock", clock.String()),
			logx.Int("fired", fired),
		)
	} else {
		s.log.Trace("cycle idle",
			logx.String("day", day.String()),
			logx.String("clock", clock.String()),
		)
	}
	s.publishCycle(CycleEvent{
		Day:    day.String(),
		Clock:  clock.String(),
		Events: len(snap.Events),
		Fired:  fired,
	}, false)
}

// Preview resolves the full plan for a date: everything that will fire
// that day, regardless of clock time. Used by the admin preview surface.
func (s *Service) Preview(ctx context.Context, day schedule.Date) ([]schedule.Result, error) {
	snap, err := s.store.SnapshotForDay(ctx, day)
	if err != nil {
		return nil, err
	}
	return schedule.DayPlan(snap.Events, snap.Lookup, day), nil
}

func (s *Service) publishCycle(e CycleEvent, failed bool) {
	if s.bus == nil {
		return
	}
	typ := eventbus.TypeCycleCompleted
	if failed {
		typ = eventbus.TypeCycleFailed
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: e})
}
