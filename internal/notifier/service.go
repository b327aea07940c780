package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"belltower/internal/eventbus"
	rtsup "belltower/internal/runtime/supervisor"
	logx "belltower/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service implements the async trigger pipeline:
// queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	sinks []Sink

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Trigger
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// In-memory dedup cache: trigger key -> suppress until.
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		bus:   bus,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// AddSink registers a delivery target. Call before Start.
func (s *Service) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.DedupWindow <= 0 {
		// Two minutes covers a duplicate cron tick within the same minute
		// plus a slow previous cycle.
		cfg.DedupWindow = 2 * time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so a minute with many simultaneous
	// triggers doesn't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan Trigger, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers

	// Pipeline failures should not take down the whole app; treat as best-effort.
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("worker.%d", i)
		sup.Go(name, func(c context.Context) error {
			s.workerLoop(c, q)
			return context.Canceled
		})
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers drain.
		s.sendWG.Wait()
		func() {
			defer func() { _ = recover() }()
			close(q)
		}()
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Announce enqueues a trigger for delivery. Duplicate occurrences inside
// the dedup window are silently suppressed.
func (s *Service) Announce(ctx context.Context, t Trigger) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if !s.dedupAllow(t.Key(), window) {
		s.publish(eventbus.TypeTriggerDeduped, t, "")
		return nil
	}

	select {
	case q <- t:
		return nil
	default:
		s.publish(eventbus.TypeTriggerDropped, t, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

// Snapshot returns recent delivery history, newest last.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Trigger) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, t)
		}
	}
}

func (s *Service) deliver(ctx context.Context, t Trigger) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	maxAttempts := 1 + cfg.RetryMax
	for _, sink := range sinks {
		var lastErr error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := sink.Deliver(callCtx, t)
			cancel()
			if err == nil {
				lastErr = nil
				break
			}
			lastErr = err
			s.log.Debug("trigger delivery failed",
				logx.String("sink", sink.Name()),
				logx.String("event", t.EventID),
				logx.Int("attempt", attempt),
				logx.Err(err),
			)
			if attempt >= maxAttempts {
				break
			}
			delay := cfg.RetryBase << uint(attempt-1)
			tmr := time.NewTimer(delay)
			select {
			case <-tmr.C:
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				return
			}
		}

		item := HistoryItem{At: time.Now(), Trigger: t, Sink: sink.Name()}
		if lastErr != nil {
			item.Error = lastErr.Error()
			s.log.Warn("trigger delivery gave up",
				logx.String("sink", sink.Name()),
				logx.String("event", t.EventID),
				logx.Err(lastErr),
			)
		}
		s.appendHistory(item, cfg.HistorySize)
	}

	s.publish(eventbus.TypeTriggerFired, t, "")
}

func (s *Service) appendHistory(item HistoryItem, max int) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	// Prune expired entries while we hold the lock.
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	return true
}

func (s *Service) publish(typ string, t Trigger, errText string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: busEvent(t, errText)})
}
