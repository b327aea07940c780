package runner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"belltower/internal/eventbus"
	"belltower/internal/notifier"
	"belltower/internal/schedule"
	"belltower/internal/storage"
	logx "belltower/pkg/logx"
)

type captureAnnouncer struct {
	mu       sync.Mutex
	triggers []notifier.Trigger
}

func (c *captureAnnouncer) Announce(_ context.Context, t notifier.Trigger) error {
	c.mu.Lock()
	c.triggers = append(c.triggers, t)
	c.mu.Unlock()
	return nil
}

func (c *captureAnnouncer) snapshot() []notifier.Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notifier.Trigger(nil), c.triggers...)
}

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "belltower.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedEvent(t *testing.T, st storage.Store, name string, h, m int) schedule.Event {
	t.Helper()
	at := schedule.NewClock(h, m)
	ev, err := st.CreateEvent(context.Background(), schedule.Event{
		Name:       name,
		Type:       "prayer",
		Active:     true,
		Recurrence: schedule.RecurDaily,
		TimeMode:   schedule.TimeFixed,
		FixedTime:  &at,
		VoiceID:    "voice-" + name,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return ev
}

func TestRunCycleFiresMatchingEvents(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	fajr := seedEvent(t, st, "fajr", 5, 0)
	seedEvent(t, st, "dhuhr", 12, 0)

	sink := &captureAnnouncer{}
	svc := New(Config{Enabled: true}, st, sink, logx.Nop(), nil)

	now := time.Date(2024, time.March, 5, 5, 0, 0, 0, time.UTC)
	svc.runCycle(context.Background(), now)

	got := sink.snapshot()
	if len(got) != 1 {
		t.Fatalf("triggers = %+v, want only fajr", got)
	}
	tr := got[0]
	if tr.EventID != fajr.ID || tr.At != schedule.NewClock(5, 0) || tr.VoiceID != "voice-fajr" {
		t.Fatalf("trigger mismatch: %+v", tr)
	}
	if tr.Day != schedule.NewDate(2024, time.March, 5) {
		t.Fatalf("trigger day = %s", tr.Day)
	}
}

func TestTickSkipsDuplicateMinute(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	seedEvent(t, st, "fajr", 5, 0)

	sink := &captureAnnouncer{}
	svc := New(Config{Enabled: true, Timezone: "UTC"}, st, sink, logx.Nop(), nil)
	fixed := time.Date(2024, time.March, 5, 5, 0, 12, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	svc.tick()
	svc.tick()

	if got := sink.snapshot(); len(got) != 1 {
		t.Fatalf("duplicate tick announced %d times, want 1", len(got))
	}

	// Next minute runs again.
	fixed = fixed.Add(time.Minute)
	svc.tick()
	// 05:01 has no event, so still one trigger but the cycle ran (no skip log path to assert; the guard is time-based).
	if got := sink.snapshot(); len(got) != 1 {
		t.Fatalf("unexpected triggers after next minute: %+v", got)
	}
}

func TestCycleErrorIsIsolated(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	sink := &captureAnnouncer{}
	svc := New(Config{Enabled: true}, st, sink, logx.Nop(), bus)

	// Force the store read to fail.
	_ = st.Close()

	now := time.Date(2024, time.March, 5, 5, 0, 0, 0, time.UTC)
	svc.runCycle(context.Background(), now)

	select {
	case e := <-events:
		if e.Type != eventbus.TypeCycleFailed {
			t.Fatalf("event type = %s, want cycle.failed", e.Type)
		}
		ce, ok := e.Data.(CycleEvent)
		if !ok || ce.Error == "" {
			t.Fatalf("cycle event = %+v, want error populated", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no cycle event published")
	}
	if len(sink.snapshot()) != 0 {
		t.Fatal("failed cycle must not announce")
	}
}

func TestPreviewReturnsSortedPlan(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	seedEvent(t, st, "isha", 19, 30)
	seedEvent(t, st, "fajr", 5, 0)

	// Custom-mode event with an override for the preview day.
	at := schedule.NewClock(12, 0)
	maghrib, err := st.CreateEvent(context.Background(), schedule.Event{
		Name:       "maghrib",
		Active:     true,
		Recurrence: schedule.RecurDaily,
		TimeMode:   schedule.TimeCustom,
		FixedTime:  &at,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	day := schedule.NewDate(2024, time.March, 5)
	if err := st.PutOverride(context.Background(), storage.Override{
		EventID: maghrib.ID, Day: day, At: schedule.NewClock(18, 12),
	}); err != nil {
		t.Fatalf("PutOverride: %v", err)
	}

	svc := New(Config{Enabled: true}, st, &captureAnnouncer{}, logx.Nop(), nil)
	plan, err := svc.Preview(context.Background(), day)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}

	names := make([]string, 0, len(plan))
	for _, r := range plan {
		names = append(names, r.Name)
	}
	want := []string{"fajr", "maghrib", "isha"}
	for i := range want {
		if i >= len(names) || names[i] != want[i] {
			t.Fatalf("plan order = %v, want %v", names, want)
		}
	}
	if plan[1].At != schedule.NewClock(18, 12) {
		t.Fatalf("override time not applied: %+v", plan[1])
	}
}
