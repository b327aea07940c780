package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"belltower/internal/eventbus"
	"belltower/internal/schedule"
	logx "belltower/pkg/logx"
)

func testTrigger(id string) Trigger {
	return Trigger{
		EventID: id,
		Name:    id,
		Day:     schedule.NewDate(2024, time.March, 5),
		At:      schedule.NewClock(5, 0),
		VoiceID: "voice-" + id,
	}
}

func TestAnnounceDeliversToSinks(t *testing.T) {
	t.Parallel()
	got := make(chan Trigger, 4)

	svc := New(Config{Enabled: true, Workers: 1}, logx.Nop(), nil)
	svc.AddSink(FuncSink{SinkName: "capture", Fn: func(_ context.Context, tr Trigger) error {
		got <- tr
		return nil
	}})
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if err := svc.Announce(context.Background(), testTrigger("fajr")); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	select {
	case tr := <-got:
		if tr.EventID != "fajr" || tr.VoiceID != "voice-fajr" {
			t.Fatalf("delivered trigger mismatch: %+v", tr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("trigger was not delivered")
	}
}

func TestAnnounceDedupsSameOccurrence(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	got := make(chan Trigger, 4)
	svc := New(Config{Enabled: true, Workers: 1, DedupWindow: time.Hour}, logx.Nop(), bus)
	svc.AddSink(FuncSink{Fn: func(_ context.Context, tr Trigger) error {
		got <- tr
		return nil
	}})
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	tr := testTrigger("dhuhr")
	if err := svc.Announce(context.Background(), tr); err != nil {
		t.Fatalf("first Announce: %v", err)
	}
	if err := svc.Announce(context.Background(), tr); err != nil {
		t.Fatalf("duplicate Announce: %v", err)
	}

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("first occurrence was not delivered")
	}

	// The duplicate must surface as a dedup event, not a second delivery.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == eventbus.TypeTriggerDeduped {
				select {
				case extra := <-got:
					t.Fatalf("duplicate was delivered: %+v", extra)
				default:
				}
				return
			}
		case <-deadline:
			t.Fatal("no dedup event observed")
		}
	}
}

func TestAnnounceDistinctMinutesBothDeliver(t *testing.T) {
	t.Parallel()
	got := make(chan Trigger, 4)
	svc := New(Config{Enabled: true, Workers: 1, DedupWindow: time.Hour}, logx.Nop(), nil)
	svc.AddSink(FuncSink{Fn: func(_ context.Context, tr Trigger) error {
		got <- tr
		return nil
	}})
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	a := testTrigger("isha")
	b := a
	b.At = schedule.NewClock(19, 30)

	if err := svc.Announce(context.Background(), a); err != nil {
		t.Fatalf("Announce a: %v", err)
	}
	if err := svc.Announce(context.Background(), b); err != nil {
		t.Fatalf("Announce b: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatalf("delivery %d missing", i+1)
		}
	}
}

func TestAnnounceDisabledAndStopped(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: false}, logx.Nop(), nil)
	if err := svc.Announce(context.Background(), testTrigger("x")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled: err = %v, want ErrDisabled", err)
	}

	svc = New(Config{Enabled: true}, logx.Nop(), nil)
	// Never started: intake is closed.
	if err := svc.Announce(context.Background(), testTrigger("x")); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started: err = %v, want ErrStopped", err)
	}
}

func TestRetryOnSinkFailure(t *testing.T) {
	t.Parallel()
	attempts := make(chan int, 8)
	n := 0
	svc := New(Config{
		Enabled:   true,
		Workers:   1,
		RetryMax:  2,
		RetryBase: time.Millisecond,
	}, logx.Nop(), nil)
	svc.AddSink(FuncSink{Fn: func(_ context.Context, _ Trigger) error {
		n++
		attempts <- n
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	}})
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if err := svc.Announce(context.Background(), testTrigger("retry")); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case a := <-attempts:
			if a == 3 {
				return
			}
		case <-deadline:
			t.Fatalf("sink retried %d times, want 3", n)
		}
	}
}
