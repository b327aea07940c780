package schedule

import (
	"reflect"
	"testing"
	"time"
)

func TestTriggersAtExactMatchAndOrder(t *testing.T) {
	t.Parallel()
	day := NewDate(2024, time.March, 5)

	at := func(id string, h, m int) Event {
		ev := fixedEvent(id)
		ev.FixedTime = clockPtr(h, m)
		return ev
	}
	absent := fixedEvent("absent")
	absent.Active = false

	events := []Event{
		at("a", 5, 0),
		at("b", 5, 0),
		absent,
		at("c", 5, 1),
		at("d", 5, 0),
	}

	got := TriggersAt(events, nil, day, NewClock(5, 0))
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.EventID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "d"}) {
		t.Fatalf("05:00 triggers = %v, want [a b d]", ids)
	}

	got = TriggersAt(events, nil, day, NewClock(5, 1))
	if len(got) != 1 || got[0].EventID != "c" {
		t.Fatalf("05:01 triggers = %+v, want only c", got)
	}

	if got := TriggersAt(events, nil, day, NewClock(5, 2)); len(got) != 0 {
		t.Fatalf("05:02 triggers = %+v, want none", got)
	}
}

func TestTriggersAtDeterministic(t *testing.T) {
	t.Parallel()
	day := NewDate(2024, time.March, 5)

	events := make([]Event, 0, 8)
	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		ev := fixedEvent(id)
		ev.TimeMode = TimeCustom
		events = append(events, ev)
	}
	ov := Overrides{}
	ov.Put("e2", day, NewClock(5, 0))
	ov.Put("e3", day, NewClock(4, 45))

	first := TriggersAt(events, ov.Lookup, day, NewClock(5, 0))
	second := TriggersAt(events, ov.Lookup, day, NewClock(5, 0))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different output:\n%+v\n%+v", first, second)
	}
}

func TestTriggersAtNilEvents(t *testing.T) {
	t.Parallel()
	if got := TriggersAt(nil, nil, NewDate(2024, time.March, 5), NewClock(5, 0)); len(got) != 0 {
		t.Fatalf("nil events: got %+v, want empty", got)
	}
}

func TestDayPlanSortedByTimeStable(t *testing.T) {
	t.Parallel()
	day := NewDate(2024, time.March, 5)

	at := func(id string, h, m int) Event {
		ev := fixedEvent(id)
		ev.FixedTime = clockPtr(h, m)
		return ev
	}
	events := []Event{
		at("isha", 19, 30),
		at("fajr", 5, 0),
		at("announce", 12, 0),
		at("dhuhr", 12, 0),
		at("never", 9, 0),
	}
	events[4].Recurrence = RecurDateRange // bounds missing: never eligible

	plan := DayPlan(events, nil, day)
	ids := make([]string, 0, len(plan))
	for _, r := range plan {
		ids = append(ids, r.EventID)
	}
	want := []string{"fajr", "announce", "dhuhr", "isha"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("plan order = %v, want %v", ids, want)
	}
}

func TestDayPlanHonorsWeekday(t *testing.T) {
	t.Parallel()
	weekly := fixedEvent("friday-khutbah")
	weekly.Recurrence = RecurWeekly
	weekly.Weekdays = Weekdays(time.Friday)

	friday := NewDate(2024, time.March, 8)
	saturday := NewDate(2024, time.March, 9)

	if plan := DayPlan([]Event{weekly}, nil, friday); len(plan) != 1 {
		t.Fatalf("friday plan = %+v, want one entry", plan)
	}
	if plan := DayPlan([]Event{weekly}, nil, saturday); len(plan) != 0 {
		t.Fatalf("saturday plan = %+v, want empty", plan)
	}
}
