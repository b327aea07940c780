package schedule

import (
	"testing"
	"time"
)

func TestParseDateAndBack(t *testing.T) {
	t.Parallel()
	d, err := ParseDate("2024-03-05")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if d != NewDate(2024, time.March, 5) {
		t.Fatalf("unexpected date: %+v", d)
	}
	if s := d.String(); s != "2024-03-05" {
		t.Fatalf("String() = %q", s)
	}
	if d.Weekday() != time.Tuesday {
		t.Fatalf("weekday = %s, want Tuesday", d.Weekday())
	}

	if _, err := ParseDate("05/03/2024"); err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}

func TestDateOrdering(t *testing.T) {
	t.Parallel()
	a := NewDate(2024, time.February, 29)
	b := NewDate(2024, time.March, 1)
	if !a.Before(b) || b.Before(a) {
		t.Fatal("Before ordering broken across month boundary")
	}
	if !b.After(a) {
		t.Fatal("After ordering broken")
	}
	if a.AddDays(1) != b {
		t.Fatalf("AddDays across leap day: got %s", a.AddDays(1))
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Clock
		ok   bool
	}{
		{"05:00", NewClock(5, 0), true},
		{"23:59", NewClock(23, 59), true},
		{" 07:30 ", NewClock(7, 30), true},
		{"24:00", Clock{}, false},
		{"12:60", Clock{}, false},
		{"noon", Clock{}, false},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.raw)
		if tt.ok != (err == nil) {
			t.Fatalf("ParseClock(%q) err = %v, ok want %v", tt.raw, err, tt.ok)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("ParseClock(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestClockOfTruncatesToMinute(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, time.March, 5, 5, 0, 42, 999, time.UTC)
	if c := ClockOf(now); c != NewClock(5, 0) {
		t.Fatalf("ClockOf = %v, want 05:00", c)
	}
}

func TestWeekdaySet(t *testing.T) {
	t.Parallel()
	s := Weekdays(time.Monday, time.Wednesday)
	if !s.Has(time.Monday) || !s.Has(time.Wednesday) {
		t.Fatal("members missing")
	}
	if s.Has(time.Sunday) || s.Has(time.Saturday) {
		t.Fatal("unexpected members")
	}
	if s.String() != "Mon,Wed" {
		t.Fatalf("String() = %q", s.String())
	}
	if !WeekdaySet(0).IsEmpty() {
		t.Fatal("zero set should be empty")
	}
}
