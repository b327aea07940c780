package schedule

import "sort"

// DayPlan resolves every event for the given date and returns all triggers
// for that day, sorted by effective time ascending. Events with equal
// times keep their relative input order, so identical inputs always yield
// identical output.
//
// A nil or empty events slice yields an empty plan.
func DayPlan(events []Event, overrides OverrideLookup, day Date) []Result {
	out := make([]Result, 0, len(events))
	for _, ev := range events {
		if r, ok := Resolve(ev, day, overrides); ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.Minutes() < out[j].At.Minutes()
	})
	return out
}

// TriggersAt returns the triggers whose effective time equals clock
// exactly (minute resolution, not a range match) on the given date.
// Ordering follows DayPlan: time ascending, input order on ties.
func TriggersAt(events []Event, overrides OverrideLookup, day Date, clock Clock) []Result {
	plan := DayPlan(events, overrides, day)
	out := plan[:0]
	for _, r := range plan {
		if r.At == clock {
			out = append(out, r)
		}
	}
	return out
}
