// Package schedule is the resolution engine: pure functions that map an
// event definition plus a calendar date (and clock minute) to the set of
// triggers that must fire.
//
// Nothing in this package reads the system clock or touches storage; all
// state arrives as input and misconfigured events fail closed (they
// resolve to "does not fire" instead of erroring). That keeps a single
// broken event from taking down the per-minute check for everything else.
package schedule

// Resolve decides whether ev fires on day and, if so, at what time.
//
// The check order is load-bearing: the active flag first, then the
// inactive-day exclusion (which wins over every recurrence mode,
// including an explicit date range that contains the day), then
// recurrence eligibility, then time selection.
func Resolve(ev Event, day Date, overrides OverrideLookup) (Result, bool) {
	if !ev.Active {
		return Result{}, false
	}
	wd := day.Weekday()
	if ev.InactiveDays.Has(wd) {
		return Result{}, false
	}

	eligible := false
	switch ev.Recurrence {
	case RecurDaily:
		eligible = withinBounds(ev, day)
	case RecurWeekly:
		eligible = ev.Weekdays.Has(wd) && withinBounds(ev, day)
	case RecurDateRange:
		// Both bounds are required; a half-open range never fires.
		eligible = ev.Start != nil && ev.End != nil &&
			!day.Before(*ev.Start) && !day.After(*ev.End)
	default:
		// Unrecognized mode: fail closed.
	}
	if !eligible {
		return Result{}, false
	}

	at, ok := effectiveTime(ev, day, overrides)
	if !ok {
		return Result{}, false
	}
	return Result{
		EventID: ev.ID,
		Name:    ev.Name,
		Type:    ev.Type,
		At:      at,
		VoiceID: ev.VoiceID,
	}, true
}

// withinBounds applies the optional Start/End restriction for daily and
// weekly events. Unset bounds do not restrict.
func withinBounds(ev Event, day Date) bool {
	if ev.Start != nil && day.Before(*ev.Start) {
		return false
	}
	if ev.End != nil && day.After(*ev.End) {
		return false
	}
	return true
}

func effectiveTime(ev Event, day Date, overrides OverrideLookup) (Clock, bool) {
	switch ev.TimeMode {
	case TimeFixed:
		if ev.FixedTime == nil {
			return Clock{}, false
		}
		return *ev.FixedTime, true
	case TimeCustom:
		if overrides != nil {
			if at, ok := overrides(ev.ID, day); ok {
				return at, true
			}
		}
		// No override for this date: fall back to the fixed time even
		// though the event is in custom mode.
		if ev.FixedTime != nil {
			return *ev.FixedTime, true
		}
		return Clock{}, false
	default:
		return Clock{}, false
	}
}
