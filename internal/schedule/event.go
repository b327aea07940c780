package schedule

// Recurrence selects which calendar dates an event is eligible on,
// before exclusions are applied.
type Recurrence string

const (
	// RecurDaily fires every day, optionally restricted by Start/End bounds.
	RecurDaily Recurrence = "daily"
	// RecurWeekly fires on the days in Weekdays, optionally restricted by bounds.
	RecurWeekly Recurrence = "weekly"
	// RecurDateRange fires every day between Start and End inclusive.
	// Both bounds are required; without them the event never fires.
	RecurDateRange Recurrence = "range"
)

// TimeMode selects how the effective trigger time is determined on an
// eligible date.
type TimeMode string

const (
	// TimeFixed uses FixedTime on every eligible date.
	TimeFixed TimeMode = "fixed"
	// TimeCustom uses the per-date override when one exists, falling back
	// to FixedTime otherwise.
	TimeCustom TimeMode = "custom"
)

// Event is an operator-defined trigger: a recurrence rule, a time rule,
// and an opaque reference to the audio asset to announce with.
//
// The engine consumes events read-only; the store owns their lifecycle.
type Event struct {
	ID     string
	Name   string
	Type   string
	Active bool

	Recurrence Recurrence
	// Weekdays is meaningful only for RecurWeekly. A weekly event with an
	// empty set never fires.
	Weekdays WeekdaySet
	// Start/End are optional inclusive bounds for daily and weekly events,
	// and required for RecurDateRange. nil means unset.
	Start *Date
	End   *Date
	// InactiveDays suppresses the event on these weekdays regardless of
	// recurrence mode. Checked before eligibility.
	InactiveDays WeekdaySet

	TimeMode TimeMode
	// FixedTime is required for TimeFixed and is the fallback for
	// TimeCustom. nil means unset.
	FixedTime *Clock

	// VoiceID names the audio asset. Opaque to the engine.
	VoiceID string
}

// OverrideLookup resolves the per-date time override for an event, if any.
// Used only under TimeCustom. A nil lookup behaves as "no overrides".
type OverrideLookup func(eventID string, day Date) (Clock, bool)

// Overrides is a convenience in-memory override table keyed by event id.
type Overrides map[string]map[Date]Clock

// Lookup adapts the table to an OverrideLookup.
func (o Overrides) Lookup(eventID string, day Date) (Clock, bool) {
	c, ok := o[eventID][day]
	return c, ok
}

// Put records an override, replacing any existing one for the same day.
func (o Overrides) Put(eventID string, day Date, at Clock) {
	m := o[eventID]
	if m == nil {
		m = map[Date]Clock{}
		o[eventID] = m
	}
	m[day] = at
}

// Result is a single resolved trigger: event ev fires at At on the
// queried date, announcing VoiceID. Pass-through fields identify the event
// to downstream sinks.
type Result struct {
	EventID string
	Name    string
	Type    string
	At      Clock
	VoiceID string
}
