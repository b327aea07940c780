// Package ics serializes a resolved day plan to an iCalendar document.
//
// One VEVENT per resolution result: the event's effective minute on the
// requested day, with the voice ID and event type in the description.
// This backs the "what fires today" preview surface.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"belltower/internal/schedule"
)

// Export renders the plan for one day. Times are emitted in loc; a nil
// loc means UTC. The result order follows the plan (already sorted by
// effective time).
func Export(calName string, day schedule.Date, plan []schedule.Result, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//belltower//day plan//EN")
	if calName != "" {
		cal.SetXWRCalName(calName)
	}

	stamp := time.Now().UTC()
	for _, r := range plan {
		uid := fmt.Sprintf("%s-%s@belltower", r.EventID, day)
		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(stamp)

		start := r.At.At(day, loc)
		ve.SetStartAt(start)
		ve.SetEndAt(start.Add(time.Minute))
		ve.SetSummary(r.Name)

		desc := "type: " + r.Type
		if r.VoiceID != "" {
			desc += "\nvoice: " + r.VoiceID
		}
		ve.SetDescription(desc)
	}

	return cal.Serialize()
}
