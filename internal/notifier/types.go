package notifier

import (
	"time"

	"belltower/internal/schedule"
)

// Config controls the async trigger pipeline.
type Config struct {
	Enabled     bool
	Workers     int
	QueueSize   int
	RatePerSec  int
	RetryMax    int
	RetryBase   time.Duration
	DedupWindow time.Duration
	HistorySize int
}

// Trigger is one resolved announcement handed to the pipeline: event ev
// fires at At on Day, playing VoiceID. The pipeline does not interpret
// VoiceID; delivery targets decide what to do with it.
type Trigger struct {
	EventID string
	Name    string
	Type    string
	Day     schedule.Date
	At      schedule.Clock
	VoiceID string
}

// Key identifies a trigger occurrence for dedup: the same event firing at
// the same minute of the same day is announced at most once per window,
// so a repeated or overlapping cycle cannot double-announce.
func (t Trigger) Key() string {
	return t.EventID + "|" + t.Day.String() + "|" + t.At.String()
}

type HistoryItem struct {
	At      time.Time
	Trigger Trigger
	Sink    string
	Error   string
}

// TriggerEvent is emitted on the event bus for pipeline lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type TriggerEvent struct {
	EventID string `json:"event_id"`
	Name    string `json:"name"`
	Day     string `json:"day"`
	Clock   string `json:"clock"`
	VoiceID string `json:"voice_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

func busEvent(t Trigger, errText string) TriggerEvent {
	return TriggerEvent{
		EventID: t.EventID,
		Name:    t.Name,
		Day:     t.Day.String(),
		Clock:   t.At.String(),
		VoiceID: t.VoiceID,
		Error:   errText,
	}
}
