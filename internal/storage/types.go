package storage

import (
	"context"
	"errors"
	"time"

	"belltower/internal/schedule"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated
	// (e.g. two overrides for the same event and day).
	ErrConflict = errors.New("conflict")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./belltower.db" }
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Override is an explicit (event, day) -> time exception record.
// Meaningful only while the owning event is in custom time mode.
type Override struct {
	EventID string
	Day     schedule.Date
	At      schedule.Clock
}

// Voice is a registered audio asset. The engine treats the ID as opaque;
// SHA256 is the content identifier of the imported file.
type Voice struct {
	ID        string
	Name      string
	Path      string
	SHA256    string
	Size      int64
	CreatedAt time.Time
}

// Snapshot is a consistent read of everything one resolution cycle needs:
// the candidate events and the overrides that apply to a single day, read
// in one transaction so an event and its override come from the same
// moment in time.
type Snapshot struct {
	Day       schedule.Date
	Events    []schedule.Event
	Overrides map[string]schedule.Clock // event id -> override time for Day
}

// Lookup adapts the snapshot's per-day override map to the engine's
// lookup contract. Days other than the snapshot day have no overrides.
func (s Snapshot) Lookup(eventID string, day schedule.Date) (schedule.Clock, bool) {
	if day != s.Day {
		return schedule.Clock{}, false
	}
	at, ok := s.Overrides[eventID]
	return at, ok
}

// Store is the persistence API for events, per-date overrides, and voice
// assets. The resolution engine never touches it directly; the runner
// reads snapshots and the admin surfaces mutate through it.
type Store interface {
	CreateEvent(ctx context.Context, ev schedule.Event) (schedule.Event, error)
	UpdateEvent(ctx context.Context, ev schedule.Event) error
	DeleteEvent(ctx context.Context, id string) error
	GetEvent(ctx context.Context, id string) (schedule.Event, error)
	ListEvents(ctx context.Context, activeOnly bool) ([]schedule.Event, error)

	PutOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, eventID string, day schedule.Date) error
	ListOverrides(ctx context.Context, eventID string) ([]Override, error)

	// SnapshotForDay reads active events plus that day's overrides in a
	// single transaction.
	SnapshotForDay(ctx context.Context, day schedule.Date) (Snapshot, error)

	CreateVoice(ctx context.Context, v Voice) (Voice, error)
	GetVoice(ctx context.Context, id string) (Voice, error)
	ListVoices(ctx context.Context) ([]Voice, error)
	DeleteVoice(ctx context.Context, id string) error

	Close() error
}
