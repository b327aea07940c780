package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"belltower/internal/schedule"
	logx "belltower/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- events ----

const eventColumns = `id, name, type, active, recurrence, weekdays, inactive_days,
	start_day, end_day, time_mode, fixed_time, voice_id`

func (s *sqliteStore) CreateEvent(ctx context.Context, ev schedule.Event) (schedule.Event, error) {
	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Name, ev.Type, boolInt(ev.Active), string(ev.Recurrence),
		int(ev.Weekdays), int(ev.InactiveDays),
		nullDate(ev.Start), nullDate(ev.End),
		string(ev.TimeMode), nullClock(ev.FixedTime), nullStr(ev.VoiceID),
		now, now,
	)
	if err != nil {
		return schedule.Event{}, mapSQLErr(err)
	}
	return ev, nil
}

func (s *sqliteStore) UpdateEvent(ctx context.Context, ev schedule.Event) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET name=?, type=?, active=?, recurrence=?, weekdays=?,
		 inactive_days=?, start_day=?, end_day=?, time_mode=?, fixed_time=?,
		 voice_id=?, updated_at=? WHERE id=?`,
		ev.Name, ev.Type, boolInt(ev.Active), string(ev.Recurrence),
		int(ev.Weekdays), int(ev.InactiveDays),
		nullDate(ev.Start), nullDate(ev.End),
		string(ev.TimeMode), nullClock(ev.FixedTime), nullStr(ev.VoiceID),
		now, ev.ID,
	)
	if err != nil {
		return mapSQLErr(err)
	}
	return requireRow(res)
}

func (s *sqliteStore) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id=?`, id)
	if err != nil {
		return mapSQLErr(err)
	}
	return requireRow(res)
}

func (s *sqliteStore) GetEvent(ctx context.Context, id string) (schedule.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=?`, id)
	ev, err := scanEvent(row)
	if err != nil {
		return schedule.Event{}, err
	}
	return ev, nil
}

func (s *sqliteStore) ListEvents(ctx context.Context, activeOnly bool) ([]schedule.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events ORDER BY created_at, id`
	if activeOnly {
		q = `SELECT ` + eventColumns + ` FROM events WHERE active=1 ORDER BY created_at, id`
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (schedule.Event, error) {
	var (
		ev         schedule.Event
		active     int
		recurrence string
		weekdays   int
		inactive   int
		startDay   sql.NullString
		endDay     sql.NullString
		timeMode   string
		fixedTime  sql.NullString
		voiceID    sql.NullString
	)
	err := r.Scan(&ev.ID, &ev.Name, &ev.Type, &active, &recurrence, &weekdays,
		&inactive, &startDay, &endDay, &timeMode, &fixedTime, &voiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Event{}, ErrNotFound
	}
	if err != nil {
		return schedule.Event{}, err
	}

	ev.Active = active != 0
	ev.Recurrence = schedule.Recurrence(recurrence)
	ev.Weekdays = schedule.WeekdaySet(weekdays)
	ev.InactiveDays = schedule.WeekdaySet(inactive)
	ev.TimeMode = schedule.TimeMode(timeMode)
	ev.VoiceID = voiceID.String

	if ev.Start, err = parseNullDate(startDay); err != nil {
		return schedule.Event{}, err
	}
	if ev.End, err = parseNullDate(endDay); err != nil {
		return schedule.Event{}, err
	}
	if ev.FixedTime, err = parseNullClock(fixedTime); err != nil {
		return schedule.Event{}, err
	}
	return ev, nil
}

func collectEvents(rows *sql.Rows) ([]schedule.Event, error) {
	out := make([]schedule.Event, 0, 16)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ---- overrides ----

func (s *sqliteStore) PutOverride(ctx context.Context, o Override) error {
	// Upsert: at most one time per event per day.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overrides (event_id, day, at) VALUES (?,?,?)
		 ON CONFLICT(event_id, day) DO UPDATE SET at=excluded.at`,
		o.EventID, o.Day.String(), o.At.String(),
	)
	return mapSQLErr(err)
}

func (s *sqliteStore) DeleteOverride(ctx context.Context, eventID string, day schedule.Date) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM overrides WHERE event_id=? AND day=?`, eventID, day.String())
	if err != nil {
		return mapSQLErr(err)
	}
	return requireRow(res)
}

func (s *sqliteStore) ListOverrides(ctx context.Context, eventID string) ([]Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, day, at FROM overrides WHERE event_id=? ORDER BY day`, eventID)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	defer rows.Close()

	out := make([]Override, 0, 8)
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOverride(r rowScanner) (Override, error) {
	var (
		o   Override
		day string
		at  string
	)
	if err := r.Scan(&o.EventID, &day, &at); err != nil {
		return Override{}, err
	}
	var err error
	if o.Day, err = schedule.ParseDate(day); err != nil {
		return Override{}, err
	}
	if o.At, err = schedule.ParseClock(at); err != nil {
		return Override{}, err
	}
	return o, nil
}

// ---- snapshot ----

func (s *sqliteStore) SnapshotForDay(ctx context.Context, day schedule.Date) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Snapshot{}, mapSQLErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE active=1 ORDER BY created_at, id`)
	if err != nil {
		return Snapshot{}, mapSQLErr(err)
	}
	events, err := collectEvents(rows)
	rows.Close()
	if err != nil {
		return Snapshot{}, err
	}

	ovRows, err := tx.QueryContext(ctx,
		`SELECT event_id, at FROM overrides WHERE day=?`, day.String())
	if err != nil {
		return Snapshot{}, mapSQLErr(err)
	}
	overrides := map[string]schedule.Clock{}
	for ovRows.Next() {
		var id, at string
		if err := ovRows.Scan(&id, &at); err != nil {
			ovRows.Close()
			return Snapshot{}, err
		}
		c, err := schedule.ParseClock(at)
		if err != nil {
			ovRows.Close()
			return Snapshot{}, err
		}
		overrides[id] = c
	}
	if err := ovRows.Err(); err != nil {
		ovRows.Close()
		return Snapshot{}, err
	}
	ovRows.Close()

	if err := tx.Commit(); err != nil {
		return Snapshot{}, mapSQLErr(err)
	}
	return Snapshot{Day: day, Events: events, Overrides: overrides}, nil
}

// ---- voices ----

func (s *sqliteStore) CreateVoice(ctx context.Context, v Voice) (Voice, error) {
	if strings.TrimSpace(v.ID) == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO voices (id, name, path, sha256, size, created_at) VALUES (?,?,?,?,?,?)`,
		v.ID, v.Name, v.Path, v.SHA256, v.Size, v.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Voice{}, mapSQLErr(err)
	}
	return v, nil
}

func (s *sqliteStore) GetVoice(ctx context.Context, id string) (Voice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, sha256, size, created_at FROM voices WHERE id=?`, id)
	return scanVoice(row)
}

func (s *sqliteStore) ListVoices(ctx context.Context) ([]Voice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, path, sha256, size, created_at FROM voices ORDER BY created_at, id`)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	defer rows.Close()

	out := make([]Voice, 0, 8)
	for rows.Next() {
		v, err := scanVoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteVoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM voices WHERE id=?`, id)
	if err != nil {
		return mapSQLErr(err)
	}
	return requireRow(res)
}

func scanVoice(r rowScanner) (Voice, error) {
	var (
		v       Voice
		created string
	)
	err := r.Scan(&v.ID, &v.Name, &v.Path, &v.SHA256, &v.Size, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Voice{}, ErrNotFound
	}
	if err != nil {
		return Voice{}, err
	}
	if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		v.CreatedAt = t
	}
	return v, nil
}

// ---- helpers ----

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullDate(d *schedule.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullClock(c *schedule.Clock) any {
	if c == nil {
		return nil
	}
	return c.String()
}

func parseNullDate(v sql.NullString) (*schedule.Date, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil, nil
	}
	d, err := schedule.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseNullClock(v sql.NullString) (*schedule.Clock, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil, nil
	}
	c, err := schedule.ParseClock(v.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapSQLErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	// modernc.org/sqlite surfaces constraint failures as plain errors.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
