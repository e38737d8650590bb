package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"event-access/internal/access"
)

// storeTx runs on the worker goroutine, so SQLite's single writer lock is
// already held for the whole unit.
type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) LockParticipant(ctx context.Context, id string) (access.Participant, bool, error) {
	return getParticipant(ctx, t.tx, id)
}

func (t *storeTx) LastAccess(ctx context.Context, participantID, eventID string) (access.LogEntry, bool, error) {
	e, err := scanLogEntry(t.tx.QueryRowContext(ctx, `
SELECT `+logColumns+`
FROM access_logs l
WHERE l.participant_id = ? AND l.event_id = ?
ORDER BY l.created_at DESC, l.id DESC
LIMIT 1`, participantID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return access.LogEntry{}, false, nil
	}
	if err != nil {
		return access.LogEntry{}, false, fmt.Errorf("last access: %w", err)
	}
	return e, true, nil
}

func (t *storeTx) AppendAccess(ctx context.Context, e access.LogEntry) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO access_logs (
  id, participant_id, event_id, type, gate, location,
  operator_id, operator_name, operator_email, device_id, device_name, device_ip,
  verification_method, notes, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ParticipantID, e.EventID, string(e.Type), e.Gate, e.Location,
		e.OperatorID, e.OperatorName, e.OperatorEmail, e.DeviceID, e.DeviceName, e.DeviceIP,
		string(e.VerificationMethod), e.Notes, toMicros(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

const upsertEntry = `
INSERT INTO access_stats (
  event_id, current_inside_count, total_entries, total_exits, unique_visitors,
  peak_count, peak_time, last_entry_at, last_exit_at, updated_at
) VALUES (?, 1, 1, 0, 1, 1, ?, ?, NULL, ?)
ON CONFLICT (event_id) DO UPDATE SET
  current_inside_count = access_stats.current_inside_count + 1,
  total_entries        = access_stats.total_entries + 1,
  peak_time            = CASE WHEN access_stats.current_inside_count + 1 > access_stats.peak_count
                              THEN excluded.peak_time ELSE access_stats.peak_time END,
  peak_count           = MAX(access_stats.peak_count, access_stats.current_inside_count + 1),
  last_entry_at        = excluded.last_entry_at,
  updated_at           = excluded.updated_at`

const upsertExit = `
INSERT INTO access_stats (
  event_id, current_inside_count, total_entries, total_exits, unique_visitors,
  peak_count, peak_time, last_entry_at, last_exit_at, updated_at
) VALUES (?, 0, 0, 1, 0, 0, NULL, NULL, ?, ?)
ON CONFLICT (event_id) DO UPDATE SET
  current_inside_count = MAX(access_stats.current_inside_count - 1, 0),
  total_exits          = access_stats.total_exits + 1,
  last_exit_at         = excluded.last_exit_at,
  updated_at           = excluded.updated_at`

const recountVisitors = `
UPDATE access_stats
SET unique_visitors = (
  SELECT COUNT(DISTINCT participant_id) FROM access_logs WHERE event_id = ? AND type = 'ENTRY'
)
WHERE event_id = ?`

func (t *storeTx) ApplyAccess(ctx context.Context, eventID string, typ access.Type, at time.Time) (access.Stats, error) {
	ts := toMicros(at)
	var err error
	switch typ {
	case access.TypeEntry:
		_, err = t.tx.ExecContext(ctx, upsertEntry, eventID, ts, ts, ts)
	case access.TypeExit:
		_, err = t.tx.ExecContext(ctx, upsertExit, eventID, ts, ts)
	default:
		return access.Stats{}, fmt.Errorf("unknown access type %q", typ)
	}
	if err != nil {
		return access.Stats{}, fmt.Errorf("upsert stats: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, recountVisitors, eventID, eventID); err != nil {
		return access.Stats{}, fmt.Errorf("recount visitors: %w", err)
	}

	st, ok, err := getStats(ctx, t.tx, eventID)
	if err != nil {
		return access.Stats{}, err
	}
	if !ok {
		return access.Stats{}, fmt.Errorf("stats row for %s vanished", eventID)
	}
	return st, nil
}

func (t *storeTx) LockStats(ctx context.Context, eventID string) (access.Stats, bool, error) {
	return getStats(ctx, t.tx, eventID)
}

func (t *storeTx) EventLog(ctx context.Context, eventID string) ([]access.LogEntry, error) {
	return eventLog(ctx, t.tx, eventID, time.Time{})
}

func (t *storeTx) PutStats(ctx context.Context, s access.Stats) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO access_stats (
  event_id, current_inside_count, total_entries, total_exits, unique_visitors,
  peak_count, peak_time, last_entry_at, last_exit_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_id) DO UPDATE SET
  current_inside_count = excluded.current_inside_count,
  total_entries        = excluded.total_entries,
  total_exits          = excluded.total_exits,
  unique_visitors      = excluded.unique_visitors,
  peak_count           = excluded.peak_count,
  peak_time            = excluded.peak_time,
  last_entry_at        = excluded.last_entry_at,
  last_exit_at         = excluded.last_exit_at,
  updated_at           = excluded.updated_at`,
		s.EventID, s.CurrentInsideCount, s.TotalEntries, s.TotalExits, s.UniqueVisitors,
		s.PeakCount, microsOrNil(s.PeakTime), microsOrNil(s.LastEntryAt), microsOrNil(s.LastExitAt),
		toMicros(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put stats: %w", err)
	}
	return nil
}
