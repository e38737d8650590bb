package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"event-access/internal/access"
)

type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) LockParticipant(ctx context.Context, id string) (access.Participant, bool, error) {
	// Serializes concurrent scans of the same participant until commit.
	p, err := scanParticipant(t.tx.QueryRowContext(ctx, participantSelect+`
WHERE p.id = $1
FOR UPDATE OF p`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Participant{}, false, nil
	}
	if err != nil {
		return access.Participant{}, false, fmt.Errorf("lock participant: %w", err)
	}
	return p, true, nil
}

func (t *storeTx) LastAccess(ctx context.Context, participantID, eventID string) (access.LogEntry, bool, error) {
	e, err := scanLogEntry(t.tx.QueryRowContext(ctx, `
SELECT `+logColumns+`
FROM access_logs l
WHERE l.participant_id = $1 AND l.event_id = $2
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
	const q = `
INSERT INTO access_logs (
  id, participant_id, event_id, type, gate, location,
  operator_id, operator_name, operator_email, device_id, device_name, device_ip,
  verification_method, notes, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
`
	_, err := t.tx.ExecContext(ctx, q,
		e.ID,
		e.ParticipantID,
		e.EventID,
		string(e.Type),
		e.Gate,
		e.Location,
		e.OperatorID,
		e.OperatorName,
		e.OperatorEmail,
		e.DeviceID,
		e.DeviceName,
		e.DeviceIP,
		string(e.VerificationMethod),
		e.Notes,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

// The upserts take the stats row lock, so concurrent writers for one event
// queue on it until commit. unique_visitors is recounted separately.
const upsertEntry = `
INSERT INTO access_stats (
  event_id, current_inside_count, total_entries, total_exits, unique_visitors,
  peak_count, peak_time, last_entry_at, last_exit_at, updated_at
) VALUES ($1, 1, 1, 0, 1, 1, $2, $2, NULL, $2)
ON CONFLICT (event_id) DO UPDATE SET
  current_inside_count = access_stats.current_inside_count + 1,
  total_entries        = access_stats.total_entries + 1,
  peak_time            = CASE WHEN access_stats.current_inside_count + 1 > access_stats.peak_count
                              THEN EXCLUDED.peak_time ELSE access_stats.peak_time END,
  peak_count           = GREATEST(access_stats.peak_count, access_stats.current_inside_count + 1),
  last_entry_at        = EXCLUDED.last_entry_at,
  updated_at           = EXCLUDED.updated_at
`

const upsertExit = `
INSERT INTO access_stats (
  event_id, current_inside_count, total_entries, total_exits, unique_visitors,
  peak_count, peak_time, last_entry_at, last_exit_at, updated_at
) VALUES ($1, 0, 0, 1, 0, 0, NULL, NULL, $2, $2)
ON CONFLICT (event_id) DO UPDATE SET
  current_inside_count = GREATEST(access_stats.current_inside_count - 1, 0),
  total_exits          = access_stats.total_exits + 1,
  last_exit_at         = EXCLUDED.last_exit_at,
  updated_at           = EXCLUDED.updated_at
`

const recountVisitors = `
UPDATE access_stats
SET unique_visitors = (
  SELECT COUNT(DISTINCT participant_id) FROM access_logs WHERE event_id = $1 AND type = 'ENTRY'
)
WHERE event_id = $1
RETURNING ` + statsColumns

func (t *storeTx) ApplyAccess(ctx context.Context, eventID string, typ access.Type, at time.Time) (access.Stats, error) {
	at = at.UTC()
	var err error
	switch typ {
	case access.TypeEntry:
		_, err = t.tx.ExecContext(ctx, upsertEntry, eventID, at)
	case access.TypeExit:
		_, err = t.tx.ExecContext(ctx, upsertExit, eventID, at)
	default:
		return access.Stats{}, fmt.Errorf("unknown access type %q", typ)
	}
	if err != nil {
		return access.Stats{}, fmt.Errorf("apply %s: %w", typ, err)
	}

	st, err := scanStats(t.tx.QueryRowContext(ctx, recountVisitors, eventID))
	if err != nil {
		return access.Stats{}, fmt.Errorf("recount visitors: %w", err)
	}
	return st, nil
}

func (t *storeTx) LockStats(ctx context.Context, eventID string) (access.Stats, bool, error) {
	return getStats(ctx, t.tx, eventID, true)
}

func (t *storeTx) EventLog(ctx context.Context, eventID string) ([]access.LogEntry, error) {
	return eventLog(ctx, t.tx, eventID, time.Time{})
}

func (t *storeTx) PutStats(ctx context.Context, s access.Stats) error {
	const q = `
INSERT INTO access_stats (
  event_id, current_inside_count, total_entries, total_exits, unique_visitors,
  peak_count, peak_time, last_entry_at, last_exit_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (event_id) DO UPDATE SET
  current_inside_count = EXCLUDED.current_inside_count,
  total_entries        = EXCLUDED.total_entries,
  total_exits          = EXCLUDED.total_exits,
  unique_visitors      = EXCLUDED.unique_visitors,
  peak_count           = EXCLUDED.peak_count,
  peak_time            = EXCLUDED.peak_time,
  last_entry_at        = EXCLUDED.last_entry_at,
  last_exit_at         = EXCLUDED.last_exit_at,
  updated_at           = EXCLUDED.updated_at
`
	_, err := t.tx.ExecContext(ctx, q,
		s.EventID,
		s.CurrentInsideCount,
		s.TotalEntries,
		s.TotalExits,
		s.UniqueVisitors,
		s.PeakCount,
		timeOrNil(s.PeakTime),
		timeOrNil(s.LastEntryAt),
		timeOrNil(s.LastExitAt),
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put stats: %w", err)
	}
	return nil
}
