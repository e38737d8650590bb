package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"event-access/internal/access"
	"event-access/internal/db"
)

// Store is the access store for single-node deployments on SQLite.
// Reads use the shared handle; every Atomic unit runs on the db.Worker.
type Store struct {
	db     *sql.DB
	writer *db.Worker
}

var _ access.Store = (*Store)(nil)

func New(conn *sql.DB, writer *db.Worker) *Store {
	return &Store{db: conn, writer: writer}
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx access.Tx) error) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &storeTx{tx: tx})
	})
}

func (s *Store) GetParticipant(ctx context.Context, id string) (access.Participant, bool, error) {
	return getParticipant(ctx, s.db, id)
}

func getParticipant(ctx context.Context, q querier, id string) (access.Participant, bool, error) {
	p, err := scanParticipant(q.QueryRowContext(ctx, participantSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Participant{}, false, nil
	}
	if err != nil {
		return access.Participant{}, false, fmt.Errorf("get participant: %w", err)
	}
	return p, true, nil
}

func (s *Store) FindParticipants(ctx context.Context, eventID string, ident access.Identifier, limit int) ([]access.Participant, error) {
	var where string
	switch ident.Kind {
	case access.IdentifierFullID:
		where = `p.id = ?`
	case access.IdentifierShortID:
		where = `lower(substr(p.id, 1, 8)) = ?`
	case access.IdentifierNationalID:
		where = `p.cpf = ?`
	default:
		return nil, fmt.Errorf("unknown identifier kind %d", ident.Kind)
	}
	args := []any{ident.Value}
	if eventID != "" {
		where += ` AND p.event_id = ?`
		args = append(args, eventID)
	}
	if limit <= 0 {
		limit = 1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, participantSelect+` WHERE `+where+` ORDER BY p.created_at, p.id LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("find participants: %w", err)
	}
	return collectParticipants(rows)
}

func (s *Store) GetEvent(ctx context.Context, ref string) (access.Event, bool, error) {
	const q = `
SELECT e.id, e.name, e.code, e.slug, e.status, e.start_date, e.end_date, e.max_capacity,
       (SELECT COUNT(*) FROM participants p WHERE p.event_id = e.id)
FROM events e
WHERE e.id = ? OR e.slug = ? OR e.code = ?
ORDER BY (e.id = ?) DESC
LIMIT 1`
	var ev access.Event
	var start, end sql.NullInt64
	err := s.db.QueryRowContext(ctx, q, ref, ref, ref, ref).Scan(
		&ev.ID,
		&ev.Name,
		&ev.Code,
		&ev.Slug,
		&ev.Status,
		&start,
		&end,
		&ev.MaxCapacity,
		&ev.RegisteredCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Event{}, false, nil
	}
	if err != nil {
		return access.Event{}, false, fmt.Errorf("get event: %w", err)
	}
	ev.StartDate = nullMicros(start)
	ev.EndDate = nullMicros(end)
	return ev, true, nil
}

func (s *Store) GetStats(ctx context.Context, eventID string) (access.Stats, bool, error) {
	return getStats(ctx, s.db, eventID)
}

func getStats(ctx context.Context, q querier, eventID string) (access.Stats, bool, error) {
	st, err := scanStats(q.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM access_stats WHERE event_id = ?`, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Stats{}, false, nil
	}
	if err != nil {
		return access.Stats{}, false, fmt.Errorf("get stats: %w", err)
	}
	return st, true, nil
}

func (s *Store) ParticipantLog(ctx context.Context, participantID, eventID string) ([]access.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+logColumns+`
FROM access_logs l
WHERE l.participant_id = ? AND l.event_id = ?
ORDER BY l.created_at, l.id`, participantID, eventID)
	if err != nil {
		return nil, fmt.Errorf("participant log: %w", err)
	}
	return collectLog(rows)
}

func (s *Store) EventLog(ctx context.Context, eventID string, since time.Time) ([]access.LogEntry, error) {
	return eventLog(ctx, s.db, eventID, since)
}

func eventLog(ctx context.Context, q querier, eventID string, since time.Time) ([]access.LogEntry, error) {
	var from int64
	if !since.IsZero() {
		from = toMicros(since)
	}
	rows, err := q.QueryContext(ctx, `
SELECT `+logColumns+`
FROM access_logs l
WHERE l.event_id = ? AND l.created_at >= ?
ORDER BY l.created_at, l.id`, eventID, from)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	return collectLog(rows)
}

func (s *Store) ListLogs(ctx context.Context, f access.LogFilter) ([]access.LogRow, int, error) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		clauses = append(clauses, clause)
		args = append(args, arg)
	}
	if f.EventID != "" {
		add(`l.event_id = ?`, f.EventID)
	}
	if f.ParticipantID != "" {
		add(`l.participant_id = ?`, f.ParticipantID)
	}
	if f.Type != "" {
		add(`l.type = ?`, string(f.Type))
	}
	if f.Gate != "" {
		add(`l.gate = ?`, f.Gate)
	}
	if f.From != nil {
		add(`l.created_at >= ?`, toMicros(*f.From))
	}
	if f.To != nil {
		add(`l.created_at <= ?`, toMicros(*f.To))
	}
	where := ""
	if len(clauses) > 0 {
		where = ` WHERE ` + strings.Join(clauses, ` AND `)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_logs l`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	pageArgs := append(append([]any{}, args...), limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, `
SELECT `+logColumns+`,
       p.id, COALESCE(p.event_id, ''), p.cpf, p.name, p.email, p.phone, p.face_image_url,
       p.approval_status, COALESCE(s.code, ''), COALESCE(s.name, ''), p.created_at,
       COALESCE(e.name, '')
FROM access_logs l
JOIN participants p ON p.id = l.participant_id
LEFT JOIN stands s ON s.id = p.stand_id
LEFT JOIN events e ON e.id = l.event_id`+where+`
ORDER BY l.created_at DESC, l.id DESC
LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	out := make([]access.LogRow, 0)
	for rows.Next() {
		var r access.LogRow
		var status string
		var pCreated int64
		e, err := scanLogEntry(rows,
			&r.Participant.ID,
			&r.Participant.EventID,
			&r.Participant.NationalID,
			&r.Participant.Name,
			&r.Participant.Email,
			&r.Participant.Phone,
			&r.Participant.FaceImageURL,
			&status,
			&r.Participant.StandCode,
			&r.Participant.StandName,
			&pCreated,
			&r.EventName,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan log row: %w", err)
		}
		r.Entry = e
		r.Participant.ApprovalStatus = access.ApprovalStatus(status)
		r.Participant.CreatedAt = fromMicros(pCreated)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	return out, total, nil
}

func (s *Store) InsideParticipants(ctx context.Context, eventID string) ([]access.Participant, error) {
	rows, err := s.db.QueryContext(ctx, participantSelect+`
WHERE (
    SELECT l.type FROM access_logs l
    WHERE l.participant_id = p.id AND l.event_id = ?
    ORDER BY l.created_at DESC, l.id DESC
    LIMIT 1
) = 'ENTRY'
ORDER BY p.name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("inside participants: %w", err)
	}
	return collectParticipants(rows)
}

func (s *Store) EventIDsWithLogs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT event_id FROM access_logs ORDER BY event_id`)
	if err != nil {
		return nil, fmt.Errorf("event ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
