package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"event-access/internal/access"
	"event-access/pkg/utils"
)

// Store is the Postgres access store. Atomic units run in READ COMMITTED
// transactions; per-participant serialization comes from row locks taken by
// LockParticipant, the aggregate is serialized by the stats row itself.
type Store struct {
	db *sql.DB
}

var _ access.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx access.Tx) error) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &storeTx{tx: tx})
	})
}

func (s *Store) GetParticipant(ctx context.Context, id string) (access.Participant, bool, error) {
	p, err := scanParticipant(s.db.QueryRowContext(ctx, participantSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Participant{}, false, nil
	}
	if err != nil {
		return access.Participant{}, false, fmt.Errorf("get participant: %w", err)
	}
	return p, true, nil
}

// identifierClause returns the WHERE clause and args for an identifier lookup.
func identifierClause(eventID string, ident access.Identifier, limit int) (string, []any, error) {
	var where string
	switch ident.Kind {
	case access.IdentifierFullID:
		where = `p.id = $1`
	case access.IdentifierShortID:
		where = `lower(left(p.id, 8)) = $1`
	case access.IdentifierNationalID:
		where = `p.cpf = $1`
	default:
		return "", nil, fmt.Errorf("unknown identifier kind %d", ident.Kind)
	}
	args := []any{ident.Value}
	if eventID != "" {
		args = append(args, eventID)
		where += ` AND p.event_id = $` + strconv.Itoa(len(args))
	}
	if limit <= 0 {
		limit = 1
	}
	args = append(args, limit)
	return where + ` ORDER BY p.created_at, p.id LIMIT $` + strconv.Itoa(len(args)), args, nil
}

func (s *Store) FindParticipants(ctx context.Context, eventID string, ident access.Identifier, limit int) ([]access.Participant, error) {
	where, args, err := identifierClause(eventID, ident, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, participantSelect+` WHERE `+where, args...)
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
WHERE e.id = $1 OR e.slug = $1 OR e.code = $1
ORDER BY (e.id = $1) DESC
LIMIT 1
`
	var ev access.Event
	var start, end sql.NullTime
	err := s.db.QueryRowContext(ctx, q, ref).Scan(
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
	ev.StartDate = nullTime(start)
	ev.EndDate = nullTime(end)
	return ev, true, nil
}

func (s *Store) GetStats(ctx context.Context, eventID string) (access.Stats, bool, error) {
	return getStats(ctx, s.db, eventID, false)
}

func getStats(ctx context.Context, q querier, eventID string, lock bool) (access.Stats, bool, error) {
	query := `SELECT ` + statsColumns + ` FROM access_stats WHERE event_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	st, err := scanStats(q.QueryRowContext(ctx, query, eventID))
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
WHERE l.participant_id = $1 AND l.event_id = $2
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
	query := `
SELECT ` + logColumns + `
FROM access_logs l
WHERE l.event_id = $1`
	args := []any{eventID}
	if !since.IsZero() {
		query += ` AND l.created_at >= $2`
		args = append(args, since.UTC())
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY l.created_at, l.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	return collectLog(rows)
}

// logWhere renders the filter as a WHERE clause with positional args.
func logWhere(f access.LogFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, clause+` $`+strconv.Itoa(len(args)))
	}
	if f.EventID != "" {
		add(`l.event_id =`, f.EventID)
	}
	if f.ParticipantID != "" {
		add(`l.participant_id =`, f.ParticipantID)
	}
	if f.Type != "" {
		add(`l.type =`, string(f.Type))
	}
	if f.Gate != "" {
		add(`l.gate =`, f.Gate)
	}
	if f.From != nil {
		add(`l.created_at >=`, f.From.UTC())
	}
	if f.To != nil {
		add(`l.created_at <=`, f.To.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(clauses, ` AND `), args
}

func (s *Store) ListLogs(ctx context.Context, f access.LogFilter) ([]access.LogRow, int, error) {
	where, args := logWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_logs l`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	// LIMIT NULL means no limit in Postgres.
	var limit any
	if f.Limit > 0 {
		limit = f.Limit
	}
	pageArgs := append(append([]any{}, args...), limit, f.Offset)
	n := len(args)
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
LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	out := make([]access.LogRow, 0)
	for rows.Next() {
		var r access.LogRow
		var status string
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
			&r.Participant.CreatedAt,
			&r.EventName,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan log row: %w", err)
		}
		r.Entry = e
		r.Participant.ApprovalStatus = access.ApprovalStatus(status)
		r.Participant.CreatedAt = r.Participant.CreatedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	return out, total, nil
}

func (s *Store) InsideParticipants(ctx context.Context, eventID string) ([]access.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
WITH latest AS (
  SELECT DISTINCT ON (participant_id) participant_id, type
  FROM access_logs
  WHERE event_id = $1
  ORDER BY participant_id, created_at DESC, id DESC
)`+participantSelect+`
JOIN latest ON latest.participant_id = p.id
WHERE latest.type = 'ENTRY'
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
