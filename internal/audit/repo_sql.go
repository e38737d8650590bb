package audit

import (
	"context"
	"database/sql"
	"fmt"

	"event-access/internal/db"
)

// PostgresRepo appends to audit_events on Postgres.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(conn *sql.DB) *PostgresRepo { return &PostgresRepo{db: conn} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, event_id, type, actor_user_id, actor_name, actor_role, ip_address,
  participant_id, access_log_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.EventID,
		string(e.Type),
		e.ActorUserID,
		e.ActorName,
		e.ActorRole,
		e.IPAddress,
		e.ParticipantID,
		e.AccessLogID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// SQLiteRepo appends through the single-writer worker. created_at is stored
// as unix microseconds.
type SQLiteRepo struct {
	writer *db.Worker
}

func NewSQLiteRepo(writer *db.Worker) *SQLiteRepo { return &SQLiteRepo{writer: writer} }

func (r *SQLiteRepo) Append(ctx context.Context, e Event) error {
	return r.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO audit_events (
  id, event_id, type, actor_user_id, actor_name, actor_role, ip_address,
  participant_id, access_log_id, message, metadata, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.EventID, string(e.Type), e.ActorUserID, e.ActorName, e.ActorRole, e.IPAddress,
			e.ParticipantID, e.AccessLogID, e.Message, e.Metadata, e.CreatedAt.UTC().UnixMicro(),
		)
		if err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		return nil
	})
}
