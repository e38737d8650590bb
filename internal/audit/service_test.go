package audit

import (
	"context"
	"testing"
	"time"

	"event-access/internal/db"
	"event-access/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AppendRequiresEventAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.Append(context.Background(), Event{Type: EventTypeAdminAction})
	require.ErrorIs(t, err, ErrInvalidEvent)
	err = svc.Append(context.Background(), Event{EventID: "ev-1"})
	require.ErrorIs(t, err, ErrInvalidEvent)
	assert.Empty(t, repo.Events())
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	err := svc.LogAdminAction(context.Background(), "ev-1", "u-1", "Rita", "admin", "1.2.3.4", "stats reconciled", `{"total_entries":3}`)
	require.NoError(t, err)

	evs := repo.Events()
	require.Len(t, evs, 1)
	assert.NotEmpty(t, evs[0].ID)
	assert.Equal(t, "1.2.3.4", evs[0].IPAddress)
	assert.Equal(t, EventTypeAdminAction, evs[0].Type)
	assert.Equal(t, fixed, evs[0].CreatedAt)
}

func TestServiceNoRepository(t *testing.T) {
	svc := NewService(nil)
	require.Error(t, svc.Append(context.Background(), Event{EventID: "ev-1", Type: EventTypeForceEntry}))
}

func TestSQLiteRepo_Append(t *testing.T) {
	ctx := context.Background()
	conn, err := utils.OpenSQLiteDSN(ctx, utils.SQLiteMemoryDSN("audit_"+t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = db.Migrate(ctx, conn, db.DriverSQLite)
	require.NoError(t, err)

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)

	svc := NewService(NewSQLiteRepo(w))
	at := time.Date(2025, 3, 10, 13, 0, 0, 123000, time.UTC)
	require.NoError(t, svc.Append(ctx, Event{
		EventID:       "ev-1",
		Type:          EventTypeForceExit,
		ActorUserID:   "op-1",
		ParticipantID: "p-1",
		AccessLogID:   "log-1",
		CreatedAt:     at,
	}))

	var typ, logID string
	var created int64
	err = conn.QueryRowContext(ctx, `SELECT type, access_log_id, created_at FROM audit_events WHERE event_id = ?`, "ev-1").
		Scan(&typ, &logID, &created)
	require.NoError(t, err)
	assert.Equal(t, "force_exit", typ)
	assert.Equal(t, "log-1", logID)
	assert.Equal(t, at.UnixMicro(), created)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n))
	assert.Equal(t, 1, n)
}
