package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"event-access/internal/access"
	"event-access/internal/access/sqlite"
	"event-access/internal/db"
	"event-access/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventID = "ev-expo"
	anaID   = "a1b2c3d4-0000-4000-8000-000000000001"
	brunoID = "b2c3d4e5-0000-4000-8000-000000000002"
	carlaID = "c3d4e5f6-0000-4000-8000-000000000003"
)

var t0 = time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)

// openTestDB returns a migrated in-memory database unique to the test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := utils.OpenSQLiteDSN(context.Background(), utils.SQLiteMemoryDSN("access_"+t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = db.Migrate(context.Background(), conn, db.DriverSQLite)
	require.NoError(t, err)
	return conn
}

func seed(t *testing.T, conn *sql.DB) {
	t.Helper()
	stmts := []struct {
		q    string
		args []any
	}{
		{`INSERT INTO events (id, name, code, slug, status, start_date, end_date, max_capacity) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{eventID, "Expo Saúde 2025", "EXPO25", "expo-saude-2025", "active", t0.Add(-24 * time.Hour).UnixMicro(), t0.Add(72 * time.Hour).UnixMicro(), 4}},
		{`INSERT INTO events (id, name, code, slug, status) VALUES ('ev-norte', 'Feira Norte', 'FN25', 'feira-norte', 'draft')`, nil},
		{`INSERT INTO stands (id, event_id, code, name) VALUES ('st-1', ?, 'B12', 'Booth Doze')`, []any{eventID}},
		{`INSERT INTO participants (id, event_id, cpf, name, approval_status, stand_id, created_at) VALUES (?, ?, '12345678901', 'Ana Souza', 'approved', 'st-1', 1)`,
			[]any{anaID, eventID}},
		{`INSERT INTO participants (id, event_id, cpf, name, approval_status, created_at) VALUES (?, ?, '98765432100', 'Bruno Lima', 'pending', 2)`,
			[]any{brunoID, eventID}},
		{`INSERT INTO participants (id, event_id, cpf, name, approval_status, created_at) VALUES (?, 'ev-norte', '12345678901', 'Carla Dias', 'approved', 3)`,
			[]any{carlaID}},
	}
	for _, s := range stmts {
		_, err := conn.Exec(s.q, s.args...)
		require.NoError(t, err, s.q)
	}
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newService(t *testing.T) (*access.Service, *sqlite.Store, *stepClock) {
	t.Helper()
	conn := openTestDB(t)
	seed(t, conn)

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)

	store := sqlite.New(conn, w)
	clock := &stepClock{t: t0}
	svc := access.NewService(store, access.Options{Location: time.UTC, Clock: clock.Now})
	return svc, store, clock
}

func TestStore_CheckInOutRoundTrip(t *testing.T) {
	svc, store, clock := newService(t)
	ctx := context.Background()

	in, err := svc.CheckIn(ctx, access.CheckInRequest{
		ParticipantID: anaID,
		Gate:          "Portão A",
		Operator:      access.Operator{ID: "op-1", Name: "Rita", Email: "rita@example.com"},
		Device:        access.Device{ID: "kiosk-1", Name: "Totem 1", IP: "10.0.0.7"},
		Method:        access.MethodCPF,
	})
	require.NoError(t, err)
	assert.Equal(t, "Booth Doze", in.Participant.StandName)
	assert.Equal(t, 1, in.Stats.CurrentInsideCount)
	assert.Equal(t, 1, in.Stats.UniqueVisitors)
	assert.Equal(t, t0, *in.Stats.PeakTime)

	_, err = svc.CheckIn(ctx, access.CheckInRequest{ParticipantID: anaID})
	require.ErrorIs(t, err, access.ErrStateConflict)

	clock.Advance(45 * time.Minute)
	out, err := svc.CheckOut(ctx, access.CheckOutRequest{ParticipantID: anaID})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, out.Duration)
	assert.Equal(t, 0, out.Stats.CurrentInsideCount)
	assert.Equal(t, 1, out.Stats.TotalExits)
	assert.Equal(t, 1, out.Stats.PeakCount)

	entries, err := store.ParticipantLog(ctx, anaID, eventID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	first := entries[0]
	assert.Equal(t, access.TypeEntry, first.Type)
	assert.Equal(t, "Portão A", first.Gate)
	assert.Equal(t, "rita@example.com", first.OperatorEmail)
	assert.Equal(t, "Totem 1", first.DeviceName)
	assert.Equal(t, access.MethodCPF, first.VerificationMethod)
	assert.Equal(t, t0, first.CreatedAt)
	assert.Equal(t, "Permanência: 45 minutos", entries[1].Notes)
}

func TestStore_NothingWrittenOnRejection(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, access.CheckInRequest{ParticipantID: brunoID})
	require.ErrorIs(t, err, access.ErrNotApproved)

	_, ok, err := store.GetStats(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, ok)
	rows, total, err := store.ListLogs(ctx, access.LogFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)
}

func TestStore_ForcedExitClampsAtZero(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CheckOut(ctx, access.CheckOutRequest{ParticipantID: anaID, ForceExit: true})
	require.NoError(t, err)
	_, err = svc.CheckOut(ctx, access.CheckOutRequest{ParticipantID: anaID, ForceExit: true})
	require.NoError(t, err)

	st, ok, err := store.GetStats(ctx, eventID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, st.CurrentInsideCount)
	assert.Equal(t, 2, st.TotalExits)
	assert.Equal(t, 0, st.UniqueVisitors)
}

func TestStore_ConcurrentCheckInsAdmitOne(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckIn(ctx, access.CheckInRequest{ParticipantID: anaID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, access.ErrStateConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, conflicts)
	st, _, err := store.GetStats(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalEntries)
}

func TestStore_LookupsAndSegregation(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	found, err := store.FindParticipants(ctx, "", access.Identifier{Kind: access.IdentifierNationalID, Value: "12345678901"}, 5)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	view, err := svc.Status(ctx, "123.456.789-01", "ev-norte")
	require.NoError(t, err)
	assert.Equal(t, carlaID, view.Participant.ID)

	view, err = svc.Status(ctx, "A1B2C3D4", eventID)
	require.NoError(t, err)
	assert.Equal(t, anaID, view.Participant.ID)
	assert.Equal(t, "B12", view.Participant.StandCode)
	require.NotNil(t, view.Event)
	assert.Equal(t, 2, view.Event.RegisteredCount)
	require.NotNil(t, view.Event.StartDate)

	for _, ref := range []string{eventID, "EXPO25", "expo-saude-2025"} {
		ev, ok, err := store.GetEvent(ctx, ref)
		require.NoError(t, err)
		require.True(t, ok, ref)
		assert.Equal(t, eventID, ev.ID)
	}
	_, ok, err := store.GetEvent(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	p, ok, err := store.GetParticipant(ctx, brunoID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, access.ApprovalPending, p.ApprovalStatus)
}

func TestStore_StatsViewAndReconcile(t *testing.T) {
	svc, store, clock := newService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, access.CheckInRequest{ParticipantID: anaID})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.FastCheckIn(ctx, access.FastCheckInRequest{ParticipantID: brunoID, EventID: eventID})
	require.NoError(t, err)

	view, err := svc.GetStats(ctx, "EXPO25")
	require.NoError(t, err)
	assert.Equal(t, access.StatsSourceAggregate, view.Source)
	assert.Equal(t, 2, view.Stats.CurrentInsideCount)
	assert.Equal(t, 50, view.OccupancyPercentage)
	assert.Len(t, view.ParticipantsInside, 2)
	assert.Len(t, view.RecentActivity, 2)
	assert.Equal(t, brunoID, view.RecentActivity[0].Entry.ParticipantID)
	assert.Equal(t, "Expo Saúde 2025", view.RecentActivity[0].EventName)
	assert.Equal(t, 2, view.HourlyToday[13].Entries)

	// Knock the aggregate out of line, then repair it from the log.
	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx access.Tx) error {
		return tx.PutStats(ctx, access.Stats{EventID: eventID, CurrentInsideCount: 0, TotalEntries: 9, PeakCount: 9})
	}))
	st, err := svc.Reconcile(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentInsideCount)
	assert.Equal(t, 2, st.TotalEntries)
	assert.Equal(t, 2, st.PeakCount)
	assert.Equal(t, 2, st.UniqueVisitors)

	stored, ok, err := store.GetStats(ctx, eventID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st.TotalEntries, stored.TotalEntries)
	require.NotNil(t, stored.PeakTime)
	assert.Equal(t, t0.Add(time.Minute), *stored.PeakTime)

	ids, err := store.EventIDsWithLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{eventID}, ids)
}

func TestStore_ReconstructsWhenAggregateMissing(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, access.CheckInRequest{ParticipantID: anaID})
	require.NoError(t, err)

	view, err := svc.GetStats(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, access.StatsSourceAggregate, view.Source)

	_, ok, err := store.GetStats(ctx, "ev-norte")
	require.NoError(t, err)
	require.False(t, ok)

	empty, err := svc.GetStats(ctx, "ev-norte")
	require.NoError(t, err)
	assert.Equal(t, access.StatsSourceReconstructed, empty.Source)
	assert.Zero(t, empty.Stats.TotalEntries)
	assert.Empty(t, empty.ParticipantsInside)
}

func TestStore_ListLogsFilters(t *testing.T) {
	svc, store, clock := newService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, access.CheckInRequest{ParticipantID: anaID, Gate: "A"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.CheckOut(ctx, access.CheckOutRequest{ParticipantID: anaID, Gate: "B"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.CheckIn(ctx, access.CheckInRequest{ParticipantID: carlaID})
	require.NoError(t, err)

	rows, total, err := store.ListLogs(ctx, access.LogFilter{EventID: eventID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, rows, 2)
	assert.Equal(t, access.TypeExit, rows[0].Entry.Type)
	assert.Equal(t, "Ana Souza", rows[0].Participant.Name)

	rows, total, err = store.ListLogs(ctx, access.LogFilter{Type: access.TypeEntry, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, rows, 1)
	assert.Equal(t, carlaID, rows[0].Entry.ParticipantID)

	from := t0.Add(30 * time.Second)
	to := t0.Add(90 * time.Second)
	_, total, err = store.ListLogs(ctx, access.LogFilter{From: &from, To: &to, Gate: "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = store.ListLogs(ctx, access.LogFilter{ParticipantID: carlaID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
