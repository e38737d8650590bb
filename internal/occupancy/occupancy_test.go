package occupancy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"event-access/internal/access"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis covers the commands used here: PUBLISH, SET NX and the
// compare-and-delete release script.
type fakeRedis struct {
	mu        sync.Mutex
	keys      map[string]string
	published map[string][]string
	err       error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]string{}, published: map[string][]string{}}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) compareAndDelete(keys []string, args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestPublisher_PublishesSnapshotJSON(t *testing.T) {
	rdb := newFakeRedis()
	p := NewPublisher(rdb)
	at := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)

	err := p.PublishOccupancy(context.Background(), access.Stats{
		EventID: "ev-expo", CurrentInsideCount: 3, TotalEntries: 4, TotalExits: 1,
		UniqueVisitors: 4, PeakCount: 3, PeakTime: &at, UpdatedAt: at,
	})
	require.NoError(t, err)

	msgs := rdb.published["access:occupancy:ev-expo"]
	require.Len(t, msgs, 1)
	snap, err := decodeSnapshot(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, 3, snap.CurrentInsideCount)
	assert.Equal(t, 4, snap.UniqueVisitors)
	require.NotNil(t, snap.PeakTime)
	assert.True(t, at.Equal(*snap.PeakTime))
	assert.Contains(t, msgs[0], `"currentInsideCount":3`)
}

func TestPublisher_Errors(t *testing.T) {
	rdb := newFakeRedis()
	p := NewPublisher(rdb)
	require.Error(t, p.PublishOccupancy(context.Background(), access.Stats{}))

	rdb.err = errors.New("connection refused")
	require.Error(t, p.PublishOccupancy(context.Background(), access.Stats{EventID: "ev"}))
}

func TestDebouncer_ClaimAndRelease(t *testing.T) {
	rdb := newFakeRedis()
	d := NewDebouncer(rdb, 3*time.Second)
	ctx := context.Background()

	release, ok, err := d.Claim(ctx, "ev:p:ENTRY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, rdb.keys, "access:scan:ev:p:ENTRY")

	_, ok, err = d.Claim(ctx, "ev:p:ENTRY")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = d.Claim(ctx, "ev:p:EXIT")
	require.NoError(t, err)
	assert.True(t, ok)

	release(ctx)
	assert.NotContains(t, rdb.keys, "access:scan:ev:p:ENTRY")
	_, ok, err = d.Claim(ctx, "ev:p:ENTRY")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDebouncer_ReleaseKeepsForeignClaim(t *testing.T) {
	rdb := newFakeRedis()
	d := NewDebouncer(rdb, time.Second)
	ctx := context.Background()

	release, ok, err := d.Claim(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	// The window expired and another terminal claimed the key meanwhile.
	rdb.keys["access:scan:k"] = "someone-else"
	release(ctx)
	assert.Equal(t, "someone-else", rdb.keys["access:scan:k"])
}

func TestDebouncer_RedisErrorSurfaces(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("timeout")
	_, ok, err := NewDebouncer(rdb, time.Second).Claim(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestDebouncer_WithService(t *testing.T) {
	rdb := newFakeRedis()
	store := access.NewMemoryStore()
	store.PutEvent(access.Event{ID: "ev", Name: "Expo", Code: "E", Slug: "e", Status: access.EventStatusActive})
	store.PutParticipant(access.Participant{ID: "p-1", EventID: "ev", Name: "Ana", ApprovalStatus: access.ApprovalApproved})
	svc := access.NewService(store, access.Options{Debouncer: NewDebouncer(rdb, 3*time.Second), Publisher: NewPublisher(rdb)})

	ctx := context.Background()
	_, err := svc.FastCheckIn(ctx, access.FastCheckInRequest{ParticipantID: "p-1", EventID: "ev"})
	require.NoError(t, err)
	_, err = svc.FastCheckIn(ctx, access.FastCheckInRequest{ParticipantID: "p-1", EventID: "ev"})
	require.ErrorIs(t, err, access.ErrDuplicateScan)
	assert.Len(t, rdb.published[Channel("ev")], 1)
}
