package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_RequiresEvent(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Status(context.Background(), anaID, "")
	require.ErrorIs(t, err, ErrValidation)
	de, _ := AsError(err)
	assert.Equal(t, CodeEventRequired, de.Code)
}

func TestStatus_ResolvesEveryIdentifierShape(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, raw := range []string{anaID, "A1B2C3D4", "123.456.789-01", sharedCPF} {
		view, err := h.svc.Status(ctx, raw, eventExpo)
		require.NoError(t, err, raw)
		assert.Equal(t, anaID, view.Participant.ID, raw)
	}
}

func TestStatus_SegregatesByEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CheckIn(ctx, CheckInRequest{ParticipantID: anaID})
	require.NoError(t, err)

	expo, err := h.svc.Status(ctx, sharedCPF, eventExpo)
	require.NoError(t, err)
	norte, err := h.svc.Status(ctx, sharedCPF, eventNorte)
	require.NoError(t, err)

	assert.Equal(t, anaID, expo.Participant.ID)
	assert.True(t, expo.Presence.Inside)
	assert.Equal(t, carlaID, norte.Participant.ID)
	assert.False(t, norte.Presence.Inside)
	assert.Empty(t, norte.History)
}

func TestStatus_AmbiguousShortID(t *testing.T) {
	h := newHarness(t)
	h.store.PutParticipant(Participant{ID: "a1b2c3d4-ffff-4000-8000-00000000000f", EventID: eventExpo, Name: "Homônimo"})

	_, err := h.svc.Status(context.Background(), "a1b2c3d4", eventExpo)
	require.ErrorIs(t, err, ErrAmbiguous)

	// The full id still resolves.
	view, err := h.svc.Status(context.Background(), anaID, eventExpo)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", view.Participant.Name)
}

func TestStatus_NotFoundInOtherEvent(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Status(context.Background(), anaID, eventNorte)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatus_PresenceAndCumulativeTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CheckIn(ctx, CheckInRequest{ParticipantID: anaID})
	require.NoError(t, err)
	h.clock.Advance(30 * time.Minute)
	_, err = h.svc.CheckOut(ctx, CheckOutRequest{ParticipantID: anaID})
	require.NoError(t, err)
	h.clock.Advance(30 * time.Minute)
	last, err := h.svc.CheckIn(ctx, CheckInRequest{ParticipantID: anaID})
	require.NoError(t, err)
	h.clock.Advance(20 * time.Minute)

	view, err := h.svc.Status(ctx, anaID, eventExpo)
	require.NoError(t, err)

	assert.True(t, view.Presence.Inside)
	assert.False(t, view.CanEnter)
	assert.True(t, view.CanExit)
	assert.Equal(t, 2, view.Presence.TotalEntries)
	assert.Equal(t, 1, view.Presence.TotalExits)
	assert.Equal(t, 50*time.Minute, view.Presence.TimeInside)
	require.NotNil(t, view.Presence.Last)
	assert.Equal(t, last.Entry.ID, view.Presence.Last.ID)
	require.Len(t, view.History, 3)
	assert.Equal(t, last.Entry.ID, view.History[0].ID)
	require.NotNil(t, view.Event)
	assert.Equal(t, "EXPO25", view.Event.Code)
}

func TestStatus_PendingCannotEnter(t *testing.T) {
	h := newHarness(t)
	view, err := h.svc.Status(context.Background(), brunoID, eventExpo)
	require.NoError(t, err)
	assert.False(t, view.CanEnter)
	assert.False(t, view.CanExit)
	assert.Nil(t, view.Presence.Last)
}

func TestStatus_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.CheckIn(ctx, CheckInRequest{ParticipantID: anaID})
	require.NoError(t, err)

	a, err := h.svc.Status(ctx, anaID, eventExpo)
	require.NoError(t, err)
	b, err := h.svc.Status(ctx, anaID, eventExpo)
	require.NoError(t, err)

	assert.Equal(t, a.Presence.Inside, b.Presence.Inside)
	assert.Equal(t, a.CanEnter, b.CanEnter)
	assert.Equal(t, a.CanExit, b.CanExit)
}

func TestStatus_HistoryIsCapped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := h.svc.CheckIn(ctx, CheckInRequest{ParticipantID: anaID})
		require.NoError(t, err)
		_, err = h.svc.CheckOut(ctx, CheckOutRequest{ParticipantID: anaID})
		require.NoError(t, err)
	}

	view, err := h.svc.Status(ctx, anaID, eventExpo)
	require.NoError(t, err)
	assert.Len(t, view.History, 10)
	assert.Equal(t, 7, view.Presence.TotalEntries)
	assert.Equal(t, TypeExit, view.History[0].Type)
}

func TestVerify_Messages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved, err := h.svc.Verify(ctx, "a1b2c3d4", "")
	require.NoError(t, err)
	assert.True(t, approved.Verified)
	assert.True(t, approved.CanEnter)
	assert.True(t, approved.WithinDates)
	assert.Equal(t, VerifyApproved, approved.StatusMessage)

	pending, err := h.svc.Verify(ctx, brunoID, eventExpo)
	require.NoError(t, err)
	assert.False(t, pending.Verified)
	assert.Equal(t, VerifyPending, pending.StatusMessage)

	rejected, err := h.svc.Verify(ctx, dianaID, "")
	require.NoError(t, err)
	assert.Equal(t, VerifyRejected, rejected.StatusMessage)

	inactive, err := h.svc.Verify(ctx, carlaID, "")
	require.NoError(t, err)
	assert.False(t, inactive.EventActive)
	assert.False(t, inactive.CanEnter)
	assert.Equal(t, VerifyEventInactive, inactive.StatusMessage)
}

func TestVerify_OutsideDates(t *testing.T) {
	h := newHarness(t)
	h.clock.Advance(10 * 24 * time.Hour)

	view, err := h.svc.Verify(context.Background(), anaID, "")
	require.NoError(t, err)
	assert.True(t, view.Verified)
	assert.False(t, view.WithinDates)
	assert.False(t, view.CanEnter)
	assert.Equal(t, VerifyOutsideDates, view.StatusMessage)
}
