package access

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StatusView is what a terminal needs to decide the next legal action.
type StatusView struct {
	Participant Participant
	// Event is nil when the registry has no row for the scoped event.
	Event    *Event
	Presence Presence
	CanEnter bool
	CanExit  bool
	// History holds the most recent entries, newest first.
	History   []LogEntry
	CheckedAt time.Time
}

// Status resolves a participant by full id, short id or national id inside
// eventID and reports their presence. eventID is required.
func (s *Service) Status(ctx context.Context, rawID, eventID string) (StatusView, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return StatusView{}, validationErr(CodeEventRequired, nil)
	}
	ident, err := ParseIdentifier(rawID)
	if err != nil {
		return StatusView{}, err
	}

	p, err := s.resolveParticipant(ctx, eventID, ident)
	if err != nil {
		return StatusView{}, err
	}

	entries, err := s.store.ParticipantLog(ctx, p.ID, eventID)
	if err != nil {
		return StatusView{}, fmt.Errorf("load participant log: %w", err)
	}

	now := s.now()
	presence := Summarize(entries, now)
	view := StatusView{
		Participant: p,
		Presence:    presence,
		CanEnter:    p.Approved() && !presence.Inside,
		CanExit:     presence.Inside,
		History:     newestFirst(entries, s.historyLimit),
		CheckedAt:   now,
	}

	ev, ok, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return StatusView{}, fmt.Errorf("load event: %w", err)
	}
	if ok {
		view.Event = &ev
	}
	return view, nil
}

// resolveParticipant dispatches on the identifier shape. More than one match
// is reported as ErrAmbiguous rather than picking a row.
func (s *Service) resolveParticipant(ctx context.Context, eventID string, ident Identifier) (Participant, error) {
	found, err := s.store.FindParticipants(ctx, eventID, ident, 2)
	if err != nil {
		return Participant{}, fmt.Errorf("find participant: %w", err)
	}
	switch len(found) {
	case 0:
		return Participant{}, notFoundErr(CodeParticipantNotFound, nil)
	case 1:
		return found[0], nil
	default:
		return Participant{}, &Error{
			Kind: ErrAmbiguous,
			Code: CodeAmbiguousIdentifier,
			Data: map[string]any{"Identifier": ident.Value},
		}
	}
}

func newestFirst(entries []LogEntry, limit int) []LogEntry {
	n := len(entries)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]LogEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}

// VerifyView answers "should this badge be honored now".
type VerifyView struct {
	Participant   Participant
	Event         *Event
	EventActive   bool
	WithinDates   bool
	Verified      bool
	CanEnter      bool
	StatusMessage string
	VerifiedAt    time.Time
}

// Verify message ids, in priority order.
const (
	VerifyEventInactive = "verify.event_inactive"
	VerifyOutsideDates  = "verify.outside_dates"
	VerifyApproved      = "verify.approved"
	VerifyRejected      = "verify.rejected"
	VerifyPending       = "verify.pending"
)

// Verify checks a scanned badge against the participant's approval and the
// event's status and date window. eventID narrows the lookup when given.
func (s *Service) Verify(ctx context.Context, rawID, eventID string) (VerifyView, error) {
	ident, err := ParseIdentifier(rawID)
	if err != nil {
		return VerifyView{}, err
	}
	p, err := s.resolveParticipant(ctx, strings.TrimSpace(eventID), ident)
	if err != nil {
		return VerifyView{}, err
	}

	now := s.now()
	view := VerifyView{Participant: p, WithinDates: true, VerifiedAt: now}

	scope := strings.TrimSpace(eventID)
	if scope == "" {
		scope = p.EventID
	}
	if scope != "" {
		ev, ok, err := s.store.GetEvent(ctx, scope)
		if err != nil {
			return VerifyView{}, fmt.Errorf("load event: %w", err)
		}
		if ok {
			view.Event = &ev
			view.EventActive = ev.Active()
			view.WithinDates = ev.WithinDates(now)
		}
	}

	view.Verified = p.Approved() && view.EventActive
	view.CanEnter = view.Verified && view.WithinDates

	switch {
	case !view.EventActive:
		view.StatusMessage = VerifyEventInactive
	case !view.WithinDates:
		view.StatusMessage = VerifyOutsideDates
	case p.Approved():
		view.StatusMessage = VerifyApproved
	case p.ApprovalStatus == ApprovalRejected:
		view.StatusMessage = VerifyRejected
	default:
		view.StatusMessage = VerifyPending
	}
	return view, nil
}
