package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"event-access/pkg/logger"

	"github.com/google/uuid"
)

// Service owns the access state machine and the occupancy aggregate.
//
// Invariants:
// - A participant is inside iff their latest log entry in the event is ENTRY.
// - Check-in, check-out and fast check-in read state, decide, append and update
//   the aggregate inside one Store.Atomic unit; nothing is written on failure.
// - Log timestamps strictly increase per participant.
// - Every operation is scoped to one event; history never crosses events.
//
// Audit and live publishing run after commit and never fail the request.
type Service struct {
	store     Store
	audit     Auditor
	publisher Publisher
	debouncer Debouncer

	loc          *time.Location
	historyLimit int

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// Auditor records operations that bypassed a gate.
type Auditor interface {
	RecordOverride(ctx context.Context, o Override) error
}

// Publisher broadcasts the aggregate after each committed write.
type Publisher interface {
	PublishOccupancy(ctx context.Context, s Stats) error
}

// Debouncer suppresses repeated scans of the same key for a short window.
// When ok is true the caller holds the key and may hand it back with release.
type Debouncer interface {
	Claim(ctx context.Context, key string) (release func(context.Context), ok bool, err error)
}

type OverrideAction string

const (
	OverrideForceEntry  OverrideAction = "force_entry"
	OverrideForceExit   OverrideAction = "force_exit"
	OverrideFastCheckIn OverrideAction = "fast_check_in"
)

// Override describes a write that skipped approval or state checks.
type Override struct {
	Action         OverrideAction
	EventID        string
	ParticipantID  string
	AccessLogID    string
	Type           Type
	Operator       Operator
	IP             string
	ApprovalStatus ApprovalStatus
	WasInside      bool
	At             time.Time
}

type Options struct {
	Audit     Auditor
	Publisher Publisher
	Debouncer Debouncer

	// Location buckets "today" for hourly stats. Defaults to UTC.
	Location *time.Location
	// HistoryLimit caps status history rows. Defaults to 10.
	HistoryLimit int

	Clock func() time.Time
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:        store,
		audit:        opts.Audit,
		publisher:    opts.Publisher,
		debouncer:    opts.Debouncer,
		loc:          opts.Location,
		historyLimit: opts.HistoryLimit,
		clock:        opts.Clock,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.historyLimit <= 0 {
		s.historyLimit = 10
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

type CheckInRequest struct {
	ParticipantID string
	// EventID defaults to the participant's own event.
	EventID  string
	Gate     string
	Location string
	Operator Operator
	Device   Device
	// Method defaults to QR_CODE.
	Method VerificationMethod
	Notes  string

	// AllowReentry skips the "already inside" check.
	AllowReentry bool
	// ForceEntry skips the approval check.
	ForceEntry bool
}

type CheckInResult struct {
	Entry       LogEntry
	Participant Participant
	Stats       Stats
	// Forced is true when ForceEntry actually bypassed the approval gate.
	Forced bool
}

// CheckIn records an ENTRY for an approved participant who is not inside.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	if strings.TrimSpace(req.ParticipantID) == "" {
		return CheckInResult{}, validationErr(CodeParticipantRequired, nil)
	}
	method, err := defaultMethod(req.Method)
	if err != nil {
		return CheckInResult{}, err
	}

	var res CheckInResult
	var wasInside bool
	err = s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		p, eventID, err := lockInEvent(ctx, tx, strings.TrimSpace(req.ParticipantID), req.EventID)
		if err != nil {
			return err
		}

		if !req.ForceEntry && !p.Approved() {
			return &Error{
				Kind:           ErrNotApproved,
				Code:           CodeNotApproved,
				Data:           map[string]any{"Status": approvalLabel(p.ApprovalStatus)},
				ApprovalStatus: approvalOrPending(p.ApprovalStatus),
				Participant:    &p,
			}
		}

		last, hasLast, err := tx.LastAccess(ctx, p.ID, eventID)
		if err != nil {
			return fmt.Errorf("load last access: %w", err)
		}
		wasInside = hasLast && last.Type == TypeEntry
		if wasInside && !req.AllowReentry {
			return &Error{
				Kind:        ErrStateConflict,
				Code:        CodeAlreadyInside,
				LastAccess:  &last,
				Participant: &p,
			}
		}

		entry := LogEntry{
			ID:                 uuid.NewString(),
			ParticipantID:      p.ID,
			EventID:            eventID,
			Type:               TypeEntry,
			Gate:               strings.TrimSpace(req.Gate),
			Location:           strings.TrimSpace(req.Location),
			OperatorID:         req.Operator.ID,
			OperatorName:       req.Operator.Name,
			OperatorEmail:      req.Operator.Email,
			DeviceID:           req.Device.ID,
			DeviceName:         req.Device.Name,
			DeviceIP:           req.Device.IP,
			VerificationMethod: method,
			Notes:              strings.TrimSpace(req.Notes),
			CreatedAt:          s.stamp(last, hasLast),
		}
		stats, err := appendAndApply(ctx, tx, entry)
		if err != nil {
			return err
		}

		res = CheckInResult{
			Entry:       entry,
			Participant: p,
			Stats:       stats,
			Forced:      req.ForceEntry && !p.Approved(),
		}
		return nil
	})
	if err != nil {
		return CheckInResult{}, err
	}

	var ov *Override
	if res.Forced {
		ov = &Override{
			Action:         OverrideForceEntry,
			ApprovalStatus: approvalOrPending(res.Participant.ApprovalStatus),
			WasInside:      wasInside,
		}
	}
	s.afterCommit(ctx, res.Entry, req.Operator, res.Stats, ov)
	return res, nil
}

type CheckOutRequest struct {
	ParticipantID string
	EventID       string
	Gate          string
	Location      string
	Operator      Operator
	Device        Device
	Method        VerificationMethod
	// Notes defaults to the visit length in minutes.
	Notes string

	// ForceExit skips the "not inside" check.
	ForceExit bool
}

type CheckOutResult struct {
	Entry       LogEntry
	Participant Participant
	Stats       Stats
	// Duration is the time since the previous log entry, or zero without one.
	Duration time.Duration
	Forced   bool
}

// CheckOut records an EXIT for a participant who is inside.
func (s *Service) CheckOut(ctx context.Context, req CheckOutRequest) (CheckOutResult, error) {
	if strings.TrimSpace(req.ParticipantID) == "" {
		return CheckOutResult{}, validationErr(CodeParticipantRequired, nil)
	}
	method, err := defaultMethod(req.Method)
	if err != nil {
		return CheckOutResult{}, err
	}

	var res CheckOutResult
	err = s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		p, eventID, err := lockInEvent(ctx, tx, strings.TrimSpace(req.ParticipantID), req.EventID)
		if err != nil {
			return err
		}

		last, hasLast, err := tx.LastAccess(ctx, p.ID, eventID)
		if err != nil {
			return fmt.Errorf("load last access: %w", err)
		}
		inside := hasLast && last.Type == TypeEntry
		if !inside && !req.ForceExit {
			conflict := &Error{Kind: ErrStateConflict, Code: CodeNotInside, Participant: &p}
			if hasLast {
				conflict.LastAccess = &last
			}
			return conflict
		}

		at := s.stamp(last, hasLast)
		var dwell time.Duration
		if hasLast {
			dwell = at.Sub(last.CreatedAt)
		}
		notes := strings.TrimSpace(req.Notes)
		if notes == "" {
			notes = fmt.Sprintf("Permanência: %d minutos", RoundedMinutes(dwell))
		}

		entry := LogEntry{
			ID:                 uuid.NewString(),
			ParticipantID:      p.ID,
			EventID:            eventID,
			Type:               TypeExit,
			Gate:               strings.TrimSpace(req.Gate),
			Location:           strings.TrimSpace(req.Location),
			OperatorID:         req.Operator.ID,
			OperatorName:       req.Operator.Name,
			OperatorEmail:      req.Operator.Email,
			DeviceID:           req.Device.ID,
			DeviceName:         req.Device.Name,
			DeviceIP:           req.Device.IP,
			VerificationMethod: method,
			Notes:              notes,
			CreatedAt:          at,
		}
		stats, err := appendAndApply(ctx, tx, entry)
		if err != nil {
			return err
		}

		res = CheckOutResult{
			Entry:       entry,
			Participant: p,
			Stats:       stats,
			Duration:    dwell,
			Forced:      req.ForceExit && !inside,
		}
		return nil
	})
	if err != nil {
		return CheckOutResult{}, err
	}

	var ov *Override
	if res.Forced {
		ov = &Override{
			Action:         OverrideForceExit,
			ApprovalStatus: approvalOrPending(res.Participant.ApprovalStatus),
		}
	}
	s.afterCommit(ctx, res.Entry, req.Operator, res.Stats, ov)
	return res, nil
}

type FastCheckInRequest struct {
	ParticipantID string
	EventID       string
	// Type defaults to ENTRY.
	Type     Type
	Gate     string
	Operator Operator
	Device   Device
}

type FastCheckInResult struct {
	Entry       LogEntry
	Participant Participant
	Stats       Stats
}

// FastCheckIn appends an entry without approval or state checks. It is meant
// for supervised high-volume terminals. A repeat of the same scan inside the
// debounce window fails with ErrDuplicateScan.
func (s *Service) FastCheckIn(ctx context.Context, req FastCheckInRequest) (FastCheckInResult, error) {
	pid := strings.TrimSpace(req.ParticipantID)
	eventID := strings.TrimSpace(req.EventID)
	if pid == "" {
		return FastCheckInResult{}, validationErr(CodeParticipantRequired, nil)
	}
	if eventID == "" {
		return FastCheckInResult{}, validationErr(CodeEventRequired, nil)
	}
	typ := req.Type
	if typ == "" {
		typ = TypeEntry
	}
	if !typ.Valid() {
		return FastCheckInResult{}, validationErr(CodeInvalidType, map[string]any{"Type": string(req.Type)})
	}

	release, err := s.claimScan(ctx, eventID, pid, typ)
	if err != nil {
		return FastCheckInResult{}, err
	}

	var res FastCheckInResult
	var wasInside bool
	err = s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		p, _, err := lockInEvent(ctx, tx, pid, eventID)
		if err != nil {
			return err
		}

		last, hasLast, err := tx.LastAccess(ctx, p.ID, eventID)
		if err != nil {
			return fmt.Errorf("load last access: %w", err)
		}
		wasInside = hasLast && last.Type == TypeEntry

		entry := LogEntry{
			ID:                 uuid.NewString(),
			ParticipantID:      p.ID,
			EventID:            eventID,
			Type:               typ,
			Gate:               strings.TrimSpace(req.Gate),
			OperatorID:         req.Operator.ID,
			OperatorName:       req.Operator.Name,
			OperatorEmail:      req.Operator.Email,
			DeviceID:           req.Device.ID,
			DeviceName:         req.Device.Name,
			DeviceIP:           req.Device.IP,
			VerificationMethod: MethodQRCode,
			CreatedAt:          s.stamp(last, hasLast),
		}
		stats, err := appendAndApply(ctx, tx, entry)
		if err != nil {
			return err
		}
		res = FastCheckInResult{Entry: entry, Participant: p, Stats: stats}
		return nil
	})
	if err != nil {
		if release != nil {
			release(ctx)
		}
		return FastCheckInResult{}, err
	}

	s.afterCommit(ctx, res.Entry, req.Operator, res.Stats, &Override{
		Action:         OverrideFastCheckIn,
		ApprovalStatus: approvalOrPending(res.Participant.ApprovalStatus),
		WasInside:      wasInside,
	})
	return res, nil
}

func (s *Service) claimScan(ctx context.Context, eventID, participantID string, t Type) (func(context.Context), error) {
	if s.debouncer == nil {
		return nil, nil
	}
	key := eventID + ":" + participantID + ":" + string(t)
	release, ok, err := s.debouncer.Claim(ctx, key)
	if err != nil {
		// Debounce is an optimization; a broken cache must not stop the gate.
		logger.From(ctx).Warn("scan debounce unavailable", "event_id", eventID, "err", err)
		return nil, nil
	}
	if !ok {
		return nil, &Error{
			Kind: ErrDuplicateScan,
			Code: CodeDuplicateScan,
			Data: map[string]any{"Type": string(t)},
		}
	}
	return release, nil
}

// lockInEvent locks the participant and resolves the effective event id.
// An explicit eventID must match the participant's own event when it has one.
func lockInEvent(ctx context.Context, tx Tx, participantID, eventID string) (Participant, string, error) {
	p, ok, err := tx.LockParticipant(ctx, participantID)
	if err != nil {
		return Participant{}, "", fmt.Errorf("lock participant: %w", err)
	}
	if !ok {
		return Participant{}, "", notFoundErr(CodeParticipantNotFound, nil)
	}

	eventID = strings.TrimSpace(eventID)
	switch {
	case eventID == "" && p.EventID == "":
		return Participant{}, "", &Error{Kind: ErrValidation, Code: CodeEventRequired, Participant: &p}
	case eventID == "":
		eventID = p.EventID
	case p.EventID != "" && p.EventID != eventID:
		return Participant{}, "", notFoundErr(CodeParticipantNotInEvent, nil)
	}
	return p, eventID, nil
}

func appendAndApply(ctx context.Context, tx Tx, e LogEntry) (Stats, error) {
	if err := tx.AppendAccess(ctx, e); err != nil {
		return Stats{}, fmt.Errorf("append access: %w", err)
	}
	stats, err := tx.ApplyAccess(ctx, e.EventID, e.Type, e.CreatedAt)
	if err != nil {
		return Stats{}, fmt.Errorf("apply access to stats: %w", err)
	}
	return stats, nil
}

// stamp returns the timestamp for a new entry: now, or just after the
// previous entry when the clock has not moved past it.
func (s *Service) stamp(last LogEntry, hasLast bool) time.Time {
	now := s.now()
	if hasLast && !now.After(last.CreatedAt) {
		return last.CreatedAt.Add(time.Microsecond)
	}
	return now
}

// now is the clock in UTC at the precision every store keeps.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *Service) afterCommit(ctx context.Context, e LogEntry, op Operator, stats Stats, ov *Override) {
	log := logger.From(ctx)

	if s.publisher != nil {
		if err := s.publisher.PublishOccupancy(ctx, stats); err != nil {
			log.Warn("occupancy publish failed", "event_id", stats.EventID, "err", err)
		}
	}

	if ov == nil {
		return
	}
	ov.EventID = e.EventID
	ov.ParticipantID = e.ParticipantID
	ov.AccessLogID = e.ID
	ov.Type = e.Type
	ov.Operator = op
	ov.IP = e.DeviceIP
	ov.At = e.CreatedAt

	log.Info("access override",
		"action", string(ov.Action),
		"event_id", ov.EventID,
		"participant_id", ov.ParticipantID,
		"access_log_id", ov.AccessLogID,
		"operator_id", op.ID,
	)
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordOverride(ctx, *ov); err != nil {
		log.Warn("override audit failed", "access_log_id", ov.AccessLogID, "err", err)
	}
}

func defaultMethod(m VerificationMethod) (VerificationMethod, error) {
	if m == "" {
		return MethodQRCode, nil
	}
	m = VerificationMethod(strings.ToUpper(string(m)))
	if !m.Valid() {
		return "", validationErr(CodeInvalidMethod, map[string]any{"Method": string(m)})
	}
	return m, nil
}

func approvalOrPending(s ApprovalStatus) ApprovalStatus {
	if s == "" {
		return ApprovalPending
	}
	return s
}

func approvalLabel(s ApprovalStatus) string {
	return string(approvalOrPending(s))
}
