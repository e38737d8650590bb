package access

import (
	"context"
	"time"
)

// Reader is the read side of the access store. Lookups that may miss
// return ok=false instead of an error.
type Reader interface {
	GetParticipant(ctx context.Context, id string) (Participant, bool, error)
	// FindParticipants resolves an identifier, scoped to eventID when non-empty.
	// Implementations return at most limit rows ordered by creation time.
	FindParticipants(ctx context.Context, eventID string, ident Identifier, limit int) ([]Participant, error)
	// GetEvent matches ref against id, slug or code.
	GetEvent(ctx context.Context, ref string) (Event, bool, error)
	GetStats(ctx context.Context, eventID string) (Stats, bool, error)

	// ParticipantLog returns a participant's entries in one event, oldest first.
	ParticipantLog(ctx context.Context, participantID, eventID string) ([]LogEntry, error)
	// EventLog returns an event's entries at or after since, oldest first.
	EventLog(ctx context.Context, eventID string, since time.Time) ([]LogEntry, error)
	// ListLogs returns one page of rows newest first, plus the filtered total.
	ListLogs(ctx context.Context, f LogFilter) ([]LogRow, int, error)
	// InsideParticipants returns participants whose latest entry in the event is ENTRY.
	InsideParticipants(ctx context.Context, eventID string) ([]Participant, error)
	EventIDsWithLogs(ctx context.Context) ([]string, error)
}

// Store adds the atomic write path to Reader.
type Store interface {
	Reader

	// Atomic runs fn as one unit. Writes through tx are committed only when fn
	// returns nil, and no other Atomic unit touching the same participant or
	// aggregate interleaves with it.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write path available inside Store.Atomic.
type Tx interface {
	// LockParticipant reads the participant and holds it until the unit ends.
	LockParticipant(ctx context.Context, id string) (Participant, bool, error)
	LastAccess(ctx context.Context, participantID, eventID string) (LogEntry, bool, error)
	AppendAccess(ctx context.Context, e LogEntry) error
	// ApplyAccess folds one entry into the event aggregate, creating it on first
	// write, and returns the updated row. Occupancy never drops below zero and
	// the peak never trails occupancy. Unique visitors are recounted from the log.
	ApplyAccess(ctx context.Context, eventID string, t Type, at time.Time) (Stats, error)

	// LockStats reads the aggregate and holds it until the unit ends.
	LockStats(ctx context.Context, eventID string) (Stats, bool, error)
	EventLog(ctx context.Context, eventID string) ([]LogEntry, error)
	PutStats(ctx context.Context, s Stats) error
}
