package access

import (
	"strings"
	"time"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type Type string

const (
	TypeEntry Type = "ENTRY"
	TypeExit  Type = "EXIT"
)

func (t Type) Valid() bool {
	return t == TypeEntry || t == TypeExit
}

// ParseType accepts ENTRY/EXIT in any case.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

type VerificationMethod string

const (
	MethodQRCode VerificationMethod = "QR_CODE"
	MethodCPF    VerificationMethod = "CPF"
	MethodManual VerificationMethod = "MANUAL"
	MethodFace   VerificationMethod = "FACE"
)

func (m VerificationMethod) Valid() bool {
	switch m {
	case MethodQRCode, MethodCPF, MethodManual, MethodFace:
		return true
	default:
		return false
	}
}

const EventStatusActive = "active"

// Participant is read-only here; registration and approval own the writes.
type Participant struct {
	ID             string
	EventID        string
	NationalID     string
	Name           string
	Email          string
	Phone          string
	FaceImageURL   string
	ApprovalStatus ApprovalStatus
	StandCode      string
	StandName      string
	CreatedAt      time.Time
}

// ShortID is the printable 8-character prefix shown on badges.
func (p Participant) ShortID() string {
	if len(p.ID) <= ShortIDLength {
		return strings.ToUpper(p.ID)
	}
	return strings.ToUpper(p.ID[:ShortIDLength])
}

func (p Participant) Approved() bool {
	return p.ApprovalStatus == ApprovalApproved
}

type Event struct {
	ID              string
	Name            string
	Code            string
	Slug            string
	Status          string
	StartDate       *time.Time
	EndDate         *time.Time
	MaxCapacity     int
	RegisteredCount int
}

func (e Event) Active() bool {
	return e.Status == EventStatusActive
}

// WithinDates reports whether at falls inside [StartDate, EndDate]. Open bounds always match.
func (e Event) WithinDates(at time.Time) bool {
	if e.StartDate != nil && at.Before(*e.StartDate) {
		return false
	}
	if e.EndDate != nil && at.After(*e.EndDate) {
		return false
	}
	return true
}

type Operator struct {
	ID    string
	Name  string
	Email string
	Role  string
}

type Device struct {
	ID   string
	Name string
	IP   string
}

// LogEntry is one immutable row of the access log.
type LogEntry struct {
	ID                 string
	ParticipantID      string
	EventID            string
	Type               Type
	Gate               string
	Location           string
	OperatorID         string
	OperatorName       string
	OperatorEmail      string
	DeviceID           string
	DeviceName         string
	DeviceIP           string
	VerificationMethod VerificationMethod
	Notes              string
	CreatedAt          time.Time
}

// LogRow is a log entry joined with the participant and event it belongs to.
type LogRow struct {
	Entry       LogEntry
	Participant Participant
	EventName   string
}

// Stats is the per-event occupancy aggregate.
type Stats struct {
	EventID            string
	CurrentInsideCount int
	TotalEntries       int
	TotalExits         int
	UniqueVisitors     int
	PeakCount          int
	PeakTime           *time.Time
	LastEntryAt        *time.Time
	LastExitAt         *time.Time
	UpdatedAt          time.Time
}

// LogFilter selects access log rows. Zero values mean "no filter".
type LogFilter struct {
	EventID       string
	ParticipantID string
	Type          Type
	Gate          string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}
