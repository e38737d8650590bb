package access

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of these; anything else
// returned by the service is a store failure.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrNotApproved   = errors.New("participant not approved")
	ErrStateConflict = errors.New("state conflict")
	ErrAmbiguous     = errors.New("ambiguous identifier")
	ErrDuplicateScan = errors.New("duplicate scan")
)

// Machine-readable codes surfaced as the "error" field on the wire.
const (
	CodeParticipantRequired   = "participant_id_required"
	CodeEventRequired         = "event_id_required"
	CodeIdentifierRequired    = "identifier_required"
	CodeInvalidType           = "invalid_access_type"
	CodeInvalidMethod         = "invalid_verification_method"
	CodeInvalidFilter         = "invalid_filter"
	CodeParticipantNotFound   = "participant_not_found"
	CodeParticipantNotInEvent = "participant_not_in_event"
	CodeEventNotFound         = "event_not_found"
	CodeNotApproved           = "participant_not_approved"
	CodeAlreadyInside         = "already_inside"
	CodeNotInside             = "not_inside"
	CodeAmbiguousIdentifier   = "ambiguous_identifier"
	CodeDuplicateScan         = "duplicate_scan"
)

// Error is a domain failure with enough context for the caller to explain it.
type Error struct {
	Kind error
	Code string
	// Data feeds the localized message template.
	Data map[string]any

	// Set on ErrNotApproved.
	ApprovalStatus ApprovalStatus
	// Set on ErrStateConflict.
	LastAccess *LogEntry
	// Set when the participant was resolved before the failure.
	Participant *Participant
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Kind)
}

func (e *Error) Unwrap() error { return e.Kind }

// MessageID is the i18n key for the human message.
func (e *Error) MessageID() string {
	return "error." + e.Code
}

// AsError extracts a domain error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func validationErr(code string, data map[string]any) *Error {
	return &Error{Kind: ErrValidation, Code: code, Data: data}
}

func notFoundErr(code string, data map[string]any) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Data: data}
}
