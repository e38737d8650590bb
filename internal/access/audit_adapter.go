package access

import (
	"context"
	"encoding/json"

	"event-access/internal/audit"
)

// AuditAdapter bridges the service's override hook to the shared audit.Service.
type AuditAdapter struct {
	Audit *audit.Service
}

var _ Auditor = AuditAdapter{}

type overrideMetadata struct {
	Type           Type           `json:"type"`
	ApprovalStatus ApprovalStatus `json:"approval_status,omitempty"`
	WasInside      bool           `json:"was_inside"`
	OperatorEmail  string         `json:"operator_email,omitempty"`
}

func (a AuditAdapter) RecordOverride(ctx context.Context, o Override) error {
	if a.Audit == nil {
		return nil
	}
	meta, err := json.Marshal(overrideMetadata{
		Type:           o.Type,
		ApprovalStatus: o.ApprovalStatus,
		WasInside:      o.WasInside,
		OperatorEmail:  o.Operator.Email,
	})
	if err != nil {
		return err
	}
	return a.Audit.Append(ctx, audit.Event{
		EventID:       o.EventID,
		Type:          overrideEventType(o.Action),
		ActorUserID:   o.Operator.ID,
		ActorName:     o.Operator.Name,
		ActorRole:     o.Operator.Role,
		IPAddress:     o.IP,
		ParticipantID: o.ParticipantID,
		AccessLogID:   o.AccessLogID,
		Message:       string(o.Action) + " applied",
		Metadata:      string(meta),
		CreatedAt:     o.At,
	})
}

func overrideEventType(a OverrideAction) audit.EventType {
	switch a {
	case OverrideForceEntry:
		return audit.EventTypeForceEntry
	case OverrideForceExit:
		return audit.EventTypeForceExit
	default:
		return audit.EventTypeFastCheckIn
	}
}
