package postgres

import (
	"context"
	"database/sql"
	"time"

	"event-access/internal/access"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const participantSelect = `
SELECT p.id, COALESCE(p.event_id, ''), p.cpf, p.name, p.email, p.phone, p.face_image_url,
       p.approval_status, COALESCE(s.code, ''), COALESCE(s.name, ''), p.created_at
FROM participants p
LEFT JOIN stands s ON s.id = p.stand_id`

const logColumns = `l.id, l.participant_id, l.event_id, l.type, l.gate, l.location,
       l.operator_id, l.operator_name, l.operator_email, l.device_id, l.device_name, l.device_ip,
       l.verification_method, l.notes, l.created_at`

const statsColumns = `event_id, current_inside_count, total_entries, total_exits, unique_visitors,
       peak_count, peak_time, last_entry_at, last_exit_at, updated_at`

func scanParticipant(s scanner) (access.Participant, error) {
	var p access.Participant
	var status string
	if err := s.Scan(
		&p.ID,
		&p.EventID,
		&p.NationalID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.FaceImageURL,
		&status,
		&p.StandCode,
		&p.StandName,
		&p.CreatedAt,
	); err != nil {
		return access.Participant{}, err
	}
	p.ApprovalStatus = access.ApprovalStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func scanLogEntry(s scanner, extra ...any) (access.LogEntry, error) {
	var e access.LogEntry
	var typ, method string
	dest := []any{
		&e.ID,
		&e.ParticipantID,
		&e.EventID,
		&typ,
		&e.Gate,
		&e.Location,
		&e.OperatorID,
		&e.OperatorName,
		&e.OperatorEmail,
		&e.DeviceID,
		&e.DeviceName,
		&e.DeviceIP,
		&method,
		&e.Notes,
		&e.CreatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return access.LogEntry{}, err
	}
	e.Type = access.Type(typ)
	e.VerificationMethod = access.VerificationMethod(method)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func scanStats(s scanner) (access.Stats, error) {
	var st access.Stats
	var peak, lastIn, lastOut sql.NullTime
	if err := s.Scan(
		&st.EventID,
		&st.CurrentInsideCount,
		&st.TotalEntries,
		&st.TotalExits,
		&st.UniqueVisitors,
		&st.PeakCount,
		&peak,
		&lastIn,
		&lastOut,
		&st.UpdatedAt,
	); err != nil {
		return access.Stats{}, err
	}
	st.PeakTime = nullTime(peak)
	st.LastEntryAt = nullTime(lastIn)
	st.LastExitAt = nullTime(lastOut)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

func collectLog(rows *sql.Rows) ([]access.LogEntry, error) {
	defer rows.Close()
	var out []access.LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func collectParticipants(rows *sql.Rows) ([]access.Participant, error) {
	defer rows.Close()
	var out []access.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

// timeOrNil keeps typed nil pointers out of the driver.
func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
