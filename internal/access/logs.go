package access

import (
	"context"
	"fmt"
	"strings"

	"event-access/pkg/logger"
)

const (
	DefaultLogLimit = 100
	MaxLogLimit     = 1000
)

// LogPage is one page of the access log, newest first.
type LogPage struct {
	Rows   []LogRow
	Total  int
	Limit  int
	Offset int
	// Entries and Exits count the rows on this page.
	Entries int
	Exits   int
}

// ListLogs validates f, resolves its event reference and returns one page.
func (s *Service) ListLogs(ctx context.Context, f LogFilter) (LogPage, error) {
	f.EventID = strings.TrimSpace(f.EventID)
	f.ParticipantID = strings.TrimSpace(f.ParticipantID)
	f.Gate = strings.TrimSpace(f.Gate)

	if f.Type != "" && !f.Type.Valid() {
		return LogPage{}, validationErr(CodeInvalidType, map[string]any{"Type": string(f.Type)})
	}
	if f.Limit < 0 || f.Offset < 0 {
		return LogPage{}, validationErr(CodeInvalidFilter, map[string]any{"Field": "limit/offset"})
	}
	if f.Limit == 0 {
		f.Limit = DefaultLogLimit
	}
	if f.Limit > MaxLogLimit {
		f.Limit = MaxLogLimit
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return LogPage{}, validationErr(CodeInvalidFilter, map[string]any{"Field": "from/to"})
	}

	if f.EventID != "" {
		ev, err := s.lookupEvent(ctx, f.EventID)
		if err != nil {
			return LogPage{}, err
		}
		f.EventID = ev.ID
	}

	rows, total, err := s.store.ListLogs(ctx, f)
	if err != nil {
		return LogPage{}, fmt.Errorf("list logs: %w", err)
	}

	page := LogPage{Rows: rows, Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, r := range rows {
		switch r.Entry.Type {
		case TypeEntry:
			page.Entries++
		case TypeExit:
			page.Exits++
		}
	}
	return page, nil
}

func logWarn(ctx context.Context, msg string, args ...any) {
	logger.From(ctx).Warn(msg, args...)
}
