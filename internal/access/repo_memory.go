package access

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local runs.
// Atomic holds one mutex for the whole unit, so units never interleave.
type MemoryStore struct {
	mu           sync.Mutex
	events       map[string]Event
	participants map[string]Participant
	logs         []LogEntry
	stats        map[string]Stats

	// FailAppend, when set, is returned by AppendAccess. Tests use it to
	// prove nothing is written on a failed unit.
	FailAppend error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       make(map[string]Event),
		participants: make(map[string]Participant),
		stats:        make(map[string]Stats),
	}
}

func (m *MemoryStore) PutEvent(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
}

func (m *MemoryStore) PutParticipant(p Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.participants[p.ID] = p
}

func (m *MemoryStore) GetParticipant(_ context.Context, id string) (Participant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	return p, ok, nil
}

func (m *MemoryStore) FindParticipants(_ context.Context, eventID string, ident Identifier, limit int) ([]Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Participant
	for _, p := range m.participants {
		if eventID != "" && p.EventID != eventID {
			continue
		}
		if matchesIdentifier(p, ident) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesIdentifier(p Participant, ident Identifier) bool {
	switch ident.Kind {
	case IdentifierFullID:
		return p.ID == ident.Value
	case IdentifierShortID:
		return strings.HasPrefix(strings.ToLower(p.ID), ident.Value)
	case IdentifierNationalID:
		return p.NationalID == ident.Value
	default:
		return false
	}
}

func (m *MemoryStore) GetEvent(_ context.Context, ref string) (Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[ref]
	if !ok {
		for _, e := range m.events {
			if e.Slug == ref || e.Code == ref {
				ev, ok = e, true
				break
			}
		}
	}
	if !ok {
		return Event{}, false, nil
	}
	ev.RegisteredCount = 0
	for _, p := range m.participants {
		if p.EventID == ev.ID {
			ev.RegisteredCount++
		}
	}
	return ev, true, nil
}

func (m *MemoryStore) GetStats(_ context.Context, eventID string) (Stats, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[eventID]
	return s, ok, nil
}

func (m *MemoryStore) ParticipantLog(_ context.Context, participantID, eventID string) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []LogEntry
	for _, e := range m.logs {
		if e.ParticipantID == participantID && e.EventID == eventID {
			out = append(out, e)
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (m *MemoryStore) EventLog(_ context.Context, eventID string, since time.Time) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventLogLocked(eventID, since), nil
}

func (m *MemoryStore) eventLogLocked(eventID string, since time.Time) []LogEntry {
	var out []LogEntry
	for _, e := range m.logs {
		if e.EventID == eventID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sortOldestFirst(out)
	return out
}

func (m *MemoryStore) ListLogs(_ context.Context, f LogFilter) ([]LogRow, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []LogEntry
	for _, e := range m.logs {
		if f.EventID != "" && e.EventID != f.EventID {
			continue
		}
		if f.ParticipantID != "" && e.ParticipantID != f.ParticipantID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Gate != "" && e.Gate != f.Gate {
			continue
		}
		if f.From != nil && e.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && e.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, e)
	}
	sortOldestFirst(matched)

	total := len(matched)
	rows := make([]LogRow, 0)
	for i := total - 1 - f.Offset; i >= 0; i-- {
		if f.Limit > 0 && len(rows) >= f.Limit {
			break
		}
		e := matched[i]
		rows = append(rows, LogRow{
			Entry:       e,
			Participant: m.participants[e.ParticipantID],
			EventName:   m.events[e.EventID].Name,
		})
	}
	return rows, total, nil
}

func (m *MemoryStore) InsideParticipants(_ context.Context, eventID string) ([]Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[string]Type)
	for _, e := range m.eventLogLocked(eventID, time.Time{}) {
		latest[e.ParticipantID] = e.Type
	}
	var out []Participant
	for id, t := range latest {
		if t == TypeEntry {
			out = append(out, m.participants[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) EventIDsWithLogs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, e := range m.logs {
		if _, ok := seen[e.EventID]; ok {
			continue
		}
		seen[e.EventID] = struct{}{}
		out = append(out, e.EventID)
	}
	sort.Strings(out)
	return out, nil
}

// Atomic runs fn under the store mutex. Writes are staged and applied only
// when fn returns nil.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{m: m, stats: make(map[string]Stats)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.logs = append(m.logs, tx.appended...)
	for id, s := range tx.stats {
		m.stats[id] = s
	}
	return nil
}

type memoryTx struct {
	m        *MemoryStore
	appended []LogEntry
	stats    map[string]Stats
}

func (t *memoryTx) LockParticipant(_ context.Context, id string) (Participant, bool, error) {
	p, ok := t.m.participants[id]
	return p, ok, nil
}

func (t *memoryTx) LastAccess(_ context.Context, participantID, eventID string) (LogEntry, bool, error) {
	var last LogEntry
	found := false
	for _, set := range [][]LogEntry{t.m.logs, t.appended} {
		for _, e := range set {
			if e.ParticipantID != participantID || e.EventID != eventID {
				continue
			}
			if !found || e.CreatedAt.After(last.CreatedAt) {
				last, found = e, true
			}
		}
	}
	return last, found, nil
}

func (t *memoryTx) AppendAccess(_ context.Context, e LogEntry) error {
	if t.m.FailAppend != nil {
		return t.m.FailAppend
	}
	t.appended = append(t.appended, e)
	return nil
}

func (t *memoryTx) ApplyAccess(_ context.Context, eventID string, typ Type, at time.Time) (Stats, error) {
	s, ok := t.currentStats(eventID)
	if !ok {
		s = Stats{EventID: eventID}
	}
	s = s.Apply(typ, at)

	visitors := make(map[string]struct{})
	for _, set := range [][]LogEntry{t.m.logs, t.appended} {
		for _, e := range set {
			if e.EventID == eventID && e.Type == TypeEntry {
				visitors[e.ParticipantID] = struct{}{}
			}
		}
	}
	s.UniqueVisitors = len(visitors)

	t.stats[eventID] = s
	return s, nil
}

func (t *memoryTx) currentStats(eventID string) (Stats, bool) {
	if s, ok := t.stats[eventID]; ok {
		return s, true
	}
	s, ok := t.m.stats[eventID]
	return s, ok
}

func (t *memoryTx) LockStats(_ context.Context, eventID string) (Stats, bool, error) {
	s, ok := t.currentStats(eventID)
	return s, ok, nil
}

func (t *memoryTx) EventLog(_ context.Context, eventID string) ([]LogEntry, error) {
	out := t.m.eventLogLocked(eventID, time.Time{})
	for _, e := range t.appended {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (t *memoryTx) PutStats(_ context.Context, s Stats) error {
	t.stats[s.EventID] = s
	return nil
}

func sortOldestFirst(entries []LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
