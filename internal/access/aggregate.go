package access

import "time"

// Apply folds a single access into the aggregate the same way the SQL stores do.
func (s Stats) Apply(t Type, at time.Time) Stats {
	out := s
	switch t {
	case TypeEntry:
		out.CurrentInsideCount++
		out.TotalEntries++
		out.LastEntryAt = timePtr(at)
		if out.CurrentInsideCount > out.PeakCount {
			out.PeakCount = out.CurrentInsideCount
			out.PeakTime = timePtr(at)
		}
	case TypeExit:
		out.CurrentInsideCount--
		if out.CurrentInsideCount < 0 {
			out.CurrentInsideCount = 0
		}
		out.TotalExits++
		out.LastExitAt = timePtr(at)
	}
	out.UpdatedAt = at
	return out
}

// Reconstruct replays an event's log (oldest first) into an aggregate.
// Occupancy is the number of participants whose latest entry is ENTRY; the
// peak is the maximum of that curve over the replay.
func Reconstruct(eventID string, entries []LogEntry) Stats {
	s := Stats{EventID: eventID}
	latest := make(map[string]Type)
	visitors := make(map[string]struct{})
	inside := 0

	for _, e := range entries {
		at := e.CreatedAt
		switch e.Type {
		case TypeEntry:
			s.TotalEntries++
			s.LastEntryAt = timePtr(at)
			visitors[e.ParticipantID] = struct{}{}
		case TypeExit:
			s.TotalExits++
			s.LastExitAt = timePtr(at)
		default:
			continue
		}

		prev := latest[e.ParticipantID]
		latest[e.ParticipantID] = e.Type
		if prev != TypeEntry && e.Type == TypeEntry {
			inside++
		}
		if prev == TypeEntry && e.Type == TypeExit {
			inside--
		}
		if inside > s.PeakCount {
			s.PeakCount = inside
			s.PeakTime = timePtr(at)
		}
		s.UpdatedAt = at
	}

	s.CurrentInsideCount = inside
	s.UniqueVisitors = len(visitors)
	return s
}

// Presence is a participant's state derived from their log in one event.
type Presence struct {
	Inside       bool
	Last         *LogEntry
	TotalEntries int
	TotalExits   int
	// TimeInside sums closed ENTRY/EXIT pairs, plus the open visit up to now.
	TimeInside time.Duration
}

// Summarize derives Presence from entries ordered oldest first.
func Summarize(entries []LogEntry, now time.Time) Presence {
	var p Presence
	var openedAt *time.Time

	for i := range entries {
		e := entries[i]
		switch e.Type {
		case TypeEntry:
			p.TotalEntries++
			if openedAt == nil {
				openedAt = timePtr(e.CreatedAt)
			}
		case TypeExit:
			p.TotalExits++
			if openedAt != nil {
				p.TimeInside += e.CreatedAt.Sub(*openedAt)
				openedAt = nil
			}
		}
	}

	if n := len(entries); n > 0 {
		last := entries[n-1]
		p.Last = &last
		p.Inside = last.Type == TypeEntry
	}
	if p.Inside && openedAt != nil && now.After(*openedAt) {
		p.TimeInside += now.Sub(*openedAt)
	}
	return p
}

func timePtr(t time.Time) *time.Time {
	return &t
}
