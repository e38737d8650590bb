package access

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	StatsSourceAggregate     = "aggregate"
	StatsSourceReconstructed = "reconstructed"

	recentActivityLimit = 20
)

type HourBucket struct {
	Hour    int
	Entries int
	Exits   int
}

// StatsView is the dashboard for one event. It has the same shape whether the
// aggregate row exists or had to be rebuilt from the log.
type StatsView struct {
	Event               Event
	Stats               Stats
	Source              string
	OccupancyPercentage int
	RecentActivity      []LogRow
	ParticipantsInside  []Participant
	// HourlyToday has 24 buckets in the service's location.
	HourlyToday  []HourBucket
	TodayEntries int
	TodayExits   int
	GeneratedAt  time.Time
}

// GetStats resolves eventRef (id, slug or code) and reports occupancy. A missing
// aggregate is not an error: it is rebuilt from the log for this response.
func (s *Service) GetStats(ctx context.Context, eventRef string) (StatsView, error) {
	ev, err := s.lookupEvent(ctx, eventRef)
	if err != nil {
		return StatsView{}, err
	}

	view := StatsView{Event: ev, Source: StatsSourceAggregate, GeneratedAt: s.now()}

	stats, ok, err := s.store.GetStats(ctx, ev.ID)
	if err != nil {
		return StatsView{}, fmt.Errorf("load stats: %w", err)
	}
	if !ok {
		entries, err := s.store.EventLog(ctx, ev.ID, time.Time{})
		if err != nil {
			return StatsView{}, fmt.Errorf("load event log: %w", err)
		}
		stats = Reconstruct(ev.ID, entries)
		view.Source = StatsSourceReconstructed
	}
	view.Stats = stats
	view.OccupancyPercentage = OccupancyPercentage(stats.CurrentInsideCount, ev.MaxCapacity)

	recent, _, err := s.store.ListLogs(ctx, LogFilter{EventID: ev.ID, Limit: recentActivityLimit})
	if err != nil {
		return StatsView{}, fmt.Errorf("load recent activity: %w", err)
	}
	view.RecentActivity = recent

	inside, err := s.store.InsideParticipants(ctx, ev.ID)
	if err != nil {
		return StatsView{}, fmt.Errorf("load participants inside: %w", err)
	}
	view.ParticipantsInside = inside

	dayStart := startOfDay(view.GeneratedAt, s.loc)
	today, err := s.store.EventLog(ctx, ev.ID, dayStart)
	if err != nil {
		return StatsView{}, fmt.Errorf("load today's log: %w", err)
	}
	view.HourlyToday, view.TodayEntries, view.TodayExits = hourly(today, s.loc)
	return view, nil
}

// Reconcile rebuilds an event's aggregate from its log and stores it.
// It runs as one atomic unit so concurrent writes land on top of the result.
func (s *Service) Reconcile(ctx context.Context, eventID string) (Stats, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return Stats{}, validationErr(CodeEventRequired, nil)
	}

	var out Stats
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if _, _, err := tx.LockStats(ctx, eventID); err != nil {
			return fmt.Errorf("lock stats: %w", err)
		}
		entries, err := tx.EventLog(ctx, eventID)
		if err != nil {
			return fmt.Errorf("load event log: %w", err)
		}
		out = Reconstruct(eventID, entries)
		out.UpdatedAt = s.now()
		if err := tx.PutStats(ctx, out); err != nil {
			return fmt.Errorf("store stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOccupancy(ctx, out); err != nil {
			logWarn(ctx, "occupancy publish failed", "event_id", eventID, "err", err)
		}
	}
	return out, nil
}

// ReconcileByRef is Reconcile for an event id, slug or code.
func (s *Service) ReconcileByRef(ctx context.Context, eventRef string) (Event, Stats, error) {
	ev, err := s.lookupEvent(ctx, eventRef)
	if err != nil {
		return Event{}, Stats{}, err
	}
	st, err := s.Reconcile(ctx, ev.ID)
	return ev, st, err
}

// ReconcileAll reconciles every event that has at least one log entry.
// It stops at the first failure and returns what was done so far.
func (s *Service) ReconcileAll(ctx context.Context) ([]Stats, error) {
	ids, err := s.store.EventIDsWithLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Stats, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		st, err := s.Reconcile(ctx, id)
		if err != nil {
			return out, fmt.Errorf("reconcile %s: %w", id, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) lookupEvent(ctx context.Context, ref string) (Event, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Event{}, validationErr(CodeEventRequired, nil)
	}
	ev, ok, err := s.store.GetEvent(ctx, ref)
	if err != nil {
		return Event{}, fmt.Errorf("load event: %w", err)
	}
	if !ok {
		return Event{}, notFoundErr(CodeEventNotFound, map[string]any{"Event": ref})
	}
	return ev, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

func hourly(entries []LogEntry, loc *time.Location) ([]HourBucket, int, int) {
	buckets := make([]HourBucket, 24)
	for h := range buckets {
		buckets[h].Hour = h
	}
	var in, out int
	for _, e := range entries {
		h := e.CreatedAt.In(loc).Hour()
		switch e.Type {
		case TypeEntry:
			buckets[h].Entries++
			in++
		case TypeExit:
			buckets[h].Exits++
			out++
		}
	}
	return buckets, in, out
}
