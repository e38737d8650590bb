// Package occupancy pushes live aggregate snapshots over Redis pub/sub and
// debounces repeated fast-path scans with short-lived Redis keys.
package occupancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"event-access/internal/access"
	"event-access/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const (
	ChannelPrefix = "access:occupancy:"
	scanKeyPrefix = "access:scan:"
)

// Channel is the pub/sub channel carrying an event's snapshots.
func Channel(eventID string) string { return ChannelPrefix + eventID }

// Snapshot is the JSON payload published after each committed write.
type Snapshot struct {
	EventID            string     `json:"eventId"`
	CurrentInsideCount int        `json:"currentInsideCount"`
	TotalEntries       int        `json:"totalEntries"`
	TotalExits         int        `json:"totalExits"`
	UniqueVisitors     int        `json:"uniqueVisitors"`
	PeakCount          int        `json:"peakCount"`
	PeakTime           *time.Time `json:"peakTime"`
	LastEntryAt        *time.Time `json:"lastEntryAt"`
	LastExitAt         *time.Time `json:"lastExitAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func SnapshotOf(s access.Stats) Snapshot {
	return Snapshot{
		EventID:            s.EventID,
		CurrentInsideCount: s.CurrentInsideCount,
		TotalEntries:       s.TotalEntries,
		TotalExits:         s.TotalExits,
		UniqueVisitors:     s.UniqueVisitors,
		PeakCount:          s.PeakCount,
		PeakTime:           s.PeakTime,
		LastEntryAt:        s.LastEntryAt,
		LastExitAt:         s.LastExitAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher implements access.Publisher.
type Publisher struct {
	rdb publishClient
}

var _ access.Publisher = (*Publisher)(nil)

func NewPublisher(rdb publishClient) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) PublishOccupancy(ctx context.Context, s access.Stats) error {
	if s.EventID == "" {
		return errors.New("occupancy: event id is required")
	}
	payload, err := json.Marshal(SnapshotOf(s))
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, Channel(s.EventID), payload).Err(); err != nil {
		return fmt.Errorf("occupancy: publish: %w", err)
	}
	return nil
}

type claimClient interface {
	utils.KeySetter
	redis.Scripter
}

// Debouncer implements access.Debouncer with SET NX keys that expire after
// the window.
type Debouncer struct {
	rdb    claimClient
	window time.Duration
}

var _ access.Debouncer = (*Debouncer)(nil)

func NewDebouncer(rdb claimClient, window time.Duration) *Debouncer {
	return &Debouncer{rdb: rdb, window: window}
}

func (d *Debouncer) Claim(ctx context.Context, key string) (func(context.Context), bool, error) {
	full := scanKeyPrefix + key
	token, ok, err := utils.ClaimKey(ctx, d.rdb, full, d.window)
	if err != nil || !ok {
		return nil, ok, err
	}
	release := func(ctx context.Context) {
		// Expiry cleans up if this fails.
		_ = utils.ReleaseClaim(ctx, d.rdb, full, token)
	}
	return release, true, nil
}
