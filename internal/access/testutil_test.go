package access

import (
	"context"
	"sync"
	"testing"
	"time"
)

const (
	eventExpo  = "ev-expo"
	eventNorte = "ev-norte"

	anaID   = "a1b2c3d4-0000-4000-8000-000000000001"
	brunoID = "b2c3d4e5-0000-4000-8000-000000000002"
	carlaID = "c3d4e5f6-0000-4000-8000-000000000003"
	dianaID = "d4e5f6a7-0000-4000-8000-000000000004"
	eliasID = "e5f6a7b8-0000-4000-8000-000000000005"

	sharedCPF = "12345678901"
)

var testStart = time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAuditor struct {
	mu        sync.Mutex
	overrides []Override
}

func (a *fakeAuditor) RecordOverride(_ context.Context, o Override) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.overrides = append(a.overrides, o)
	return nil
}

func (a *fakeAuditor) all() []Override {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Override(nil), a.overrides...)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []Stats
}

func (p *fakePublisher) PublishOccupancy(_ context.Context, s Stats) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, s)
	return nil
}

// fakeDebouncer claims each key once until released.
type fakeDebouncer struct {
	mu       sync.Mutex
	held     map[string]bool
	released int
}

func (d *fakeDebouncer) Claim(_ context.Context, key string) (func(context.Context), bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held == nil {
		d.held = make(map[string]bool)
	}
	if d.held[key] {
		return nil, false, nil
	}
	d.held[key] = true
	return func(context.Context) {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.held, key)
		d.released++
	}, true, nil
}

type harness struct {
	svc   *Service
	store *MemoryStore
	clock *fakeClock
	audit *fakeAuditor
	pub   *fakePublisher
	deb   *fakeDebouncer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := NewMemoryStore()
	start := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 12, 23, 59, 0, 0, time.UTC)
	store.PutEvent(Event{
		ID: eventExpo, Name: "Expo Saúde 2025", Code: "EXPO25", Slug: "expo-saude-2025",
		Status: EventStatusActive, StartDate: &start, EndDate: &end, MaxCapacity: 200,
	})
	store.PutEvent(Event{ID: eventNorte, Name: "Feira Norte", Code: "FN25", Slug: "feira-norte", Status: "draft"})

	seed := []Participant{
		{ID: anaID, EventID: eventExpo, NationalID: sharedCPF, Name: "Ana Souza", ApprovalStatus: ApprovalApproved, StandCode: "B12", StandName: "Booth Doze"},
		{ID: brunoID, EventID: eventExpo, NationalID: "98765432100", Name: "Bruno Lima", ApprovalStatus: ApprovalPending},
		{ID: carlaID, EventID: eventNorte, NationalID: sharedCPF, Name: "Carla Dias", ApprovalStatus: ApprovalApproved},
		{ID: dianaID, EventID: eventExpo, NationalID: "11122233344", Name: "Diana Reis", ApprovalStatus: ApprovalRejected},
		{ID: eliasID, EventID: eventExpo, NationalID: "55566677788", Name: "Elias Prado", ApprovalStatus: ApprovalApproved},
	}
	for i, p := range seed {
		p.CreatedAt = testStart.Add(-time.Duration(len(seed)-i) * time.Hour)
		store.PutParticipant(p)
	}

	h := &harness{
		store: store,
		clock: &fakeClock{t: testStart},
		audit: &fakeAuditor{},
		pub:   &fakePublisher{},
		deb:   &fakeDebouncer{},
	}
	h.svc = NewService(store, Options{
		Audit:     h.audit,
		Publisher: h.pub,
		Debouncer: h.deb,
		Location:  time.UTC,
		Clock:     h.clock.Now,
	})
	return h
}

func (h *harness) stats(t *testing.T, eventID string) Stats {
	t.Helper()
	s, ok, err := h.store.GetStats(context.Background(), eventID)
	if err != nil || !ok {
		t.Fatalf("stats for %s: ok=%v err=%v", eventID, ok, err)
	}
	return s
}
