package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store. It enforces the same per-event handle
// uniqueness as the Postgres schema so conflict handling behaves identically.
type MemStore struct {
	mu         sync.RWMutex
	events     map[string]Event
	designs    map[string]Design
	ceremonies map[string]Ceremony
	guests     map[string]Guest
	attempts   map[string]DeliveryAttempt
	tokens     map[string]string // token -> attempt id
	seq        int64             // insertion order for stable listings
	order      map[string]int64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		events:     map[string]Event{},
		designs:    map[string]Design{},
		ceremonies: map[string]Ceremony{},
		guests:     map[string]Guest{},
		attempts:   map[string]DeliveryAttempt{},
		tokens:     map[string]string{},
		order:      map[string]int64{},
	}
}

func (m *MemStore) Ping(context.Context) error { return nil }

func (m *MemStore) FindGuests(_ context.Context, eventID string, preds []Predicate) ([]Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Guest
	for _, g := range m.guests {
		if g.EventID != eventID {
			continue
		}
		for _, p := range preds {
			if p.Value != "" && g.Handle(p.Field) == p.Value {
				out = append(out, cloneGuest(g))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out, nil
}

func (m *MemStore) GetGuest(_ context.Context, id string) (*Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guests[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneGuest(g)
	return &c, nil
}

func (m *MemStore) CreateGuest(_ context.Context, g *Guest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if err := m.checkHandlesLocked(g); err != nil {
		return err
	}
	if g.RSVP == "" {
		g.RSVP = RSVPPending
	}
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	m.guests[g.ID] = cloneGuest(*g)
	m.touchLocked(g.ID)
	return nil
}

func (m *MemStore) PatchGuest(_ context.Context, eventID, id string, p GuestPatch) (*Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.guests[id]
	if !ok || cur.EventID != eventID {
		return nil, ErrNotFound
	}
	if p.UserID != "" && cur.UserID != "" && cur.UserID != p.UserID {
		return nil, fmt.Errorf("%w: guest linked to another account", ErrConflict)
	}
	next := cloneGuest(cur)
	if p.Name != "" {
		next.Name = p.Name
	}
	for _, f := range HandleFields {
		if v := p.Backfill[f]; v != "" && next.Handle(f) == "" {
			next.SetHandle(f, v)
		}
	}
	if p.UserID != "" {
		next.UserID = p.UserID
	}
	if p.NotifyChannels != nil {
		next.NotifyChannels = append([]Channel{}, p.NotifyChannels...)
	}
	if err := m.checkHandlesLocked(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	m.guests[id] = next
	out := cloneGuest(next)
	return &out, nil
}

// checkHandlesLocked reports ErrConflict when another guest of the same event
// already owns one of g's handles.
func (m *MemStore) checkHandlesLocked(g *Guest) error {
	for _, other := range m.guests {
		if other.ID == g.ID || other.EventID != g.EventID {
			continue
		}
		for _, f := range HandleFields {
			if v := g.Handle(f); v != "" && other.Handle(f) == v {
				return fmt.Errorf("%w: guests_event_%s", ErrConflict, f)
			}
		}
	}
	return nil
}

func (m *MemStore) RecordRSVP(_ context.Context, guestID string, status RSVPStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[guestID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	g.RSVP, g.RSVPAt, g.UpdatedAt = status, &now, now
	m.guests[guestID] = g
	return nil
}

func (m *MemStore) CreateAttempt(_ context.Context, a *DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, dup := m.tokens[a.Token]; dup {
		return fmt.Errorf("%w: delivery_attempts_token_key", ErrConflict)
	}
	a.Status = StatusPending
	a.CreatedAt = time.Now().UTC()
	m.attempts[a.ID] = *a
	m.tokens[a.Token] = a.ID
	m.touchLocked(a.ID)
	return nil
}

func (m *MemStore) CompleteAttempt(_ context.Context, id string, status AttemptStatus, errText string, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.Status != StatusPending {
		return ErrAttemptFinal
	}
	a.Status, a.Error, a.SentAt = status, errText, sentAt
	m.attempts[id] = a
	return nil
}

func (m *MemStore) AttemptByToken(_ context.Context, token string) (*DeliveryAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	a := m.attempts[id]
	return &a, nil
}

func (m *MemStore) ListAttempts(_ context.Context, eventID string, limit, offset int) ([]DeliveryAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []DeliveryAttempt
	for _, a := range m.attempts {
		if a.EventID == eventID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return m.order[all[i].ID] > m.order[all[j].ID] })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Attempts returns every stored attempt, oldest first.
func (m *MemStore) Attempts() []DeliveryAttempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DeliveryAttempt, 0, len(m.attempts))
	for _, a := range m.attempts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out
}

// Guests returns every stored guest of eventID, oldest first.
func (m *MemStore) Guests(eventID string) []Guest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Guest
	for _, g := range m.guests {
		if g.EventID == eventID {
			out = append(out, cloneGuest(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out
}

func (m *MemStore) GetEvent(_ context.Context, id string) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemStore) GetDesign(_ context.Context, id string) (*Design, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.designs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemStore) SetDesignHostedURL(_ context.Context, designID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.designs[designID]
	if !ok {
		return ErrNotFound
	}
	d.ImageURL = url
	m.designs[designID] = d
	return nil
}

func (m *MemStore) CeremoniesByIDs(_ context.Context, eventID string, ids []string) ([]Ceremony, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Ceremony
	for _, id := range ids {
		if c, ok := m.ceremonies[id]; ok && c.EventID == eventID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) CreateEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.events[e.ID] = *e
	return nil
}

func (m *MemStore) CreateDesign(_ context.Context, d *Design) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	m.designs[d.ID] = *d
	return nil
}

func (m *MemStore) CreateCeremony(_ context.Context, c *Ceremony) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.ceremonies[c.ID] = *c
	return nil
}

func (m *MemStore) touchLocked(id string) {
	m.seq++
	m.order[id] = m.seq
}

func cloneGuest(g Guest) Guest {
	if g.NotifyChannels != nil {
		g.NotifyChannels = append([]Channel(nil), g.NotifyChannels...)
	}
	return g
}
