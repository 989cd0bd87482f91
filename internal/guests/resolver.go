// Package guests resolves caller-supplied contacts to guest records, creating
// or enriching them as new handles are seen.
package guests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/core"
	"github.com/invitely/invite-dispatch/internal/metrics"
)

const defaultTimeout = 3 * time.Second

type Resolver struct {
	Store   core.GuestStore
	Timeout time.Duration // per store call
}

func NewResolver(store core.GuestStore, timeout time.Duration) *Resolver {
	return &Resolver{Store: store, Timeout: timeout}
}

// NormalizeHandle canonicalizes a raw contact handle for ch. The same form is
// used for matching and for persisting.
func NormalizeHandle(ch core.Channel, raw string) string {
	h := strings.TrimSpace(raw)
	switch ch {
	case core.ChannelInstagram:
		return strings.TrimPrefix(h, "@")
	case core.ChannelEmail:
		return strings.ToLower(h)
	case core.ChannelLink:
		if strings.Contains(h, "@") {
			return strings.ToLower(h)
		}
	}
	return h
}

// PrimaryField is the guest column a handle for ch is stored in.
func PrimaryField(ch core.Channel, handle string) core.HandleField {
	switch ch {
	case core.ChannelEmail:
		return core.FieldEmail
	case core.ChannelWhatsApp:
		return core.FieldWhatsAppID
	case core.ChannelMessenger:
		return core.FieldMessengerID
	case core.ChannelInstagram:
		return core.FieldInstagram
	case core.ChannelLink:
		if strings.Contains(handle, "@") {
			return core.FieldEmail
		}
	}
	return core.FieldPhone
}

// Predicates builds the lookup disjunction for a normalized handle. WhatsApp
// contacts may already exist under their phone number, so both columns match.
func Predicates(ch core.Channel, handle string) []core.Predicate {
	if ch == core.ChannelWhatsApp {
		return []core.Predicate{
			{Field: core.FieldPhone, Value: handle},
			{Field: core.FieldWhatsAppID, Value: handle},
		}
	}
	return []core.Predicate{{Field: PrimaryField(ch, handle), Value: handle}}
}

// Resolve returns the event's guest for handle, creating one when nothing
// matches. A matched guest gets its display name refreshed and the supplied
// handle backfilled when missing; existing handles are never cleared.
func (r *Resolver) Resolve(ctx context.Context, eventID string, ch core.Channel, handle, name string) (*core.Guest, error) {
	handle = NormalizeHandle(ch, handle)
	if handle == "" {
		return nil, errors.New("empty contact handle")
	}
	name = strings.TrimSpace(name)
	preds := Predicates(ch, handle)
	log := zerolog.Ctx(ctx)

	found, err := r.find(ctx, eventID, preds)
	if err != nil {
		return nil, fmt.Errorf("lookup guest: %w", err)
	}
	if found != nil {
		metrics.GuestResolveTotal.WithLabelValues("matched").Inc()
		return r.merge(ctx, found, ch, handle, name)
	}

	g := &core.Guest{EventID: eventID, Name: name}
	g.SetHandle(PrimaryField(ch, handle), handle)
	err = r.withTimeout(ctx, func(ctx context.Context) error { return r.Store.CreateGuest(ctx, g) })
	if err == nil {
		metrics.GuestResolveTotal.WithLabelValues("created").Inc()
		log.Debug().Str("guest_id", g.ID).Str("channel", string(ch)).Msg("guest created")
		return g, nil
	}
	if !errors.Is(err, core.ErrConflict) {
		return nil, fmt.Errorf("create guest: %w", err)
	}

	// Lost a create race: the winner's row is now visible.
	found, ferr := r.find(ctx, eventID, preds)
	if ferr != nil {
		return nil, fmt.Errorf("refetch guest after conflict: %w", ferr)
	}
	if found == nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}
	metrics.GuestResolveTotal.WithLabelValues("conflict_refetch").Inc()
	log.Debug().Str("guest_id", found.ID).Msg("guest create conflict, using existing")
	return r.merge(ctx, found, ch, handle, name)
}

// merge refreshes the name and backfills the handle on g. The store applies
// both against the current row, so concurrent merges of one guest compose.
func (r *Resolver) merge(ctx context.Context, g *core.Guest, ch core.Channel, handle, name string) (*core.Guest, error) {
	var p core.GuestPatch
	if name != "" && name != g.Name {
		p.Name = name
	}
	field := PrimaryField(ch, handle)
	if g.Handle(field) == "" {
		p.Backfill = map[core.HandleField]string{field: handle}
	}
	if p.Name == "" && p.Backfill == nil {
		return g, nil
	}

	var out *core.Guest
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.Store.PatchGuest(ctx, g.EventID, g.ID, p)
		return err
	})
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, core.ErrConflict) || p.Backfill == nil {
		return nil, fmt.Errorf("update guest: %w", err)
	}

	// Another guest of the event owns the handle by now; it is the match.
	owner, ferr := r.find(ctx, g.EventID, []core.Predicate{{Field: field, Value: handle}})
	if ferr != nil {
		return nil, fmt.Errorf("refetch guest after conflict: %w", ferr)
	}
	if owner == nil || owner.ID == g.ID {
		return nil, fmt.Errorf("update guest: %w", err)
	}
	metrics.GuestResolveTotal.WithLabelValues("conflict_refetch").Inc()
	zerolog.Ctx(ctx).Debug().Str("guest_id", owner.ID).Str("field", string(field)).Msg("handle owned by another guest, using it")
	return r.merge(ctx, owner, ch, handle, name)
}

func (r *Resolver) find(ctx context.Context, eventID string, preds []core.Predicate) (*core.Guest, error) {
	var matches []core.Guest
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		matches, err = r.Store.FindGuests(ctx, eventID, preds)
		return err
	})
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return &matches[0], nil
}

// LinkUser attaches an authenticated user to the earliest unlinked guest of
// the event matching their email or phone.
func (r *Resolver) LinkUser(ctx context.Context, eventID, userID, email, phone string) (*core.Guest, error) {
	var preds []core.Predicate
	if e := NormalizeHandle(core.ChannelEmail, email); e != "" {
		preds = append(preds, core.Predicate{Field: core.FieldEmail, Value: e})
	}
	if p := strings.TrimSpace(phone); p != "" {
		preds = append(preds,
			core.Predicate{Field: core.FieldPhone, Value: p},
			core.Predicate{Field: core.FieldWhatsAppID, Value: p})
	}
	if len(preds) == 0 {
		return nil, core.ErrNotFound
	}
	var matches []core.Guest
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		matches, err = r.Store.FindGuests(ctx, eventID, preds)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range matches {
		g := &matches[i]
		if g.UserID == userID {
			return g, nil
		}
		if g.UserID != "" {
			continue
		}
		var linked *core.Guest
		err := r.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			linked, err = r.Store.PatchGuest(ctx, eventID, g.ID, core.GuestPatch{UserID: userID})
			return err
		})
		if errors.Is(err, core.ErrConflict) {
			// linked to someone else since the lookup
			continue
		}
		if err != nil {
			return nil, err
		}
		zerolog.Ctx(ctx).Info().Str("guest_id", linked.ID).Str("user_id", userID).Msg("guest linked to account")
		return linked, nil
	}
	return nil, core.ErrNotFound
}

// SetPreferences records the channels a guest wants to be notified on.
func (r *Resolver) SetPreferences(ctx context.Context, eventID, guestID string, channels []core.Channel) (*core.Guest, error) {
	var g *core.Guest
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		g, err = r.Store.PatchGuest(ctx, eventID, guestID, core.GuestPatch{NotifyChannels: dedupe(channels)})
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Resolver) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	d := r.Timeout
	if d <= 0 {
		d = defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(cctx)
}

func dedupe(cs []core.Channel) []core.Channel {
	seen := make(map[core.Channel]bool, len(cs))
	out := make([]core.Channel, 0, len(cs))
	for _, c := range cs {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
