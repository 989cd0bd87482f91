package dispatch

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/core"
)

// Target is one ceremony an invite pertains to. The zero Target is the
// event-wide sentinel.
type Target struct {
	CeremonyID string
}

// EventWide reports whether t is the event-wide sentinel.
func (t Target) EventWide() bool { return t.CeremonyID == "" }

// CeremonyLookup is the store capability ResolveTargets needs.
type CeremonyLookup interface {
	CeremoniesByIDs(ctx context.Context, eventID string, ids []string) ([]core.Ceremony, error)
}

// ResolveTargets turns the caller's optional ceremony ids into fan-out
// targets. No ids means a single event-wide target. Supplied ids are reduced
// to the distinct ones belonging to the event, in the caller's order; ids that
// do not resolve are dropped with a warning. When ids were supplied but none
// resolve, the result is empty and the caller decides how to reject it.
func ResolveTargets(ctx context.Context, store CeremonyLookup, eventID string, ceremonyIDs []string) ([]Target, error) {
	requested := distinct(ceremonyIDs)
	if len(requested) == 0 {
		return []Target{{}}, nil
	}

	found, err := store.CeremoniesByIDs(ctx, eventID, requested)
	if err != nil {
		return nil, err
	}
	valid := make(map[string]bool, len(found))
	for _, c := range found {
		if c.EventID == eventID {
			valid[c.ID] = true
		}
	}

	targets := make([]Target, 0, len(valid))
	for _, id := range requested {
		if valid[id] {
			targets = append(targets, Target{CeremonyID: id})
		}
	}
	if len(targets) != len(requested) {
		zerolog.Ctx(ctx).Warn().
			Int("requested", len(requested)).
			Int("resolved", len(targets)).
			Str("event_id", eventID).
			Msg("some ceremony ids do not belong to the event")
	}
	return targets, nil
}

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
