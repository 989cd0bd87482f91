package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not_found")
	// ErrConflict is returned when a write would violate a per-event handle
	// uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrAttemptFinal is returned when completing an attempt that already left PENDING.
	ErrAttemptFinal = errors.New("attempt_already_final")
)

// GuestStore is the guest registry persistence used by the resolver.
type GuestStore interface {
	// FindGuests returns the event's guests matching any of preds, oldest first.
	FindGuests(ctx context.Context, eventID string, preds []Predicate) ([]Guest, error)
	CreateGuest(ctx context.Context, g *Guest) error
	// PatchGuest applies p to the event's guest id field by field against the
	// stored row and returns the result.
	PatchGuest(ctx context.Context, eventID, id string, p GuestPatch) (*Guest, error)
	GetGuest(ctx context.Context, id string) (*Guest, error)
}

// GuestPatch is a field-wise guest update. Zero fields leave the stored
// value untouched, so concurrent patches of one guest compose.
type GuestPatch struct {
	// Name replaces the display name when non-empty.
	Name string
	// Backfill sets each handle only where the stored one is empty.
	Backfill map[HandleField]string
	// UserID links the guest to an account. Patching a guest already linked
	// to another account fails with ErrConflict.
	UserID string
	// NotifyChannels replaces the preferences when non-nil.
	NotifyChannels []Channel
}

// AttemptStore persists DeliveryAttempt rows.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a *DeliveryAttempt) error
	// CompleteAttempt moves a PENDING attempt to SENT or FAILED exactly once.
	CompleteAttempt(ctx context.Context, id string, status AttemptStatus, errText string, sentAt *time.Time) error
	AttemptByToken(ctx context.Context, token string) (*DeliveryAttempt, error)
	ListAttempts(ctx context.Context, eventID string, limit, offset int) ([]DeliveryAttempt, error)
}

// Store is everything the dispatch engine and the HTTP layer need.
type Store interface {
	GuestStore
	AttemptStore

	GetEvent(ctx context.Context, id string) (*Event, error)
	GetDesign(ctx context.Context, id string) (*Design, error)
	SetDesignHostedURL(ctx context.Context, designID, url string) error
	// CeremoniesByIDs returns the subset of ids that are ceremonies of eventID.
	CeremoniesByIDs(ctx context.Context, eventID string, ids []string) ([]Ceremony, error)
	RecordRSVP(ctx context.Context, guestID string, status RSVPStatus) error
	Ping(ctx context.Context) error
}
