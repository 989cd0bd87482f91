// Package channels delivers invitations over the supported channels. Each
// channel is a variant that knows how to find its destination on a guest and
// how to send to it; the Registry maps the channel enum to its variant.
package channels

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/invitely/invite-dispatch/internal/core"
)

var (
	// ErrNoHandle means the guest has no usable destination for the channel.
	ErrNoHandle = errors.New("no usable contact handle")
	// ErrUnavailable means the channel has no configured sender.
	ErrUnavailable = errors.New("channel not configured")
	// ErrTimeout is reported for sends that exceed the send timeout.
	ErrTimeout = errors.New("timeout")
)

// Message is what every channel sender receives.
type Message struct {
	Destination string
	DisplayName string
	EventTitle  string
	ImageURL    string
	ShareLink   string
	Token       string
	GuestID     string
	UserID      string
}

// InviteLink is the share link carrying the tracking token.
func (m Message) InviteLink() string {
	u, err := url.Parse(m.ShareLink)
	if err != nil || m.Token == "" {
		return m.ShareLink
	}
	q := u.Query()
	q.Set("invite", m.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Text renders the plain-text invitation used by text-only channels.
func (m Message) Text() string {
	var b strings.Builder
	if m.DisplayName != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", m.DisplayName)
	}
	fmt.Fprintf(&b, "You're invited to %s!\n\n", m.EventTitle)
	fmt.Fprintf(&b, "View your invitation and RSVP: %s", m.InviteLink())
	if m.ImageURL != "" {
		fmt.Fprintf(&b, "\n\n%s", m.ImageURL)
	}
	return b.String()
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

type SenderFunc func(ctx context.Context, m Message) error

func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

// Variant is one delivery channel.
type Variant interface {
	Channel() core.Channel
	// ResolveHandle picks the destination from the guest, falling back to the
	// raw caller-supplied contact when the guest has none.
	ResolveHandle(g *core.Guest, fallback string) (string, error)
	Sender
}

type variant struct {
	ch      core.Channel
	resolve func(g *core.Guest, fallback string) string
	what    string
	sender  Sender
}

func (v *variant) Channel() core.Channel { return v.ch }

func (v *variant) ResolveHandle(g *core.Guest, fallback string) (string, error) {
	if h := v.resolve(g, strings.TrimSpace(fallback)); h != "" {
		return h, nil
	}
	return "", fmt.Errorf("%w: guest has no %s", ErrNoHandle, v.what)
}

func (v *variant) Send(ctx context.Context, m Message) error {
	if v.sender == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, v.ch)
	}
	return v.sender.Send(ctx, m)
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// variants is the closed set of channels and their destination precedence.
var variants = []variant{
	{ch: core.ChannelEmail, what: "email address", resolve: func(g *core.Guest, fb string) string {
		if !strings.Contains(fb, "@") {
			fb = ""
		}
		return first(g.Email, strings.ToLower(fb))
	}},
	{ch: core.ChannelWhatsApp, what: "WhatsApp number", resolve: func(g *core.Guest, fb string) string {
		return first(g.WhatsAppID, g.Phone, fb)
	}},
	{ch: core.ChannelSMS, what: "phone number", resolve: func(g *core.Guest, fb string) string {
		return first(g.Phone, fb)
	}},
	{ch: core.ChannelMessenger, what: "messenger id", resolve: func(g *core.Guest, fb string) string {
		return first(g.MessengerID, fb)
	}},
	{ch: core.ChannelInstagram, what: "Instagram handle", resolve: func(g *core.Guest, fb string) string {
		return first(g.InstagramHandle, strings.TrimPrefix(fb, "@"))
	}},
	{ch: core.ChannelLink, what: "in-app identity", resolve: func(g *core.Guest, _ string) string {
		return first(g.UserID, g.ID)
	}},
}

type Registry struct {
	variants map[core.Channel]Variant
}

// NewRegistry binds senders to the channel variants. Channels without a
// sender stay registered and fail with ErrUnavailable.
func NewRegistry(senders map[core.Channel]Sender) *Registry {
	r := &Registry{variants: make(map[core.Channel]Variant, len(variants))}
	for _, v := range variants {
		v := v
		v.sender = senders[v.ch]
		r.variants[v.ch] = &v
	}
	return r
}

func (r *Registry) Get(ch core.Channel) (Variant, bool) {
	v, ok := r.variants[ch]
	return v, ok
}
