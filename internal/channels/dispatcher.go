package channels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/core"
	"github.com/invitely/invite-dispatch/internal/metrics"
)

// Request is one delivery for one guest and one ceremony target.
type Request struct {
	Guest      *core.Guest
	Channel    core.Channel
	Contact    string // raw caller-supplied contact for Channel
	EventTitle string
	ImageURL   string
	ShareLink  string
	Token      string
}

// Dispatcher picks between direct delivery on the requested channel and
// preference-aware fan-out for guests tied to an account or with recorded
// channel preferences. It does not persist anything.
type Dispatcher struct {
	Registry    *Registry
	Notifier    *Notifier
	SendTimeout time.Duration
}

func NewDispatcher(reg *Registry, sendTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		Registry:    reg,
		Notifier:    &Notifier{Registry: reg, SendTimeout: sendTimeout},
		SendTimeout: sendTimeout,
	}
}

// UsesPreferences reports whether g is delivered through the fan-out notifier.
func UsesPreferences(g *core.Guest) bool {
	return g.UserID != "" || len(g.NotifyChannels) > 0
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	if UsesPreferences(req.Guest) {
		return d.Notifier.Notify(ctx, req)
	}
	return deliver(ctx, d.Registry, d.SendTimeout, req.Channel, req, req.Contact)
}

// deliver resolves the destination for ch and sends with a bounded timeout.
func deliver(ctx context.Context, reg *Registry, timeout time.Duration, ch core.Channel, req Request, fallback string) error {
	v, ok := reg.Get(ch)
	if !ok {
		return fmt.Errorf("unsupported channel %q", ch)
	}
	dest, err := v.ResolveHandle(req.Guest, fallback)
	if err != nil {
		return err
	}
	msg := Message{
		Destination: dest,
		DisplayName: req.Guest.Name,
		EventTitle:  req.EventTitle,
		ImageURL:    req.ImageURL,
		ShareLink:   req.ShareLink,
		Token:       req.Token,
		GuestID:     req.Guest.ID,
		UserID:      req.Guest.UserID,
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err = v.Send(sctx, msg)
	metrics.SendDuration.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())
	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("channel", string(ch)).Str("guest_id", req.Guest.ID).Msg("send failed")
	}
	return err
}
