package channels

import (
	"context"

	"github.com/rs/zerolog"
)

// DevLog prints invitations to the log instead of sending them. It stands in
// for unconfigured channels in development.
type DevLog struct {
	Channel string
}

func (d *DevLog) Send(ctx context.Context, m Message) error {
	zerolog.Ctx(ctx).Info().
		Str("channel", d.Channel).
		Str("to", m.Destination).
		Str("token", m.Token).
		Str("link", m.InviteLink()).
		Msg("dev invitation (not sent)")
	return nil
}
