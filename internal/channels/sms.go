package channels

import (
	"context"

	"github.com/invitely/invite-dispatch/internal/provider"
)

// SMS sends the text invitation through an SMS gateway provider.
type SMS struct {
	Provider provider.Provider
}

func (s *SMS) Send(ctx context.Context, m Message) error {
	// the attempt token is the gateway idempotency key
	ctx = provider.WithIdempotencyKey(ctx, m.Token)
	_, err := s.Provider.Send(ctx, m.Destination, m.Text())
	return err
}
