package channels

import (
	"context"
	"time"

	"github.com/invitely/invite-dispatch/internal/events"
)

// InApp publishes the invitation for the app's notification service.
type InApp struct {
	Publisher events.Publisher
}

func (a *InApp) Send(ctx context.Context, m Message) error {
	return a.Publisher.Publish(ctx, events.InAppNotify, events.InAppInvite{
		GuestID:    m.GuestID,
		UserID:     m.UserID,
		Name:       m.DisplayName,
		EventTitle: m.EventTitle,
		ImageURL:   m.ImageURL,
		Link:       m.InviteLink(),
		Token:      m.Token,
		SentAt:     time.Now().UTC(),
	})
}
