// Package events publishes dispatch notifications on NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	// InAppNotify carries in-app invitations; the app's notification service
	// subscribes and fans them out to connected clients.
	InAppNotify = "invites.inapp"
	// BatchCompleted announces the outcome of a dispatch batch.
	BatchCompleted = "invites.batch.completed"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("invite-dispatch"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (n *NATSPublisher) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("subject", subject).Int("bytes", len(payload)).Msg("publishing event")
	if err := n.conn.Publish(subject, payload); err != nil {
		return err
	}
	// surface async write errors while the caller still holds the outcome
	if deadline, ok := ctx.Deadline(); ok {
		return n.conn.FlushTimeout(time.Until(deadline))
	}
	return nil
}

func (n *NATSPublisher) Close() error {
	return n.conn.Drain()
}

// InAppInvite is the payload on InAppNotify.
type InAppInvite struct {
	GuestID    string    `json:"guest_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Name       string    `json:"name"`
	EventTitle string    `json:"event_title"`
	ImageURL   string    `json:"image_url"`
	Link       string    `json:"link"`
	Token      string    `json:"token"`
	SentAt     time.Time `json:"sent_at"`
}

// BatchSummary is the payload on BatchCompleted.
type BatchSummary struct {
	EventID       string    `json:"event_id"`
	DesignID      string    `json:"design_id"`
	Channel       string    `json:"channel"`
	Sent          int       `json:"sent"`
	Failed        int       `json:"failed"`
	Total         int       `json:"total"`
	CorrelationID string    `json:"correlation_id"`
	CompletedAt   time.Time `json:"completed_at"`
}
