package core

import (
	"strings"
	"time"
)

// Channel is the delivery medium for an invitation.
type Channel string

const (
	ChannelEmail     Channel = "EMAIL"
	ChannelWhatsApp  Channel = "WHATSAPP"
	ChannelSMS       Channel = "SMS"
	ChannelMessenger Channel = "FACEBOOK_MESSENGER"
	ChannelInstagram Channel = "INSTAGRAM_DM"
	ChannelLink      Channel = "LINK" // in-app
)

// Channels lists every supported channel in a stable order.
var Channels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelSMS, ChannelMessenger, ChannelInstagram, ChannelLink}

func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Channels {
		if c == known {
			return c, true
		}
	}
	return "", false
}

type AttemptStatus string

const (
	StatusPending AttemptStatus = "PENDING"
	StatusSent    AttemptStatus = "SENT"
	StatusFailed  AttemptStatus = "FAILED"
)

type RSVPStatus string

const (
	RSVPPending  RSVPStatus = "PENDING"
	RSVPAccepted RSVPStatus = "ACCEPTED"
	RSVPDeclined RSVPStatus = "DECLINED"
)

// Guest is an invitee scoped to one event. It is identified by whichever
// contact handles it has accumulated, not by a single key.
type Guest struct {
	ID              string     `json:"id"`
	EventID         string     `json:"event_id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	WhatsAppID      string     `json:"whatsapp_id,omitempty"`
	MessengerID     string     `json:"messenger_id,omitempty"`
	InstagramHandle string     `json:"instagram_handle,omitempty"`
	UserID          string     `json:"user_id,omitempty"`
	NotifyChannels  []Channel  `json:"notify_channels,omitempty"`
	RSVP            RSVPStatus `json:"rsvp"`
	RSVPAt          *time.Time `json:"rsvp_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Handle returns the stored value for a handle field.
func (g *Guest) Handle(f HandleField) string {
	switch f {
	case FieldEmail:
		return g.Email
	case FieldPhone:
		return g.Phone
	case FieldWhatsAppID:
		return g.WhatsAppID
	case FieldMessengerID:
		return g.MessengerID
	case FieldInstagram:
		return g.InstagramHandle
	}
	return ""
}

// SetHandle stores v into the handle field f.
func (g *Guest) SetHandle(f HandleField, v string) {
	switch f {
	case FieldEmail:
		g.Email = v
	case FieldPhone:
		g.Phone = v
	case FieldWhatsAppID:
		g.WhatsAppID = v
	case FieldMessengerID:
		g.MessengerID = v
	case FieldInstagram:
		g.InstagramHandle = v
	}
}

// HandleField names a guest column that identifies a guest within an event.
type HandleField string

const (
	FieldEmail       HandleField = "email"
	FieldPhone       HandleField = "phone"
	FieldWhatsAppID  HandleField = "whatsapp_id"
	FieldMessengerID HandleField = "messenger_id"
	FieldInstagram   HandleField = "instagram_handle"
)

var HandleFields = []HandleField{FieldEmail, FieldPhone, FieldWhatsAppID, FieldMessengerID, FieldInstagram}

// Predicate is one equality test in a guest lookup; a lookup matches when any
// predicate matches.
type Predicate struct {
	Field HandleField
	Value string
}

// DeliveryAttempt is one (guest, ceremony or event-wide, channel) send.
type DeliveryAttempt struct {
	ID            string        `json:"id"`
	EventID       string        `json:"event_id"`
	CeremonyID    string        `json:"ceremony_id,omitempty"` // empty = event-wide
	GuestID       string        `json:"guest_id"`
	Channel       Channel       `json:"channel"`
	Token         string        `json:"token"`
	Status        AttemptStatus `json:"status"`
	Error         string        `json:"error,omitempty"`
	SentAt        *time.Time    `json:"sent_at,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type Event struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
}

// Design is an invitation design. ImageURL is the hosted image when known;
// ImageData holds the inline payload the editor produced.
type Design struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	ImageURL  string `json:"image_url,omitempty"`
	ImageData string `json:"-"`
}

// Image returns the best available image reference for the design.
func (d *Design) Image() string {
	if d.ImageURL != "" {
		return d.ImageURL
	}
	return d.ImageData
}

type Ceremony struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Name    string `json:"name"`
}

// ContactInput is a caller-supplied contact; it seeds guest resolution.
type ContactInput struct {
	Name        string `json:"name"`
	ContactInfo string `json:"contactInfo"`
}
