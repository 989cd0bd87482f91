// Package whatsapp sends invitations through a linked WhatsApp device.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
)

var ErrNotOnWhatsApp = errors.New("number is not registered on WhatsApp")

type Client struct {
	wa  *whatsmeow.Client
	log zerolog.Logger
}

// New opens the device store in dataDir and connects the linked device. The
// device must already be paired; pairing is an operator step.
func New(ctx context.Context, dataDir string, log zerolog.Logger) (*Client, error) {
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", dataDir), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if deviceStore.ID == nil {
		return nil, errors.New("whatsapp device is not paired")
	}

	c := &Client{
		wa:  whatsmeow.NewClient(deviceStore, nil),
		log: log.With().Str("component", "whatsapp").Logger(),
	}
	if err := c.wa.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return c, nil
}

func (c *Client) Disconnect() { c.wa.Disconnect() }

// SendText verifies phone is on WhatsApp and sends text to it.
func (c *Client) SendText(ctx context.Context, phone, text string) error {
	phone = NormalizePhoneNumber(phone)

	resp, err := c.wa.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return fmt.Errorf("%w: %s", ErrNotOnWhatsApp, phone)
	}
	jid := resp[0].JID
	if jid.IsEmpty() {
		jid = types.NewJID(phone, types.DefaultUserServer)
	}

	sent, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: &text})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	c.log.Debug().Str("jid", jid.String()).Str("message_id", sent.ID).Msg("message sent")
	return nil
}

// NormalizePhoneNumber strips formatting so the number matches WhatsApp's
// digits-only user part.
func NormalizePhoneNumber(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}
