package channels

import "context"

// TextClient is the WhatsApp capability the channel needs.
type TextClient interface {
	SendText(ctx context.Context, phone, text string) error
}

type WhatsApp struct {
	Client TextClient
}

func (w *WhatsApp) Send(ctx context.Context, m Message) error {
	return w.Client.SendText(ctx, m.Destination, m.Text())
}
