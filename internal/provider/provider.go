package provider

import (
	"context"
)

// Provider is an SMS gateway.
type Provider interface {
	Send(ctx context.Context, to, body string) (providerMsgID string, err error)
}
