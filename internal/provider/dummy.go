package provider

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Dummy simulates a gateway with fixed latency and a random failure rate.
type Dummy struct {
	Latency    time.Duration
	FailurePct int // 0..100
}

func NewDummy() *Dummy { return &Dummy{Latency: 50 * time.Millisecond, FailurePct: 3} }

func (d *Dummy) Send(ctx context.Context, to, body string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(d.Latency):
	}
	if d.FailurePct > 0 && rand.IntN(100) < d.FailurePct {
		return "", errors.New("provider_temporary_error")
	}
	return "prov-" + randomID(), nil
}

func randomID() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 12)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}
