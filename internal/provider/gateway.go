package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Gateway talks to an sms-gateway style HTTP API: POST {BaseURL}/messages
// with the account in X-User-ID. The gateway answers 202 for a new message and
// 200 when the Idempotency-Key was already seen.
type Gateway struct {
	BaseURL   string
	AccountID string
	HTTP      *http.Client
}

func NewGateway(baseURL, accountID string) *Gateway {
	return &Gateway{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AccountID: accountID,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

type idempotencyKey struct{}

// WithIdempotencyKey makes the next Send through ctx idempotent on key.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

func (g *Gateway) Send(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", g.AccountID)
	if key, ok := ctx.Value(idempotencyKey{}).(string); ok && key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	res, err := g.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusAccepted && res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("sms gateway: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("sms gateway: decode response: %w", err)
	}
	return out.ID, nil
}
