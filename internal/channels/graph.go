package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultGraphURL = "https://graph.facebook.com/v19.0"

// Graph sends through the Meta Send API. The same endpoint serves Messenger
// (page-scoped ids) and Instagram DMs (Instagram-scoped ids); only the access
// token differs.
type Graph struct {
	BaseURL     string
	AccessToken string
	HTTP        *http.Client
}

func NewGraph(baseURL, accessToken string) *Graph {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	return &Graph{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		HTTP:        &http.Client{Timeout: 15 * time.Second},
	}
}

type graphRecipient struct {
	ID string `json:"id"`
}

type graphMessage struct {
	Recipient     graphRecipient `json:"recipient"`
	MessagingType string         `json:"messaging_type"`
	Message       map[string]any `json:"message"`
}

func (g *Graph) Send(ctx context.Context, m Message) error {
	if m.ImageURL != "" {
		img := map[string]any{
			"attachment": map[string]any{
				"type":    "image",
				"payload": map[string]any{"url": m.ImageURL, "is_reusable": true},
			},
		}
		if err := g.post(ctx, m.Destination, img); err != nil {
			return err
		}
	}
	return g.post(ctx, m.Destination, map[string]any{"text": m.Text()})
}

func (g *Graph) post(ctx context.Context, recipient string, message map[string]any) error {
	body, err := json.Marshal(graphMessage{
		Recipient:     graphRecipient{ID: recipient},
		MessagingType: "MESSAGE_TAG",
		Message:       message,
	})
	if err != nil {
		return err
	}
	endpoint := g.BaseURL + "/me/messages?access_token=" + url.QueryEscape(g.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 8<<10))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("graph api: status=%d code=%d: %s", res.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("graph api: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
