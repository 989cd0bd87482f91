package channels_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invitely/invite-dispatch/internal/channels"
	"github.com/invitely/invite-dispatch/internal/events"
	"github.com/invitely/invite-dispatch/internal/provider"
)

var invite = channels.Message{
	Destination: "dest-1",
	DisplayName: "Ana",
	EventTitle:  "Gala",
	ImageURL:    "https://cdn.example.com/card.png",
	ShareLink:   "https://app.example.com/e/gala",
	Token:       "tok-1",
	GuestID:     "g1",
	UserID:      "u1",
}

type graphCall struct {
	Token string
	Body  map[string]any
}

func graphServer(t *testing.T, status int, reply string) (*httptest.Server, *[]graphCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []graphCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/messages", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		calls = append(calls, graphCall{Token: r.URL.Query().Get("access_token"), Body: body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGraph_SendsImageThenText(t *testing.T) {
	srv, calls := graphServer(t, http.StatusOK, `{"recipient_id":"dest-1","message_id":"m1"}`)
	g := channels.NewGraph(srv.URL+"/", "page-token")

	require.NoError(t, g.Send(context.Background(), invite))
	require.Len(t, *calls, 2)

	img := (*calls)[0]
	require.Equal(t, "page-token", img.Token)
	require.Equal(t, map[string]any{"id": "dest-1"}, img.Body["recipient"])
	require.Equal(t, "MESSAGE_TAG", img.Body["messaging_type"])
	att := img.Body["message"].(map[string]any)["attachment"].(map[string]any)
	require.Equal(t, "image", att["type"])
	require.Equal(t, "https://cdn.example.com/card.png", att["payload"].(map[string]any)["url"])

	text := (*calls)[1].Body["message"].(map[string]any)["text"].(string)
	require.Contains(t, text, "invite=tok-1")
}

func TestGraph_TextOnlyWithoutImage(t *testing.T) {
	srv, calls := graphServer(t, http.StatusOK, `{}`)
	g := channels.NewGraph(srv.URL, "ig-token")

	m := invite
	m.ImageURL = ""
	require.NoError(t, g.Send(context.Background(), m))
	require.Len(t, *calls, 1)
}

func TestGraph_APIError(t *testing.T) {
	srv, _ := graphServer(t, http.StatusBadRequest, `{"error":{"message":"No matching user found","code":100}}`)
	err := channels.NewGraph(srv.URL, "t").Send(context.Background(), invite)
	require.EqualError(t, err, "graph api: status=400 code=100: No matching user found")

	srv, _ = graphServer(t, http.StatusBadGateway, `upstream down`)
	err = channels.NewGraph(srv.URL, "t").Send(context.Background(), invite)
	require.EqualError(t, err, "graph api: status=502 body=upstream down")
}

func TestSMS_SendsTextWithIdempotencyKey(t *testing.T) {
	var (
		key  string
		body map[string]string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer gw.Close()

	sms := &channels.SMS{Provider: provider.NewGateway(gw.URL, "acct")}
	require.NoError(t, sms.Send(context.Background(), invite))
	require.Equal(t, "tok-1", key)
	require.Equal(t, "dest-1", body["to"])
	require.Equal(t, invite.Text(), body["body"])
}

func TestSMS_ProviderError(t *testing.T) {
	failing := &provider.Dummy{FailurePct: 100}
	err := (&channels.SMS{Provider: failing}).Send(context.Background(), invite)
	require.EqualError(t, err, "provider_temporary_error")
}

type fakeWhatsApp struct {
	phone, text string
}

func (f *fakeWhatsApp) SendText(_ context.Context, phone, text string) error {
	f.phone, f.text = phone, text
	return nil
}

func TestWhatsApp_SendsText(t *testing.T) {
	wa := &fakeWhatsApp{}
	require.NoError(t, (&channels.WhatsApp{Client: wa}).Send(context.Background(), invite))
	require.Equal(t, "dest-1", wa.phone)
	require.Equal(t, invite.Text(), wa.text)
}

type fakePublisher struct {
	subject string
	data    any
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data any) error {
	f.subject, f.data = subject, data
	return f.err
}

func TestInApp_PublishesInvite(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, (&channels.InApp{Publisher: pub}).Send(context.Background(), invite))
	require.Equal(t, events.InAppNotify, pub.subject)

	got, ok := pub.data.(events.InAppInvite)
	require.True(t, ok)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, "g1", got.GuestID)
	require.Equal(t, invite.InviteLink(), got.Link)
	require.Equal(t, "tok-1", got.Token)
	require.False(t, got.SentAt.IsZero())

	pub.err = errors.New("nats: connection closed")
	require.Error(t, (&channels.InApp{Publisher: pub}).Send(context.Background(), invite))
}

func TestDevLog_AlwaysSucceeds(t *testing.T) {
	require.NoError(t, (&channels.DevLog{Channel: "EMAIL"}).Send(context.Background(), invite))
}
