package channels_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invitely/invite-dispatch/internal/channels"
	"github.com/invitely/invite-dispatch/internal/core"
)

func TestResolveHandlePrecedence(t *testing.T) {
	reg := channels.NewRegistry(nil)
	full := &core.Guest{
		ID: "g1", Email: "a@example.com", Phone: "+1555", WhatsAppID: "+1999",
		MessengerID: "psid-1", InstagramHandle: "ana", UserID: "u1",
	}
	empty := &core.Guest{ID: "g2"}

	cases := []struct {
		ch       core.Channel
		g        *core.Guest
		fallback string
		want     string
	}{
		{core.ChannelEmail, full, "other@example.com", "a@example.com"},
		{core.ChannelEmail, empty, "Other@Example.com", "other@example.com"},
		{core.ChannelWhatsApp, full, "+1000", "+1999"},
		{core.ChannelWhatsApp, &core.Guest{Phone: "+1555"}, "+1000", "+1555"},
		{core.ChannelWhatsApp, empty, "+1000", "+1000"},
		{core.ChannelSMS, full, "+1000", "+1555"},
		{core.ChannelSMS, empty, " +1000 ", "+1000"},
		{core.ChannelMessenger, full, "psid-2", "psid-1"},
		{core.ChannelInstagram, empty, "@bea", "bea"},
		{core.ChannelLink, full, "", "u1"},
		{core.ChannelLink, empty, "", "g2"},
	}
	for _, tc := range cases {
		v, ok := reg.Get(tc.ch)
		require.True(t, ok, tc.ch)
		got, err := v.ResolveHandle(tc.g, tc.fallback)
		require.NoError(t, err, tc.ch)
		require.Equal(t, tc.want, got, tc.ch)
	}
}

func TestResolveHandleMissing(t *testing.T) {
	reg := channels.NewRegistry(nil)
	for _, ch := range []core.Channel{core.ChannelEmail, core.ChannelWhatsApp, core.ChannelSMS, core.ChannelMessenger, core.ChannelInstagram} {
		v, _ := reg.Get(ch)
		_, err := v.ResolveHandle(&core.Guest{}, "")
		require.ErrorIs(t, err, channels.ErrNoHandle, ch)
	}
	// an email channel never sends to a phone number
	v, _ := reg.Get(core.ChannelEmail)
	_, err := v.ResolveHandle(&core.Guest{}, "+15550000")
	require.ErrorIs(t, err, channels.ErrNoHandle)
}

func TestRegistryCoversEveryChannel(t *testing.T) {
	reg := channels.NewRegistry(nil)
	for _, ch := range core.Channels {
		v, ok := reg.Get(ch)
		require.True(t, ok, ch)
		require.Equal(t, ch, v.Channel())
		require.ErrorIs(t, v.Send(context.Background(), channels.Message{}), channels.ErrUnavailable)
	}
	_, ok := reg.Get("PIGEON")
	require.False(t, ok)
}

func TestMessageInviteLinkAndText(t *testing.T) {
	m := channels.Message{
		DisplayName: "Ana",
		EventTitle:  "Our Wedding",
		ShareLink:   "https://app.example.com/e/wed?lang=en",
		Token:       "tok123",
		ImageURL:    "https://cdn.example.com/i.png",
	}
	require.Equal(t, "https://app.example.com/e/wed?invite=tok123&lang=en", m.InviteLink())

	text := m.Text()
	require.Contains(t, text, "Hi Ana")
	require.Contains(t, text, "Our Wedding")
	require.Contains(t, text, "invite=tok123")
	require.Contains(t, text, "https://cdn.example.com/i.png")

	m.Token = ""
	require.Equal(t, "https://app.example.com/e/wed?lang=en", m.InviteLink())
}
