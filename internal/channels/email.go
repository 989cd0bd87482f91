package channels

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/mailersend/mailersend-go"
)

// MailerSend delivers email invitations through the MailerSend API.
type MailerSend struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSend {
	return &MailerSend{
		client: mailersend.NewMailersend(apiKey),
		from:   mailersend.From{Name: fromName, Email: fromEmail},
	}
}

func (m *MailerSend) Send(ctx context.Context, msg Message) error {
	e := m.client.Email.NewMessage()
	e.SetFrom(m.from)
	e.SetRecipients([]mailersend.Recipient{{Name: msg.DisplayName, Email: msg.Destination}})
	e.SetSubject(fmt.Sprintf("You're invited: %s", msg.EventTitle))
	e.SetText(msg.Text())
	e.SetHTML(inviteHTML(msg))
	e.SetTags([]string{"invitation"})

	res, err := m.client.Email.Send(ctx, e)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func inviteHTML(m Message) string {
	var b strings.Builder
	if m.DisplayName != "" {
		fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(m.DisplayName))
	}
	fmt.Fprintf(&b, "<p>You're invited to <b>%s</b>!</p>", html.EscapeString(m.EventTitle))
	link := html.EscapeString(m.InviteLink())
	if m.ImageURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s"><img src="%s" alt="Invitation" style="max-width:100%%"></a></p>`,
			link, html.EscapeString(m.ImageURL))
	}
	fmt.Fprintf(&b, `<p><a href="%s">View your invitation and RSVP</a></p>`, link)
	return b.String()
}
