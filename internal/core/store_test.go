package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/invitely/invite-dispatch/internal/core"
	database "github.com/invitely/invite-dispatch/internal/db"
)

// seedStore is a Store that can also create the records the engine only reads.
type seedStore interface {
	core.Store
	CreateEvent(ctx context.Context, e *core.Event) error
	CreateDesign(ctx context.Context, d *core.Design) error
	CreateCeremony(ctx context.Context, c *core.Ceremony) error
}

func TestMemStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) seedStore { return core.NewMemStore() })
}

func TestPGStore(t *testing.T) {
	db := database.StartTestPostgres(t)
	runStoreContract(t, func(t *testing.T) seedStore { return &core.PGStore{DB: db} })
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) seedStore) {
	t.Run("guest handles are unique per event", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)
		other := seedEvent(t, s)

		require.NoError(t, s.CreateGuest(ctx, &core.Guest{EventID: ev.ID, Name: "Ana", Email: "ana@example.com"}))
		err := s.CreateGuest(ctx, &core.Guest{EventID: ev.ID, Name: "Ana 2", Email: "ana@example.com"})
		require.ErrorIs(t, err, core.ErrConflict)

		// same handle in another event is a different guest
		require.NoError(t, s.CreateGuest(ctx, &core.Guest{EventID: other.ID, Name: "Ana", Email: "ana@example.com"}))
	})

	t.Run("find matches any predicate, oldest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)

		byPhone := &core.Guest{EventID: ev.ID, Name: "P", Phone: "+15550001"}
		require.NoError(t, s.CreateGuest(ctx, byPhone))
		time.Sleep(5 * time.Millisecond)
		byWA := &core.Guest{EventID: ev.ID, Name: "W", WhatsAppID: "+15550002"}
		require.NoError(t, s.CreateGuest(ctx, byWA))

		got, err := s.FindGuests(ctx, ev.ID, []core.Predicate{
			{Field: core.FieldPhone, Value: "+15550002"},
			{Field: core.FieldWhatsAppID, Value: "+15550002"},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, byWA.ID, got[0].ID)

		got, err = s.FindGuests(ctx, ev.ID, []core.Predicate{
			{Field: core.FieldPhone, Value: "+15550001"},
			{Field: core.FieldWhatsAppID, Value: "+15550002"},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, byPhone.ID, got[0].ID)

		got, err = s.FindGuests(ctx, ev.ID, []core.Predicate{{Field: core.FieldEmail, Value: "nobody@example.com"}})
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("patch is field-wise and keeps rsvp", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)

		a := &core.Guest{EventID: ev.ID, Name: "A", Email: "a@example.com"}
		b := &core.Guest{EventID: ev.ID, Name: "B", Email: "b@example.com"}
		require.NoError(t, s.CreateGuest(ctx, a))
		require.NoError(t, s.CreateGuest(ctx, b))
		require.NoError(t, s.RecordRSVP(ctx, a.ID, core.RSVPAccepted))

		got, err := s.PatchGuest(ctx, ev.ID, a.ID, core.GuestPatch{
			Backfill:       map[core.HandleField]string{core.FieldPhone: "+15550100", core.FieldEmail: "other@example.com"},
			NotifyChannels: []core.Channel{core.ChannelSMS, core.ChannelLink},
		})
		require.NoError(t, err)
		require.Equal(t, "A", got.Name)
		require.Equal(t, "+15550100", got.Phone)
		require.Equal(t, "a@example.com", got.Email, "existing handle is never replaced")
		require.Equal(t, []core.Channel{core.ChannelSMS, core.ChannelLink}, got.NotifyChannels)
		require.Equal(t, core.RSVPAccepted, got.RSVP)
		require.NotNil(t, got.RSVPAt)

		got, err = s.PatchGuest(ctx, ev.ID, a.ID, core.GuestPatch{Name: "Alice"})
		require.NoError(t, err)
		require.Equal(t, "Alice", got.Name)
		require.Equal(t, "+15550100", got.Phone)
		require.Equal(t, []core.Channel{core.ChannelSMS, core.ChannelLink}, got.NotifyChannels)

		_, err = s.PatchGuest(ctx, ev.ID, b.ID, core.GuestPatch{Backfill: map[core.HandleField]string{core.FieldPhone: "+15550100"}})
		require.ErrorIs(t, err, core.ErrConflict)

		_, err = s.PatchGuest(ctx, ev.ID, uuid.NewString(), core.GuestPatch{Name: "x"})
		require.ErrorIs(t, err, core.ErrNotFound)
		other := seedEvent(t, s)
		_, err = s.PatchGuest(ctx, other.ID, a.ID, core.GuestPatch{Name: "x"})
		require.ErrorIs(t, err, core.ErrNotFound)

		_, err = s.GetGuest(ctx, uuid.NewString())
		require.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("concurrent patches of one guest compose", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)
		g := &core.Guest{EventID: ev.ID, Name: "Old", Email: "c@example.com", Phone: "+15550001"}
		require.NoError(t, s.CreateGuest(ctx, g))

		var wg sync.WaitGroup
		errs := make([]error, 3)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, errs[0] = s.PatchGuest(ctx, ev.ID, g.ID, core.GuestPatch{Name: "Renamed"})
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = s.PatchGuest(ctx, ev.ID, g.ID, core.GuestPatch{Backfill: map[core.HandleField]string{core.FieldWhatsAppID: "+15550001"}})
		}()
		go func() {
			defer wg.Done()
			_, errs[2] = s.PatchGuest(ctx, ev.ID, g.ID, core.GuestPatch{Backfill: map[core.HandleField]string{core.FieldMessengerID: "psid-1"}})
		}()
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		got, err := s.GetGuest(ctx, g.ID)
		require.NoError(t, err)
		require.Equal(t, "Renamed", got.Name)
		require.Equal(t, "c@example.com", got.Email)
		require.Equal(t, "+15550001", got.Phone)
		require.Equal(t, "+15550001", got.WhatsAppID)
		require.Equal(t, "psid-1", got.MessengerID)
	})

	t.Run("account link is first come", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)
		g := &core.Guest{EventID: ev.ID, Name: "L", Email: "l@example.com"}
		require.NoError(t, s.CreateGuest(ctx, g))

		got, err := s.PatchGuest(ctx, ev.ID, g.ID, core.GuestPatch{UserID: "user-1"})
		require.NoError(t, err)
		require.Equal(t, "user-1", got.UserID)

		_, err = s.PatchGuest(ctx, ev.ID, g.ID, core.GuestPatch{UserID: "user-1"})
		require.NoError(t, err)

		_, err = s.PatchGuest(ctx, ev.ID, g.ID, core.GuestPatch{UserID: "user-2"})
		require.ErrorIs(t, err, core.ErrConflict)

		got, err = s.GetGuest(ctx, g.ID)
		require.NoError(t, err)
		require.Equal(t, "user-1", got.UserID)
	})

	t.Run("concurrent creates leave exactly one guest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)

		const n = 16
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.CreateGuest(ctx, &core.Guest{EventID: ev.ID, Name: "Race", Phone: "+15559999"})
			}(i)
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			require.ErrorIs(t, err, core.ErrConflict)
		}
		require.Equal(t, 1, created)

		got, err := s.FindGuests(ctx, ev.ID, []core.Predicate{{Field: core.FieldPhone, Value: "+15559999"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("attempt completes exactly once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)
		g := &core.Guest{EventID: ev.ID, Name: "G", Email: "g@example.com"}
		require.NoError(t, s.CreateGuest(ctx, g))

		a := &core.DeliveryAttempt{EventID: ev.ID, GuestID: g.ID, Channel: core.ChannelEmail, Token: uuid.NewString(), CorrelationID: "corr-1"}
		require.NoError(t, s.CreateAttempt(ctx, a))
		require.NotEmpty(t, a.ID)
		require.Equal(t, core.StatusPending, a.Status)

		now := time.Now().UTC()
		require.NoError(t, s.CompleteAttempt(ctx, a.ID, core.StatusSent, "", &now))
		require.ErrorIs(t, s.CompleteAttempt(ctx, a.ID, core.StatusFailed, "late", nil), core.ErrAttemptFinal)

		got, err := s.AttemptByToken(ctx, a.Token)
		require.NoError(t, err)
		require.Equal(t, core.StatusSent, got.Status)
		require.NotNil(t, got.SentAt)
		require.Empty(t, got.Error)
		require.Empty(t, got.CeremonyID)
		require.Equal(t, "corr-1", got.CorrelationID)

		dup := &core.DeliveryAttempt{EventID: ev.ID, GuestID: g.ID, Channel: core.ChannelEmail, Token: a.Token}
		require.ErrorIs(t, s.CreateAttempt(ctx, dup), core.ErrConflict)

		_, err = s.AttemptByToken(ctx, "missing")
		require.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("failed attempt keeps its error and ceremony", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)
		cer := &core.Ceremony{EventID: ev.ID, Name: "Reception"}
		require.NoError(t, s.CreateCeremony(ctx, cer))
		g := &core.Guest{EventID: ev.ID, Name: "G", Phone: "+15550200"}
		require.NoError(t, s.CreateGuest(ctx, g))

		a := &core.DeliveryAttempt{EventID: ev.ID, CeremonyID: cer.ID, GuestID: g.ID, Channel: core.ChannelSMS, Token: uuid.NewString()}
		require.NoError(t, s.CreateAttempt(ctx, a))
		require.NoError(t, s.CompleteAttempt(ctx, a.ID, core.StatusFailed, "timeout", nil))

		got, err := s.AttemptByToken(ctx, a.Token)
		require.NoError(t, err)
		require.Equal(t, core.StatusFailed, got.Status)
		require.Equal(t, "timeout", got.Error)
		require.Equal(t, cer.ID, got.CeremonyID)
		require.Nil(t, got.SentAt)
	})

	t.Run("list attempts pages within the event", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)
		other := seedEvent(t, s)
		g := &core.Guest{EventID: ev.ID, Name: "G", Email: "list@example.com"}
		require.NoError(t, s.CreateGuest(ctx, g))
		og := &core.Guest{EventID: other.ID, Name: "O", Email: "list@example.com"}
		require.NoError(t, s.CreateGuest(ctx, og))

		for i := 0; i < 5; i++ {
			require.NoError(t, s.CreateAttempt(ctx, &core.DeliveryAttempt{EventID: ev.ID, GuestID: g.ID, Channel: core.ChannelEmail, Token: uuid.NewString()}))
		}
		require.NoError(t, s.CreateAttempt(ctx, &core.DeliveryAttempt{EventID: other.ID, GuestID: og.ID, Channel: core.ChannelEmail, Token: uuid.NewString()}))

		page, err := s.ListAttempts(ctx, ev.ID, 3, 0)
		require.NoError(t, err)
		require.Len(t, page, 3)
		rest, err := s.ListAttempts(ctx, ev.ID, 3, 3)
		require.NoError(t, err)
		require.Len(t, rest, 2)
		for _, a := range append(page, rest...) {
			require.Equal(t, ev.ID, a.EventID)
		}
	})

	t.Run("ceremonies are scoped to the event", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)
		other := seedEvent(t, s)
		mine := &core.Ceremony{EventID: ev.ID, Name: "Nikah"}
		theirs := &core.Ceremony{EventID: other.ID, Name: "Walima"}
		require.NoError(t, s.CreateCeremony(ctx, mine))
		require.NoError(t, s.CreateCeremony(ctx, theirs))

		got, err := s.CeremoniesByIDs(ctx, ev.ID, []string{mine.ID, theirs.ID, uuid.NewString()})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, mine.ID, got[0].ID)
	})

	t.Run("design hosted url", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ev := seedEvent(t, s)
		d := &core.Design{EventID: ev.ID, ImageData: "data:image/png;base64,AAAA"}
		require.NoError(t, s.CreateDesign(ctx, d))

		got, err := s.GetDesign(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, "data:image/png;base64,AAAA", got.Image())

		require.NoError(t, s.SetDesignHostedURL(ctx, d.ID, "https://cdn.example.com/x.png"))
		got, err = s.GetDesign(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, "https://cdn.example.com/x.png", got.Image())

		require.ErrorIs(t, s.SetDesignHostedURL(ctx, uuid.NewString(), "https://x"), core.ErrNotFound)
	})
}

func seedEvent(t *testing.T, s seedStore) *core.Event {
	t.Helper()
	ev := &core.Event{OwnerID: "owner-1", Title: "Wedding", Slug: "wedding-" + uuid.NewString()[:8]}
	require.NoError(t, s.CreateEvent(context.Background(), ev))
	return ev
}
