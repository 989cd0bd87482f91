package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/invitely/invite-dispatch/internal/db"
)

// PGStore is the Postgres-backed Store.
type PGStore struct{ DB *db.DB }

var _ Store = (*PGStore)(nil)

const guestColumns = `id, event_id, name, email, phone, whatsapp_id, messenger_id, instagram_handle, user_id,
	notify_channels, rsvp, rsvp_at, created_at, updated_at`

const attemptColumns = `id, event_id, ceremony_id, guest_id, channel, token, status, error, sent_at, correlation_id, created_at`

func (s *PGStore) Ping(ctx context.Context) error { return s.DB.Pool.Ping(ctx) }

func (s *PGStore) FindGuests(ctx context.Context, eventID string, preds []Predicate) ([]Guest, error) {
	if len(preds) == 0 {
		return nil, nil
	}
	var or []string
	args := []any{eventID}
	for _, p := range preds {
		col, err := handleColumn(p.Field)
		if err != nil {
			return nil, err
		}
		args = append(args, p.Value)
		or = append(or, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	q := `SELECT ` + guestColumns + ` FROM guests WHERE event_id = $1 AND (` + strings.Join(or, " OR ") + `) ORDER BY created_at, id`
	rows, err := s.DB.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *PGStore) GetGuest(ctx context.Context, id string) (*Guest, error) {
	row := s.DB.Pool.QueryRow(ctx, `SELECT `+guestColumns+` FROM guests WHERE id=$1`, id)
	g, err := scanGuest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

func (s *PGStore) CreateGuest(ctx context.Context, g *Guest) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.RSVP == "" {
		g.RSVP = RSVPPending
	}
	err := s.DB.Pool.QueryRow(ctx, `
		INSERT INTO guests(id, event_id, name, email, phone, whatsapp_id, messenger_id, instagram_handle, user_id, notify_channels, rsvp)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at
	`, g.ID, g.EventID, g.Name, nullable(g.Email), nullable(g.Phone), nullable(g.WhatsAppID),
		nullable(g.MessengerID), nullable(g.InstagramHandle), nullable(g.UserID), channelStrings(g.NotifyChannels), g.RSVP,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	return mapWriteErr(err)
}

// PatchGuest updates in a single statement. Handles are coalesced against
// the stored columns, so a backfill never clears or replaces an existing one.
func (s *PGStore) PatchGuest(ctx context.Context, eventID, id string, p GuestPatch) (*Guest, error) {
	row := s.DB.Pool.QueryRow(ctx, `
		UPDATE guests SET
			name = COALESCE($3, name),
			email = COALESCE(email, $4),
			phone = COALESCE(phone, $5),
			whatsapp_id = COALESCE(whatsapp_id, $6),
			messenger_id = COALESCE(messenger_id, $7),
			instagram_handle = COALESCE(instagram_handle, $8),
			user_id = COALESCE(user_id, $9),
			notify_channels = CASE WHEN $10::boolean THEN $11::text[] ELSE notify_channels END,
			updated_at = now()
		WHERE id = $1 AND event_id = $2 AND ($9::text IS NULL OR user_id IS NULL OR user_id = $9)
		RETURNING `+guestColumns,
		id, eventID, nullable(p.Name),
		nullable(p.Backfill[FieldEmail]), nullable(p.Backfill[FieldPhone]), nullable(p.Backfill[FieldWhatsAppID]),
		nullable(p.Backfill[FieldMessengerID]), nullable(p.Backfill[FieldInstagram]),
		nullable(p.UserID), p.NotifyChannels != nil, channelStrings(p.NotifyChannels),
	)
	g, err := scanGuest(row)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapWriteErr(err)
	}
	// no row: either it does not exist in the event or the account check failed
	var exists bool
	if err := s.DB.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM guests WHERE id=$1 AND event_id=$2)`, id, eventID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: guest linked to another account", ErrConflict)
	}
	return nil, ErrNotFound
}

func (s *PGStore) RecordRSVP(ctx context.Context, guestID string, status RSVPStatus) error {
	tag, err := s.DB.Pool.Exec(ctx, `UPDATE guests SET rsvp=$2, rsvp_at=now(), updated_at=now() WHERE id=$1`, guestID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CreateAttempt(ctx context.Context, a *DeliveryAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = StatusPending
	err := s.DB.Pool.QueryRow(ctx, `
		INSERT INTO delivery_attempts(id, event_id, ceremony_id, guest_id, channel, token, status, correlation_id)
		VALUES($1,$2,$3,$4,$5,$6,'PENDING',$7)
		RETURNING created_at
	`, a.ID, a.EventID, nullable(a.CeremonyID), a.GuestID, a.Channel, a.Token, nullable(a.CorrelationID)).Scan(&a.CreatedAt)
	return mapWriteErr(err)
}

func (s *PGStore) CompleteAttempt(ctx context.Context, id string, status AttemptStatus, errText string, sentAt *time.Time) error {
	tag, err := s.DB.Pool.Exec(ctx, `
		UPDATE delivery_attempts SET status=$2, error=$3, sent_at=$4
		WHERE id=$1 AND status='PENDING'
	`, id, status, nullable(errText), sentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptFinal
	}
	return nil
}

func (s *PGStore) AttemptByToken(ctx context.Context, token string) (*DeliveryAttempt, error) {
	row := s.DB.Pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM delivery_attempts WHERE token=$1`, token)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *PGStore) ListAttempts(ctx context.Context, eventID string, limit, offset int) ([]DeliveryAttempt, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT `+attemptColumns+` FROM delivery_attempts
		WHERE event_id=$1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, eventID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeliveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PGStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	var e Event
	err := s.DB.Pool.QueryRow(ctx, `SELECT id, owner_id, title, slug FROM events WHERE id=$1`, id).
		Scan(&e.ID, &e.OwnerID, &e.Title, &e.Slug)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &e, err
}

func (s *PGStore) GetDesign(ctx context.Context, id string) (*Design, error) {
	var d Design
	var url, data *string
	err := s.DB.Pool.QueryRow(ctx, `SELECT id, event_id, image_url, image_data FROM designs WHERE id=$1`, id).
		Scan(&d.ID, &d.EventID, &url, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.ImageURL, d.ImageData = deref(url), deref(data)
	return &d, nil
}

func (s *PGStore) SetDesignHostedURL(ctx context.Context, designID, url string) error {
	tag, err := s.DB.Pool.Exec(ctx, `UPDATE designs SET image_url=$2, updated_at=now() WHERE id=$1`, designID, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CeremoniesByIDs(ctx context.Context, eventID string, ids []string) ([]Ceremony, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Pool.Query(ctx, `SELECT id, event_id, name FROM ceremonies WHERE event_id=$1 AND id = ANY($2)`, eventID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ceremony
	for rows.Next() {
		var c Ceremony
		if err := rows.Scan(&c.ID, &c.EventID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateEvent, CreateDesign and CreateCeremony back the seeding paths; the
// records themselves are owned by the event-management screens.
func (s *PGStore) CreateEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.DB.Pool.Exec(ctx, `INSERT INTO events(id, owner_id, title, slug) VALUES($1,$2,$3,$4)`, e.ID, e.OwnerID, e.Title, e.Slug)
	return mapWriteErr(err)
}

func (s *PGStore) CreateDesign(ctx context.Context, d *Design) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.DB.Pool.Exec(ctx, `INSERT INTO designs(id, event_id, image_url, image_data) VALUES($1,$2,$3,$4)`,
		d.ID, d.EventID, nullable(d.ImageURL), nullable(d.ImageData))
	return mapWriteErr(err)
}

func (s *PGStore) CreateCeremony(ctx context.Context, c *Ceremony) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.DB.Pool.Exec(ctx, `INSERT INTO ceremonies(id, event_id, name) VALUES($1,$2,$3)`, c.ID, c.EventID, c.Name)
	return mapWriteErr(err)
}

func scanGuest(row pgx.Row) (*Guest, error) {
	var g Guest
	var email, phone, wa, messenger, ig, user *string
	var channels []string
	if err := row.Scan(&g.ID, &g.EventID, &g.Name, &email, &phone, &wa, &messenger, &ig, &user,
		&channels, &g.RSVP, &g.RSVPAt, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Email, g.Phone, g.WhatsAppID = deref(email), deref(phone), deref(wa)
	g.MessengerID, g.InstagramHandle, g.UserID = deref(messenger), deref(ig), deref(user)
	for _, c := range channels {
		g.NotifyChannels = append(g.NotifyChannels, Channel(c))
	}
	return &g, nil
}

func scanAttempt(row pgx.Row) (*DeliveryAttempt, error) {
	var a DeliveryAttempt
	var ceremony, errText, corr *string
	if err := row.Scan(&a.ID, &a.EventID, &ceremony, &a.GuestID, &a.Channel, &a.Token, &a.Status,
		&errText, &a.SentAt, &corr, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.CeremonyID, a.Error, a.CorrelationID = deref(ceremony), deref(errText), deref(corr)
	return &a, nil
}

func handleColumn(f HandleField) (string, error) {
	for _, known := range HandleFields {
		if f == known {
			return string(f), nil
		}
	}
	return "", fmt.Errorf("unknown handle field %q", f)
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func channelStrings(cs []Channel) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c))
	}
	return out
}
