// Package app assembles the dispatch engine and its dependencies from
// configuration. Both binaries build on it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/assets"
	"github.com/invitely/invite-dispatch/internal/auth"
	"github.com/invitely/invite-dispatch/internal/channels"
	"github.com/invitely/invite-dispatch/internal/config"
	"github.com/invitely/invite-dispatch/internal/core"
	"github.com/invitely/invite-dispatch/internal/db"
	"github.com/invitely/invite-dispatch/internal/dispatch"
	"github.com/invitely/invite-dispatch/internal/events"
	"github.com/invitely/invite-dispatch/internal/guests"
	"github.com/invitely/invite-dispatch/internal/provider"
	"github.com/invitely/invite-dispatch/internal/whatsapp"
	"github.com/invitely/invite-dispatch/internal/worker"
)

type Deps struct {
	DB        *db.DB // nil on the in-memory store
	Store     core.Store
	Guests    *guests.Resolver
	Engine    *dispatch.Engine
	Auth      *auth.Verifier
	AssetHost *assets.RedisHost // nil when REDIS_ADDR is unset

	closers []func()
}

// Close releases connections in reverse order of creation.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Deps, error) {
	d := &Deps{Auth: auth.NewVerifier(cfg.JWTSecret)}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	// ---- Store ----
	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		d.closers = append(d.closers, database.Close)
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, database); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		d.DB = database
		d.Store = &core.PGStore{DB: database}
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		d.Store = core.NewMemStore()
	}

	// ---- Asset host ----
	locator := &assets.Locator{
		BaseURL:       cfg.PublicBaseURL,
		Designs:       d.Store,
		UploadTimeout: cfg.UploadTimeout,
		StoreTimeout:  cfg.StoreTimeout,
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		d.closers = append(d.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		d.AssetHost = assets.NewRedisHost(client, cfg.PublicBaseURL, cfg.AssetTTL)
		locator.Uploader = d.AssetHost
	} else {
		log.Warn().Msg("REDIS_ADDR not set, inline images use the retrieval fallback")
	}

	// ---- Events ----
	var publisher events.Publisher
	if cfg.NATSURL != "" {
		nc, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = nc.Close() })
		publisher = nc
	}

	// ---- Channels ----
	senders, err := buildSenders(ctx, cfg, publisher, log, &d.closers)
	if err != nil {
		return nil, err
	}
	dispatcher := channels.NewDispatcher(channels.NewRegistry(senders), cfg.SendTimeout)

	d.Guests = guests.NewResolver(d.Store, cfg.StoreTimeout)
	d.Engine = &dispatch.Engine{
		Store:      d.Store,
		Guests:     d.Guests,
		Assets:     locator,
		Dispatcher: dispatcher,
		Pool: worker.NewPool(worker.Options{
			Concurrency: cfg.Concurrency,
			QPS:         cfg.QPS,
			Burst:       cfg.Burst,
			Jitter:      cfg.Jitter,
		}),
		Publisher:    publisher,
		BaseURL:      cfg.PublicBaseURL,
		StoreTimeout: cfg.StoreTimeout,
	}
	ok = true
	return d, nil
}

func buildSenders(ctx context.Context, cfg config.Config, pub events.Publisher, log zerolog.Logger, closers *[]func()) (map[core.Channel]channels.Sender, error) {
	s := map[core.Channel]channels.Sender{}

	if cfg.MailerSendAPIKey != "" {
		s[core.ChannelEmail] = channels.NewMailerSend(cfg.MailerSendAPIKey, cfg.MailFromName, cfg.MailFromEmail)
	}
	if cfg.WhatsAppDataDir != "" {
		wa, err := whatsapp.New(ctx, cfg.WhatsAppDataDir, log)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: %w", err)
		}
		*closers = append(*closers, wa.Disconnect)
		s[core.ChannelWhatsApp] = &channels.WhatsApp{Client: wa}
	}
	switch {
	case cfg.SMSGatewayURL != "":
		s[core.ChannelSMS] = &channels.SMS{Provider: provider.NewGateway(cfg.SMSGatewayURL, cfg.SMSGatewayAccount)}
	case cfg.SMSDummy:
		s[core.ChannelSMS] = &channels.SMS{Provider: provider.NewDummy()}
	}
	if cfg.MessengerPageToken != "" {
		s[core.ChannelMessenger] = channels.NewGraph(cfg.GraphURL, cfg.MessengerPageToken)
	}
	if cfg.InstagramAccessToken != "" {
		s[core.ChannelInstagram] = channels.NewGraph(cfg.GraphURL, cfg.InstagramAccessToken)
	}
	if pub != nil {
		s[core.ChannelLink] = &channels.InApp{Publisher: pub}
	}

	for _, ch := range core.Channels {
		if _, ok := s[ch]; ok {
			continue
		}
		if cfg.DevSenders {
			s[ch] = &channels.DevLog{Channel: string(ch)}
			continue
		}
		log.Warn().Str("channel", string(ch)).Msg("channel not configured")
	}
	return s, nil
}
