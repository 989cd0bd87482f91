package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/app"
	"github.com/invitely/invite-dispatch/internal/config"
	httpapi "github.com/invitely/invite-dispatch/internal/http"
	"github.com/invitely/invite-dispatch/internal/logging"
	"github.com/invitely/invite-dispatch/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "json", os.Stderr)
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	zerolog.DefaultContextLogger = &log

	rootCtx, cancel := context.WithCancel(log.WithContext(context.Background()))
	defer cancel()

	deps, err := app.Build(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup")
	}
	defer deps.Close()

	if deps.DB != nil {
		stats := metrics.NewPGXPoolStats(deps.DB.Pool)
		go stats.Start(15*time.Second, rootCtx.Done())
	}

	// ---- HTTP server ----
	srv := &httpapi.Server{
		Store:       deps.Store,
		Engine:      deps.Engine,
		Guests:      deps.Guests,
		Auth:        deps.Auth,
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
	}
	if deps.AssetHost != nil {
		srv.Assets = deps.AssetHost
	}
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// batches run synchronously and can take a while for large guest lists
		WriteTimeout: 10 * time.Minute,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	// ---- Graceful shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
}
