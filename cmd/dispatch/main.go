// Command dispatch runs one invitation batch from a JSON file against the
// configured store and channels, for operator re-sends.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/app"
	"github.com/invitely/invite-dispatch/internal/config"
	"github.com/invitely/invite-dispatch/internal/dispatch"
	"github.com/invitely/invite-dispatch/internal/logging"
)

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	file := flag.String("batch", "-", "path to the batch JSON (- for stdin)")
	correlationID := flag.String("correlation-id", "", "correlation id stored on every attempt")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitCode = 2
		return
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	zerolog.DefaultContextLogger = &log

	// ---- Context / signals ----
	rootCtx, cancel := signal.NotifyContext(log.WithContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	req, err := readBatch(*file)
	if err != nil {
		log.Error().Err(err).Msg("read batch")
		exitCode = 2
		return
	}

	deps, err := app.Build(rootCtx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup")
		exitCode = 1
		return
	}
	defer deps.Close()

	ctx := logging.WithCorrelationID(rootCtx, *correlationID)
	res, err := deps.Engine.Run(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("batch rejected")
		exitCode = 1
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
	if res.Failed > 0 {
		exitCode = 3
	}
}

func readBatch(path string) (dispatch.BatchRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return dispatch.BatchRequest{}, err
		}
		defer f.Close()
		r = f
	}
	var req dispatch.BatchRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return dispatch.BatchRequest{}, fmt.Errorf("decode batch: %w", err)
	}
	return req, nil
}
