package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/invitely/invite-dispatch/internal/logging"
)

func TestCorrelationIDTagsLogLines(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New("debug", "json", &buf)

	ctx := logging.WithCorrelationID(log.WithContext(context.Background()), "corr-1")
	require.Equal(t, "corr-1", logging.CorrelationID(ctx))

	zerolog.Ctx(ctx).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "corr-1", line["correlation_id"])
	require.Equal(t, "invite-dispatch", line["service"])
	require.Equal(t, "hello", line["message"])
}

func TestCorrelationIDGenerated(t *testing.T) {
	require.Empty(t, logging.CorrelationID(context.Background()))

	ctx := logging.WithCorrelationID(context.Background(), "")
	require.Len(t, logging.CorrelationID(ctx), 36)
}

func TestLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New("loud", "json", &buf)
	log.Debug().Msg("hidden")
	require.Zero(t, buf.Len())
	log.Info().Msg("shown")
	require.NotZero(t, buf.Len())
}
