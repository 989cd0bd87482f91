package dispatch_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invitely/invite-dispatch/internal/dispatch"
)

func TestDeriveToken(t *testing.T) {
	base := dispatch.NewBaseToken()
	require.Len(t, base, 32)
	require.NotContains(t, base, "-")

	require.Equal(t, base, dispatch.DeriveToken(base, "", 0))

	seen := map[string]bool{}
	for i, c := range []string{"c-1", "c-2", "c-3"} {
		tok := dispatch.DeriveToken(base, c, i)
		require.True(t, strings.HasPrefix(tok, base+"-"))
		require.Contains(t, tok, c)
		require.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
	// pure: same inputs, same token
	require.Equal(t, dispatch.DeriveToken(base, "c-1", 0), dispatch.DeriveToken(base, "c-1", 0))
}

func TestNewBaseTokenUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		tok := dispatch.NewBaseToken()
		require.False(t, seen[tok])
		seen[tok] = true
	}
}
