package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invitely/invite-dispatch/internal/core"
	"github.com/invitely/invite-dispatch/internal/dispatch"
)

func TestResolveTargets(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemStore()
	a := &core.Ceremony{ID: "c-a", EventID: "ev", Name: "Mehndi"}
	b := &core.Ceremony{ID: "c-b", EventID: "ev", Name: "Baraat"}
	foreign := &core.Ceremony{ID: "c-x", EventID: "other", Name: "Other"}
	for _, c := range []*core.Ceremony{a, b, foreign} {
		require.NoError(t, store.CreateCeremony(ctx, c))
	}

	t.Run("absent ids give one event-wide target", func(t *testing.T) {
		got, err := dispatch.ResolveTargets(ctx, store, "ev", nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.True(t, got[0].EventWide())
	})

	t.Run("blank ids count as absent", func(t *testing.T) {
		got, err := dispatch.ResolveTargets(ctx, store, "ev", []string{"", "  "})
		require.NoError(t, err)
		require.Equal(t, []dispatch.Target{{}}, got)
	})

	t.Run("valid ids in caller order", func(t *testing.T) {
		got, err := dispatch.ResolveTargets(ctx, store, "ev", []string{"c-b", "c-a"})
		require.NoError(t, err)
		require.Equal(t, []dispatch.Target{{CeremonyID: "c-b"}, {CeremonyID: "c-a"}}, got)
	})

	t.Run("unknown and foreign ids are dropped", func(t *testing.T) {
		got, err := dispatch.ResolveTargets(ctx, store, "ev", []string{"c-a", "nope", "c-x"})
		require.NoError(t, err)
		require.Equal(t, []dispatch.Target{{CeremonyID: "c-a"}}, got)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		got, err := dispatch.ResolveTargets(ctx, store, "ev", []string{"c-a", "c-a", "c-b"})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("supplied ids resolving to none is empty", func(t *testing.T) {
		got, err := dispatch.ResolveTargets(ctx, store, "ev", []string{"nope"})
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
