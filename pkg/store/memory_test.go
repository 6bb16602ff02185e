package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/internal/testutil"
	"github.com/loomkit/loom/pkg/core"
)

func seedTraces(t *testing.T, ts TraceStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		trace := testutil.Trace("fp-a",
			testutil.Task("fetch", map[string]interface{}{"q": i}, map[string]interface{}{"rows": 1}),
		)
		trace.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, ts.PutTrace(ctx, trace))
	}

	failed := testutil.Trace("fp-a",
		testutil.Task("fetch", map[string]interface{}{"q": "x"}, map[string]interface{}{}),
	)
	failed.Success = false
	failed.Timestamp = base.Add(time.Hour)
	require.NoError(t, ts.PutTrace(ctx, failed))

	other := testutil.Trace("fp-b",
		testutil.Task("scan", map[string]interface{}{"q": "y"}, map[string]interface{}{"rows": 2}),
	)
	other.Timestamp = base
	require.NoError(t, ts.PutTrace(ctx, other))
}

func TestMemoryTraces(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	seedTraces(t, mem)

	t.Run("ListSuccessful is newest first", func(t *testing.T) {
		traces, err := mem.ListSuccessful(ctx, "fp-a", 0)
		require.NoError(t, err)
		require.Len(t, traces, 5)
		for i := 1; i < len(traces); i++ {
			assert.True(t, traces[i].Timestamp.Before(traces[i-1].Timestamp))
		}
	})

	t.Run("Limit truncates", func(t *testing.T) {
		traces, err := mem.ListSuccessful(ctx, "fp-a", 2)
		require.NoError(t, err)
		assert.Len(t, traces, 2)
	})

	t.Run("Count excludes failures", func(t *testing.T) {
		count, err := mem.CountForFingerprint(ctx, "fp-a")
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})

	t.Run("Fingerprints are sorted", func(t *testing.T) {
		fps, err := mem.ListFingerprints(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"fp-a", "fp-b"}, fps)
	})
}

func TestMemoryLatestPattern(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	latest, err := mem.LatestPattern(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := &core.ConsensusPattern{ID: "p1", Fingerprint: "fp", CreatedAt: time.Now().UTC()}
	second := &core.ConsensusPattern{ID: "p2", Fingerprint: "fp", CreatedAt: time.Now().UTC()}
	require.NoError(t, mem.PutPattern(ctx, first))
	require.NoError(t, mem.PutPattern(ctx, second))

	latest, err = mem.LatestPattern(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "p2", latest.ID)
}

func TestMemoryStatsCAS(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	t.Run("Missing pattern yields fresh stats", func(t *testing.T) {
		stats, err := mem.GetStats(ctx, "p")
		require.NoError(t, err)
		assert.Empty(t, stats.Arms)
		assert.Equal(t, int64(0), stats.Version)
	})

	t.Run("Stale version is rejected", func(t *testing.T) {
		a, err := mem.GetStats(ctx, "p")
		require.NoError(t, err)
		b, err := mem.GetStats(ctx, "p")
		require.NoError(t, err)

		a.Register(core.ArmExact, 1, 1)
		b.Register(core.ArmFallback, 1, 1)

		require.NoError(t, mem.PutStats(ctx, a))
		assert.ErrorIs(t, mem.PutStats(ctx, b), ErrVersionConflict)
	})

	t.Run("Stored copy is isolated from the caller", func(t *testing.T) {
		stats, err := mem.GetStats(ctx, "p")
		require.NoError(t, err)
		stats.Arm(core.ArmExact).Alpha = 99

		fresh, err := mem.GetStats(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, 1.0, fresh.Arm(core.ArmExact).Alpha)
	})
}
