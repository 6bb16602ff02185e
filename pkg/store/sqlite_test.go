package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/internal/testutil"
	"github.com/loomkit/loom/pkg/core"
)

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(SQLiteConfig{
		Path:      filepath.Join(t.TempDir(), "loom.db"),
		EnableWAL: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteTraces(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	seedTraces(t, s)

	t.Run("ListSuccessful is newest first", func(t *testing.T) {
		traces, err := s.ListSuccessful(ctx, "fp-a", 0)
		require.NoError(t, err)
		require.Len(t, traces, 5)
		for i := 1; i < len(traces); i++ {
			assert.True(t, traces[i].Timestamp.Before(traces[i-1].Timestamp))
		}
		assert.Equal(t, "fetch", traces[0].Tasks[0].Name)
	})

	t.Run("Limit truncates", func(t *testing.T) {
		traces, err := s.ListSuccessful(ctx, "fp-a", 3)
		require.NoError(t, err)
		assert.Len(t, traces, 3)
	})

	t.Run("Count excludes failures", func(t *testing.T) {
		count, err := s.CountForFingerprint(ctx, "fp-a")
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})

	t.Run("Fingerprints are sorted", func(t *testing.T) {
		fps, err := s.ListFingerprints(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"fp-a", "fp-b"}, fps)
	})
}

func TestSQLitePatternsAndWorkflows(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	latest, err := s.LatestPattern(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutPattern(ctx, &core.ConsensusPattern{
		ID: "p1", Fingerprint: "fp", Confidence: 0.8, CreatedAt: base,
	}))
	require.NoError(t, s.PutPattern(ctx, &core.ConsensusPattern{
		ID: "p2", Fingerprint: "fp", Confidence: 0.9, CreatedAt: base.Add(time.Minute),
	}))

	pattern, err := s.LatestPattern(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "p2", pattern.ID)
	assert.InDelta(t, 0.9, pattern.Confidence, 1e-9)

	wf, err := s.LatestWorkflow(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, wf)

	require.NoError(t, s.PutWorkflow(ctx, &core.SynthesizedWorkflow{
		ID: "w1", Fingerprint: "fp", Start: core.StateIDValidate,
		States: map[string]*core.State{
			core.StateIDValidate: {ID: core.StateIDValidate, Kind: core.StateValidation, Next: core.StateIDEnd},
			core.StateIDEnd:      {ID: core.StateIDEnd, Kind: core.StateEnd},
		},
		StateOrder: []string{core.StateIDValidate, core.StateIDEnd},
		CreatedAt:  base,
	}))

	wf, err = s.LatestWorkflow(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, wf)
	assert.Equal(t, "w1", wf.ID)
	assert.Equal(t, core.StateIDEnd, wf.States[core.StateIDValidate].Next)
	assert.Equal(t, []string{core.StateIDValidate, core.StateIDEnd}, wf.StateOrder)
}

func TestSQLiteStatsCAS(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	t.Run("Insert race is a conflict", func(t *testing.T) {
		a, err := s.GetStats(ctx, "p")
		require.NoError(t, err)
		b, err := s.GetStats(ctx, "p")
		require.NoError(t, err)

		a.Register(core.ArmExact, 1, 1)
		b.Register(core.ArmFallback, 1, 1)

		require.NoError(t, s.PutStats(ctx, a))
		assert.ErrorIs(t, s.PutStats(ctx, b), ErrVersionConflict)
	})

	t.Run("Update race is a conflict", func(t *testing.T) {
		a, err := s.GetStats(ctx, "p")
		require.NoError(t, err)
		b, err := s.GetStats(ctx, "p")
		require.NoError(t, err)

		a.Arm(core.ArmExact).Alpha++
		b.Arm(core.ArmExact).Beta++

		require.NoError(t, s.PutStats(ctx, a))
		assert.ErrorIs(t, s.PutStats(ctx, b), ErrVersionConflict)

		// Retry from a fresh read lands.
		b, err = s.GetStats(ctx, "p")
		require.NoError(t, err)
		b.Arm(core.ArmExact).Beta++
		require.NoError(t, s.PutStats(ctx, b))

		final, err := s.GetStats(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, 2.0, final.Arm(core.ArmExact).Alpha)
		assert.Equal(t, 2.0, final.Arm(core.ArmExact).Beta)
		assert.Equal(t, int64(3), final.Version)
	})
}

func TestSQLiteTraceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	trace := testutil.Trace("fp",
		testutil.Task("fetch",
			map[string]interface{}{"order_id": "A-17"},
			map[string]interface{}{"rows": float64(3)},
		),
	)
	trace.Cost = 0.0125
	trace.Tasks[0].Duration = 420 * time.Millisecond
	trace.Tasks[0].Retries = 1
	require.NoError(t, s.PutTrace(ctx, trace))

	got, err := s.ListSuccessful(ctx, "fp", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, trace.ID, got[0].ID)
	assert.Equal(t, trace.Cost, got[0].Cost)
	assert.Equal(t, "A-17", got[0].Tasks[0].Input["order_id"])
	assert.Equal(t, 420*time.Millisecond, got[0].Tasks[0].Duration)
	assert.Equal(t, 1, got[0].Tasks[0].Retries)
}
