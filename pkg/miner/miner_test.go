package miner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/internal/testutil"
	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/router"
	"github.com/loomkit/loom/pkg/store"
)

func seed(t *testing.T, mem *store.Memory, fingerprint string, n int, names ...string) {
	t.Helper()
	for _, trace := range testutil.SimpleTraces(fingerprint, n, names...) {
		require.NoError(t, mem.PutTrace(context.Background(), trace))
	}
}

func newMiner(mem *store.Memory, cfg Config) (*Miner, *router.Router) {
	r := router.New(mem, router.WithSeed(1))
	return New(cfg, mem, mem, mem, r), r
}

func TestMineFingerprint(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed(t, mem, "fp", 5, "fetch", "analyze", "decide")

	m, _ := newMiner(mem, DefaultConfig())
	result := m.MineFingerprint(ctx, "fp")

	require.Equal(t, StatusMined, result.Status, "reason: %s err: %v", result.Reason, result.Err)
	assert.Equal(t, 5, result.TraceCount)
	assert.GreaterOrEqual(t, result.Confidence, 0.75)

	t.Run("Pattern deployed", func(t *testing.T) {
		pattern, err := mem.LatestPattern(ctx, "fp")
		require.NoError(t, err)
		require.NotNil(t, pattern)
		assert.Equal(t, result.PatternID, pattern.ID)
		require.Len(t, pattern.Nodes, 3)
		for _, node := range pattern.Nodes {
			assert.True(t, node.Required)
		}
	})

	t.Run("Workflow deployed and verified", func(t *testing.T) {
		wf, err := mem.LatestWorkflow(ctx, "fp")
		require.NoError(t, err)
		require.NotNil(t, wf)
		assert.Equal(t, result.WorkflowID, wf.ID)
		assert.Equal(t, []string{core.StateIDValidate, "fetch", "analyze", "decide", core.StateIDEnd}, wf.StateOrder)
		require.NotNil(t, wf.Verification)
		assert.True(t, wf.Verification.Verified)
	})

	t.Run("Router arm registered with uniform prior", func(t *testing.T) {
		stats, err := mem.GetStats(ctx, "fp")
		require.NoError(t, err)
		arm := stats.Arm(core.SynthesizedArm("fp"))
		require.NotNil(t, arm)
		assert.Equal(t, 1.0, arm.Alpha)
		assert.Equal(t, 1.0, arm.Beta)
	})
}

func TestMineFingerprintSkipsThinFingerprint(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed(t, mem, "fp", 2, "fetch", "decide")

	m, _ := newMiner(mem, DefaultConfig())
	result := m.MineFingerprint(ctx, "fp")

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "insufficient traces", result.Reason)

	// Nothing was deployed.
	pattern, err := mem.LatestPattern(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, pattern)
	stats, err := mem.GetStats(ctx, "fp")
	require.NoError(t, err)
	assert.Empty(t, stats.Arms)
}

func TestMineFingerprintConfidenceGate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed(t, mem, "fp", 3, "fetch", "decide")

	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.99
	m, _ := newMiner(mem, cfg)

	result := m.MineFingerprint(ctx, "fp")
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "confidence below threshold", result.Reason)

	wf, err := mem.LatestWorkflow(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, wf)
}

type failingTraces struct {
	store.TraceStore
	attempts int
}

func (f *failingTraces) ListSuccessful(ctx context.Context, fingerprint string, limit int) ([]*core.ExecutionTrace, error) {
	f.attempts++
	return nil, fmt.Errorf("store offline")
}

func TestMineFingerprintRetriesStorage(t *testing.T) {
	mem := store.NewMemory()
	failing := &failingTraces{TraceStore: mem}

	cfg := DefaultConfig()
	cfg.FetchRetries = 2
	cfg.RetryBackoff = time.Millisecond
	r := router.New(mem, router.WithSeed(1))
	m := New(cfg, failing, mem, mem, r)

	result := m.MineFingerprint(context.Background(), "fp")
	assert.Equal(t, StatusFailed, result.Status)
	assert.Error(t, result.Err)
	assert.Equal(t, 3, failing.attempts, "initial attempt plus two retries")
}

func TestMineAll(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed(t, mem, "fp-ready", 5, "fetch", "decide")
	seed(t, mem, "fp-thin", 1, "fetch", "decide")

	m, _ := newMiner(mem, DefaultConfig())
	results := m.MineAll(ctx, []string{"fp-ready", "fp-thin"})
	require.Len(t, results, 2)

	byFP := map[string]*CycleResult{}
	for _, result := range results {
		byFP[result.Fingerprint] = result
	}
	assert.Equal(t, StatusMined, byFP["fp-ready"].Status)
	assert.Equal(t, StatusSkipped, byFP["fp-thin"].Status)
}
