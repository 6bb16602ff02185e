package router

import (
	"context"
	"testing"

	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/store"
)

func TestRouterSelectPrefersStrongArm(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	stats, err := mem.GetStats(ctx, "p")
	require.NoError(t, err)
	stats.Register("strong", 10, 1)
	stats.Register("weak", 1, 10)
	require.NoError(t, mem.PutStats(ctx, stats))

	r := New(mem, WithSeed(42))

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		arm, err := r.Select(ctx, "p")
		require.NoError(t, err)
		counts[arm]++
	}

	// Beta(10,1) dominates Beta(1,10) in nearly every draw.
	assert.Greater(t, counts["strong"], 950)
	assert.Less(t, counts["weak"], 50)
}

func TestRouterSelectExploresUniformPriors(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := New(mem, WithSeed(1))

	require.NoError(t, r.RegisterArm(ctx, "p", core.ArmExact))
	require.NoError(t, r.RegisterArm(ctx, "p", core.ArmFallback))

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		arm, err := r.Select(ctx, "p")
		require.NoError(t, err)
		counts[arm]++
	}

	// Both uniform arms get meaningful traffic.
	assert.Greater(t, counts[core.ArmExact], 300)
	assert.Greater(t, counts[core.ArmFallback], 300)
}

func TestRouterSelectNoArms(t *testing.T) {
	r := New(store.NewMemory(), WithSeed(3))

	_, err := r.Select(context.Background(), "empty")
	require.Error(t, err)
	assert.Equal(t, errors.ArmNotFound, errors.CodeOf(err))
}

func TestRouterRegisterArm(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := New(mem, WithSeed(5))

	require.NoError(t, r.RegisterArm(ctx, "p", core.ArmExact))
	require.NoError(t, r.RegisterArm(ctx, "p", core.ArmExact))

	stats, err := mem.GetStats(ctx, "p")
	require.NoError(t, err)
	require.Len(t, stats.Arms, 1)
	assert.Equal(t, 1.0, stats.Arms[0].Alpha)
	assert.Equal(t, 1.0, stats.Arms[0].Beta)
	// The second registration was a no-op, not a second write.
	assert.Equal(t, int64(1), stats.Version)
}

func TestRouterUpdate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := New(mem, WithSeed(5))

	require.NoError(t, r.RegisterArm(ctx, "p", core.ArmExact))

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Update(ctx, "p", core.ArmExact, true))
	}
	require.NoError(t, r.Update(ctx, "p", core.ArmExact, false))

	stats, err := mem.GetStats(ctx, "p")
	require.NoError(t, err)
	arm := stats.Arm(core.ArmExact)
	require.NotNil(t, arm)
	assert.Equal(t, 4.0, arm.Alpha)
	assert.Equal(t, 2.0, arm.Beta)
}

func TestRouterUpdateUnregisteredArm(t *testing.T) {
	ctx := context.Background()
	r := New(store.NewMemory(), WithSeed(5))

	require.NoError(t, r.RegisterArm(ctx, "p", core.ArmExact))
	err := r.Update(ctx, "p", "synthesized:missing", true)
	require.Error(t, err)
	assert.Equal(t, errors.ArmNotFound, errors.CodeOf(err))
}

func TestRouterConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := New(mem, WithSeed(5))

	require.NoError(t, r.RegisterArm(ctx, "p", core.ArmExact))

	const updates = 64
	p := pool.New().WithErrors()
	for i := 0; i < updates; i++ {
		success := i%2 == 0
		p.Go(func() error {
			return r.Update(ctx, "p", core.ArmExact, success)
		})
	}
	require.NoError(t, p.Wait())

	stats, err := mem.GetStats(ctx, "p")
	require.NoError(t, err)
	arm := stats.Arm(core.ArmExact)
	require.NotNil(t, arm)

	// Every increment survives the CAS contention.
	assert.Equal(t, 1.0+updates/2, arm.Alpha)
	assert.Equal(t, 1.0+updates/2, arm.Beta)
}

func TestRouterUpdatesCommute(t *testing.T) {
	ctx := context.Background()
	outcomes := []bool{true, false, false, true, true}
	reversed := []bool{true, true, false, false, true}

	final := func(order []bool) (float64, float64) {
		mem := store.NewMemory()
		r := New(mem, WithSeed(9))
		require.NoError(t, r.RegisterArm(ctx, "p", core.ArmExact))
		for _, success := range order {
			require.NoError(t, r.Update(ctx, "p", core.ArmExact, success))
		}
		stats, err := mem.GetStats(ctx, "p")
		require.NoError(t, err)
		arm := stats.Arm(core.ArmExact)
		return arm.Alpha, arm.Beta
	}

	a1, b1 := final(outcomes)
	a2, b2 := final(reversed)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestExpectation(t *testing.T) {
	assert.Equal(t, 0.0, Expectation(nil))
	assert.InDelta(t, 0.8, Expectation(&core.Arm{Alpha: 8, Beta: 2}), 1e-9)
}
