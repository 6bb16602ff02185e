package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/internal/testutil"
	"github.com/loomkit/loom/pkg/align"
	"github.com/loomkit/loom/pkg/core"
)

func alignTraces(t *testing.T, traces []*core.ExecutionTrace) *align.AlignedSet {
	t.Helper()
	set, err := align.New(3, 0.0).Align(traces)
	require.NoError(t, err)
	return set
}

func TestExtractIdenticalSequences(t *testing.T) {
	traces := testutil.SimpleTraces("fp", 5, "fetch", "analyze", "decide")
	pattern := New(0.8, 0.9, 3).Extract(alignTraces(t, traces))

	require.Len(t, pattern.Nodes, 3)
	for i, name := range []string{"fetch", "analyze", "decide"} {
		node := pattern.Nodes[i]
		assert.Equal(t, core.NodeTask, node.Kind)
		assert.Equal(t, name, node.Name)
		assert.True(t, node.Required, "node %s should be required", name)
		assert.Equal(t, 1.0, node.Frequency)
		assert.Equal(t, i, node.Position)
	}

	assert.Equal(t, 1.0, pattern.AlignmentScore)
	assert.Equal(t, 5, pattern.TraceCount)
	assert.GreaterOrEqual(t, pattern.Confidence, 0.75)
}

func TestExtractNineOfTenBoundary(t *testing.T) {
	// A task present in exactly 9 of 10 traces sits on the 0.9 boundary:
	// still a consensus task, but not required.
	traces := make([]*core.ExecutionTrace, 0, 10)
	for i := 0; i < 9; i++ {
		traces = append(traces, testutil.SimpleTrace("fp", "fetch", "verify", "decide"))
	}
	traces = append(traces, testutil.SimpleTrace("fp", "fetch", "decide"))

	pattern := New(0.8, 0.9, 3).Extract(alignTraces(t, traces))

	require.Len(t, pattern.Nodes, 3)
	verify := pattern.Nodes[1]
	assert.Equal(t, core.NodeTask, verify.Kind)
	assert.Equal(t, "verify", verify.Name)
	assert.InDelta(t, 0.9, verify.Frequency, 1e-9)
	assert.False(t, verify.Required)

	assert.True(t, pattern.Nodes[0].Required)
	assert.True(t, pattern.Nodes[2].Required)
}

func TestExtractBranchNode(t *testing.T) {
	// Below the 0.8 consensus share the position becomes a branch
	// listing every observed option.
	traces := []*core.ExecutionTrace{
		testutil.SimpleTrace("fp", "fetch", "approve", "close"),
		testutil.SimpleTrace("fp", "fetch", "approve", "close"),
		testutil.SimpleTrace("fp", "fetch", "approve", "close"),
		testutil.SimpleTrace("fp", "fetch", "reject", "close"),
		testutil.SimpleTrace("fp", "fetch", "reject", "close"),
	}

	pattern := New(0.8, 0.9, 3).Extract(alignTraces(t, traces))

	require.Len(t, pattern.Nodes, 3)
	branch := pattern.Nodes[1]
	assert.Equal(t, core.NodeBranch, branch.Kind)
	require.Len(t, branch.Options, 2)
	assert.Equal(t, "approve", branch.Options[0].Name)
	assert.InDelta(t, 0.6, branch.Options[0].Frequency, 1e-9)
	assert.Equal(t, "reject", branch.Options[1].Name)
	assert.InDelta(t, 0.4, branch.Options[1].Frequency, 1e-9)
}

func TestExtractRepresentativeSchema(t *testing.T) {
	mk := func() *core.ExecutionTrace {
		return testutil.Trace("fp",
			testutil.Task("fetch",
				map[string]interface{}{"order_id": 42, "deep": true},
				map[string]interface{}{"record": map[string]interface{}{}},
			),
		)
	}
	traces := []*core.ExecutionTrace{mk(), mk(), mk()}

	pattern := New(0.8, 0.9, 3).Extract(alignTraces(t, traces))

	require.Len(t, pattern.Nodes, 1)
	node := pattern.Nodes[0]
	assert.Equal(t, "number", node.InputSchema["order_id"])
	assert.Equal(t, "boolean", node.InputSchema["deep"])
	assert.Equal(t, "object", node.OutputSchema["record"])
}
