package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/internal/testutil"
	"github.com/loomkit/loom/pkg/core"
)

func branchTrace(kind string, second string) *core.ExecutionTrace {
	return testutil.Trace("fp",
		testutil.Task("fetch",
			map[string]interface{}{"kind": kind, "query": "q"},
			map[string]interface{}{"record": "r"},
		),
		testutil.Task(second,
			map[string]interface{}{"record": "r"},
			map[string]interface{}{"done": true},
		),
	)
}

func TestMineGuards(t *testing.T) {
	traces := []*core.ExecutionTrace{
		branchTrace("refund", "approve"),
		branchTrace("refund", "approve"),
		branchTrace("refund", "approve"),
		branchTrace("complaint", "escalate"),
		branchTrace("complaint", "escalate"),
	}

	pattern := New(0.8, 0.9, 3).Extract(alignTraces(t, traces))

	require.Len(t, pattern.Nodes, 2)
	require.Equal(t, core.NodeBranch, pattern.Nodes[1].Kind)
	require.Len(t, pattern.Guards, 2)

	byOption := make(map[string]core.GuardCondition)
	for _, guard := range pattern.Guards {
		byOption[guard.Option] = guard
	}

	approve := byOption["approve"]
	assert.Equal(t, "kind", approve.Field)
	assert.Equal(t, "==", approve.Operator)
	assert.Equal(t, "refund", approve.Value)
	assert.Equal(t, `kind == "refund"`, approve.Expr)

	escalate := byOption["escalate"]
	assert.Equal(t, "kind", escalate.Field)
	assert.Equal(t, "complaint", escalate.Value)
}

func TestMineVariables(t *testing.T) {
	mk := func(orderID int) *core.ExecutionTrace {
		return testutil.Trace("fp",
			testutil.Task("fetch",
				map[string]interface{}{"order_id": orderID, "source": "api"},
				map[string]interface{}{"record": "r"},
			),
		)
	}
	traces := []*core.ExecutionTrace{mk(1), mk(2), mk(3)}

	pattern := New(0.8, 0.9, 3).Extract(alignTraces(t, traces))

	require.Len(t, pattern.Variables, 1)
	region := pattern.Variables[0]
	assert.Equal(t, 0, region.Position)
	assert.Equal(t, "order_id", region.Field)
	assert.Len(t, region.Values, 3)
}

func TestMineVariablesConstantFieldsExcluded(t *testing.T) {
	traces := testutil.SimpleTraces("fp", 4, "fetch", "decide")
	pattern := New(0.8, 0.9, 3).Extract(alignTraces(t, traces))
	assert.Empty(t, pattern.Variables)
}
