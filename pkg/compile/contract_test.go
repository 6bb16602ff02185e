package compile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/internal/testutil"
	"github.com/loomkit/loom/pkg/core"
)

func TestBuildInputContract(t *testing.T) {
	// 10 traces: "query" always present, "hint" in half, "debug" once.
	traces := make([]*core.ExecutionTrace, 0, 10)
	for i := 0; i < 10; i++ {
		input := map[string]interface{}{"query": fmt.Sprintf("q%d", i)}
		if i < 5 {
			input["hint"] = "fast"
		}
		if i == 0 {
			input["debug"] = true
		}
		traces = append(traces, testutil.Trace("fp",
			testutil.Task("fetch", input, map[string]interface{}{"rows": i}),
		))
	}

	contract := buildInputContract(traces)

	assert.Equal(t, []string{"query"}, contract.Required)
	assert.Equal(t, []string{"hint"}, contract.Optional)
	assert.NotContains(t, contract.Fields, "debug")

	query := contract.Fields["query"]
	assert.Equal(t, "string", query.Type)
	assert.Len(t, query.Examples, 3)
	assert.Len(t, query.Enum, 10)

	hint := contract.Fields["hint"]
	assert.Equal(t, []interface{}{"fast"}, hint.Enum)
}

func TestBuildInputContractEnumCutoff(t *testing.T) {
	traces := make([]*core.ExecutionTrace, 0, 11)
	for i := 0; i < 11; i++ {
		traces = append(traces, testutil.Trace("fp",
			testutil.Task("fetch",
				map[string]interface{}{"id": i},
				map[string]interface{}{"rows": 1},
			),
		))
	}

	contract := buildInputContract(traces)
	// 11 distinct values exceed the enum cutoff.
	assert.Empty(t, contract.Fields["id"].Enum)
	assert.Equal(t, "number", contract.Fields["id"].Type)
}

func TestBuildOutputContract(t *testing.T) {
	mk := func(i int) *core.ExecutionTrace {
		output := map[string]interface{}{"decision": "approved"}
		if i%2 == 0 {
			output["note"] = "n"
		}
		return testutil.Trace("fp",
			testutil.Task("fetch", map[string]interface{}{"q": "x"}, map[string]interface{}{"rows": 1}),
			testutil.Task("decide", map[string]interface{}{"rows": 1}, output),
		)
	}
	traces := []*core.ExecutionTrace{mk(0), mk(1), mk(2)}

	contract := buildOutputContract(traces)

	assert.Equal(t, []string{"decision"}, contract.Guarantees)
	assert.Contains(t, contract.Fields, "note")
}

func TestBuildJSONSchema(t *testing.T) {
	contract := core.InputContract{
		Required: []string{"query"},
		Optional: []string{"hint"},
		Fields: map[string]core.FieldSchema{
			"query": {Type: "string"},
			"hint":  {Type: "string", Enum: []interface{}{"fast", "slow"}},
		},
	}

	schema, err := BuildJSONSchema(contract)
	require.NoError(t, err)

	t.Run("Accepts valid input", func(t *testing.T) {
		violations, err := ValidateInput(schema, map[string]interface{}{
			"query": "refund order",
			"hint":  "fast",
		})
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("Rejects missing required field", func(t *testing.T) {
		violations, err := ValidateInput(schema, map[string]interface{}{"hint": "fast"})
		require.NoError(t, err)
		assert.NotEmpty(t, violations)
	})

	t.Run("Rejects out-of-enum value", func(t *testing.T) {
		violations, err := ValidateInput(schema, map[string]interface{}{
			"query": "q",
			"hint":  "warp",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, violations)
	})
}

func TestExportDOT(t *testing.T) {
	traces := testutil.SimpleTraces("fp", 3, "fetch", "decide")
	wf, err := New().Compile(minePattern(t, traces), traces)
	require.NoError(t, err)

	dot, err := ExportDOT(wf)
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, `"fetch"`)
	assert.Contains(t, dot, `"end"`)
}
