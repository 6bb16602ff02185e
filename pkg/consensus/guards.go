package consensus

import (
	"fmt"
	"sort"

	"github.com/loomkit/loom/pkg/align"
	"github.com/loomkit/loom/pkg/core"
)

// mineGuards derives one predicate per branch option: the request field
// whose majority value best separates the traces taking that option
// from the rest. A deterministic heuristic, not a learned model.
func mineGuards(set *align.AlignedSet, nodes []core.PatternNode) []core.GuardCondition {
	var guards []core.GuardCondition

	for _, node := range nodes {
		if node.Kind != core.NodeBranch {
			continue
		}
		for _, option := range node.Options {
			if guard, ok := guardFor(set, node.Position, option.Name); ok {
				guards = append(guards, guard)
			}
		}
	}

	return guards
}

func guardFor(set *align.AlignedSet, position int, option string) (core.GuardCondition, bool) {
	var takers, rest []*core.ExecutionTrace
	for i, row := range set.Rows {
		if cell := row[position]; !cell.IsGap() && cell.Name == option {
			takers = append(takers, set.Traces[i])
		} else {
			rest = append(rest, set.Traces[i])
		}
	}
	if len(takers) == 0 {
		return core.GuardCondition{}, false
	}

	fields := requestFields(set.Traces)
	bestScore := -1.0
	var bestField string
	var bestValue interface{}

	for _, field := range fields {
		value, takerShare := majorityValue(takers, field)
		if takerShare == 0 {
			continue
		}
		restShare := valueShare(rest, field, value)
		score := takerShare - restShare
		if score > bestScore {
			bestScore = score
			bestField = field
			bestValue = value
		}
	}
	if bestField == "" {
		return core.GuardCondition{}, false
	}

	return core.GuardCondition{
		Position: position,
		Option:   option,
		Field:    bestField,
		Operator: "==",
		Value:    bestValue,
		Expr:     guardExpr(bestField, bestValue),
	}, true
}

// requestFields is the sorted union of first-task input fields, the
// values a caller supplies when the workflow runs.
func requestFields(traces []*core.ExecutionTrace) []string {
	seen := make(map[string]bool)
	for _, trace := range traces {
		if len(trace.Tasks) == 0 {
			continue
		}
		for field := range trace.Tasks[0].Input {
			seen[field] = true
		}
	}
	fields := make([]string, 0, len(seen))
	for field := range seen {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func majorityValue(traces []*core.ExecutionTrace, field string) (interface{}, float64) {
	counts := make(map[string]int)
	values := make(map[string]interface{})
	for _, trace := range traces {
		if v, ok := requestValue(trace, field); ok {
			key := fmt.Sprintf("%#v", v)
			counts[key]++
			values[key] = v
		}
	}

	bestKey, bestCount := "", 0
	for key, count := range counts {
		if count > bestCount || (count == bestCount && key < bestKey) {
			bestKey, bestCount = key, count
		}
	}
	if bestCount == 0 {
		return nil, 0
	}
	return values[bestKey], float64(bestCount) / float64(len(traces))
}

func valueShare(traces []*core.ExecutionTrace, field string, value interface{}) float64 {
	if len(traces) == 0 {
		return 0
	}
	key := fmt.Sprintf("%#v", value)
	count := 0
	for _, trace := range traces {
		if v, ok := requestValue(trace, field); ok && fmt.Sprintf("%#v", v) == key {
			count++
		}
	}
	return float64(count) / float64(len(traces))
}

func requestValue(trace *core.ExecutionTrace, field string) (interface{}, bool) {
	if len(trace.Tasks) == 0 {
		return nil, false
	}
	v, ok := trace.Tasks[0].Input[field]
	return v, ok
}

// guardExpr renders the predicate as expr-lang source evaluated against
// the live request input.
func guardExpr(field string, value interface{}) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%s == %q", field, v)
	default:
		return fmt.Sprintf("%s == %v", field, v)
	}
}
