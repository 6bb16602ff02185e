package consensus

import (
	"fmt"
	"sort"

	"github.com/loomkit/loom/pkg/align"
	"github.com/loomkit/loom/pkg/core"
)

// mineVariables flags task-node input fields whose value differs across
// contributing traces. Constant fields stay fixed in the compiled
// workflow; variable fields must be supplied by the caller.
func mineVariables(set *align.AlignedSet, nodes []core.PatternNode) []core.VariableRegion {
	var regions []core.VariableRegion

	for _, node := range nodes {
		if node.Kind != core.NodeTask {
			continue
		}

		fields := make(map[string][]interface{})
		seen := make(map[string]map[string]bool)

		for _, row := range set.Rows {
			cell := row[node.Position]
			if cell.IsGap() || cell.Name != node.Name {
				continue
			}
			for field, value := range cell.Task.Input {
				key := fmt.Sprintf("%#v", value)
				if seen[field] == nil {
					seen[field] = make(map[string]bool)
				}
				if !seen[field][key] {
					seen[field][key] = true
					fields[field] = append(fields[field], value)
				}
			}
		}

		names := make([]string, 0, len(fields))
		for field := range fields {
			if len(fields[field]) > 1 {
				names = append(names, field)
			}
		}
		sort.Strings(names)

		for _, field := range names {
			regions = append(regions, core.VariableRegion{
				Position: node.Position,
				Field:    field,
				Values:   fields[field],
			})
		}
	}

	return regions
}
