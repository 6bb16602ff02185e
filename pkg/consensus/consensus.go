// Package consensus derives a majority-vote pattern from an aligned
// trace set: per-position task or branch nodes, variable input regions,
// branch guard predicates, and a single confidence score gating
// synthesis.
package consensus

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/loomkit/loom/pkg/align"
	"github.com/loomkit/loom/pkg/core"
)

// Extractor turns aligned sets into consensus patterns.
type Extractor struct {
	consensusThreshold float64
	requiredThreshold  float64
	minTraces          int
}

// New returns an Extractor. A position becomes a task node when its
// majority share reaches consensusThreshold; the node is required when
// the share strictly exceeds requiredThreshold.
func New(consensusThreshold, requiredThreshold float64, minTraces int) *Extractor {
	return &Extractor{
		consensusThreshold: consensusThreshold,
		requiredThreshold:  requiredThreshold,
		minTraces:          minTraces,
	}
}

// Extract builds the consensus pattern for set. Position order follows
// the aligned columns exactly; nodes are never reordered or merged.
func (e *Extractor) Extract(set *align.AlignedSet) *core.ConsensusPattern {
	nodes := make([]core.PatternNode, 0, set.Columns)

	for col := 0; col < set.Columns; col++ {
		nodes = append(nodes, e.extractColumn(set, col))
	}

	pattern := &core.ConsensusPattern{
		ID:             uuid.New().String(),
		Fingerprint:    set.Fingerprint,
		Nodes:          nodes,
		TraceCount:     len(set.Rows),
		AlignmentScore: set.Score,
		CreatedAt:      time.Now().UTC(),
	}
	pattern.Variables = mineVariables(set, nodes)
	pattern.Guards = mineGuards(set, nodes)
	pattern.Confidence = Score(set.Score, meanFrequency(nodes), len(set.Rows), e.minTraces)
	return pattern
}

func (e *Extractor) extractColumn(set *align.AlignedSet, col int) core.PatternNode {
	total := len(set.Rows)
	counts := make(map[string]int)
	for _, row := range set.Rows {
		if cell := row[col]; !cell.IsGap() {
			counts[cell.Name]++
		}
	}

	top, topCount := majority(counts)
	share := float64(topCount) / float64(total)

	if share >= e.consensusThreshold {
		node := core.PatternNode{
			Kind:      core.NodeTask,
			Position:  col,
			Name:      top,
			Required:  share > e.requiredThreshold,
			Frequency: share,
		}
		node.InputSchema, node.OutputSchema = representativeSchemas(set, col, top)
		return node
	}

	options := make([]core.BranchOption, 0, len(counts))
	for name, count := range counts {
		options = append(options, core.BranchOption{
			Name:      name,
			Frequency: float64(count) / float64(total),
		})
	}
	sort.Slice(options, func(i, j int) bool {
		if options[i].Frequency != options[j].Frequency {
			return options[i].Frequency > options[j].Frequency
		}
		return options[i].Name < options[j].Name
	})

	return core.PatternNode{
		Kind:      core.NodeBranch,
		Position:  col,
		Frequency: share,
		Options:   options,
	}
}

// majority returns the most frequent name, breaking count ties by
// lexicographic order so extraction is deterministic.
func majority(counts map[string]int) (string, int) {
	best, bestCount := "", -1
	for name, count := range counts {
		if count > bestCount || (count == bestCount && name < best) {
			best, bestCount = name, count
		}
	}
	if bestCount < 0 {
		return "", 0
	}
	return best, bestCount
}

// representativeSchemas unions field types over the majority option's
// contributing executions.
func representativeSchemas(set *align.AlignedSet, col int, name string) (map[string]string, map[string]string) {
	in := make(map[string]string)
	out := make(map[string]string)
	for _, row := range set.Rows {
		cell := row[col]
		if cell.IsGap() || cell.Name != name {
			continue
		}
		for field, value := range cell.Task.Input {
			if _, seen := in[field]; !seen {
				in[field] = core.TypeOf(value)
			}
		}
		for field, value := range cell.Task.Output {
			if _, seen := out[field]; !seen {
				out[field] = core.TypeOf(value)
			}
		}
	}
	if len(in) == 0 {
		in = nil
	}
	if len(out) == 0 {
		out = nil
	}
	return in, out
}

// meanFrequency averages node frequencies; branch nodes contribute
// their leading option's share.
func meanFrequency(nodes []core.PatternNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	sum := 0.0
	for _, node := range nodes {
		switch node.Kind {
		case core.NodeTask:
			sum += node.Frequency
		case core.NodeBranch:
			if len(node.Options) > 0 {
				sum += node.Options[0].Frequency
			}
		}
	}
	return sum / float64(len(nodes))
}
