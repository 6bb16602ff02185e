// Package align reconciles the task sequences of several execution
// traces into a gap-padded, equal-length representation. The first
// trace acts as the reference; every other trace is aligned to it with
// dynamic-programming edit distance, and a star merge folds per-trace
// insertions into one master column list.
package align

import (
	"fmt"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
)

// Cell is one trace's contribution at an aligned column. Task is nil
// when the trace has no execution at this position (a gap).
type Cell struct {
	Name string
	Task *core.TaskExecution
}

// IsGap reports whether the cell is an alignment gap.
func (c Cell) IsGap() bool {
	return c.Name == core.Gap
}

// AlignedSet is the ephemeral product of one alignment run. Every row
// has exactly Columns cells.
type AlignedSet struct {
	Fingerprint string
	Columns     int
	Rows        [][]Cell
	Score       float64
	Traces      []*core.ExecutionTrace
}

// Aligner aligns trace sets and scores the result.
type Aligner struct {
	minTraces int
	threshold float64
}

// New returns an Aligner requiring at least minTraces sequences and an
// overall alignment score of at least threshold.
func New(minTraces int, threshold float64) *Aligner {
	return &Aligner{minTraces: minTraces, threshold: threshold}
}

// Align builds the gap-padded set for traces sharing one fingerprint.
// Fewer than minTraces yields an InsufficientData error (callers treat
// it as a silent skip); an overall score below the threshold yields
// AlignmentBelowThreshold.
func (a *Aligner) Align(traces []*core.ExecutionTrace) (*AlignedSet, error) {
	if len(traces) < a.minTraces {
		return nil, errors.WithFields(
			errors.New(errors.InsufficientData, "not enough traces to align"),
			errors.Fields{
				"available": len(traces),
				"required":  a.minTraces,
			})
	}

	ref := traces[0].Tasks
	pairs := make([]pairAlignment, 0, len(traces)-1)
	scoreSum := 0.0

	for _, trace := range traces[1:] {
		pair := alignPair(ref, trace.Tasks)
		pairs = append(pairs, pair)
		scoreSum += pair.score(len(ref), len(trace.Tasks))
	}

	score := scoreSum / float64(len(pairs))
	if score < a.threshold {
		return nil, errors.WithFields(
			errors.New(errors.AlignmentBelowThreshold, "alignment score below threshold"),
			errors.Fields{
				"score":     fmt.Sprintf("%.3f", score),
				"threshold": a.threshold,
			})
	}

	set := merge(traces, ref, pairs)
	set.Score = score
	set.Fingerprint = traces[0].Fingerprint
	return set, nil
}

// pairAlignment is the backtracked alignment of one candidate against
// the reference: a list of (refIdx, candIdx) steps where -1 marks a gap
// on that side.
type pairAlignment struct {
	steps []step
	dist  float64
}

type step struct {
	ref  int
	cand int
}

func (p pairAlignment) score(refLen, candLen int) float64 {
	longest := refLen
	if candLen > longest {
		longest = candLen
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - p.dist/float64(longest)
}

// alignPair runs the DP over the two sequences. Insertions and
// deletions cost 1; substitutions cost the task dissimilarity.
func alignPair(ref, cand []core.TaskExecution) pairAlignment {
	m, n := len(ref), len(cand)

	d := make([][]float64, m+1)
	for i := range d {
		d[i] = make([]float64, n+1)
	}
	for i := 1; i <= m; i++ {
		d[i][0] = float64(i)
	}
	for j := 1; j <= n; j++ {
		d[0][j] = float64(j)
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			sub := d[i-1][j-1] + dissimilarity(ref[i-1], cand[j-1])
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1

			best := sub
			if del < best {
				best = del
			}
			if ins < best {
				best = ins
			}
			d[i][j] = best
		}
	}

	// Backtrack, preferring substitution/match so equal-length runs
	// stay column-aligned.
	var steps []step
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+dissimilarity(ref[i-1], cand[j-1]):
			steps = append(steps, step{ref: i - 1, cand: j - 1})
			i--
			j--
		case i > 0 && d[i][j] == d[i-1][j]+1:
			steps = append(steps, step{ref: i - 1, cand: -1})
			i--
		default:
			steps = append(steps, step{ref: -1, cand: j - 1})
			j--
		}
	}

	// Reverse into left-to-right order.
	for l, r := 0, len(steps)-1; l < r; l, r = l+1, r-1 {
		steps[l], steps[r] = steps[r], steps[l]
	}

	return pairAlignment{steps: steps, dist: d[m][n]}
}

// dissimilarity is 0 for matching task names, otherwise one minus the
// mean Jaccard similarity of the input and output schema key sets.
func dissimilarity(a, b core.TaskExecution) float64 {
	if a.Name == b.Name {
		return 0
	}
	in := jaccard(a.InputKeys(), b.InputKeys())
	out := jaccard(a.OutputKeys(), b.OutputKeys())
	return 1.0 - (in+out)/2.0
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	intersection := 0
	union := len(set)
	for _, k := range b {
		if set[k] {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

// merge folds the pairwise alignments into one master column list: one
// column per reference position, plus the maximum number of insertions
// any candidate made at each reference boundary.
func merge(traces []*core.ExecutionTrace, ref []core.TaskExecution, pairs []pairAlignment) *AlignedSet {
	refLen := len(ref)

	// inserts[b] = widest insertion run observed at boundary b (before
	// reference position b; b == refLen is the tail).
	inserts := make([]int, refLen+1)
	for _, pair := range pairs {
		boundary, run := 0, 0
		for _, st := range pair.steps {
			if st.ref == -1 {
				run++
				continue
			}
			if run > inserts[boundary] {
				inserts[boundary] = run
			}
			run = 0
			boundary = st.ref + 1
		}
		if run > inserts[boundary] {
			inserts[boundary] = run
		}
	}

	// columnOf[b] is the master index where boundary b's insertion run
	// starts; the reference position b lands right after its run.
	columns := refLen
	for _, n := range inserts {
		columns += n
	}

	refColumn := make([]int, refLen)
	insColumn := make([]int, refLen+1)
	col := 0
	for b := 0; b <= refLen; b++ {
		insColumn[b] = col
		col += inserts[b]
		if b < refLen {
			refColumn[b] = col
			col++
		}
	}

	rows := make([][]Cell, len(traces))
	for i := range rows {
		row := make([]Cell, columns)
		for c := range row {
			row[c] = Cell{Name: core.Gap}
		}
		rows[i] = row
	}

	// Reference row occupies the reference columns only.
	for p := range ref {
		rows[0][refColumn[p]] = Cell{Name: ref[p].Name, Task: &ref[p]}
	}

	for t, pair := range pairs {
		tasks := traces[t+1].Tasks
		boundary, run := 0, 0
		for _, st := range pair.steps {
			if st.ref == -1 {
				rows[t+1][insColumn[boundary]+run] = Cell{
					Name: tasks[st.cand].Name,
					Task: &tasks[st.cand],
				}
				run++
				continue
			}
			run = 0
			boundary = st.ref + 1
			if st.cand >= 0 {
				rows[t+1][refColumn[st.ref]] = Cell{
					Name: tasks[st.cand].Name,
					Task: &tasks[st.cand],
				}
			}
		}
	}

	return &AlignedSet{
		Columns: columns,
		Rows:    rows,
		Traces:  traces,
	}
}
