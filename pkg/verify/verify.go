// Package verify performs structural verification of synthesized
// workflows before deployment: the start state must resolve, exactly one
// reachable End state must exist, every declared state must be reachable
// from start, no back-edge may exist among transitions, and the
// workflow's confidence must clear the configured gate. Nothing
// partially verified is ever deployed.
package verify

import (
	"fmt"
	"time"

	"github.com/loomkit/loom/pkg/core"
)

// Verifier runs the ordered structural checks.
type Verifier struct {
	confidenceThreshold float64
}

// New returns a Verifier gating at confidenceThreshold.
func New(confidenceThreshold float64) *Verifier {
	return &Verifier{confidenceThreshold: confidenceThreshold}
}

// Verify checks wf and records the result on it. The first failing
// check wins; the returned result mirrors wf.Verification.
func (v *Verifier) Verify(wf *core.SynthesizedWorkflow) *core.VerificationResult {
	result := v.run(wf)
	result.VerifiedAt = time.Now().UTC()
	wf.Verification = result
	return result
}

func (v *Verifier) run(wf *core.SynthesizedWorkflow) *core.VerificationResult {
	// (a) start resolves to a declared state.
	if _, ok := wf.StateAt(wf.Start); !ok {
		return failure(core.NoStart, fmt.Sprintf("start state %q is not declared", wf.Start))
	}

	// (b) exactly one End state, and it is reachable.
	var end string
	endCount := 0
	for id, state := range wf.States {
		if state.Kind == core.StateEnd {
			end = id
			endCount++
		}
	}
	if endCount != 1 {
		return failure(core.NoTerminal, fmt.Sprintf("expected exactly one end state, found %d", endCount))
	}

	reached := reachable(wf)
	if !reached[end] {
		return failure(core.NoTerminal, fmt.Sprintf("end state %q is unreachable from start", end))
	}

	// (c) full coverage: every declared state reachable from start.
	for id := range wf.States {
		if !reached[id] {
			return failure(core.Unreachable, fmt.Sprintf("state %q is unreachable from start", id))
		}
	}

	// (d) no back-edge among goto/choice transitions, End excluded.
	if from, to, found := backEdge(wf, end); found {
		return failure(core.CycleDetected, fmt.Sprintf("back-edge %s -> %s", from, to))
	}

	// (e) confidence gate.
	if wf.Confidence < v.confidenceThreshold {
		return failure(core.LowConfidence,
			fmt.Sprintf("confidence %.3f below threshold %.3f", wf.Confidence, v.confidenceThreshold))
	}

	return &core.VerificationResult{Verified: true}
}

func failure(reason core.VerifyReason, detail string) *core.VerificationResult {
	return &core.VerificationResult{Verified: false, Reason: reason, Detail: detail}
}

// reachable runs a breadth-first traversal from start. Transitions to
// undeclared states are ignored here; they surface as unreachable
// declared states or a missing terminal instead.
func reachable(wf *core.SynthesizedWorkflow) map[string]bool {
	reached := map[string]bool{wf.Start: true}
	queue := []string{wf.Start}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		state, ok := wf.StateAt(id)
		if !ok {
			continue
		}
		for _, next := range state.Transitions() {
			if !reached[next] {
				if _, declared := wf.StateAt(next); declared {
					reached[next] = true
					queue = append(queue, next)
				}
			}
		}
	}
	return reached
}

// backEdge looks for a cycle with an iterative depth-first search over
// all transitions except those entering the End sentinel, and returns
// the offending edge.
func backEdge(wf *core.SynthesizedWorkflow, end string) (string, string, bool) {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	color := make(map[string]int, len(wf.States))

	type frame struct {
		id   string
		next int
	}

	for _, root := range wf.StateOrder {
		if color[root] != unvisited {
			continue
		}

		stack := []frame{{id: root}}
		color[root] = inStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			state := wf.States[top.id]
			transitions := outgoing(state, end)

			if top.next < len(transitions) {
				next := transitions[top.next]
				top.next++

				if _, declared := wf.StateAt(next); !declared {
					continue
				}
				switch color[next] {
				case inStack:
					return top.id, next, true
				case unvisited:
					color[next] = inStack
					stack = append(stack, frame{id: next})
				}
				continue
			}

			color[top.id] = done
			stack = stack[:len(stack)-1]
		}
	}

	return "", "", false
}

func outgoing(state *core.State, end string) []string {
	var out []string
	for _, next := range state.Transitions() {
		if next != end {
			out = append(out, next)
		}
	}
	return out
}
