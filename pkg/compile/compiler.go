// Package compile turns a consensus pattern into a synthesized workflow:
// a validation state checking the mined input contract, task and choice
// states mirroring the consensus positions in order, and a terminal end
// state. Compilation never deploys anything; the verifier has the final
// word.
package compile

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
)

// Compiler builds workflows from patterns plus their source traces.
type Compiler struct{}

// New returns a Compiler.
func New() *Compiler {
	return &Compiler{}
}

// Compile builds the state graph, contracts and performance profile.
// The traces are the same set the pattern was mined from; contracts are
// inferred from them.
func (c *Compiler) Compile(pattern *core.ConsensusPattern, traces []*core.ExecutionTrace) (*core.SynthesizedWorkflow, error) {
	if len(pattern.Nodes) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.CompilationFailed, "pattern has no consensus nodes"),
			errors.Fields{"pattern_id": pattern.ID})
	}

	wf := &core.SynthesizedWorkflow{
		ID:          uuid.New().String(),
		Fingerprint: pattern.Fingerprint,
		PatternID:   pattern.ID,
		Start:       core.StateIDValidate,
		States:      make(map[string]*core.State),
		Confidence:  pattern.Confidence,
		CreatedAt:   time.Now().UTC(),
	}

	ids := newIDAllocator()

	// Entry state per consensus position, so transitions can chain
	// forward before the states themselves are built.
	entries := make([]string, len(pattern.Nodes))
	for i, node := range pattern.Nodes {
		if node.Kind == core.NodeBranch {
			entries[i] = ids.claim(fmt.Sprintf("choose_%d", node.Position))
		} else {
			entries[i] = ids.claim(node.Name)
		}
	}

	nextOf := func(i int) string {
		if i+1 < len(entries) {
			return entries[i+1]
		}
		return core.StateIDEnd
	}

	add := func(s *core.State) {
		wf.States[s.ID] = s
		wf.StateOrder = append(wf.StateOrder, s.ID)
	}

	add(&core.State{
		ID:   core.StateIDValidate,
		Kind: core.StateValidation,
		Next: entries[0],
	})

	for i, node := range pattern.Nodes {
		switch node.Kind {
		case core.NodeTask:
			add(c.taskState(entries[i], node, pattern, nextOf(i)))

		case core.NodeBranch:
			choice := &core.State{
				ID:   entries[i],
				Kind: core.StateChoice,
			}
			var optionStates []*core.State
			for _, option := range node.Options {
				target := ids.claim(option.Name)
				if guard := guardAt(pattern, node.Position, option.Name); guard != "" {
					choice.Choices = append(choice.Choices, core.ChoiceRule{
						Guard:  guard,
						Target: target,
					})
				}
				if choice.Default == "" {
					// Options arrive ordered by frequency; the leader
					// is the default route.
					choice.Default = target
				}
				optionStates = append(optionStates, &core.State{
					ID:      target,
					Kind:    core.StateTask,
					Task:    option.Name,
					OnError: core.OnErrorSkip,
					Next:    nextOf(i),
				})
			}
			add(choice)
			for _, state := range optionStates {
				add(state)
			}

		default:
			return nil, errors.WithFields(
				errors.New(errors.CompilationFailed, "unknown consensus node kind"),
				errors.Fields{"kind": string(node.Kind), "position": node.Position})
		}
	}

	add(&core.State{ID: core.StateIDEnd, Kind: core.StateEnd})

	wf.Input = buildInputContract(traces)
	wf.Output = buildOutputContract(traces)

	schema, err := BuildJSONSchema(wf.Input)
	if err != nil {
		return nil, errors.Wrap(err, errors.CompilationFailed, "input contract schema rejected")
	}
	wf.InputSchema = schema

	wf.Profile = profileOf(traces)
	return wf, nil
}

func (c *Compiler) taskState(id string, node core.PatternNode, pattern *core.ConsensusPattern, next string) *core.State {
	state := &core.State{
		ID:       id,
		Kind:     core.StateTask,
		Task:     node.Name,
		Required: node.Required,
		OnError:  core.OnErrorSkip,
		Next:     next,
	}
	if node.Required {
		state.OnError = core.OnErrorFail
	}

	for _, region := range pattern.Variables {
		if region.Position == node.Position {
			if state.InputMapping == nil {
				state.InputMapping = make(map[string]string)
			}
			state.InputMapping[region.Field] = region.Field
		}
	}
	return state
}

func guardAt(pattern *core.ConsensusPattern, position int, option string) string {
	for _, guard := range pattern.Guards {
		if guard.Position == position && guard.Option == option {
			return guard.Expr
		}
	}
	return ""
}

func profileOf(traces []*core.ExecutionTrace) core.PerformanceProfile {
	if len(traces) == 0 {
		return core.PerformanceProfile{}
	}
	var cost float64
	var latency time.Duration
	for _, trace := range traces {
		cost += trace.Cost
		for _, task := range trace.Tasks {
			latency += task.Duration
		}
	}
	return core.PerformanceProfile{
		ExpectedCost:    cost / float64(len(traces)),
		ExpectedLatency: latency / time.Duration(len(traces)),
	}
}

// idAllocator keeps state IDs unique when task names repeat across
// positions.
type idAllocator struct {
	used map[string]int
}

func newIDAllocator() *idAllocator {
	return &idAllocator{used: map[string]int{
		core.StateIDValidate: 1,
		core.StateIDEnd:      1,
	}}
}

func (a *idAllocator) claim(name string) string {
	count := a.used[name]
	a.used[name] = count + 1
	if count == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, count+1)
}
