// Package exec runs a synthesized workflow deterministically: the
// validation state checks caller input against the compiled JSON
// Schema, task states dispatch through a caller-provided TaskRunner,
// choice states evaluate mined guard expressions against the live
// document, and the end state returns the accumulated document.
package exec

import (
	"context"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/loomkit/loom/pkg/compile"
	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/logging"
)

// TaskRunner executes a single named task. Implementations are opaque
// to the executor; an agent harness, an RPC client and a test stub all
// satisfy it.
type TaskRunner interface {
	RunTask(ctx context.Context, task string, input map[string]interface{}) (map[string]interface{}, error)
}

// RunnerFunc adapts a function to the TaskRunner interface.
type RunnerFunc func(ctx context.Context, task string, input map[string]interface{}) (map[string]interface{}, error)

func (f RunnerFunc) RunTask(ctx context.Context, task string, input map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, task, input)
}

// Result reports a completed run.
type Result struct {
	Output  map[string]interface{}
	Steps   int
	Skipped []string // optional tasks whose failure was tolerated
}

// Executor walks workflow state graphs.
type Executor struct {
	runner TaskRunner
	logger *logging.Logger
}

// New returns an Executor dispatching tasks through runner.
func New(runner TaskRunner) *Executor {
	return &Executor{runner: runner, logger: logging.GetLogger()}
}

// Run executes wf against input. Task outputs merge into a single
// document that later states read from; the end state returns it.
// A verified workflow has no cycles, so the step budget of one past the
// state count only trips on a corrupted graph.
func (e *Executor) Run(ctx context.Context, wf *core.SynthesizedWorkflow, input map[string]interface{}) (*Result, error) {
	doc := make(map[string]interface{}, len(input))
	for k, v := range input {
		doc[k] = v
	}

	result := &Result{}
	budget := len(wf.States) + 1
	current := wf.Start

	for result.Steps < budget {
		if err := errors.CheckContext(ctx, "workflow execution"); err != nil {
			return nil, err
		}

		state, ok := wf.StateAt(current)
		if !ok {
			return nil, errors.WithFields(
				errors.New(errors.ExecutionFailed, "transition to undeclared state"),
				errors.Fields{"state": current})
		}
		result.Steps++

		switch state.Kind {
		case core.StateValidation:
			violations, err := compile.ValidateInput(wf.InputSchema, input)
			if err != nil {
				return nil, errors.Wrap(err, errors.ExecutionFailed, "input validation errored")
			}
			if len(violations) > 0 {
				return nil, errors.WithFields(
					errors.New(errors.InvalidInput, "input violates workflow contract"),
					errors.Fields{"violations": strings.Join(violations, "; ")})
			}
			current = state.Next

		case core.StateTask:
			output, err := e.runner.RunTask(ctx, state.Task, taskInput(state, doc))
			if err != nil {
				if state.OnError == core.OnErrorSkip {
					e.logger.Warn(ctx, "optional task %s failed, skipping: %v", state.Task, err)
					result.Skipped = append(result.Skipped, state.Task)
					current = state.Next
					continue
				}
				return nil, errors.WithFields(
					errors.Wrap(err, errors.ExecutionFailed, "required task failed"),
					errors.Fields{"task": state.Task})
			}
			for k, v := range output {
				doc[k] = v
			}
			current = state.Next

		case core.StateChoice:
			current = e.choose(ctx, state, doc)

		case core.StateEnd:
			result.Output = doc
			return result, nil

		default:
			return nil, errors.WithFields(
				errors.New(errors.ExecutionFailed, "unknown state kind"),
				errors.Fields{"state": current, "kind": string(state.Kind)})
		}
	}

	return nil, errors.WithFields(
		errors.New(errors.ExecutionFailed, "step budget exceeded"),
		errors.Fields{"budget": budget})
}

// taskInput projects the document through the state's input mapping, or
// passes the whole document when no mapping was mined.
func taskInput(state *core.State, doc map[string]interface{}) map[string]interface{} {
	if len(state.InputMapping) == 0 {
		return doc
	}
	input := make(map[string]interface{}, len(state.InputMapping))
	for taskField, docField := range state.InputMapping {
		if v, ok := doc[docField]; ok {
			input[taskField] = v
		}
	}
	return input
}

// choose evaluates guard rules in order; the first rule whose
// expression is true wins, otherwise the default edge. A guard that
// fails to evaluate counts as false, so a malformed or inapplicable
// predicate degrades to the default path instead of aborting.
func (e *Executor) choose(ctx context.Context, state *core.State, doc map[string]interface{}) string {
	for _, rule := range state.Choices {
		match, err := evalGuard(rule.Guard, doc)
		if err != nil {
			e.logger.Warn(ctx, "guard %q failed to evaluate: %v", rule.Guard, err)
			continue
		}
		if match {
			return rule.Target
		}
	}
	return state.Default
}

func evalGuard(guard string, doc map[string]interface{}) (bool, error) {
	program, err := expr.Compile(guard,
		expr.Env(map[string]interface{}{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, doc)
	if err != nil {
		return false, err
	}
	match, ok := out.(bool)
	return ok && match, nil
}
