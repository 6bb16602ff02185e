// Package core defines the domain model shared by the mining pipeline,
// the workflow compiler and the bandit router: execution traces captured
// from the expensive agent, consensus patterns mined from them, the
// synthesized workflows compiled from patterns, and per-arm routing
// statistics.
package core

import (
	"time"
)

// Gap marks an inserted/deleted position when sequences of different
// length are reconciled during alignment.
const Gap = "__gap__"

// TaskExecution is one task invocation inside a trace. Input holds the
// concrete values the task was called with; Output holds a summary of
// what it produced. Schema keys are derived from the maps.
type TaskExecution struct {
	Name     string                 `json:"name"`
	Input    map[string]interface{} `json:"input,omitempty"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Duration time.Duration          `json:"duration"`
	Retries  int                    `json:"retries"`
}

// InputKeys returns the task's input schema keys.
func (t TaskExecution) InputKeys() []string {
	return mapKeys(t.Input)
}

// OutputKeys returns the task's output schema keys.
func (t TaskExecution) OutputKeys() []string {
	return mapKeys(t.Output)
}

// ExecutionTrace is one observed run of the expensive agent. Traces are
// written once by the ingestion path and are read-only inputs to mining.
type ExecutionTrace struct {
	ID          string          `json:"id"`
	Fingerprint string          `json:"fingerprint"`
	Tasks       []TaskExecution `json:"tasks"`
	Success     bool            `json:"success"`
	Cost        float64         `json:"cost"`
	Timestamp   time.Time       `json:"timestamp"`
}

// TaskNames returns the ordered task-name sequence of the trace.
func (e *ExecutionTrace) TaskNames() []string {
	names := make([]string, len(e.Tasks))
	for i, task := range e.Tasks {
		names[i] = task.Name
	}
	return names
}

func mapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
