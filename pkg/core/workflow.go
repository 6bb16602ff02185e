package core

import (
	"time"
)

// StateKind identifies what a workflow state does.
type StateKind string

const (
	StateValidation StateKind = "validation"
	StateTask       StateKind = "task"
	StateChoice     StateKind = "choice"
	StateEnd        StateKind = "end"
)

// Well-known state IDs emitted by the compiler.
const (
	StateIDValidate = "validate_input"
	StateIDEnd      = "end"
)

// ErrorPolicy controls what happens when a task state fails.
type ErrorPolicy string

const (
	OnErrorFail ErrorPolicy = "fail" // abort the workflow
	OnErrorSkip ErrorPolicy = "skip" // continue to the next state
)

// ChoiceRule pairs a guard expression with the state taken when it
// evaluates true against the request input.
type ChoiceRule struct {
	Guard  string `json:"guard"`
	Target string `json:"target"`
}

// State is one node of a synthesized workflow's state graph.
type State struct {
	ID       string      `json:"id"`
	Kind     StateKind   `json:"kind"`
	Task     string      `json:"task,omitempty"`
	Required bool        `json:"required,omitempty"`
	OnError  ErrorPolicy `json:"on_error,omitempty"`

	// Next is the goto transition for validation/task states.
	Next string `json:"next,omitempty"`

	// Choices and Default drive choice states.
	Choices []ChoiceRule `json:"choices,omitempty"`
	Default string       `json:"default,omitempty"`

	// InputMapping names the caller fields a task state consumes;
	// fields absent from the mapping are served from mined constants.
	InputMapping map[string]string `json:"input_mapping,omitempty"`
}

// FieldSchema is the inferred shape of one contract field.
type FieldSchema struct {
	Type     string        `json:"type"`
	Examples []interface{} `json:"examples,omitempty"`
	Enum     []interface{} `json:"enum,omitempty"`
}

// InputContract describes what a workflow demands from its caller.
type InputContract struct {
	Required []string               `json:"required"`
	Optional []string               `json:"optional"`
	Fields   map[string]FieldSchema `json:"fields"`
}

// OutputContract describes what a workflow promises to produce.
// Guarantees lists fields present in every observed final output.
type OutputContract struct {
	Fields     map[string]FieldSchema `json:"fields"`
	Guarantees []string               `json:"guarantees"`
}

// VerifyReason classifies structural verification failures.
type VerifyReason string

const (
	VerifyOK      VerifyReason = ""
	NoStart       VerifyReason = "no_start"
	NoTerminal    VerifyReason = "no_terminal"
	Unreachable   VerifyReason = "unreachable"
	CycleDetected VerifyReason = "cycle_detected"
	LowConfidence VerifyReason = "low_confidence"
)

// VerificationResult records the outcome of structural verification.
type VerificationResult struct {
	Verified   bool         `json:"verified"`
	Reason     VerifyReason `json:"reason,omitempty"`
	Detail     string       `json:"detail,omitempty"`
	VerifiedAt time.Time    `json:"verified_at"`
}

// PerformanceProfile is the expected cost/latency of serving a request
// through the workflow, estimated from the source traces.
type PerformanceProfile struct {
	ExpectedCost    float64       `json:"expected_cost"`
	ExpectedLatency time.Duration `json:"expected_latency"`
}

// SynthesizedWorkflow is a verified deterministic state graph compiled
// from one consensus pattern. Superseded, never mutated in place.
type SynthesizedWorkflow struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	PatternID   string `json:"pattern_id"`

	Start  string            `json:"start"`
	States map[string]*State `json:"states"`

	// StateOrder preserves declaration order: the compiler emits states
	// mirroring consensus positions, and the verifier and DOT export
	// rely on a stable iteration order.
	StateOrder []string `json:"state_order"`

	Input  InputContract  `json:"input_contract"`
	Output OutputContract `json:"output_contract"`

	// InputSchema is the draft-07 JSON Schema document equivalent to
	// Input, consumed by the executor's validation state.
	InputSchema map[string]interface{} `json:"input_schema"`

	Verification *VerificationResult `json:"verification,omitempty"`
	Confidence   float64             `json:"confidence"`
	Profile      PerformanceProfile  `json:"profile"`
	CreatedAt    time.Time           `json:"created_at"`
}

// StateAt returns the declared state for id.
func (w *SynthesizedWorkflow) StateAt(id string) (*State, bool) {
	s, ok := w.States[id]
	return s, ok
}

// Transitions returns every outgoing transition of a state, End
// included; choice states contribute each rule target plus the default.
func (s *State) Transitions() []string {
	var out []string
	if s.Next != "" {
		out = append(out, s.Next)
	}
	for _, c := range s.Choices {
		out = append(out, c.Target)
	}
	if s.Default != "" {
		out = append(out, s.Default)
	}
	return out
}
