package core

import (
	"time"
)

// NodeKind distinguishes consensus node flavors.
type NodeKind string

const (
	NodeTask   NodeKind = "task"
	NodeBranch NodeKind = "branch"
)

// BranchOption is one observed alternative at a branch position.
type BranchOption struct {
	Name      string  `json:"name"`
	Frequency float64 `json:"frequency"`
}

// PatternNode is one aligned position of a consensus pattern: either a
// task the majority of traces execute, or a branch point listing the
// observed alternatives.
type PatternNode struct {
	Kind      NodeKind `json:"kind"`
	Position  int      `json:"position"`
	Name      string   `json:"name,omitempty"`
	Required  bool     `json:"required,omitempty"`
	Frequency float64  `json:"frequency,omitempty"`

	// Representative schemas, taken from the majority option's
	// contributing executions.
	InputSchema  map[string]string `json:"input_schema,omitempty"`
	OutputSchema map[string]string `json:"output_schema,omitempty"`

	Options []BranchOption `json:"options,omitempty"`
}

// VariableRegion flags a task input field whose value differs across
// contributing traces and must be supplied by the caller at execution
// time.
type VariableRegion struct {
	Position int           `json:"position"`
	Field    string        `json:"field"`
	Values   []interface{} `json:"values"`
}

// GuardCondition is the mined predicate for taking one branch option.
// Expr is expr-lang source evaluated against the request input.
type GuardCondition struct {
	Position int         `json:"position"`
	Option   string      `json:"option"`
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
	Expr     string      `json:"expr"`
}

// ConsensusPattern is the majority-vote task sequence mined from the
// aligned traces of one fingerprint. Immutable once produced; later
// mining cycles supersede it with a new pattern rather than mutating.
type ConsensusPattern struct {
	ID             string           `json:"id"`
	Fingerprint    string           `json:"fingerprint"`
	Nodes          []PatternNode    `json:"nodes"`
	Variables      []VariableRegion `json:"variables,omitempty"`
	Guards         []GuardCondition `json:"guards,omitempty"`
	Confidence     float64          `json:"confidence"`
	TraceCount     int              `json:"trace_count"`
	AlignmentScore float64          `json:"alignment_score"`
	CreatedAt      time.Time        `json:"created_at"`
}
