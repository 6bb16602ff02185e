// Package store defines the persistence boundary of the system — traces
// in, patterns/workflows/arm-stats out — together with SQLite, Redis and
// in-memory implementations. Keys are disjoint per fingerprint, which is
// what makes cross-fingerprint mining cycles safe to run concurrently.
package store

import (
	"context"
	"errors"

	"github.com/loomkit/loom/pkg/core"
)

// ErrVersionConflict is returned by StatsStore.PutStats when another
// writer committed first; callers re-read and retry.
var ErrVersionConflict = errors.New("stats version conflict")

// TraceStore reads the traces the ingestion path captured. Writes
// belong to ingestion; mining only reads.
type TraceStore interface {
	// ListSuccessful returns up to limit successful traces for the
	// fingerprint, newest first.
	ListSuccessful(ctx context.Context, fingerprint string, limit int) ([]*core.ExecutionTrace, error)

	// PutTrace records a trace (used by ingestion and fixtures).
	PutTrace(ctx context.Context, trace *core.ExecutionTrace) error

	// CountForFingerprint counts successful traces for a fingerprint.
	CountForFingerprint(ctx context.Context, fingerprint string) (int, error)

	// ListFingerprints returns every fingerprint with at least one
	// successful trace, for interval-triggered mining sweeps.
	ListFingerprints(ctx context.Context) ([]string, error)
}

// PatternStore persists consensus patterns. Patterns supersede each
// other: Latest returns the newest for a fingerprint, older rows stay.
type PatternStore interface {
	PutPattern(ctx context.Context, pattern *core.ConsensusPattern) error
	LatestPattern(ctx context.Context, fingerprint string) (*core.ConsensusPattern, error)
}

// WorkflowStore persists synthesized workflows, same superseding
// discipline as patterns. Latest returns nil when none is deployed —
// never an error, callers fall through to other arms.
type WorkflowStore interface {
	PutWorkflow(ctx context.Context, workflow *core.SynthesizedWorkflow) error
	LatestWorkflow(ctx context.Context, fingerprint string) (*core.SynthesizedWorkflow, error)
}

// StatsStore holds router arm statistics per normalized query pattern.
// PutStats is compare-and-swap on ArmStats.Version: a stale write fails
// with ErrVersionConflict so no increment is ever lost.
type StatsStore interface {
	GetStats(ctx context.Context, pattern string) (*core.ArmStats, error)
	PutStats(ctx context.Context, stats *core.ArmStats) error
}
