// Package miner runs the learn-and-compile side of the system: for one
// fingerprint it fetches successful traces, aligns them, extracts the
// consensus pattern, compiles and verifies a workflow, and deploys the
// result — pattern, workflow and a fresh router arm — atomically at the
// end. Nothing is persisted for a cycle that fails any earlier stage.
package miner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/loomkit/loom/pkg/align"
	"github.com/loomkit/loom/pkg/compile"
	"github.com/loomkit/loom/pkg/consensus"
	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/logging"
	"github.com/loomkit/loom/pkg/router"
	"github.com/loomkit/loom/pkg/store"
	"github.com/loomkit/loom/pkg/verify"
)

// Config holds the mining thresholds.
type Config struct {
	MinTraces           int
	MaxTraces           int
	AlignmentThreshold  float64
	ConsensusThreshold  float64
	RequiredThreshold   float64
	ConfidenceThreshold float64
	FetchRetries        int
	RetryBackoff        time.Duration
	MaxConcurrent       int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinTraces:           3,
		MaxTraces:           50,
		AlignmentThreshold:  0.7,
		ConsensusThreshold:  0.8,
		RequiredThreshold:   0.9,
		ConfidenceThreshold: 0.75,
		FetchRetries:        3,
		RetryBackoff:        100 * time.Millisecond,
		MaxConcurrent:       4,
	}
}

// Status classifies the outcome of one mining cycle.
type Status string

const (
	StatusMined   Status = "mined"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// CycleResult reports one fingerprint's mining cycle. Skips are normal
// outcomes, not errors: the fingerprint simply is not ready yet.
type CycleResult struct {
	Fingerprint string
	Status      Status
	Reason      string
	TraceCount  int
	Confidence  float64
	PatternID   string
	WorkflowID  string
	Err         error
}

// Miner drives mining cycles.
type Miner struct {
	cfg       Config
	traces    store.TraceStore
	patterns  store.PatternStore
	workflows store.WorkflowStore
	router    *router.Router
	aligner   *align.Aligner
	extractor *consensus.Extractor
	compiler  *compile.Compiler
	verifier  *verify.Verifier
	logger    *logging.Logger
}

// New wires a Miner from its stores and router.
func New(cfg Config, traces store.TraceStore, patterns store.PatternStore, workflows store.WorkflowStore, r *router.Router) *Miner {
	return &Miner{
		cfg:       cfg,
		traces:    traces,
		patterns:  patterns,
		workflows: workflows,
		router:    r,
		aligner:   align.New(cfg.MinTraces, cfg.AlignmentThreshold),
		extractor: consensus.New(cfg.ConsensusThreshold, cfg.RequiredThreshold, cfg.MinTraces),
		compiler:  compile.New(),
		verifier:  verify.New(cfg.ConfidenceThreshold),
		logger:    logging.GetLogger(),
	}
}

// MineFingerprint runs one full cycle for a fingerprint.
func (m *Miner) MineFingerprint(ctx context.Context, fingerprint string) *CycleResult {
	ctx = logging.WithFingerprint(ctx, fingerprint)
	ctx = logging.WithCycleID(ctx, uuid.New().String())

	result := &CycleResult{Fingerprint: fingerprint}

	traces, err := m.fetchTraces(ctx, fingerprint)
	if err != nil {
		return m.failed(ctx, result, "trace fetch failed", err)
	}
	result.TraceCount = len(traces)
	if len(traces) < m.cfg.MinTraces {
		return m.skipped(ctx, result, "insufficient traces")
	}

	set, err := m.aligner.Align(traces)
	if err != nil {
		switch errors.CodeOf(err) {
		case errors.InsufficientData, errors.AlignmentBelowThreshold:
			return m.skipped(ctx, result, err.Error())
		}
		return m.failed(ctx, result, "alignment failed", err)
	}

	pattern := m.extractor.Extract(set)
	result.Confidence = pattern.Confidence
	if pattern.Confidence < m.cfg.ConfidenceThreshold {
		return m.skipped(ctx, result, "confidence below threshold")
	}

	workflow, err := m.compiler.Compile(pattern, traces)
	if err != nil {
		return m.failed(ctx, result, "compilation failed", err)
	}

	if verification := m.verifier.Verify(workflow); !verification.Verified {
		return m.skipped(ctx, result, string(verification.Reason)+": "+verification.Detail)
	}

	// Deploy: everything or nothing, only after verification.
	if err := m.patterns.PutPattern(ctx, pattern); err != nil {
		return m.failed(ctx, result, "pattern persist failed", err)
	}
	if err := m.workflows.PutWorkflow(ctx, workflow); err != nil {
		return m.failed(ctx, result, "workflow persist failed", err)
	}
	if err := m.router.RegisterArm(ctx, fingerprint, core.SynthesizedArm(fingerprint)); err != nil {
		return m.failed(ctx, result, "arm registration failed", err)
	}

	result.Status = StatusMined
	result.PatternID = pattern.ID
	result.WorkflowID = workflow.ID
	m.logger.Info(ctx, "mined workflow %s from %d traces (confidence %.3f)",
		workflow.ID, result.TraceCount, result.Confidence)
	return result
}

// MineAll mines every fingerprint concurrently. One cycle's failure
// never aborts the others.
func (m *Miner) MineAll(ctx context.Context, fingerprints []string) []*CycleResult {
	p := pool.NewWithResults[*CycleResult]().WithMaxGoroutines(m.cfg.MaxConcurrent)
	for _, fingerprint := range fingerprints {
		fingerprint := fingerprint
		p.Go(func() *CycleResult {
			return m.MineFingerprint(ctx, fingerprint)
		})
	}
	return p.Wait()
}

// fetchTraces reads with a bounded exponential backoff, for stores that
// can be transiently unavailable.
func (m *Miner) fetchTraces(ctx context.Context, fingerprint string) ([]*core.ExecutionTrace, error) {
	var lastErr error
	backoff := m.cfg.RetryBackoff

	for attempt := 0; attempt <= m.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), errors.Canceled, "trace fetch canceled")
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		traces, err := m.traces.ListSuccessful(ctx, fingerprint, m.cfg.MaxTraces)
		if err == nil {
			return traces, nil
		}
		lastErr = err
		m.logger.Warn(ctx, "trace fetch attempt %d failed: %v", attempt+1, err)
	}
	return nil, errors.Wrap(lastErr, errors.StorageFailure, "trace fetch exhausted retries")
}

func (m *Miner) skipped(ctx context.Context, result *CycleResult, reason string) *CycleResult {
	result.Status = StatusSkipped
	result.Reason = reason
	m.logger.Debug(ctx, "mining skipped: %s", reason)
	return result
}

func (m *Miner) failed(ctx context.Context, result *CycleResult, reason string, err error) *CycleResult {
	result.Status = StatusFailed
	result.Reason = reason
	result.Err = err
	m.logger.Error(ctx, "mining failed: %s: %v", reason, err)
	return result
}
