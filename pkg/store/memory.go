package store

import (
	"context"
	"sort"
	"sync"

	"github.com/loomkit/loom/pkg/core"
)

// Memory is an in-process implementation of every store interface, used
// by tests and the single-binary demo mode.
type Memory struct {
	mu        sync.RWMutex
	traces    map[string][]*core.ExecutionTrace
	patterns  map[string][]*core.ConsensusPattern
	workflows map[string][]*core.SynthesizedWorkflow
	stats     map[string]*core.ArmStats
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		traces:    make(map[string][]*core.ExecutionTrace),
		patterns:  make(map[string][]*core.ConsensusPattern),
		workflows: make(map[string][]*core.SynthesizedWorkflow),
		stats:     make(map[string]*core.ArmStats),
	}
}

func (m *Memory) ListSuccessful(ctx context.Context, fingerprint string, limit int) ([]*core.ExecutionTrace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.ExecutionTrace
	for _, trace := range m.traces[fingerprint] {
		if trace.Success {
			out = append(out, trace)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) PutTrace(ctx context.Context, trace *core.ExecutionTrace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces[trace.Fingerprint] = append(m.traces[trace.Fingerprint], trace)
	return nil
}

func (m *Memory) CountForFingerprint(ctx context.Context, fingerprint string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, trace := range m.traces[fingerprint] {
		if trace.Success {
			count++
		}
	}
	return count, nil
}

func (m *Memory) ListFingerprints(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fps := make([]string, 0, len(m.traces))
	for fp, traces := range m.traces {
		for _, trace := range traces {
			if trace.Success {
				fps = append(fps, fp)
				break
			}
		}
	}
	sort.Strings(fps)
	return fps, nil
}

func (m *Memory) PutPattern(ctx context.Context, pattern *core.ConsensusPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[pattern.Fingerprint] = append(m.patterns[pattern.Fingerprint], pattern)
	return nil
}

func (m *Memory) LatestPattern(ctx context.Context, fingerprint string) (*core.ConsensusPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	patterns := m.patterns[fingerprint]
	if len(patterns) == 0 {
		return nil, nil
	}
	return patterns[len(patterns)-1], nil
}

func (m *Memory) PutWorkflow(ctx context.Context, workflow *core.SynthesizedWorkflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[workflow.Fingerprint] = append(m.workflows[workflow.Fingerprint], workflow)
	return nil
}

func (m *Memory) LatestWorkflow(ctx context.Context, fingerprint string) (*core.SynthesizedWorkflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workflows := m.workflows[fingerprint]
	if len(workflows) == 0 {
		return nil, nil
	}
	return workflows[len(workflows)-1], nil
}

func (m *Memory) GetStats(ctx context.Context, pattern string) (*core.ArmStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stats, ok := m.stats[pattern]; ok {
		return stats.Clone(), nil
	}
	return &core.ArmStats{Pattern: pattern}, nil
}

func (m *Memory) PutStats(ctx context.Context, stats *core.ArmStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(0)
	if existing, ok := m.stats[stats.Pattern]; ok {
		current = existing.Version
	}
	if stats.Version != current {
		return ErrVersionConflict
	}

	next := stats.Clone()
	next.Version++
	m.stats[stats.Pattern] = next
	return nil
}
