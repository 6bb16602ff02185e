package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreBounds(t *testing.T) {
	assert.LessOrEqual(t, Score(1.0, 1.0, 1000, 3), 1.0)
	assert.GreaterOrEqual(t, Score(0.0, 0.0, 0, 3), 0.0)
}

func TestScoreMonotoneInTraceCount(t *testing.T) {
	// Holding alignment and consensus frequency fixed, confidence never
	// decreases as trace count grows from the minimum to 10x minimum.
	const minTraces = 3

	prev := -1.0
	for count := minTraces; count <= 10*minTraces; count++ {
		score := Score(0.9, 0.85, count, minTraces)
		assert.GreaterOrEqual(t, score, prev, "count=%d", count)
		prev = score
	}
}

func TestScoreMonotoneInAlignment(t *testing.T) {
	low := Score(0.5, 0.8, 5, 3)
	high := Score(0.9, 0.8, 5, 3)
	assert.Greater(t, high, low)
}

func TestScoreDiminishingReturns(t *testing.T) {
	// The sample-size term saturates: the gain from 3→6 traces exceeds
	// the gain from 27→30.
	early := Score(0.9, 0.9, 6, 3) - Score(0.9, 0.9, 3, 3)
	late := Score(0.9, 0.9, 30, 3) - Score(0.9, 0.9, 27, 3)
	assert.Greater(t, early, late)
}

func TestScorePassesGateForCleanPatterns(t *testing.T) {
	// 5 identical traces with min_traces=3 must clear the 0.75 gate.
	assert.GreaterOrEqual(t, Score(1.0, 1.0, 5, 3), 0.75)
}
