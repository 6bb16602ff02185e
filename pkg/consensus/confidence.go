package consensus

import (
	"math"
)

// Confidence weights. Alignment quality and consensus strength dominate;
// sample size contributes with diminishing returns past the minimum.
const (
	alignWeight  = 0.4
	freqWeight   = 0.4
	sampleWeight = 0.2
)

// Score reduces alignment quality, mean consensus-node frequency and
// sample size to a single [0,1] gating value. Monotonically
// non-decreasing in every input.
func Score(alignScore, meanFreq float64, traceCount, minTraces int) float64 {
	if minTraces < 1 {
		minTraces = 1
	}

	sample := math.Log1p(float64(traceCount)/float64(minTraces)) / math.Log1p(10)
	if sample > 1 {
		sample = 1
	}

	score := alignWeight*alignScore + freqWeight*meanFreq + sampleWeight*sample
	return math.Min(1, math.Max(0, score))
}
