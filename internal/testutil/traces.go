// Package testutil builds the execution-trace fixtures shared by the
// alignment, consensus, compiler and miner tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/loomkit/loom/pkg/core"
)

var traceSeq atomic.Int64

// Task builds one task execution.
func Task(name string, input, output map[string]interface{}) core.TaskExecution {
	return core.TaskExecution{
		Name:     name,
		Input:    input,
		Output:   output,
		Duration: 120 * time.Millisecond,
	}
}

// Trace builds a successful trace from explicit task executions.
func Trace(fingerprint string, tasks ...core.TaskExecution) *core.ExecutionTrace {
	return &core.ExecutionTrace{
		ID:          fmt.Sprintf("trace-%s-%d", fingerprint, traceSeq.Add(1)),
		Fingerprint: fingerprint,
		Tasks:       tasks,
		Success:     true,
		Cost:        0.02,
		Timestamp:   time.Now().UTC(),
	}
}

// SimpleTrace builds a trace whose tasks share one input/output shape,
// which keeps alignment scores at 1.0 for identical name sequences.
func SimpleTrace(fingerprint string, names ...string) *core.ExecutionTrace {
	tasks := make([]core.TaskExecution, len(names))
	for i, name := range names {
		tasks[i] = Task(name,
			map[string]interface{}{"query": "q"},
			map[string]interface{}{"result": "ok"},
		)
	}
	return Trace(fingerprint, tasks...)
}

// SimpleTraces builds n identical traces of the given name sequence.
func SimpleTraces(fingerprint string, n int, names ...string) []*core.ExecutionTrace {
	traces := make([]*core.ExecutionTrace, n)
	for i := range traces {
		traces[i] = SimpleTrace(fingerprint, names...)
	}
	return traces
}
