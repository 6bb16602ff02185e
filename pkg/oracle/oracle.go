// Package oracle defines the fallback surface: the slow, expensive
// system (typically an LLM agent loop) that handles queries no mined
// workflow can serve yet. The mining pipeline treats it as opaque; only
// the resolver calls it.
package oracle

import (
	"context"
)

// Answer is the oracle's response to one query.
type Answer struct {
	Output map[string]interface{}
	Cost   float64
}

// Oracle resolves a query the hard way.
type Oracle interface {
	Resolve(ctx context.Context, query string, input map[string]interface{}) (*Answer, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, query string, input map[string]interface{}) (*Answer, error)

func (f Func) Resolve(ctx context.Context, query string, input map[string]interface{}) (*Answer, error) {
	return f(ctx, query, input)
}
