package oracle

import (
	"context"
	"sync"

	"github.com/loomkit/loom/pkg/errors"
)

// Scripted is a deterministic Oracle for tests: responses are looked up
// by raw query, and every call is recorded.
type Scripted struct {
	mu        sync.Mutex
	responses map[string]*Answer
	err       error
	calls     []string
}

// NewScripted builds a Scripted oracle from a query -> output table.
func NewScripted(responses map[string]map[string]interface{}) *Scripted {
	s := &Scripted{responses: make(map[string]*Answer, len(responses))}
	for query, output := range responses {
		s.responses[query] = &Answer{Output: output, Cost: 1.0}
	}
	return s
}

// Fail makes every subsequent call return err.
func (s *Scripted) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Calls returns the queries resolved so far, in order.
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Scripted) Resolve(ctx context.Context, query string, input map[string]interface{}) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, query)
	if s.err != nil {
		return nil, errors.Wrap(s.err, errors.OracleFailure, "scripted oracle failure")
	}
	if answer, ok := s.responses[query]; ok {
		return answer, nil
	}
	return nil, errors.WithFields(
		errors.New(errors.OracleFailure, "no scripted response"),
		errors.Fields{"query": query})
}
