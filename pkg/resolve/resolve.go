// Package resolve is the serving path: normalize the query, let the
// router pick an arm, dispatch it, and report the outcome back so the
// posteriors learn. The three arms are an exact-response cache, the
// synthesized workflow (when one is deployed) and the fallback oracle.
package resolve

import (
	"context"
	"time"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/exec"
	"github.com/loomkit/loom/pkg/logging"
	"github.com/loomkit/loom/pkg/oracle"
	"github.com/loomkit/loom/pkg/router"
	"github.com/loomkit/loom/pkg/store"
)

// Resolution reports how one query was served.
type Resolution struct {
	Fingerprint string
	Arm         string
	Output      map[string]interface{}
	Cost        float64
	Latency     time.Duration
}

// Resolver routes queries across the three arms.
type Resolver struct {
	router    *router.Router
	workflows store.WorkflowStore
	executor  *exec.Executor
	oracle    oracle.Oracle
	cache     *responseCache
	logger    *logging.Logger
}

// New wires a Resolver.
func New(r *router.Router, workflows store.WorkflowStore, executor *exec.Executor, o oracle.Oracle) *Resolver {
	return &Resolver{
		router:    r,
		workflows: workflows,
		executor:  executor,
		oracle:    o,
		cache:     newResponseCache(),
		logger:    logging.GetLogger(),
	}
}

// Resolve serves one query. The posterior update happens on every
// dispatch, success or failure, so a returned error still taught the
// router something.
func (r *Resolver) Resolve(ctx context.Context, query string, input map[string]interface{}) (*Resolution, error) {
	start := time.Now()
	fingerprint := core.Fingerprint(query)
	ctx = logging.WithFingerprint(ctx, fingerprint)

	cacheKey := r.cache.key(fingerprint, input)
	if err := r.offerArms(ctx, fingerprint, cacheKey); err != nil {
		return nil, err
	}

	arm, err := r.router.Select(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	resolution := &Resolution{Fingerprint: fingerprint, Arm: arm}
	output, cost, dispatchErr := r.dispatch(ctx, arm, fingerprint, cacheKey, query, input)

	if updateErr := r.router.Update(ctx, fingerprint, arm, dispatchErr == nil); updateErr != nil {
		r.logger.Warn(ctx, "posterior update for arm %s failed: %v", arm, updateErr)
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	r.cache.put(cacheKey, output)
	resolution.Output = output
	resolution.Cost = cost
	resolution.Latency = time.Since(start)
	return resolution, nil
}

// offerArms registers every arm currently servable for the pattern.
// Registration is idempotent; the fallback is always on offer.
func (r *Resolver) offerArms(ctx context.Context, fingerprint, cacheKey string) error {
	if err := r.router.RegisterArm(ctx, fingerprint, core.ArmFallback); err != nil {
		return err
	}

	if _, hit := r.cache.get(cacheKey); hit {
		if err := r.router.RegisterArm(ctx, fingerprint, core.ArmExact); err != nil {
			return err
		}
	}

	wf, err := r.workflows.LatestWorkflow(ctx, fingerprint)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to look up deployed workflow")
	}
	if wf != nil {
		if err := r.router.RegisterArm(ctx, fingerprint, core.SynthesizedArm(fingerprint)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) dispatch(ctx context.Context, arm, fingerprint, cacheKey, query string, input map[string]interface{}) (map[string]interface{}, float64, error) {
	switch arm {
	case core.ArmExact:
		if output, hit := r.cache.get(cacheKey); hit {
			return output, 0, nil
		}
		// The cached entry vanished between offer and dispatch; the
		// oracle still serves the request.
		return r.dispatchOracle(ctx, query, input)

	case core.SynthesizedArm(fingerprint):
		wf, err := r.workflows.LatestWorkflow(ctx, fingerprint)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.StorageFailure, "failed to load deployed workflow")
		}
		if wf == nil {
			return r.dispatchOracle(ctx, query, input)
		}
		result, err := r.executor.Run(ctx, wf, input)
		if err != nil {
			return nil, 0, err
		}
		return result.Output, wf.Profile.ExpectedCost, nil

	default:
		return r.dispatchOracle(ctx, query, input)
	}
}

func (r *Resolver) dispatchOracle(ctx context.Context, query string, input map[string]interface{}) (map[string]interface{}, float64, error) {
	answer, err := r.oracle.Resolve(ctx, query, input)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.OracleFailure, "fallback oracle failed")
	}
	return answer.Output, answer.Cost, nil
}
