// Package router picks an execution arm per normalized query pattern
// with Thompson sampling over Beta posteriors. Each arm carries a
// Beta(alpha, beta) belief over its success rate; selection draws one
// sample per arm and takes the maximum, which explores uncertain arms
// without an explicit epsilon schedule.
package router

import (
	"context"
	"math/rand"
	"sync"
	"time"

	stderrors "errors"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/logging"
	"github.com/loomkit/loom/pkg/store"
)

const (
	// DefaultPriorAlpha and DefaultPriorBeta give new arms a uniform
	// Beta(1, 1) prior.
	DefaultPriorAlpha = 1.0
	DefaultPriorBeta  = 1.0
)

// Router selects arms and records outcomes against a StatsStore.
type Router struct {
	stats      store.StatsStore
	priorAlpha float64
	priorBeta  float64
	logger     *logging.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Router.
type Option func(*Router)

// WithPrior overrides the Beta prior used when registering arms.
func WithPrior(alpha, beta float64) Option {
	return func(r *Router) {
		r.priorAlpha = alpha
		r.priorBeta = beta
	}
}

// WithSeed makes arm selection deterministic, for tests.
func WithSeed(seed int64) Option {
	return func(r *Router) {
		r.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a Router over the given stats store.
func New(stats store.StatsStore, opts ...Option) *Router {
	r := &Router{
		stats:      stats,
		priorAlpha: DefaultPriorAlpha,
		priorBeta:  DefaultPriorBeta,
		logger:     logging.GetLogger(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterArm adds an arm with the prior belief if it is not already
// present. Registration is idempotent and safe under concurrent writers.
func (r *Router) RegisterArm(ctx context.Context, pattern, arm string) error {
	for {
		if err := errors.CheckContext(ctx, "register arm"); err != nil {
			return err
		}

		stats, err := r.stats.GetStats(ctx, pattern)
		if err != nil {
			return errors.Wrap(err, errors.StorageFailure, "failed to load arm stats")
		}
		if stats.Arm(arm) != nil {
			return nil
		}

		stats.Register(arm, r.priorAlpha, r.priorBeta)
		err = r.stats.PutStats(ctx, stats)
		if stderrors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, errors.StorageFailure, "failed to store arm stats")
		}
		return nil
	}
}

// Select draws one Beta sample per registered arm and returns the name
// of the arm with the highest sample. Ties keep the earlier-registered
// arm. Fails with ArmNotFound when no arms exist for the pattern.
func (r *Router) Select(ctx context.Context, pattern string) (string, error) {
	stats, err := r.stats.GetStats(ctx, pattern)
	if err != nil {
		return "", errors.Wrap(err, errors.StorageFailure, "failed to load arm stats")
	}
	if len(stats.Arms) == 0 {
		return "", errors.WithFields(
			errors.New(errors.ArmNotFound, "no arms registered for pattern"),
			errors.Fields{"pattern": pattern})
	}

	r.mu.Lock()
	best := ""
	bestSample := -1.0
	for _, arm := range stats.Arms {
		sample := sampleBeta(r.rng, arm.Alpha, arm.Beta)
		if sample > bestSample {
			best = arm.Name
			bestSample = sample
		}
	}
	r.mu.Unlock()

	r.logger.Debug(ctx, "Selected arm %s for pattern %s (sample %.3f)", best, pattern, bestSample)
	return best, nil
}

// Update records an execution outcome: success increments the arm's
// alpha, failure its beta. The write is a compare-and-swap retry loop,
// so concurrent updates both land.
func (r *Router) Update(ctx context.Context, pattern, arm string, success bool) error {
	for {
		if err := errors.CheckContext(ctx, "update arm"); err != nil {
			return err
		}

		stats, err := r.stats.GetStats(ctx, pattern)
		if err != nil {
			return errors.Wrap(err, errors.StorageFailure, "failed to load arm stats")
		}

		target := stats.Arm(arm)
		if target == nil {
			return errors.WithFields(
				errors.New(errors.ArmNotFound, "cannot update unregistered arm"),
				errors.Fields{"pattern": pattern, "arm": arm})
		}
		if success {
			target.Alpha++
		} else {
			target.Beta++
		}

		err = r.stats.PutStats(ctx, stats)
		if stderrors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, errors.StorageFailure, "failed to store arm stats")
		}
		return nil
	}
}

// Expectation returns the posterior mean success rate of an arm, or 0
// if the arm does not exist. Exposed for reporting.
func Expectation(arm *core.Arm) float64 {
	if arm == nil || arm.Alpha+arm.Beta == 0 {
		return 0
	}
	return arm.Alpha / (arm.Alpha + arm.Beta)
}
