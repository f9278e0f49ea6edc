package zkvm

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
)

// AsyncCaller wraps a backend with the operational limits of the oracle
// rules: a cap on concurrent proving jobs, a per-call timeout and a bounded
// retry budget for timed-out calls.
//
// The concurrency cap is fixed at construction, so the engine builds a fresh
// caller whenever the oracle rules change.
type AsyncCaller struct {
	backend Oracle
	sem     *semaphore.Weighted
	timeout time.Duration
	retries uint32
}

var _ Oracle = (*AsyncCaller)(nil)

// NewAsyncCaller wraps backend according to the oracle rules.
func NewAsyncCaller(backend Oracle, rules opera.OracleRules) *AsyncCaller {
	parallel := int64(rules.MaxParallelProofs)
	if parallel < 1 {
		parallel = 1
	}
	return &AsyncCaller{
		backend: backend,
		sem:     semaphore.NewWeighted(parallel),
		timeout: time.Duration(rules.ProofTimeout),
		retries: rules.Retries,
	}
}

// Generate runs the backend under the concurrency cap and the proof timeout.
// Only ErrOracleTimeout is retried: repeating a deterministic failure on the
// same witness is pointless, but a timed-out call routinely succeeds once
// prover overload passes.
func (c *AsyncCaller) Generate(ctx context.Context, req ProveRequest) (inter.ProofBundle, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return inter.ProofBundle{}, err
	}
	defer c.sem.Release(1)

	attempts := c.retries + 1
	var bundle inter.ProofBundle
	var err error
	for i := uint32(0); i < attempts; i++ {
		bundle, err = c.generateOnce(ctx, req)
		if !errors.Is(err, ErrOracleTimeout) {
			return bundle, err
		}
	}
	return inter.ProofBundle{}, err
}

func (c *AsyncCaller) generateOnce(ctx context.Context, req ProveRequest) (inter.ProofBundle, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		bundle inter.ProofBundle
		err    error
	}
	// Buffered, so a backend finishing after the deadline does not leak its
	// goroutine.
	done := make(chan result, 1)
	go func() {
		bundle, err := c.backend.Generate(callCtx, req)
		done <- result{bundle, err}
	}()

	select {
	case r := <-done:
		if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			// The backend noticed the per-call deadline itself.
			return inter.ProofBundle{}, ErrOracleTimeout
		}
		return r.bundle, r.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			// The engine cancelled the whole job, not the per-call timer.
			return inter.ProofBundle{}, err
		}
		return inter.ProofBundle{}, ErrOracleTimeout
	}
}

// Verify checks the bundle against the statement. Verification is cheap and
// deterministic, so it runs inline: no concurrency cap, no timeout, never a
// retry.
func (c *AsyncCaller) Verify(ctx context.Context, stmt Statement, bundle inter.ProofBundle) (bool, error) {
	return c.backend.Verify(ctx, stmt, bundle)
}
