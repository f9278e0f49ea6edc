package zkvm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
)

// scriptedOracle is a controllable backend. Call n sleeps for delays[n] (the
// last entry repeats) and then returns the scripted error, if any. With
// ignoreCtx set it sleeps through cancellation like a wedged prover.
type scriptedOracle struct {
	delays    []time.Duration
	err       error
	verifyErr error
	ignoreCtx bool

	calls   int32
	running int32
	peak    int32
}

func (o *scriptedOracle) Generate(ctx context.Context, req ProveRequest) (inter.ProofBundle, error) {
	call := atomic.AddInt32(&o.calls, 1) - 1
	n := atomic.AddInt32(&o.running, 1)
	defer atomic.AddInt32(&o.running, -1)
	for {
		p := atomic.LoadInt32(&o.peak)
		if n <= p || atomic.CompareAndSwapInt32(&o.peak, p, n) {
			break
		}
	}

	if d := o.delayFor(call); d > 0 {
		if o.ignoreCtx {
			time.Sleep(d)
		} else {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return inter.ProofBundle{}, ctx.Err()
			}
		}
	}
	if o.err != nil {
		return inter.ProofBundle{}, o.err
	}
	return inter.ProofBundle{Outputs: inter.PublicOutputs{Success: true}}, nil
}

func (o *scriptedOracle) Verify(ctx context.Context, stmt Statement, bundle inter.ProofBundle) (bool, error) {
	return bundle.Outputs.Success, o.verifyErr
}

func (o *scriptedOracle) delayFor(call int32) time.Duration {
	if len(o.delays) == 0 {
		return 0
	}
	if int(call) >= len(o.delays) {
		return o.delays[len(o.delays)-1]
	}
	return o.delays[call]
}

func testOracleRules(timeout time.Duration, parallel, retries uint32) opera.OracleRules {
	return opera.OracleRules{
		ProofTimeout:      inter.Timestamp(timeout),
		MaxParallelProofs: parallel,
		Retries:           retries,
	}
}

func TestAsyncCaller_Success(t *testing.T) {
	backend := &scriptedOracle{}
	caller := NewAsyncCaller(backend, testOracleRules(time.Second, 4, 2))

	bundle, err := caller.Generate(context.Background(), ProveRequest{})
	require.NoError(t, err)
	require.True(t, bundle.Outputs.Success)
	require.Equal(t, int32(1), backend.calls)
}

func TestAsyncCaller_TimeoutExhaustsRetries(t *testing.T) {
	backend := &scriptedOracle{delays: []time.Duration{time.Second}}
	caller := NewAsyncCaller(backend, testOracleRules(20*time.Millisecond, 4, 2))

	_, err := caller.Generate(context.Background(), ProveRequest{})
	require.ErrorIs(t, err, ErrOracleTimeout)
	require.Equal(t, int32(3), atomic.LoadInt32(&backend.calls))
}

func TestAsyncCaller_RetryAfterTimeout(t *testing.T) {
	backend := &scriptedOracle{delays: []time.Duration{time.Second, 0}}
	caller := NewAsyncCaller(backend, testOracleRules(20*time.Millisecond, 4, 1))

	bundle, err := caller.Generate(context.Background(), ProveRequest{})
	require.NoError(t, err)
	require.True(t, bundle.Outputs.Success)
	require.Equal(t, int32(2), atomic.LoadInt32(&backend.calls))
}

func TestAsyncCaller_NoRetryOnDeterministicError(t *testing.T) {
	wantErr := errors.New("bad witness")
	backend := &scriptedOracle{err: wantErr}
	caller := NewAsyncCaller(backend, testOracleRules(time.Second, 4, 5))

	_, err := caller.Generate(context.Background(), ProveRequest{})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, int32(1), backend.calls)
}

func TestAsyncCaller_TimeoutOnStuckBackend(t *testing.T) {
	backend := &scriptedOracle{delays: []time.Duration{200 * time.Millisecond}, ignoreCtx: true}
	caller := NewAsyncCaller(backend, testOracleRules(20*time.Millisecond, 4, 0))

	start := time.Now()
	_, err := caller.Generate(context.Background(), ProveRequest{})
	require.ErrorIs(t, err, ErrOracleTimeout)
	require.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestAsyncCaller_ConcurrencyCap(t *testing.T) {
	backend := &scriptedOracle{delays: []time.Duration{30 * time.Millisecond}}
	caller := NewAsyncCaller(backend, testOracleRules(time.Second, 2, 0))

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = caller.Generate(context.Background(), ProveRequest{})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(6), backend.calls)
	require.LessOrEqual(t, backend.peak, int32(2))
}

func TestAsyncCaller_ParentCancellation(t *testing.T) {
	backend := &scriptedOracle{delays: []time.Duration{time.Second}}
	caller := NewAsyncCaller(backend, testOracleRules(500*time.Millisecond, 4, 3))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := caller.Generate(ctx, ProveRequest{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrOracleTimeout)
	// Cancellation is not a timeout, so there must be no retries.
	require.Less(t, time.Since(start), 400*time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&backend.calls))
}

func TestNewAsyncCaller_ParallelFloor(t *testing.T) {
	backend := &scriptedOracle{}
	caller := NewAsyncCaller(backend, testOracleRules(time.Second, 0, 0))

	_, err := caller.Generate(context.Background(), ProveRequest{})
	require.NoError(t, err)
}

func TestAsyncCaller_VerifyDelegates(t *testing.T) {
	backend := &scriptedOracle{}
	caller := NewAsyncCaller(backend, testOracleRules(time.Second, 1, 3))

	ok, err := caller.Verify(context.Background(), Statement{}, inter.ProofBundle{Outputs: inter.PublicOutputs{Success: true}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = caller.Verify(context.Background(), Statement{}, inter.ProofBundle{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAsyncCaller_WithLocalBackend(t *testing.T) {
	req := proveFixture(t)
	caller := NewAsyncCaller(NewLocalBackend(), opera.DefaultOracleRules())

	bundle, err := caller.Generate(context.Background(), req)
	require.NoError(t, err)

	ok, err := caller.Verify(context.Background(), req.Statement(), bundle)
	require.NoError(t, err)
	require.True(t, ok)
}
