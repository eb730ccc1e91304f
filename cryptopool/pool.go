// Package cryptopool offloads CPU-bound crypto work off the request
// goroutine, per spec §5: RSA-2048 keygen is multi-hundred-millisecond
// work and must not stall the scheduler. The callers in this module submit
// RSA-2048 keygen, blind-signing and public-key derivation; the PSS
// verification in voting.Engine.Cast runs inline inside the cast
// transaction, and AES-GCM seal/open is not submitted here. The lifecycle (Start/Stop over a
// context.Context) is grounded on the teacher's processor.Processor
// ticker/goroutine pattern (processor/processor.go, processor/ballot.go);
// jobs here are request-scoped closures resolved via a per-job result
// channel instead of a storage-backed queue, since crypto jobs have no
// durability requirement of their own.
package cryptopool

import (
	"context"
	"fmt"
	"sync"

	"github.com/civitas-vote/ballotauth/log"
)

// job is one submitted unit of CPU-bound work and the channel its result is
// delivered on.
type job struct {
	fn     func() (any, error)
	result chan<- jobResult
}

type jobResult struct {
	value any
	err   error
}

// Pool is a bounded worker pool. The zero value is not usable; construct
// with New.
type Pool struct {
	jobs   chan job
	wg     sync.WaitGroup
	cancel context.CancelFunc
	closed chan struct{}
}

// New creates a Pool with the given number of workers. workers is clamped
// to at least 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		jobs:   make(chan job, workers*4),
		closed: make(chan struct{}),
	}
}

// Start launches the worker goroutines. It mirrors processor.Processor's
// Start(ctx)/Stop() contract: workers run until ctx is cancelled or Stop is
// called.
func (p *Pool) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < cap(p.jobs)/4; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Stop stops the workers and waits for them to exit. A job that is already
// running finishes; jobs still queued are never run.
func (p *Pool) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	close(p.closed)
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			v, err := safeCall(j.fn)
			j.result <- jobResult{value: v, err: err}
		}
	}
}

func safeCall(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw(nil, "crypto pool job panicked", "recover", fmt.Sprintf("%v", r))
			err = fmt.Errorf("cryptopool: job panicked: %v", r)
		}
	}()
	return fn()
}

// Submit enqueues fn and blocks until it runs (or ctx is cancelled first).
// Submit is the primitive Run/RunTyped build on.
func (p *Pool) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	result := make(chan jobResult, 1)
	select {
	case p.jobs <- job{fn: fn, result: result}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run is a convenience wrapper for crypto operations that produce no
// value, e.g. a blocking signature verification.
func Run(ctx context.Context, p *Pool, fn func() error) error {
	_, err := p.Submit(ctx, func() (any, error) { return nil, fn() })
	return err
}

// RunTyped is a generics-friendly convenience wrapper that preserves the
// concrete return type of fn, used by callers like token.Authority for
// BlindSign and election.Registry for GenerateInstitutionKeys.
func RunTyped[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	v, err := p.Submit(ctx, func() (any, error) {
		return fn()
	})
	var zero T
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cryptopool: unexpected result type %T", v)
	}
	return t, nil
}
