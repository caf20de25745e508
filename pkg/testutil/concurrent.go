package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	dErrors "procura/pkg/domain-errors"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes    int32
	Errors       int32
	Unauthorized int32
	Transport    int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Unauthorized + r.Transport
}

// RunConcurrent executes fn in parallel goroutines, released together, and
// categorizes the outcomes by domain error code.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, errs, unauthorized, transport atomic.Int32
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.IsSessionInvalidating(err):
				unauthorized.Add(1)
			case dErrors.HasCode(err, dErrors.CodeTransport), dErrors.HasCode(err, dErrors.CodeTimeout):
				transport.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes:    successes.Load(),
		Errors:       errs.Load(),
		Unauthorized: unauthorized.Load(),
		Transport:    transport.Load(),
	}
}

// RunConcurrentCtx executes fn in parallel goroutines with context support.
func RunConcurrentCtx(ctx context.Context, goroutines int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(goroutines, func(idx int) error {
		return fn(ctx, idx)
	})
}
