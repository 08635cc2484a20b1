package signing

import (
	"context"
	"sync"
)

// Result is the outcome of a host call: a hex string or an error.
type Result struct {
	Value string
	Err   error
}

// Future is a one-shot cell completed by the host from another goroutine and
// polled by the waiting side. All state lives behind one mutex so a
// completion racing a poll can neither be lost nor wake twice.
type Future struct {
	mu     sync.Mutex
	done   bool
	result Result
	waker  func()
}

// Resolver completes a Future. Only the first completion takes effect.
type Resolver struct {
	f *Future
}

func NewFuture() (*Future, Resolver) {
	f := &Future{}
	return f, Resolver{f: f}
}

// Resolved returns an already completed future.
func Resolved(value string) *Future {
	f, r := NewFuture()
	r.Resolve(value)
	return f
}

// Rejected returns an already failed future.
func Rejected(err error) *Future {
	f, r := NewFuture()
	r.Reject(err)
	return f
}

// Resolve completes the future with value. It reports false when the future
// was already complete.
func (r Resolver) Resolve(value string) bool {
	return r.f.complete(Result{Value: value})
}

// Reject completes the future with err. It reports false when the future was
// already complete.
func (r Resolver) Reject(err error) bool {
	return r.f.complete(Result{Err: err})
}

func (f *Future) complete(result Result) bool {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return false
	}
	f.done = true
	f.result = result
	waker := f.waker
	f.waker = nil
	f.mu.Unlock()

	if waker != nil {
		waker()
	}
	return true
}

// Poll returns the result if the future is complete. Otherwise it parks waker,
// replacing any earlier one, and returns false. The parked waker runs once
// when the future completes.
func (f *Future) Poll(waker func()) (Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return f.result, true
	}
	f.waker = waker
	return Result{}, false
}

// Wait blocks until the future completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (string, error) {
	woken := make(chan struct{}, 1)
	wake := func() {
		select {
		case woken <- struct{}{}:
		default:
		}
	}

	for {
		if result, ok := f.Poll(wake); ok {
			return result.Value, result.Err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-woken:
		}
	}
}
