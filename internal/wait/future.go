package wait

import "context"

// Future is a wait running in the background.
type Future struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// Start polls cond in a new goroutine. The wait ends when cond holds, the
// timeout elapses, ctx ends or Cancel is called.
func (w *Waiter) Start(ctx context.Context, cond Condition, timeout Timeout) *Future {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(f.done)
		defer cancel()
		f.err = w.Poll(ctx, cond, timeout)
	}()
	return f
}

// Done is closed when the wait has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err blocks until the wait finishes and returns its result.
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// Cancel stops the wait; Err then reports context.Canceled.
func (f *Future) Cancel() { f.cancel() }
