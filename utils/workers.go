package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// Workers is a group of background goroutines sharing one context. Stop cancels the context and
// waits for every goroutine to return.
type Workers struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	running sync.WaitGroup
}

// NewWorkers starts funcs in the background. They are stopped by Stop or when ctx is done.
func NewWorkers(ctx context.Context, funcs ...func(context.Context)) *Workers {
	ctx, cancel := context.WithCancel(ctx)
	w := &Workers{ctx: ctx, cancel: cancel}
	for _, f := range funcs {
		w.Go(f)
	}
	return w
}

// Go starts f in the background. It reports false, without starting f, once Stop was called.
// A panic in f is logged rather than crashing the process.
func (w *Workers) Go(f func(context.Context)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.running.Add(1)
	goutils.PanicCapturingGo(func() {
		defer w.running.Done()
		f(w.ctx)
	})
	return true
}

// Stop cancels the workers and waits for them. It is safe to call more than once.
func (w *Workers) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.cancel()
	w.running.Wait()
}

// Done is closed once the workers are told to stop.
func (w *Workers) Done() <-chan struct{} {
	return w.ctx.Done()
}
