package collection

import (
	"context"
	"sync"

	"github.com/mycolog/mycolog/internal/errors"
)

// writeOp is one queued mutation. done is buffered so the writer never
// blocks on a caller that stopped waiting.
type writeOp struct {
	run  func() (any, error)
	done chan writeResult
}

type writeResult struct {
	val any
	err error
}

// writer runs mutations one at a time, in submission order, on a single
// goroutine. Once accepted, a mutation runs to completion even if the
// submitting context is cancelled.
type writer struct {
	mu     sync.RWMutex // guards closed against sends on a closed channel
	closed bool
	ops    chan writeOp
	wg     sync.WaitGroup
}

func newWriter(queue int) *writer {
	w := &writer{ops: make(chan writeOp, queue)}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *writer) loop() {
	defer w.wg.Done()
	for op := range w.ops {
		val, err := op.run()
		op.done <- writeResult{val: val, err: err}
	}
}

var errStoreClosed = errors.Newf("collection store is closed").
	Component(storeComponent).
	Category(errors.CategoryState).
	Build()

// submit queues fn and waits for its result or for ctx to end.
func submit[T any](ctx context.Context, w *writer, fn func() (T, error)) (T, error) {
	var zero T
	op := writeOp{
		run: func() (any, error) {
			return fn()
		},
		done: make(chan writeResult, 1),
	}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return zero, errStoreClosed
	}
	select {
	case w.ops <- op:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return zero, ctx.Err()
	}

	select {
	case res := <-op.done:
		if res.err != nil {
			return zero, res.err
		}
		v, _ := res.val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// close stops accepting work, lets queued mutations finish and waits for the
// goroutine to exit.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ops)
	w.mu.Unlock()
	w.wg.Wait()
}
