package lsp

import (
	"context"
	"sync"
)

// executor is the single execution context that owns a channel's session
// mutations. Tasks run one at a time in submission order.
type executor struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

func newExecutor() *executor {
	e := &executor{
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *executor) loop() {
	for {
		select {
		case <-e.done:
			return
		case fn := <-e.tasks:
			fn()
		}
	}
}

// run hands fn to the executor and blocks until it has run. If ctx ends
// after the handoff, run returns early but fn still completes on the
// executor.
func (e *executor) run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	select {
	case e.tasks <- task:
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *executor) close() {
	e.once.Do(func() { close(e.done) })
}
