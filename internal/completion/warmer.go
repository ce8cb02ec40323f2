package completion

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/dshills/stormcomplete/internal/logging"
)

// DefaultChunk is the number of items the warmer writes per step.
const DefaultChunk = 9

// runner owns the exclusion between interactive requests and the
// background warmer of one worker.
//
// A request holds busy for its whole duration, and a newer request cancels
// the one in flight before waiting for busy, so a provider that never
// completes cannot hold the worker. The warmer never waits for busy: it
// tries to take it for each chunk it writes and gives up the pass as soon
// as a request holds it, so no cache write lands after a request started.
type runner struct {
	name   string
	chunk  int
	logger *logging.Logger

	busy chan struct{}
	kick chan struct{}

	mu         sync.Mutex
	cancelWarm context.CancelFunc
	cancelReq  context.CancelFunc
	reqSeq     uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRunner(name string, chunk int, logger *logging.Logger) *runner {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	if logger == nil {
		logger = logging.Null()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{
		name:   name,
		chunk:  chunk,
		logger: logger,
		busy:   make(chan struct{}, 1),
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// start runs warm after every request, one pass at a time.
func (r *runner) start(warm func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-r.kick:
			}
			r.pass(warm)
		}
	}()
}

func (r *runner) pass(warm func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	r.mu.Lock()
	r.cancelWarm = cancel
	r.mu.Unlock()

	start := time.Now()
	warm(ctx)

	r.mu.Lock()
	r.cancelWarm = nil
	r.mu.Unlock()

	r.logger.Debug("%s cache pass took %s", r.name, time.Since(start))
}

// supersede cancels the request in flight, if any, and registers cancel
// as the current one. The returned token is handed back to finish.
func (r *runner) supersede(cancel context.CancelFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelReq != nil {
		r.cancelReq()
	}
	r.reqSeq++
	r.cancelReq = cancel
	return r.reqSeq
}

// finish forgets the request registered under seq unless a newer one
// replaced it.
func (r *runner) finish(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reqSeq == seq {
		r.cancelReq = nil
	}
}

// acquire blocks until no other request or warmer chunk holds the worker.
func (r *runner) acquire(ctx context.Context) error {
	select {
	case r.busy <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *runner) tryAcquire() bool {
	select {
	case r.busy <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *runner) release() {
	<-r.busy
}

// signal wakes the warmer without blocking; a pending wakeup absorbs it.
func (r *runner) signal() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Interrupt aborts the running warm pass, if any.
func (r *runner) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelWarm != nil {
		r.cancelWarm()
	}
}

// Close stops the warmer and waits for it to exit.
func (r *runner) Close() {
	r.cancel()
	r.wg.Wait()
}

// store writes items in chunks, yielding between chunks. It reports false
// when the pass must stop because it was interrupted or a request began.
func (r *runner) store(ctx context.Context, cache Cache, provider string, items []Item, skipPersist bool) bool {
	for lo := 0; lo < len(items); lo += r.chunk {
		if ctx.Err() != nil {
			r.logger.Debug("%s cache pass interrupted", r.name)
			return false
		}
		if !r.tryAcquire() {
			r.logger.Debug("%s cache pass yielded to a request", r.name)
			return false
		}
		hi := min(lo+r.chunk, len(items))
		cache.Store(ctx, map[string][]Item{provider: items[lo:hi]}, skipPersist)
		r.release()

		runtime.Gosched()
	}
	return true
}
