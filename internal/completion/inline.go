package completion

import (
	"context"
	"iter"
	"sync"
)

// InlineWorker serves inline (ghost text) completions. Requests yield what
// the cache holds for the line, re-anchored to the cursor, followed by live
// replies when live pulling is on. Between requests the warmer pulls fresh
// inline completions for the last context and keeps them in memory.
type InlineWorker struct {
	*runner

	client ClientOptions
	cache  Cache
	source Source

	mu      sync.Mutex
	current *Context
}

// NewInlineWorker creates an inline worker and starts its warmer.
func NewInlineWorker(cache Cache, source Source, opts WorkerOptions) *InlineWorker {
	name := opts.Name
	if name == "" {
		name = "inline"
	}
	w := &InlineWorker{
		runner: newRunner(name, opts.Chunk, opts.Logger),
		client: opts.Client,
		cache:  cache,
		source: source,
	}
	w.start(w.warm)
	return w
}

// Complete returns the inline completions for c. Items are not filtered:
// inline suggestions are judged by the host.
func (w *InlineWorker) Complete(ctx context.Context, c Context) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		defer w.finish(w.supersede(cancel))

		if err := w.acquire(ctx); err != nil {
			return
		}
		defer func() {
			w.release()
			w.signal()
		}()

		w.mu.Lock()
		w.current = &c
		w.mu.Unlock()

		lookup := w.cache.Lookup(ctx, c, LookupOptions{Always: true, Shift: true})

		var live <-chan Batch
		if w.client.LivePulling {
			live = w.source.Request(ctx, c, nil)
		}

		race(Batch{Items: lookup.Items}, live, func(_ origin, b Batch) bool {
			for _, item := range b.Items {
				if !yield(item) {
					return false
				}
			}
			return true
		})
	}
}

func (w *InlineWorker) warm(ctx context.Context) {
	w.mu.Lock()
	c := w.current
	w.mu.Unlock()
	if c == nil {
		return
	}

	// The generation is opened under the exclusion so it can never
	// supersede a request that already started.
	if !w.tryAcquire() {
		w.logger.Debug("%s inline pull skipped, request running", w.name)
		return
	}
	live := w.source.Request(ctx, *c, nil)
	w.release()

	for b := range live {
		if !w.store(ctx, w.cache, b.Provider, b.Items, true) {
			return
		}
	}
}
