package completion

import (
	"context"
	"iter"
	"math"
	"sort"
	"sync"

	"github.com/dshills/stormcomplete/internal/logging"
)

// Cache is the completion cache a worker consults and warms.
type Cache interface {
	Lookup(ctx context.Context, c Context, opts LookupOptions) CacheLookup
	Store(ctx context.Context, items map[string][]Item, skipPersist bool)
}

type origin int

const (
	fromCache origin = iota
	fromStored
	fromQuery
)

// WorkerOptions configure a Worker.
type WorkerOptions struct {
	Name   string
	Match  MatchOptions
	Client ClientOptions

	// Chunk is the warmer write size; zero means DefaultChunk.
	Chunk int

	Logger *logging.Logger
}

// Worker merges cached and live completions for one channel and warms the
// cache in the background between requests.
type Worker struct {
	*runner

	match  MatchOptions
	client ClientOptions
	cache  Cache
	source Source
	local  *localCache

	mu   sync.Mutex
	last *Context
}

// NewWorker creates a worker and starts its warmer. Call Close to stop it.
func NewWorker(cache Cache, source Source, opts WorkerOptions) *Worker {
	name := opts.Name
	if name == "" {
		name = "lsp"
	}
	w := &Worker{
		runner: newRunner(name, opts.Chunk, opts.Logger),
		match:  opts.Match,
		client: opts.Client,
		cache:  cache,
		source: source,
		local:  newLocalCache(),
	}
	w.start(w.warm)
	return w
}

func (w *Worker) limit(c Context) int {
	switch {
	case c.Manual:
		return math.MaxInt
	case w.client.PullLimit > 0:
		return w.client.PullLimit
	case w.match.MaxResults > 0:
		return w.match.MaxResults
	default:
		return math.MaxInt
	}
}

// Complete returns the completions for c. Items already stored for a
// compatible context come first, then cached matches and live replies as
// they arrive. Items are deduplicated by replacement text and capped at
// the pull limit unless the request is manual.
//
// Only one request runs per worker: a new request cancels the one still in
// flight and waits for it to wind down. Stopping the iteration ends the
// request.
func (w *Worker) Complete(ctx context.Context, c Context) iter.Seq[Item] {
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
		w.last = &c
		w.mu.Unlock()

		lookup := w.cache.Lookup(ctx, c, LookupOptions{})
		if !lookup.Usable {
			w.local.reset()
		}

		var exclude map[string]struct{}
		if !c.Manual {
			exclude = lookup.Providers
		}
		live := w.source.Request(ctx, c, exclude)

		m := merge{
			w:     w,
			ctx:   c,
			limit: w.limit(c),
			texts: make(map[string]struct{}),
			yield: yield,
		}

		// Unconsumed items of complete lists from the previous request.
		pre := w.local.takePre()
		for _, provider := range sortedKeys(pre) {
			var items []Item
			for _, item := range pre[provider] {
				if s, ok := Sanitize(c.Cursor, item, false); ok {
					items = append(items, s)
				}
			}
			if !m.emit(fromStored, Batch{Provider: provider, LocalCache: true, Items: items}) {
				return
			}
		}

		race(Batch{Items: lookup.Items}, live, m.emit)
	}
}

// race emits the cached batch and the first live batch in whichever order
// they resolve, then the remaining live batches in arrival order. It stops
// as soon as emit reports false.
func race(cached Batch, live <-chan Batch, emit func(origin, Batch) bool) {
	ready := make(chan Batch, 1)
	ready <- cached

	first := live
	for ready != nil || first != nil {
		select {
		case b := <-ready:
			ready = nil
			if !emit(fromCache, b) {
				return
			}
		case b, ok := <-first:
			first = nil
			if !ok {
				live = nil
				continue
			}
			if !emit(fromQuery, b) {
				return
			}
		}
	}

	if live == nil {
		return
	}
	for b := range live {
		if !emit(fromQuery, b) {
			return
		}
	}
}

// merge is the state of one Complete call.
type merge struct {
	w     *Worker
	ctx   Context
	limit int
	seen  int
	texts map[string]struct{}
	yield func(Item) bool
}

// emit surfaces one batch. It reports false once the request is over.
func (m *merge) emit(src origin, b Batch) bool {
	if m.seen >= m.limit {
		return false
	}

	keep := b.LocalCache && src != fromCache
	for i, item := range b.Items {
		if keep {
			m.w.local.setPre(b.Provider, b.Items[i+1:])
		}

		if src != fromCache {
			m.w.local.addPost(b.Provider, item)
			if !Accept(m.w.match, m.ctx, item) {
				continue
			}
		}

		text := item.PrimaryEdit.NewText
		if _, dup := m.texts[text]; dup {
			continue
		}
		m.texts[text] = struct{}{}

		m.seen++
		if !m.yield(item) || m.seen >= m.limit {
			return false
		}
	}
	return true
}

func (w *Worker) warm(ctx context.Context) {
	if !w.tryAcquire() {
		w.logger.Debug("%s cache pass skipped, request running", w.name)
		return
	}
	pre, post := w.local.snapshot()
	w.cache.Store(ctx, post, false)
	w.release()

	w.mu.Lock()
	last := w.last
	w.mu.Unlock()
	if last == nil {
		return
	}

	// Unconsumed items are re-anchored to the last cursor; those that no
	// longer apply are not written.
	for _, provider := range sortedKeys(pre) {
		var items []Item
		for _, item := range pre[provider] {
			if s, ok := Sanitize(last.Cursor, item, false); ok {
				items = append(items, s)
			}
		}
		if !w.store(ctx, w.cache, provider, items, false) {
			return
		}
	}

	// Refill from every provider for the last context. The generation is
	// opened under the exclusion, so a request arriving later supersedes it.
	if !w.tryAcquire() {
		return
	}
	live := w.source.Request(ctx, *last, nil)
	w.release()
	for b := range live {
		if !w.store(ctx, w.cache, b.Provider, b.Items, false) {
			return
		}
	}
}

func sortedKeys(m map[string][]Item) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
