// Package cache keeps the completions seen for the current line so that
// further keystrokes on it can be answered without asking providers again.
//
// The cache is anchored to a buffer row and the text before the cursor when
// it was last reset. A lookup is compatible while the cursor stays on that
// row and the text before it still extends the anchored prefix; anything
// else resets the cache to the new position. Stored items are also written
// to a kv.Store, msgpack-encoded, so a restarted process can Warm itself
// from the last anchor.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dshills/stormcomplete/internal/completion"
	"github.com/dshills/stormcomplete/internal/fuzzy"
	"github.com/dshills/stormcomplete/internal/kv"
	"github.com/dshills/stormcomplete/internal/logging"
)

// ErrUnavailable is returned when the backing store cannot be read.
var ErrUnavailable = errors.New("cache unavailable")

// Options configures a Cache.
type Options struct {
	// Namespace separates the persisted state of caches sharing a store.
	Namespace string

	Match completion.MatchOptions

	// Store persists items. Nil keeps everything in memory.
	Store kv.Store

	Logger *logging.Logger
}

type anchor struct {
	BufID      int    `msgpack:"buf_id"`
	Row        int    `msgpack:"row"`
	LineBefore string `msgpack:"line_before"`
}

// Cache is a completion.Cache. It is safe for concurrent use.
type Cache struct {
	ns     string
	match  completion.MatchOptions
	store  kv.Store
	logger *logging.Logger

	mu       sync.Mutex
	anchored bool
	anchor   anchor
	items    map[string][]completion.Item
	uids     map[uuid.UUID]struct{}
}

var _ completion.Cache = (*Cache)(nil)

// New creates an empty cache.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "default"
	}
	return &Cache{
		ns:     ns,
		match:  opts.Match,
		store:  opts.Store,
		logger: logger,
		items:  make(map[string][]completion.Item),
		uids:   make(map[uuid.UUID]struct{}),
	}
}

// SetMatch replaces the options used to filter lookups.
func (c *Cache) SetMatch(m completion.MatchOptions) {
	c.mu.Lock()
	c.match = m
	c.mu.Unlock()
}

func (c *Cache) anchorKey() kv.Key { return kv.Key{"anchor", c.ns} }
func (c *Cache) itemsKey() kv.Key  { return kv.Key{"items", c.ns} }

func (c *Cache) itemKey(provider string, uid uuid.UUID) kv.Key {
	if provider == "" {
		provider = "_"
	}
	return kv.Key{"items", c.ns, provider, uid.String()}
}

func (c *Cache) compatible(cx completion.Context) bool {
	return c.anchored &&
		c.anchor.BufID == cx.BufID &&
		c.anchor.Row == cx.Row &&
		strings.HasPrefix(cx.LineBefore, c.anchor.LineBefore)
}

// Lookup implements completion.Cache.
//
// An incompatible context resets the cache and reports it unusable. A
// manual request is never usable, since it asks every provider afresh, but
// still gets items with opts.Always. Items are filtered against the token
// before the cursor unless opts.Always is set, and re-anchored to the
// cursor with completion.Sanitize.
func (c *Cache) Lookup(ctx context.Context, cx completion.Context, opts completion.LookupOptions) completion.CacheLookup {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.compatible(cx) {
		c.reset(ctx, anchor{BufID: cx.BufID, Row: cx.Row, LineBefore: cx.LineBefore})
		return completion.CacheLookup{}
	}

	out := completion.CacheLookup{Usable: !cx.Manual}
	if out.Usable {
		out.Providers = make(map[string]struct{}, len(c.items))
		for provider, items := range c.items {
			if len(items) > 0 {
				out.Providers[provider] = struct{}{}
			}
		}
	} else if !opts.Always {
		return out
	}

	var candidates []completion.Item
	for _, provider := range c.providers() {
		candidates = append(candidates, c.items[provider]...)
	}
	if !opts.Always {
		candidates = fuzzy.Filter(cx.LineBefore, candidates, func(it completion.Item) string { return it.SortBy }, fuzzy.Options{
			Unifying:  c.match.UnifyingChars,
			LookAhead: c.match.LookAhead,
			Cutoff:    c.match.FuzzyCutoff,
		})
	}

	for _, item := range candidates {
		if s, ok := completion.Sanitize(cx.Cursor, item, opts.Shift); ok {
			out.Items = append(out.Items, s)
		}
	}
	return out
}

func (c *Cache) providers() []string {
	names := make([]string, 0, len(c.items))
	for name := range c.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store implements completion.Cache. Items already held are skipped.
// Unless skipPersist is set the new items are also written to the store;
// a store failure is logged and the items stay cached in memory.
func (c *Cache) Store(ctx context.Context, items map[string][]completion.Item, skipPersist bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entries []kv.Entry
	for provider, list := range items {
		for _, item := range list {
			if _, ok := c.uids[item.UID]; ok {
				continue
			}
			c.uids[item.UID] = struct{}{}
			c.items[provider] = append(c.items[provider], item)

			if skipPersist || c.store == nil {
				continue
			}
			data, err := msgpack.Marshal(&item)
			if err != nil {
				c.logger.Warn("encode cached item %s: %v", item.UID, err)
				continue
			}
			entries = append(entries, kv.Entry{Key: c.itemKey(provider, item.UID), Value: data})
		}
	}

	if len(entries) > 0 {
		if err := c.store.BatchSet(ctx, entries); err != nil {
			c.logger.Warn("persist %d cached items: %v", len(entries), err)
		}
	}
}

// reset drops every item and anchors the cache at a. Must be called with
// c.mu held.
func (c *Cache) reset(ctx context.Context, a anchor) {
	c.anchored = true
	c.anchor = a
	clear(c.items)
	clear(c.uids)

	if c.store == nil {
		return
	}

	var keys []kv.Key
	for e, err := range c.store.List(ctx, c.itemsKey()) {
		if err != nil {
			c.logger.Warn("list cached items: %v", err)
			break
		}
		keys = append(keys, e.Key)
	}
	if len(keys) > 0 {
		if err := c.store.BatchDelete(ctx, keys); err != nil {
			c.logger.Warn("drop %d cached items: %v", len(keys), err)
		}
	}

	data, err := msgpack.Marshal(&a)
	if err == nil {
		err = c.store.Set(ctx, c.anchorKey(), data)
	}
	if err != nil {
		c.logger.Warn("persist cache anchor: %v", err)
	}
}

// Warm loads the persisted anchor and items. Entries that fail to decode
// are skipped; a store failure returns an error matching ErrUnavailable.
func (c *Cache) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.store.Get(ctx, c.anchorKey())
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var a anchor
	if err := msgpack.Unmarshal(data, &a); err != nil {
		c.logger.Warn("decode cache anchor: %v", err)
		return nil
	}

	c.anchored = true
	c.anchor = a
	clear(c.items)
	clear(c.uids)

	loaded := 0
	for e, err := range c.store.List(ctx, c.itemsKey()) {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(e.Key) != 4 {
			continue
		}
		var item completion.Item
		if err := msgpack.Unmarshal(e.Value, &item); err != nil {
			c.logger.Warn("decode cached item %s: %v", e.Key, err)
			continue
		}
		provider := e.Key[2]
		if provider == "_" {
			provider = ""
		}
		if _, ok := c.uids[item.UID]; ok {
			continue
		}
		c.uids[item.UID] = struct{}{}
		c.items[provider] = append(c.items[provider], item)
		loaded++
	}

	c.logger.Debug("warmed %s cache with %d items", c.ns, loaded)
	return nil
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, items := range c.items {
		n += len(items)
	}
	return n
}
