package completion

import "sync"

// localCache holds what the last requests saw from providers whose lists
// are complete.
//
// pre keeps, per provider, the items of a complete list that the consumer
// has not pulled yet; they are replayed first on the next request. post
// accumulates every live item surfaced for the current cache context, for
// the warmer to store.
type localCache struct {
	mu   sync.Mutex
	pre  map[string][]Item
	post map[string][]Item
}

func newLocalCache() *localCache {
	return &localCache{
		pre:  make(map[string][]Item),
		post: make(map[string][]Item),
	}
}

func (l *localCache) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.pre)
	clear(l.post)
}

// takePre removes and returns the pending items.
func (l *localCache) takePre() map[string][]Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pre
	l.pre = make(map[string][]Item)
	return out
}

func (l *localCache) setPre(provider string, items []Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pre[provider] = items
}

func (l *localCache) addPost(provider string, item Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.post[provider] = append(l.post[provider], item)
}

// snapshot copies both maps for the warmer.
func (l *localCache) snapshot() (pre, post map[string][]Item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pre = make(map[string][]Item, len(l.pre))
	for k, v := range l.pre {
		pre[k] = append([]Item(nil), v...)
	}
	post = make(map[string][]Item, len(l.post))
	for k, v := range l.post {
		post[k] = append([]Item(nil), v...)
	}
	return pre, post
}
