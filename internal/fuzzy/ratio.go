package fuzzy

import (
	"container/list"
	"sync"

	"golang.org/x/text/cases"
)

// Ratio returns the multiset similarity of lhs and rhs in [0, 1].
//
// Both strings are cut to the length of the shorter one plus lookAhead
// runes. The ratio is the share of the longer cut that the shorter one
// covers, scaled by the length difference, so a short token fully contained
// in a long key scores 1. An empty operand scores 1.
func Ratio(lhs, rhs string, lookAhead int) float64 {
	l, r := []rune(lhs), []rune(rhs)

	shorter := min(len(l), len(r))
	if shorter == 0 {
		return 1
	}

	cutoff := shorter + max(lookAhead, 0)
	if len(l) > cutoff {
		l = l[:cutoff]
	}
	if len(r) > cutoff {
		r = r[:cutoff]
	}
	longer := max(len(l), len(r))

	// Count what the longer side has beyond the shorter side.
	big, small := l, r
	if len(r) > len(l) {
		big, small = r, l
	}
	counts := make(map[rune]int, len(small))
	for _, c := range small {
		counts[c]++
	}
	dif := 0
	for _, c := range big {
		if counts[c] > 0 {
			counts[c]--
		} else {
			dif++
		}
	}

	ratio := 1 - float64(dif)/float64(longer)
	adjust := float64(shorter) / float64(longer)
	return min(ratio/adjust, 1)
}

// foldCacheSize bounds the memoized Lower results.
const foldCacheSize = 4096

var folds = newFoldCache(foldCacheSize)

// Lower case-folds s for comparison.
func Lower(s string) string {
	if out, ok := folds.get(s); ok {
		return out
	}
	out := cases.Fold().String(s)
	folds.set(s, out)
	return out
}

// foldCache is a small LRU of case-folded strings.
// It is safe for concurrent use.
type foldCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
}

type foldEntry struct {
	in, out string
}

func newFoldCache(maxSize int) *foldCache {
	return &foldCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *foldCache) get(s string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[s]
	if !ok {
		return "", false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*foldEntry).out, true //nolint:errcheck // list only contains *foldEntry
}

func (c *foldCache) set(in, out string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[in]; ok {
		c.lru.MoveToFront(elem)
		return
	}
	if c.lru.Len() >= c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*foldEntry).in) //nolint:errcheck // list only contains *foldEntry
		}
	}
	c.items[in] = c.lru.PushFront(&foldEntry{in: in, out: out})
}

func (c *foldCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
