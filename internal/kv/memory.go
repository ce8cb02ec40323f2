package kv

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memValue
	opts *Options
	now  func() time.Time
}

type memValue struct {
	val     []byte
	expires time.Time
}

func (v memValue) live(now time.Time) bool {
	return v.expires.IsZero() || now.Before(v.expires)
}

// NewMemory creates an empty in-memory Store. Pass nil for defaults.
func NewMemory(opts *Options) *Memory {
	return &Memory{
		data: make(map[string]memValue),
		opts: opts,
		now:  time.Now,
	}
}

func (m *Memory) value(v []byte) memValue {
	mv := memValue{val: bytes.Clone(v)}
	if ttl := m.opts.ttl(); ttl > 0 {
		mv.expires = m.now().Add(ttl)
	}
	return mv
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	k := string(m.opts.encode(key))
	m.mu.RLock()
	v, ok := m.data[k]
	m.mu.RUnlock()
	if !ok || !v.live(m.now()) {
		return nil, ErrNotFound
	}
	return bytes.Clone(v.val), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	k := string(m.opts.encode(key))
	v := m.value(value)
	m.mu.Lock()
	m.data[k] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	k := string(m.opts.encode(key))
	m.mu.Lock()
	delete(m.data, k)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := string(m.opts.prefix(prefix))
	now := m.now()

	// Snapshot under the read lock so callers may write while iterating.
	m.mu.RLock()
	var keys []string
	snapshot := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, p) && v.live(now) {
			keys = append(keys, k)
			snapshot[k] = bytes.Clone(v.val)
		}
	}
	m.mu.RUnlock()
	slices.Sort(keys)

	return func(yield func(Entry, error) bool) {
		for _, k := range keys {
			if !yield(Entry{Key: m.opts.decode([]byte(k)), Value: snapshot[k]}, nil) {
				return
			}
		}
	}
}

func (m *Memory) BatchSet(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.data[string(m.opts.encode(e.Key))] = m.value(e.Value)
	}
	return nil
}

func (m *Memory) BatchDelete(_ context.Context, keys []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, string(m.opts.encode(key)))
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
