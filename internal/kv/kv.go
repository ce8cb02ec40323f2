// Package kv is the byte store behind the completion cache. Keys are paths
// of string segments (["items", "gopls", "<uid>"]) joined with a separator
// byte for storage.
//
// Badger is the persistent implementation; Memory serves tests and
// configurations without a cache directory.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path. Segments must not contain the separator.
type Key []string

// String returns the key joined with ':', for display only.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair returned by List and used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get returns ErrNotFound if the key is absent or expired.
	Get(ctx context.Context, key Key) ([]byte, error)

	Set(ctx context.Context, key Key, value []byte) error

	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error

	// List iterates over the entries under prefix in lexicographic order of
	// the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	BatchSet(ctx context.Context, entries []Entry) error
	BatchDelete(ctx context.Context, keys []Key) error

	Close() error
}

// DefaultSeparator joins key segments.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator defaults to ':' if zero.
	Separator byte

	// TTL expires every written entry after the given duration. Zero keeps
	// entries forever.
	TTL time.Duration
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

func (o *Options) ttl() time.Duration {
	if o == nil || o.TTL < 0 {
		return 0
	}
	return o.TTL
}

func (o *Options) encode(k Key) []byte {
	s := o.sep()
	n := 0
	for i, seg := range k {
		if i > 0 {
			n++
		}
		n += len(seg)
	}
	buf := make([]byte, 0, n)
	for i, seg := range k {
		if i > 0 {
			buf = append(buf, s)
		}
		buf = append(buf, seg...)
	}
	return buf
}

// prefix returns the encoded scan prefix. A non-empty prefix ends with the
// separator so "a:b" does not match "a:bc".
func (o *Options) prefix(k Key) []byte {
	p := o.encode(k)
	if len(p) == 0 {
		return nil
	}
	return append(p, o.sep())
}

func (o *Options) decode(b []byte) Key {
	return strings.Split(string(b), string(o.sep()))
}
