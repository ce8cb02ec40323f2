package lsp

import (
	"sync"
	"time"

	"github.com/dshills/stormcomplete/internal/logging"
)

// DrainStatus tells a generator what to do after a Drain.
type DrainStatus int

const (
	// DrainLive means the session is open; entries may be empty.
	DrainLive DrainStatus = iota
	// DrainDone means the session is complete; entries are the last ones.
	DrainDone
	// DrainSuperseded means a newer generation owns the channel.
	DrainSuperseded
	// DrainDelayed means the stored session is older than the caller's
	// generation, so the caller is looking at a late response.
	DrainDelayed
)

// String returns a readable name for the status.
func (s DrainStatus) String() string {
	switch s {
	case DrainLive:
		return "live"
	case DrainDone:
		return "done"
	case DrainSuperseded:
		return "superseded"
	case DrainDelayed:
		return "delayed"
	default:
		return "unknown"
	}
}

// Session is the mutable state of one generation on a channel.
type Session struct {
	Generation Generation
	Started    time.Time
	Done       bool

	acc []Entry
}

// slot is the registry entry for one channel. It is created on first use and
// lives until the registry is closed.
type slot struct {
	mu      sync.Mutex
	last    Generation
	session *Session

	// signal is closed and replaced on every mutation, waking every waiter
	// that captured it.
	signal chan struct{}

	exec *executor
}

func (s *slot) broadcast() {
	close(s.signal)
	s.signal = make(chan struct{})
}

// Registry tracks the current generation and session of every channel.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	slots  map[string]*slot
	closed bool

	logger *logging.Logger
	now    func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		slots:  make(map[string]*slot),
		logger: logging.Null(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) slot(channel string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[channel]
	if !ok {
		s = &slot{
			signal: make(chan struct{}),
			exec:   newExecutor(),
		}
		if r.closed {
			s.exec.close()
		}
		r.slots[channel] = s
	}
	return s
}

// Begin allocates the next generation for channel, installs a fresh empty
// session for it and wakes every waiter so stale generators observe the
// supersession.
func (r *Registry) Begin(channel string) Generation {
	s := r.slot(channel)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last++
	s.session = &Session{Generation: s.last, Started: r.now()}
	s.broadcast()
	return s.last
}

// Ingest merges a reply into the channel's session.
//
// A reply for the current generation is appended. A reply for a newer
// generation means its Begin was observed out of order: a session is
// synthesized for that generation with the reply as its first entry. Replies
// for older generations, and replies arriving after the current session was
// marked done, are dropped. Ingest reports whether the reply was kept.
func (r *Registry) Ingest(channel string, gen Generation, reply Reply, multipart int, done bool) bool {
	s := r.slot(channel)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := true
	cur := s.session
	switch {
	case cur == nil || gen > cur.Generation:
		s.session = &Session{
			Generation: gen,
			Started:    r.now(),
			Done:       done,
			acc:        []Entry{{Reply: reply, Multipart: multipart}},
		}
		if gen > s.last {
			s.last = gen
		}
	case gen == cur.Generation && !cur.Done:
		cur.acc = append(cur.acc, Entry{Reply: reply, Multipart: multipart})
		cur.Done = done
	default:
		kept = false
	}

	s.broadcast()
	return kept
}

// Drain atomically pops every entry accumulated for exactly gen.
//
// When a newer generation owns the channel the caller is superseded. When
// the stored session is older than gen the caller is looking at a delayed
// response; that is logged and reported as DrainDelayed. Otherwise the
// entries are returned in arrival order with DrainLive, or DrainDone once
// the session is complete.
func (r *Registry) Drain(channel string, gen Generation) ([]Entry, DrainStatus) {
	s := r.slot(channel)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.session
	switch {
	case cur == nil:
		return nil, DrainLive
	case cur.Generation > gen:
		return nil, DrainSuperseded
	case cur.Generation < gen:
		r.logger.Info("delayed reply on %s: current %d, requested %d", channel, cur.Generation, gen)
		return nil, DrainDelayed
	}

	entries := cur.acc
	cur.acc = nil
	if cur.Done {
		return entries, DrainDone
	}
	return entries, DrainLive
}

// Watch returns the channel's activity signal. The returned channel is
// closed by the next Begin or Ingest on channel. Capture it before Drain so
// that a mutation between the drain and the wait is never missed.
func (r *Registry) Watch(channel string) <-chan struct{} {
	s := r.slot(channel)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signal
}

// Current returns the live generation of channel, or zero if none began.
func (r *Registry) Current(channel string) Generation {
	s := r.slot(channel)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return 0
	}
	return s.session.Generation
}

// Started returns when the session for gen began. ok is false when gen is
// not the current generation.
func (r *Registry) Started(channel string, gen Generation) (started time.Time, ok bool) {
	s := r.slot(channel)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.Generation != gen {
		return time.Time{}, false
	}
	return s.session.Started, true
}

// executorFor returns the execution context that owns channel's session.
func (r *Registry) executorFor(channel string) *executor {
	return r.slot(channel).exec
}

// Close stops every channel executor. Begin, Drain and Watch keep working;
// handoffs through the Ingestor fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, s := range r.slots {
		s.exec.close()
	}
}
