package lsp

import (
	"context"
	"encoding/json"
	"iter"
	"sort"
	"time"

	"github.com/dshills/stormcomplete/internal/logging"
)

// Request describes one logical request on a channel.
type Request struct {
	Channel string

	// Width is the multipart page width providers should use.
	Width int

	// Exclude lists providers whose answers are not wanted, usually because
	// the cache already holds them.
	Exclude map[string]struct{}

	// Args are forwarded to the bridge after the fixed parameters.
	Args []any
}

// Multiplexer opens generations on channels and turns the replies that
// arrive for them into ordered streams.
type Multiplexer struct {
	reg    *Registry
	bridge Bridge
	pager  *Paginator
	logger *logging.Logger
}

// NewMultiplexer creates a multiplexer issuing requests through bridge.
func NewMultiplexer(reg *Registry, bridge Bridge, logger *logging.Logger) *Multiplexer {
	if logger == nil {
		logger = logging.Null()
	}
	return &Multiplexer{
		reg:    reg,
		bridge: bridge,
		pager:  NewPaginator(reg, bridge),
		logger: logger,
	}
}

// Registry returns the registry the multiplexer allocates generations from.
func (m *Multiplexer) Registry() *Registry {
	return m.reg
}

// Request opens a new generation on req.Channel, superseding any request
// still running there, and issues it to the bridge. The returned stream is
// finite and not restartable; call Request again for a fresh generation.
//
// A bridge failure is logged and yields an empty stream.
func (m *Multiplexer) Request(ctx context.Context, req Request) *Stream {
	gen := m.reg.Begin(req.Channel)

	s := &Stream{
		mux:     m,
		channel: req.Channel,
		gen:     gen,
		started: m.reg.now(),
	}

	if m.bridge == nil {
		m.logger.Warn("request on %s: %v", req.Channel, ErrNoBridge)
		s.finished = true
		return s
	}

	exclude := make([]string, 0, len(req.Exclude))
	for name := range req.Exclude {
		exclude = append(exclude, name)
	}
	sort.Strings(exclude)

	err := m.bridge.Issue(ctx, IssueParams{
		Channel:    req.Channel,
		Width:      req.Width,
		Exclude:    exclude,
		Generation: gen,
		Args:       req.Args,
	})
	if err != nil {
		m.logger.Warn("%v", &ProviderError{Channel: req.Channel, Op: "issue", Err: err})
		s.finished = true
	}
	return s
}

// Stream is the ordered sequence of replies for one generation.
// A Stream is not safe for concurrent use; hand it between goroutines only
// with a happens-before edge.
type Stream struct {
	mux     *Multiplexer
	channel string
	gen     Generation
	started time.Time

	pending  []Entry
	finished bool
	logged   bool

	// multipart reply being paginated
	current Reply
	next    func() ([]json.RawMessage, error, bool)
	stop    func()
}

// Generation returns the generation this stream belongs to.
func (s *Stream) Generation() Generation {
	return s.gen
}

// Channel returns the channel this stream reads.
func (s *Stream) Channel() string {
	return s.channel
}

// Next returns the next reply. It blocks until a reply arrives, the
// generation completes or is superseded, or ctx ends; ok is false once the
// stream is exhausted.
func (s *Stream) Next(ctx context.Context) (reply Reply, ok bool) {
	reg := s.mux.reg

	for {
		if s.next != nil {
			page, err, more := s.next()
			if more && err == nil {
				r := s.current
				r.Message = Reassemble(s.current.Message, page)
				return r, true
			}
			if err != nil {
				s.mux.logger.Warn("%v", err)
			}
			s.stopPages()
			continue
		}

		if len(s.pending) > 0 {
			if reg.Current(s.channel) != s.gen {
				s.finish()
				return Reply{}, false
			}

			e := s.pending[0]
			s.pending = s.pending[1:]
			if e.Multipart > 0 {
				s.paginate(ctx, e)
				continue
			}
			return e.Reply, true
		}

		if s.finished || ctx.Err() != nil {
			s.finish()
			return Reply{}, false
		}

		wake := reg.Watch(s.channel)
		entries, status := reg.Drain(s.channel, s.gen)
		switch status {
		case DrainSuperseded, DrainDelayed:
			s.finish()
			return Reply{}, false
		case DrainDone:
			s.pending = entries
			s.finished = true
			continue
		}

		if len(entries) > 0 {
			s.pending = entries
			continue
		}

		select {
		case <-wake:
		case <-ctx.Done():
		}
	}
}

// All returns the remaining replies as an iterator.
func (s *Stream) All(ctx context.Context) iter.Seq[Reply] {
	return func(yield func(Reply) bool) {
		defer s.Close()
		for {
			r, ok := s.Next(ctx)
			if !ok || !yield(r) {
				return
			}
		}
	}
}

// Close abandons the stream. Outstanding provider work is not interrupted.
func (s *Stream) Close() {
	s.finish()
}

func (s *Stream) paginate(ctx context.Context, e Entry) {
	s.current = e.Reply
	s.next, s.stop = iter.Pull2(s.mux.pager.Pages(ctx, PageRequest{
		Channel:    s.channel,
		Provider:   e.Reply.Provider,
		Generation: s.gen,
		Width:      e.Multipart,
	}))
}

func (s *Stream) stopPages() {
	if s.stop != nil {
		s.stop()
	}
	s.next, s.stop = nil, nil
	s.current = Reply{}
}

func (s *Stream) finish() {
	s.stopPages()
	s.pending = nil
	s.finished = true
	if !s.logged {
		s.logged = true
		s.mux.logger.Debug("%s generation %d finished in %s", s.channel, s.gen, s.mux.reg.now().Sub(s.started))
	}
}
