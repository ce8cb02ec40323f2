package completion

import (
	"context"

	"github.com/dshills/stormcomplete/internal/logging"
	"github.com/dshills/stormcomplete/internal/lsp"
)

// Source opens a live request for a context. The returned channel delivers
// one batch per provider reply and is closed when the request ends, is
// superseded, or ctx is done.
type Source interface {
	Request(ctx context.Context, c Context, exclude map[string]struct{}) <-chan Batch
}

// ClientOptions describe one completion client.
type ClientOptions struct {
	ShortName    string
	WeightAdjust float64
	AlwaysOnTop  []string

	// PullLimit caps non-manual results; zero falls back to
	// MatchOptions.MaxResults.
	PullLimit int

	// LivePulling lets the inline worker request providers on the
	// interactive path instead of serving only what the warmer stored.
	LivePulling bool
}

// Requester is the Source for one bridge channel.
type Requester struct {
	mux     *lsp.Multiplexer
	channel string
	width   int
	client  ClientOptions
	logger  *logging.Logger
}

// NewRequester creates a source on channel. width is the page width
// providers use for multipart replies.
func NewRequester(mux *lsp.Multiplexer, channel string, width int, client ClientOptions, logger *logging.Logger) *Requester {
	if logger == nil {
		logger = logging.Null()
	}
	return &Requester{
		mux:     mux,
		channel: channel,
		width:   width,
		client:  client,
		logger:  logger,
	}
}

func (r *Requester) inline() bool {
	return r.channel == lsp.ChannelInline || r.channel == lsp.ChannelThirdPartyInline
}

func (r *Requester) thirdParty() bool {
	return r.channel == lsp.ChannelThirdParty || r.channel == lsp.ChannelThirdPartyInline
}

// Channel returns the bridge channel the requester reads.
func (r *Requester) Channel() string {
	return r.channel
}

// Request implements Source. The generation is opened before Request
// returns, so a later Request on the same channel always supersedes it.
func (r *Requester) Request(ctx context.Context, c Context, exclude map[string]struct{}) <-chan Batch {
	args := []any{c.Cursor}
	if r.thirdParty() {
		args = append(args, c.Line)
	}

	stream := r.mux.Request(ctx, lsp.Request{
		Channel: r.channel,
		Width:   r.width,
		Exclude: exclude,
		Args:    args,
	})

	out := make(chan Batch)
	go func() {
		defer close(out)
		for reply := range stream.All(ctx) {
			batch := r.parse(reply, c)
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (r *Requester) parse(reply lsp.Reply, c Context) Batch {
	opts := ParseOptions{
		ShortName:    r.client.ShortName,
		WeightAdjust: r.client.WeightAdjust,
		AlwaysOnTop:  r.client.AlwaysOnTop,
		Cursor:       c.Cursor,
		Lua:          r.channel == lsp.ChannelThirdParty,
		Logger:       r.logger,
	}

	// Third-party scripts show under their own name; anonymous inline
	// replies go by the client's short name.
	switch r.channel {
	case lsp.ChannelThirdParty:
		if reply.Provider != "" {
			opts.ShortName = reply.Provider
		}
	case lsp.ChannelThirdPartyInline:
		if reply.Provider == "" {
			reply.Provider = r.client.ShortName
		}
	}

	if r.inline() {
		return ParseInline(reply, opts)
	}
	return Parse(reply, opts)
}
