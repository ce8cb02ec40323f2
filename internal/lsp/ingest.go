package lsp

import (
	"context"
	"time"

	"github.com/dshills/stormcomplete/internal/logging"
)

// Ingestor is the single entry point bridges use to deliver replies. It may
// be called from any goroutine: the session mutation is handed to the
// channel's executor and the caller blocks until it has been applied.
type Ingestor struct {
	reg    *Registry
	logger *logging.Logger
	now    func() time.Time
}

// NewIngestor creates an ingestor feeding reg.
func NewIngestor(reg *Registry, logger *logging.Logger) *Ingestor {
	if logger == nil {
		logger = logging.Null()
	}
	return &Ingestor{
		reg:    reg,
		logger: logger,
		now:    reg.now,
	}
}

// Current reports the live generation on channel, so bridges can skip work
// for generations that were already superseded.
func (in *Ingestor) Current(channel string) Generation {
	return in.reg.Current(channel)
}

// Deliver decodes a raw bridge reply and ingests it. A malformed reply is
// logged and dropped; the returned error matches ErrDecode.
func (in *Ingestor) Deliver(ctx context.Context, data []byte) error {
	p, err := DecodePayload(data)
	if err != nil {
		in.logger.Warn("dropping reply: %v", err)
		return err
	}
	return in.DeliverPayload(ctx, p)
}

// DeliverPayload ingests an already decoded reply.
func (in *Ingestor) DeliverPayload(ctx context.Context, p Payload) error {
	channel := p.Channel
	gen := *p.Generation

	return in.reg.executorFor(channel).run(ctx, func() {
		reply := p.reply()

		// The first reply of a generation measures from now.
		if started, ok := in.reg.Started(channel, gen); ok {
			reply.Elapsed = in.now().Sub(started)
		}

		if !in.reg.Ingest(channel, gen, reply, p.multipart(), p.Done) {
			in.logger.Debug("ignored reply on %s for generation %d from %q", channel, gen, reply.Provider)
		}
	})
}
