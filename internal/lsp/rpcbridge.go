package lsp

import (
	"context"
	"encoding/json"

	"github.com/dshills/stormcomplete/internal/logging"
)

// Bridge methods spoken with the host.
const (
	MethodRequest = "stormcomplete/request"
	MethodPull    = "stormcomplete/pull"
	MethodReply   = "stormcomplete/reply"
)

// requestParams is the wire form of IssueParams.
type requestParams struct {
	Channel    string     `json:"channel"`
	Multipart  int        `json:"multipart"`
	Generation Generation `json:"generation"`
	Exclude    []string   `json:"exclude"`
	Args       []any      `json:"args"`
}

// pullParams is the wire form of PullParams.
type pullParams struct {
	Provider   *string    `json:"provider"`
	Channel    string     `json:"channel"`
	Generation Generation `json:"generation"`
	Lo         int        `json:"lo"`
	Hi         int        `json:"hi"`
}

// RPCBridge is a Bridge whose providers live in the host process, reached
// over a JSON-RPC Transport. Replies arrive as MethodReply notifications and
// are handed to the Ingestor.
type RPCBridge struct {
	transport *Transport
	ingestor  *Ingestor
	logger    *logging.Logger
	ctx       context.Context
}

// NewRPCBridge wires a bridge onto t. ctx bounds reply delivery.
func NewRPCBridge(ctx context.Context, t *Transport, in *Ingestor, logger *logging.Logger) *RPCBridge {
	if logger == nil {
		logger = logging.Null()
	}
	b := &RPCBridge{
		transport: t,
		ingestor:  in,
		logger:    logger,
		ctx:       ctx,
	}
	t.OnNotification(MethodReply, b.onReply)
	return b
}

func (b *RPCBridge) onReply(_ string, params json.RawMessage) {
	if err := b.ingestor.Deliver(b.ctx, params); err != nil {
		b.logger.Debug("reply not ingested: %v", err)
	}
}

// Issue implements Bridge.
func (b *RPCBridge) Issue(ctx context.Context, p IssueParams) error {
	exclude := p.Exclude
	if exclude == nil {
		exclude = []string{}
	}
	args := p.Args
	if args == nil {
		args = []any{}
	}
	return b.transport.Notify(ctx, MethodRequest, requestParams{
		Channel:    p.Channel,
		Multipart:  p.Width,
		Generation: p.Generation,
		Exclude:    exclude,
		Args:       args,
	})
}

// Pull implements Bridge.
func (b *RPCBridge) Pull(ctx context.Context, p PullParams) ([]json.RawMessage, error) {
	wire := pullParams{
		Channel:    p.Channel,
		Generation: p.Generation,
		Lo:         p.Lo,
		Hi:         p.Hi,
	}
	if p.Provider != "" {
		wire.Provider = &p.Provider
	}

	var page []json.RawMessage
	if err := b.transport.Call(ctx, MethodPull, wire, &page); err != nil {
		return nil, err
	}
	return page, nil
}

var _ Bridge = (*RPCBridge)(nil)
