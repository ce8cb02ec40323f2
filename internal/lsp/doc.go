// Package lsp carries completion requests from the worker engine to
// out-of-process providers and carries their replies back.
//
// Every request targets a named channel ("lsp_comp", "lsp_inline_comp", ...).
// Each new request on a channel allocates the next generation, which
// supersedes the one before it. Replies from providers are tagged with the
// generation they answer and accumulate in that generation's session until a
// consumer drains them.
//
// # Components
//
//   - Registry: per-channel generation counter and session store
//   - Ingestor: entry point bridges use to deliver replies
//   - Multiplexer: issues requests and returns a Stream per generation
//   - Paginator: pulls fixed-width pages of multipart replies
//   - Transport, RPCBridge: JSON-RPC link to a host that owns the providers
//
// # Usage
//
//	reg := lsp.NewRegistry()
//	bridge := lsp.NewRPCBridge(ctx, transport, lsp.NewIngestor(reg, logger), logger)
//	mux := lsp.NewMultiplexer(reg, bridge, logger)
//
//	stream := mux.Request(ctx, lsp.Request{Channel: lsp.ChannelCompletion, Width: 64})
//	for reply := range stream.All(ctx) {
//	    // decode reply.Message
//	}
//
// A stream ends when its generation completes, when a newer request on the
// same channel supersedes it, or when ctx ends. Supersession is not an error.
//
// # Thread Safety
//
// Registry, Ingestor, Multiplexer and Transport are safe for concurrent use.
// Replies may be delivered from any goroutine; session mutations are
// serialized on a per-channel executor. A Stream belongs to one consumer.
package lsp
