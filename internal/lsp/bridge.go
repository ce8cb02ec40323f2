package lsp

import (
	"context"
	"encoding/json"
)

// IssueParams is the outbound request handed to a provider bridge.
type IssueParams struct {
	Channel    string
	Width      int
	Exclude    []string
	Generation Generation
	Args       []any
}

// PullParams asks a bridge for one page of a multipart reply. Lo and Hi are
// 1-based and inclusive.
type PullParams struct {
	Width      int
	Channel    string
	Provider   string
	Generation Generation
	Lo         int
	Hi         int
}

// Bridge is the out-of-process side that talks to providers.
//
// Issue is fire-and-forget: replies come back asynchronously through an
// Ingestor. Pull returns one page of a reply that declared itself
// multipart; a page shorter than the requested width ends the stream.
type Bridge interface {
	Issue(ctx context.Context, p IssueParams) error
	Pull(ctx context.Context, p PullParams) ([]json.RawMessage, error)
}
