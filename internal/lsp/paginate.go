package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// PageRequest identifies the multipart reply to pull.
type PageRequest struct {
	Channel    string
	Provider   string
	Generation Generation
	Width      int
}

// Paginator pulls successive fixed-width pages of a multipart reply.
type Paginator struct {
	reg    *Registry
	bridge Bridge
}

// NewPaginator creates a paginator pulling from bridge.
func NewPaginator(reg *Registry, bridge Bridge) *Paginator {
	return &Paginator{reg: reg, bridge: bridge}
}

// Pages yields pages [1,n], [n+1,2n], ... until a page shorter than n
// arrives, the generation is superseded, or the bridge fails. A bridge
// failure is yielded once as an error and ends the sequence.
func (p *Paginator) Pages(ctx context.Context, req PageRequest) iter.Seq2[[]json.RawMessage, error] {
	return func(yield func([]json.RawMessage, error) bool) {
		n := req.Width
		if n <= 0 {
			return
		}

		lo, hi := 1, n
		for {
			if p.reg.Current(req.Channel) != req.Generation {
				return
			}
			if ctx.Err() != nil {
				return
			}

			part, err := p.bridge.Pull(ctx, PullParams{
				Width:      n,
				Channel:    req.Channel,
				Provider:   req.Provider,
				Generation: req.Generation,
				Lo:         lo,
				Hi:         hi,
			})
			if err != nil {
				yield(nil, &ProviderError{Channel: req.Channel, Op: "pull", Err: err})
				return
			}

			if !yield(part, nil) {
				return
			}
			if len(part) < n {
				return
			}

			lo = hi + 1
			hi += n
		}
	}
}

// Reassemble builds the message for one page of a multipart reply. When the
// original message is an object carrying an "items" array, the page replaces
// that field; otherwise the page replaces the whole message.
func Reassemble(original json.RawMessage, page []json.RawMessage) json.RawMessage {
	arr := encodePage(page)

	if gjson.ValidBytes(original) {
		root := gjson.ParseBytes(original)
		if root.IsObject() && root.Get("items").IsArray() {
			out, err := sjson.SetRawBytes(original, "items", arr)
			if err == nil {
				return out
			}
		}
	}
	return arr
}

func encodePage(page []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, raw := range page {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(raw) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
