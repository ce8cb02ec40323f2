package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Channel names used by the completion workers.
const (
	ChannelCompletion       = "lsp_comp"
	ChannelInline           = "lsp_inline_comp"
	ChannelThirdParty       = "lsp_third_party"
	ChannelThirdPartyInline = "lsp_inline_third_party"
)

// Generation identifies one logical request attempt on a channel.
// Generations increase monotonically per channel, starting at 1.
type Generation int64

// Reply is one provider's answer to a request, as seen by the consumer.
// Replies are immutable once ingested.
type Reply struct {
	// Provider is the provider name. Empty means local / no specific provider.
	Provider string

	// Peers is the set of provider names the bridge knew when replying.
	Peers map[string]struct{}

	// Encoding is the text-offset encoding the provider uses.
	Encoding Encoding

	// Elapsed is the latency since the request began.
	Elapsed time.Duration

	// Message is the raw provider message.
	Message json.RawMessage
}

// Entry is an accumulated reply together with its declared multipart size.
// Multipart is zero when the reply is complete on its own.
type Entry struct {
	Reply     Reply
	Multipart int
}

// Payload is the inbound reply delivered by a provider bridge.
type Payload struct {
	Multipart  *int            `json:"multipart,omitempty"`
	Channel    string          `json:"channel"`
	Method     *string         `json:"method,omitempty"`
	Generation *Generation     `json:"generation"`
	Encoding   *string         `json:"encoding,omitempty"`
	Provider   *string         `json:"provider,omitempty"`
	Done       bool            `json:"done"`
	Payload    json.RawMessage `json:"payload"`
	PeerNames  []*string       `json:"peer_names"`
}

// DecodePayload decodes a raw bridge reply. Any malformed field fails the
// whole reply.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Payload{}, &DecodeError{Err: err}
	}

	if p.Channel == "" {
		return Payload{}, &DecodeError{Err: fmt.Errorf("missing channel")}
	}
	if p.Generation == nil {
		return Payload{}, &DecodeError{Channel: p.Channel, Err: fmt.Errorf("missing generation")}
	}
	if p.Multipart != nil && *p.Multipart < 0 {
		return Payload{}, &DecodeError{Channel: p.Channel, Err: fmt.Errorf("negative multipart size %d", *p.Multipart)}
	}

	return p, nil
}

// multipart returns the declared page width, or zero.
func (p Payload) multipart() int {
	if p.Multipart == nil {
		return 0
	}
	return *p.Multipart
}

// reply builds the Reply for this payload. Elapsed is filled by the Ingestor.
func (p Payload) reply() Reply {
	r := Reply{
		Peers:   make(map[string]struct{}, len(p.PeerNames)),
		Message: p.Payload,
	}
	if p.Provider != nil {
		r.Provider = *p.Provider
	}
	if p.Encoding != nil {
		r.Encoding = ParseEncoding(*p.Encoding)
	} else {
		r.Encoding = ParseEncoding("")
	}
	for _, name := range p.PeerNames {
		if name != nil && *name != "" {
			r.Peers[*name] = struct{}{}
		}
	}
	return r
}
