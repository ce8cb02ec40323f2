package lsp

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
)

// fakeBridge serves pages from memory and lets tests react to Issue.
type fakeBridge struct {
	mu      sync.Mutex
	issued  []IssueParams
	pulls   []PullParams
	items   map[string][]json.RawMessage
	onIssue func(IssueParams)
	onPull  func(PullParams)

	issueErr error
	pullErr  error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{items: make(map[string][]json.RawMessage)}
}

func (b *fakeBridge) Issue(_ context.Context, p IssueParams) error {
	b.mu.Lock()
	b.issued = append(b.issued, p)
	fn, err := b.onIssue, b.issueErr
	b.mu.Unlock()

	if err != nil {
		return err
	}
	if fn != nil {
		fn(p)
	}
	return nil
}

func (b *fakeBridge) Pull(_ context.Context, p PullParams) ([]json.RawMessage, error) {
	b.mu.Lock()
	b.pulls = append(b.pulls, p)
	items, err, fn := b.items[p.Provider], b.pullErr, b.onPull
	b.mu.Unlock()

	if fn != nil {
		fn(p)
	}
	if err != nil {
		return nil, err
	}
	lo, hi := p.Lo-1, p.Hi
	if lo > len(items) {
		lo = len(items)
	}
	if hi > len(items) {
		hi = len(items)
	}
	return items[lo:hi], nil
}

func (b *fakeBridge) pullCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pulls)
}

func numbered(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(strconv.Itoa(i + 1))
	}
	return out
}
