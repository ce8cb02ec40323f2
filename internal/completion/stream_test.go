package completion

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dshills/stormcomplete/internal/lsp"
)

// asyncBridge answers each request from its own goroutine a little later,
// the way a real editor bridge does. The first ignore requests are never
// answered.
type asyncBridge struct {
	in       *lsp.Ingestor
	provider string
	payload  string
	ignore   int

	mu     sync.Mutex
	issued int
	wg     sync.WaitGroup
}

func (b *asyncBridge) Issue(_ context.Context, p lsp.IssueParams) error {
	b.mu.Lock()
	b.issued++
	n := b.issued
	b.mu.Unlock()
	if n <= b.ignore {
		return nil
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		time.Sleep(5 * time.Millisecond)
		gen, provider := p.Generation, b.provider
		_ = b.in.DeliverPayload(context.Background(), lsp.Payload{
			Channel:    p.Channel,
			Generation: &gen,
			Provider:   &provider,
			Done:       true,
			Payload:    json.RawMessage(b.payload),
		})
	}()
	return nil
}

func (b *asyncBridge) Pull(context.Context, lsp.PullParams) ([]json.RawMessage, error) {
	return nil, nil
}

func (b *asyncBridge) issueCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issued
}

func newAsyncSource(t *testing.T, channel string, bridge *asyncBridge, client ClientOptions) (*Requester, *lsp.Registry) {
	t.Helper()
	reg := lsp.NewRegistry()
	t.Cleanup(reg.Close)
	bridge.in = lsp.NewIngestor(reg, nil)
	t.Cleanup(bridge.wg.Wait)
	mux := lsp.NewMultiplexer(reg, bridge, nil)
	return NewRequester(mux, channel, 50, client, nil), reg
}

func TestInlineWorkerBackToBack(t *testing.T) {
	bridge := &asyncBridge{provider: "copilot", payload: `{"items":[{"insertText":"foo"}]}`}
	client := ClientOptions{ShortName: "AI", LivePulling: true}
	source, _ := newAsyncSource(t, lsp.ChannelInline, bridge, client)
	w := NewInlineWorker(&fakeCache{}, source, WorkerOptions{Client: client})
	t.Cleanup(w.Close)

	// Every request finishing lets the warmer pull for the last context;
	// that pull must never supersede the next request.
	for i := range 50 {
		got := collect(w.Complete(context.Background(), lineContext("fo")), 0)
		if !slices.Equal(got, []string{"foo"}) {
			t.Fatalf("request %d = %v, want [foo]", i, got)
		}
	}
}

func TestWorkerBackToBack(t *testing.T) {
	bridge := &asyncBridge{provider: "gopls", payload: `{"isIncomplete":true,"items":[{"label":"foo"}]}`}
	client := ClientOptions{ShortName: "LSP"}
	source, _ := newAsyncSource(t, lsp.ChannelCompletion, bridge, client)
	w := newTestWorker(t, &fakeCache{lookup: CacheLookup{Usable: true}}, source, WorkerOptions{Client: client})

	for i := range 50 {
		got := collect(w.Complete(context.Background(), lineContext("fo")), 0)
		if !slices.Equal(got, []string{"foo"}) {
			t.Fatalf("request %d = %v, want [foo]", i, got)
		}
	}
	if n := bridge.issueCount(); n < 50 {
		t.Errorf("bridge saw %d requests, want at least 50", n)
	}
}

func TestWorkerRequestDuringRefill(t *testing.T) {
	bridge := &asyncBridge{provider: "gopls", payload: `{"isIncomplete":true,"items":[{"label":"foo"}]}`}
	client := ClientOptions{ShortName: "LSP"}
	source, _ := newAsyncSource(t, lsp.ChannelCompletion, bridge, client)
	w := newTestWorker(t, &fakeCache{lookup: CacheLookup{Usable: true}}, source, WorkerOptions{Client: client})

	collect(w.Complete(context.Background(), lineContext("fo")), 0)

	// The warmer's refill is now waiting on the bridge; a request arriving
	// meanwhile takes the channel over and still gets its answer.
	eventually(t, "refill issued", func() bool { return bridge.issueCount() == 2 })
	got := collect(w.Complete(context.Background(), lineContext("fo")), 0)
	if !slices.Equal(got, []string{"foo"}) {
		t.Errorf("items = %v, want [foo]", got)
	}
}

func TestWorkerSupersedesStuckRequest(t *testing.T) {
	bridge := &asyncBridge{provider: "gopls", payload: `{"isIncomplete":true,"items":[{"label":"foo"}]}`, ignore: 1}
	client := ClientOptions{ShortName: "LSP"}
	source, reg := newAsyncSource(t, lsp.ChannelCompletion, bridge, client)
	w := newTestWorker(t, &fakeCache{lookup: CacheLookup{Usable: true}}, source, WorkerOptions{Client: client})

	first := make(chan []string, 1)
	go func() {
		first <- collect(w.Complete(context.Background(), lineContext("fo")), 0)
	}()
	eventually(t, "first request issued", func() bool { return bridge.issueCount() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got := collect(w.Complete(ctx, lineContext("fo")), 0)
	if ctx.Err() != nil {
		t.Fatal("second request waited on the unanswered one")
	}
	if !slices.Equal(got, []string{"foo"}) {
		t.Errorf("second request = %v, want [foo]", got)
	}

	select {
	case items := <-first:
		if len(items) != 0 {
			t.Errorf("unanswered request yielded %v", items)
		}
	case <-time.After(time.Second):
		t.Fatal("unanswered request is still running")
	}
	if gen := reg.Current(lsp.ChannelCompletion); gen < 2 {
		t.Errorf("current generation = %d, want the second request's", gen)
	}
}
