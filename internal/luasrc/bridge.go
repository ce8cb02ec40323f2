package luasrc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/stormcomplete/internal/logging"
	"github.com/dshills/stormcomplete/internal/lsp"
)

// Options configures a Bridge.
type Options struct {
	// Timeout bounds one script call. Zero means DefaultTimeout.
	Timeout time.Duration

	Logger *logging.Logger
}

type script struct {
	name  string
	state *state
}

type replyKey struct {
	channel  string
	gen      lsp.Generation
	provider string
}

// Bridge is an lsp.Bridge whose providers are Lua scripts. Issue runs the
// scripts on a goroutine of its own and hands every answer to the
// Ingestor; the last one completes the generation. Answers longer than the
// requested width are announced as multipart and served by Pull.
type Bridge struct {
	in      *lsp.Ingestor
	timeout time.Duration
	logger  *logging.Logger

	mu       sync.Mutex
	scripts  []*script
	retained map[replyKey][]json.RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge with no scripts.
func New(in *lsp.Ingestor, opts Options) *Bridge {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		in:       in,
		timeout:  timeout,
		logger:   logger,
		retained: make(map[replyKey][]json.RawMessage),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Load compiles a script and registers it under name, replacing any script
// with the same name.
func (b *Bridge) Load(name, code string) error {
	st := newState()
	if err := st.doString(code); err != nil {
		st.close()
		return fmt.Errorf("load %s: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		st.close()
		return ErrClosed
	}

	i := slices.IndexFunc(b.scripts, func(s *script) bool { return s.name == name })
	if i >= 0 {
		b.scripts[i].state.close()
		b.scripts[i] = &script{name: name, state: st}
	} else {
		b.scripts = append(b.scripts, &script{name: name, state: st})
		slices.SortFunc(b.scripts, func(x, y *script) int { return strings.Compare(x.name, y.name) })
	}
	b.logger.Debug("loaded script %s", name)
	return nil
}

// LoadDir replaces the loaded scripts with the *.lua files in dir, each
// named after its file. A script that fails to load is logged and skipped.
func (b *Bridge) LoadDir(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return err
	}

	b.mu.Lock()
	old := b.scripts
	b.scripts = nil
	b.mu.Unlock()
	for _, s := range old {
		s.state.close()
	}

	for _, path := range paths {
		code, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("read script %s: %v", path, err)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), ".lua")
		if err := b.Load(name, string(code)); err != nil {
			b.logger.Warn("%v", err)
		}
	}
	return nil
}

// Names returns the loaded script names in order.
func (b *Bridge) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.scripts))
	for i, s := range b.scripts {
		names[i] = s.name
	}
	return names
}

func function(channel string) string {
	if channel == lsp.ChannelThirdPartyInline {
		return "inline"
	}
	return "complete"
}

// Issue implements lsp.Bridge.
func (b *Bridge) Issue(_ context.Context, p lsp.IssueParams) error {
	args, err := luaArgs(p.Args)
	if err != nil {
		return err
	}

	fn := function(p.Channel)

	b.mu.Lock()
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		return ErrClosed
	}
	var run []*script
	for _, s := range b.scripts {
		if !slices.Contains(p.Exclude, s.name) {
			run = append(run, s)
		}
	}
	b.forget(p.Channel, p.Generation)
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.answer(p, fn, run, args)
	}()
	return nil
}

func luaArgs(args []any) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode script arguments: %w", err)
	}
	var out []any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode script arguments: %w", err)
	}
	return out, nil
}

func (b *Bridge) answer(p lsp.IssueParams, fn string, candidates []*script, args []any) {
	var run []*script
	var peers []*string
	for _, s := range candidates {
		if s.state.has(fn) {
			run = append(run, s)
			peers = append(peers, &s.name)
		}
	}

	if len(run) == 0 {
		b.deliver(lsp.Payload{Channel: p.Channel, Done: true, Payload: json.RawMessage("null")}, p.Generation, peers)
		return
	}

	for i, s := range run {
		if b.in.Current(p.Channel) != p.Generation {
			b.logger.Debug("%s generation %d superseded, %d scripts skipped", p.Channel, p.Generation, len(run)-i)
			return
		}

		ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
		start := time.Now()
		result, err := s.state.call(ctx, fn, args...)
		cancel()

		msg := json.RawMessage("null")
		if err != nil {
			b.logger.Warn("script %s: %v", s.name, err)
		} else if data, err := json.Marshal(result); err != nil {
			b.logger.Warn("script %s returned an unencodable value: %v", s.name, err)
		} else {
			msg = data
		}
		b.logger.Debug("script %s answered %s in %s", s.name, p.Channel, time.Since(start))

		name := s.name
		payload := lsp.Payload{
			Channel:  p.Channel,
			Provider: &name,
			Done:     i == len(run)-1,
			Payload:  msg,
		}
		if width := p.Width; width > 0 {
			if head, items, ok := split(msg); ok && len(items) > width {
				b.retain(replyKey{p.Channel, p.Generation, name}, items)
				payload.Payload = head
				payload.Multipart = &width
			}
		}
		if !b.deliver(payload, p.Generation, peers) {
			return
		}
	}
}

func (b *Bridge) deliver(p lsp.Payload, gen lsp.Generation, peers []*string) bool {
	p.Generation = &gen
	p.PeerNames = peers
	if err := b.in.DeliverPayload(b.ctx, p); err != nil {
		b.logger.Debug("reply on %s not delivered: %v", p.Channel, err)
		return false
	}
	return true
}

// split separates a reply into its items and the message that remains once
// they are taken out, for replies that are an array or carry an "items"
// array.
func split(msg json.RawMessage) (head json.RawMessage, items []json.RawMessage, ok bool) {
	root := gjson.ParseBytes(msg)
	var arr gjson.Result
	switch {
	case root.IsArray():
		arr, head = root, json.RawMessage("[]")
	case root.IsObject() && root.Get("items").IsArray():
		arr = root.Get("items")
		out, err := sjson.SetRawBytes(msg, "items", []byte("[]"))
		if err != nil {
			return nil, nil, false
		}
		head = out
	default:
		return nil, nil, false
	}

	for _, r := range arr.Array() {
		items = append(items, json.RawMessage(r.Raw))
	}
	return head, items, true
}

func (b *Bridge) retain(k replyKey, items []json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained[k] = items
}

// forget drops the retained replies of older generations on channel. Must
// be called with b.mu held.
func (b *Bridge) forget(channel string, gen lsp.Generation) {
	for k := range b.retained {
		if k.channel == channel && k.gen < gen {
			delete(b.retained, k)
		}
	}
}

// Pull implements lsp.Bridge. Pages are 1-based and inclusive.
func (b *Bridge) Pull(_ context.Context, p lsp.PullParams) ([]json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, ok := b.retained[replyKey{p.Channel, p.Generation, p.Provider}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s generation %d", ErrUnknownReply, p.Channel, p.Provider, p.Generation)
	}
	lo := max(p.Lo-1, 0)
	hi := min(p.Hi, len(items))
	if lo >= hi {
		return []json.RawMessage{}, nil
	}
	return items[lo:hi], nil
}

// Close stops pending answers and closes every script.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.cancel()
	scripts := b.scripts
	b.scripts = nil
	b.mu.Unlock()

	b.wg.Wait()
	for _, s := range scripts {
		s.state.close()
	}
	return nil
}

var _ lsp.Bridge = (*Bridge)(nil)
