// Package app wires the completion pipeline together: settings, the
// registry and its bridges, the caches and one worker per completion kind.
package app

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/dshills/stormcomplete/internal/cache"
	"github.com/dshills/stormcomplete/internal/completion"
	"github.com/dshills/stormcomplete/internal/config"
	"github.com/dshills/stormcomplete/internal/kv"
	"github.com/dshills/stormcomplete/internal/logging"
	"github.com/dshills/stormcomplete/internal/lsp"
	"github.com/dshills/stormcomplete/internal/luasrc"
)

// Kind selects a completion worker.
type Kind string

// Completion kinds.
const (
	KindCompletion       Kind = "completion"
	KindInline           Kind = "inline"
	KindThirdParty       Kind = "third_party"
	KindThirdPartyInline Kind = "third_party_inline"
)

// Kinds lists every completion kind.
var Kinds = []Kind{KindCompletion, KindInline, KindThirdParty, KindThirdPartyInline}

// worker is what Application needs from completion.Worker and
// completion.InlineWorker.
type worker interface {
	Complete(ctx context.Context, c completion.Context) iter.Seq[completion.Item]
	Interrupt()
	Close()
}

// Options configures an Application.
type Options struct {
	Settings *config.Settings
	Logger   *logging.Logger

	// Host builds the bridge to the host's language servers. Nil leaves
	// the completion and inline kinds without providers.
	Host func(in *lsp.Ingestor) lsp.Bridge
}

// Application is the composition root of the completion pipeline.
type Application struct {
	logger *logging.Logger

	reg      *lsp.Registry
	ingestor *lsp.Ingestor
	hostMux  *lsp.Multiplexer
	scripts  *luasrc.Bridge
	luaMux   *lsp.Multiplexer
	store    kv.Store
	caches   map[Kind]*cache.Cache

	mu       sync.RWMutex
	settings *config.Settings
	workers  map[Kind]worker
	closed   bool
}

// New builds the pipeline for opts.Settings and warms the caches from the
// persisted store.
func New(opts Options) (*Application, error) {
	s := opts.Settings
	if s == nil {
		s = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}

	a := &Application{
		logger:   logger,
		settings: s,
		caches:   make(map[Kind]*cache.Cache, len(Kinds)),
	}

	a.reg = lsp.NewRegistry(lsp.WithRegistryLogger(logger.WithComponent("lsp")))
	a.ingestor = lsp.NewIngestor(a.reg, logger.WithComponent("lsp"))

	var host lsp.Bridge
	if opts.Host != nil {
		host = opts.Host(a.ingestor)
	}
	a.hostMux = lsp.NewMultiplexer(a.reg, host, logger.WithComponent("lsp"))

	a.scripts = luasrc.New(a.ingestor, luasrc.Options{
		Timeout: s.Scripts.Timeout.Std(),
		Logger:  logger.WithComponent("luasrc"),
	})
	a.luaMux = lsp.NewMultiplexer(a.reg, a.scripts, logger.WithComponent("luasrc"))
	if s.Scripts.Dir != "" {
		if err := a.scripts.LoadDir(s.Scripts.Dir); err != nil {
			logger.Warn("loading scripts from %s: %v", s.Scripts.Dir, err)
		}
	}

	store, err := openStore(s, logger)
	if err != nil {
		a.scripts.Close()
		a.reg.Close()
		return nil, &InitError{Component: "cache store", Err: err}
	}
	a.store = store

	ctx := context.Background()
	for _, kind := range Kinds {
		c := cache.New(cache.Options{
			Namespace: string(kind),
			Match:     s.MatchOptions(),
			Store:     store,
			Logger:    logger.WithComponent("cache"),
		})
		if err := c.Warm(ctx); err != nil {
			logger.Warn("warming %s cache: %v", kind, err)
		}
		a.caches[kind] = c
	}

	a.workers = a.buildWorkers(s)
	logger.Info("completion pipeline ready with %d workers", len(a.workers))
	return a, nil
}

func openStore(s *config.Settings, logger *logging.Logger) (kv.Store, error) {
	opts := &kv.Options{TTL: s.Cache.TTL.Std()}
	if s.Cache.Dir == "" {
		return kv.NewMemory(opts), nil
	}
	return kv.NewBadger(kv.BadgerOptions{
		Options: opts,
		Dir:     s.Cache.Dir,
		Logger:  logger,
	})
}

func (a *Application) buildWorkers(s *config.Settings) map[Kind]worker {
	match := s.MatchOptions()
	width := s.Bridge.Multipart
	workers := make(map[Kind]worker, len(Kinds))

	add := func(kind Kind, client config.ClientSettings, mux *lsp.Multiplexer, channel string, inline bool) {
		if !client.Enabled {
			return
		}
		logger := a.logger.WithComponent("worker").WithField("kind", string(kind))
		source := completion.NewRequester(mux, channel, width, client.Options(), logger)
		opts := completion.WorkerOptions{
			Name:   string(kind),
			Match:  match,
			Client: client.Options(),
			Chunk:  s.Cache.Chunk,
			Logger: logger,
		}
		if inline {
			workers[kind] = completion.NewInlineWorker(a.caches[kind], source, opts)
		} else {
			workers[kind] = completion.NewWorker(a.caches[kind], source, opts)
		}
	}

	add(KindCompletion, s.Clients.LSP, a.hostMux, lsp.ChannelCompletion, false)
	add(KindInline, s.Clients.Inline, a.hostMux, lsp.ChannelInline, true)
	add(KindThirdParty, s.Clients.ThirdParty, a.luaMux, lsp.ChannelThirdParty, false)
	add(KindThirdPartyInline, s.Clients.ThirdParty, a.luaMux, lsp.ChannelThirdPartyInline, true)
	return workers
}

// Settings returns the settings in effect.
func (a *Application) Settings() *config.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// Ingestor returns the entry point for provider replies.
func (a *Application) Ingestor() *lsp.Ingestor {
	return a.ingestor
}

// Complete returns the completions of the given kind for c. Every warm pass
// in progress is interrupted first so the request does not compete with
// background cache writes.
func (a *Application) Complete(ctx context.Context, kind Kind, c completion.Context) (iter.Seq[completion.Item], error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	w, ok := a.workers[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	for _, other := range a.workers {
		other.Interrupt()
	}
	return w.Complete(ctx, c), nil
}

// Reload applies new settings. Workers are rebuilt with the new match and
// client settings; the caches keep their contents. Scripts are reloaded
// from the configured directory. The store and the script timeout are fixed
// at startup.
func (a *Application) Reload(s *config.Settings) {
	a.logger.SetLevel(s.LogLevel())

	if s.Scripts.Dir != "" {
		if err := a.scripts.LoadDir(s.Scripts.Dir); err != nil {
			a.logger.Warn("reloading scripts from %s: %v", s.Scripts.Dir, err)
		}
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	old := a.workers
	a.settings = s
	for _, c := range a.caches {
		c.SetMatch(s.MatchOptions())
	}
	a.workers = a.buildWorkers(s)
	a.mu.Unlock()

	for _, w := range old {
		w.Close()
	}
	a.logger.Info("settings reloaded")
}

// Close stops every worker and releases the bridges and the store.
func (a *Application) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	workers := a.workers
	a.workers = nil
	a.mu.Unlock()

	for _, w := range workers {
		w.Close()
	}

	var errs []error
	if err := a.scripts.Close(); err != nil {
		errs = append(errs, err)
	}
	a.reg.Close()
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
