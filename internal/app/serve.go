package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/dshills/stormcomplete/internal/completion"
	"github.com/dshills/stormcomplete/internal/config"
	"github.com/dshills/stormcomplete/internal/logging"
	"github.com/dshills/stormcomplete/internal/lsp"
)

// MethodComplete is the host request asking for completions.
const MethodComplete = "stormcomplete/complete"

// CompleteParams is the wire form of a completion request.
type CompleteParams struct {
	Kind     Kind   `json:"kind"`
	BufID    int    `json:"buf_id"`
	Filename string `json:"filename"`
	Filetype string `json:"filetype"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Line     string `json:"line"`
	Manual   bool   `json:"manual"`
}

// Context converts p into a completion context.
func (p CompleteParams) Context() completion.Context {
	c := completion.NewContext(p.BufID, p.Row, p.Line, p.Col, p.Manual)
	c.Filename = p.Filename
	c.Filetype = p.Filetype
	if c.Filetype == "" && p.Filename != "" {
		c.Filetype = lsp.DetectLanguageID(p.Filename)
	}
	return c
}

// CompleteResult is the response to MethodComplete.
type CompleteResult struct {
	Items []completion.Item `json:"items"`
}

// ServeOptions configures Serve.
type ServeOptions struct {
	Settings *config.Settings
	Logger   *logging.Logger

	// ConfigPath enables hot reload of the settings file and the scripts
	// directory when set.
	ConfigPath string
}

// Serve runs the completion service over the stream pair until ctx ends or
// the host closes the stream.
func Serve(ctx context.Context, r io.Reader, w io.Writer, opts ServeOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}

	var closer io.Closer
	if c, ok := r.(io.Closer); ok {
		closer = c
	}
	t := lsp.NewTransport(r, w, closer, logger.WithComponent("transport"))

	a, err := New(Options{
		Settings: opts.Settings,
		Logger:   logger,
		Host: func(in *lsp.Ingestor) lsp.Bridge {
			return lsp.NewRPCBridge(ctx, t, in, logger.WithComponent("bridge"))
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	t.OnRequest(MethodComplete, a.handleComplete)

	if opts.ConfigPath != "" {
		watcher, err := config.NewWatcher(opts.ConfigPath, config.WithLogger(logger.WithComponent("config")))
		if err != nil {
			_ = t.Close()
			return &InitError{Component: "config watcher", Err: err}
		}
		defer watcher.Close()

		if dir := a.Settings().Scripts.Dir; dir != "" {
			if err := watcher.Watch(dir); err != nil {
				logger.Warn("watching scripts in %s: %v", dir, err)
			}
		}
		watcher.OnChange(a.Reload)
	}

	t.Start(ctx)
	logger.Info("serving completions")

	select {
	case <-ctx.Done():
	case <-t.Done():
	}
	_ = t.Close()
	logger.Info("completion service stopped")
	return nil
}

func (a *Application) handleComplete(ctx context.Context, raw json.RawMessage) (any, error) {
	var p CompleteParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &lsp.RPCError{Code: lsp.CodeInvalidParams, Message: err.Error()}
	}

	items, err := a.Complete(ctx, p.Kind, p.Context())
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return nil, &lsp.RPCError{Code: lsp.CodeInvalidParams, Message: err.Error() + ": " + string(p.Kind)}
		}
		return nil, err
	}

	result := CompleteResult{Items: []completion.Item{}}
	for item := range items {
		result.Items = append(result.Items, item)
	}
	return result, nil
}
