package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/stormcomplete/internal/logging"
)

// Transport handles JSON-RPC 2.0 communication with the host over a stream
// pair, framed with LSP-style Content-Length headers.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger *logging.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *rpcResponse
	handlers map[string]NotificationHandler
	methods  map[string]RequestHandler

	closed atomic.Bool
	done   chan struct{}
}

// NotificationHandler handles incoming notifications from the host.
// Handlers run on the read loop, in arrival order, and must not wait on a
// Call made through the same transport.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler answers a request made by the host. It runs on its own
// goroutine; the returned value or error is sent back as the response.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// rpcRequest represents an outbound JSON-RPC request or notification.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC response in either direction.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// inbound is any message read from the host.
type inbound struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewTransport creates a new transport over the given stream pair.
func NewTransport(r io.Reader, w io.Writer, c io.Closer, logger *logging.Logger) *Transport {
	if logger == nil {
		logger = logging.Null()
	}
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		logger:   logger,
		pending:  make(map[int64]chan *rpcResponse),
		handlers: make(map[string]NotificationHandler),
		methods:  make(map[string]RequestHandler),
		done:     make(chan struct{}),
	}
}

// Start begins reading messages in a new goroutine.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// Done is closed when the transport is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Close closes the transport and releases resources.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	close(t.done)

	// Waiting callers observe t.done; the channels are left open so a late
	// handleResponse cannot send on a closed channel.
	t.mu.Lock()
	t.pending = make(map[int64]chan *rpcResponse)
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// Call sends a request and waits for the response.
func (t *Transport) Call(ctx context.Context, method string, params any, result any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	id := t.nextID.Add(1)
	ch := make(chan *rpcResponse, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.send(&rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrShutdown
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}
}

// Notify sends a notification (no response expected).
func (t *Transport) Notify(_ context.Context, method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}
	return t.send(&rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// OnNotification registers a handler for host notifications.
// The method "*" catches notifications without a dedicated handler.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.handlers[method] = handler
	t.mu.Unlock()
}

// OnRequest registers a handler for host requests.
func (t *Transport) OnRequest(method string, handler RequestHandler) {
	t.mu.Lock()
	t.methods[method] = handler
	t.mu.Unlock()
}

// send writes a message with a Content-Length header.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		msg, err := t.readMessage()
		if err != nil {
			if t.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
				t.logger.Debug("transport closed by peer: %v", err)
				_ = t.Close()
				return
			}
			t.logger.Warn("read message: %v", err)
			continue
		}

		t.dispatch(ctx, msg)
	}
}

func (t *Transport) readMessage() (json.RawMessage, error) {
	var contentLength int
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "content-length") {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				contentLength = n
			}
		}
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (t *Transport) dispatch(ctx context.Context, data json.RawMessage) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		t.logger.Warn("unparseable message: %v", err)
		return
	}

	switch {
	case msg.ID != nil && msg.Method == "":
		t.handleResponse(&rpcResponse{JSONRPC: msg.JSONRPC, ID: *msg.ID, Result: msg.Result, Error: msg.Error})
	case msg.ID != nil:
		t.handleRequest(ctx, *msg.ID, msg.Method, msg.Params)
	case msg.Method != "":
		t.handleNotification(msg.Method, msg.Params)
	}
}

func (t *Transport) handleResponse(resp *rpcResponse) {
	if t.closed.Load() {
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

func (t *Transport) handleRequest(ctx context.Context, id int64, method string, params json.RawMessage) {
	t.mu.Lock()
	handler, ok := t.methods[method]
	t.mu.Unlock()

	if !ok {
		t.respond(id, nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + method})
		return
	}

	go func() {
		result, err := handler(ctx, params)
		if err != nil {
			var rpcErr *RPCError
			if !errors.As(err, &rpcErr) {
				rpcErr = &RPCError{Code: CodeInternalError, Message: err.Error()}
			}
			t.respond(id, nil, rpcErr)
			return
		}
		t.respond(id, result, nil)
	}()
}

func (t *Transport) respond(id int64, result any, rpcErr *RPCError) {
	resp := struct {
		JSONRPC string    `json:"jsonrpc"`
		ID      int64     `json:"id"`
		Result  any       `json:"result"`
		Error   *RPCError `json:"error,omitempty"`
	}{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}
	if rpcErr != nil {
		resp.Result = nil
	}
	if err := t.send(&resp); err != nil {
		t.logger.Warn("respond to %d: %v", id, err)
	}
}

func (t *Transport) handleNotification(method string, params json.RawMessage) {
	t.mu.Lock()
	handler, ok := t.handlers[method]
	if !ok {
		handler, ok = t.handlers["*"]
	}
	t.mu.Unlock()

	if ok && handler != nil {
		handler(method, params)
	}
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}
