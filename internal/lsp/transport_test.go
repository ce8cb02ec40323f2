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
	"testing"
	"time"
)

// mockPipe creates a bidirectional pipe for testing.
type mockPipe struct {
	reader *io.PipeReader
	writer *io.PipeWriter
}

func newMockPipe() *mockPipe {
	r, w := io.Pipe()
	return &mockPipe{reader: r, writer: w}
}

func (p *mockPipe) Close() error {
	p.reader.Close()
	p.writer.Close()
	return nil
}

// mockHost is the far end of a Transport.
type mockHost struct {
	in  *bufio.Reader
	out io.Writer
}

func writeFrame(w io.Writer, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Content-Length: %d\r\n\r\n%s", len(data), data)
	return err
}

func (h *mockHost) send(msg any) error {
	return writeFrame(h.out, msg)
}

func (h *mockHost) read() (map[string]json.RawMessage, error) {
	length := 0
	for {
		line, err := h.in.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			length, _ = strconv.Atoi(v)
		}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(h.in, body); err != nil {
		return nil, err
	}
	var msg map[string]json.RawMessage
	err := json.Unmarshal(body, &msg)
	return msg, err
}

func newTestTransport(t *testing.T) (*Transport, *mockHost) {
	t.Helper()
	toHost := newMockPipe()
	fromHost := newMockPipe()

	closer := closerFunc(func() error {
		toHost.Close()
		fromHost.Close()
		return nil
	})
	tr := NewTransport(fromHost.reader, toHost.writer, closer, nil)
	tr.Start(context.Background())
	t.Cleanup(func() { tr.Close() })

	return tr, &mockHost{in: bufio.NewReader(toHost.reader), out: fromHost.writer}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestTransport_SendNotification(t *testing.T) {
	tr, host := newTestTransport(t)

	errc := make(chan error, 1)
	go func() {
		errc <- tr.Notify(context.Background(), "test/notification", map[string]string{"message": "hello"})
	}()

	msg, err := host.read()
	if err != nil {
		t.Fatalf("read() error = %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if string(msg["jsonrpc"]) != `"2.0"` {
		t.Errorf("jsonrpc = %s", msg["jsonrpc"])
	}
	if string(msg["method"]) != `"test/notification"` {
		t.Errorf("method = %s", msg["method"])
	}
	if _, ok := msg["id"]; ok {
		t.Error("notification should not carry an id")
	}
}

func TestTransport_Call(t *testing.T) {
	tr, host := newTestTransport(t)

	go func() {
		msg, err := host.read()
		if err != nil {
			return
		}
		var id int64
		json.Unmarshal(msg["id"], &id)
		host.send(map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]int{"answer": 42}})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var result struct {
		Answer int `json:"answer"`
	}
	if err := tr.Call(ctx, "test/call", nil, &result); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Answer != 42 {
		t.Errorf("Answer = %d, want 42", result.Answer)
	}
}

func TestTransport_CallError(t *testing.T) {
	tr, host := newTestTransport(t)

	go func() {
		msg, err := host.read()
		if err != nil {
			return
		}
		var id int64
		json.Unmarshal(msg["id"], &id)
		host.send(map[string]any{"jsonrpc": "2.0", "id": id, "error": map[string]any{"code": CodeInvalidParams, "message": "bad"}})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := tr.Call(ctx, "test/call", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Call() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != CodeInvalidParams {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeInvalidParams)
	}
}

func TestTransport_NotificationOrder(t *testing.T) {
	tr, host := newTestTransport(t)

	var mu sync.Mutex
	var got []int
	all := make(chan struct{})
	tr.OnNotification("test/n", func(_ string, params json.RawMessage) {
		var n int
		json.Unmarshal(params, &n)
		mu.Lock()
		got = append(got, n)
		if len(got) == 20 {
			close(all)
		}
		mu.Unlock()
	})

	go func() {
		for i := 0; i < 20; i++ {
			host.send(map[string]any{"jsonrpc": "2.0", "method": "test/n", "params": i})
		}
	}()

	select {
	case <-all:
	case <-time.After(time.Second):
		t.Fatal("notifications not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range got {
		if n != i {
			t.Fatalf("notification %d = %d, order lost: %v", i, n, got)
		}
	}
}

func TestTransport_OnRequest(t *testing.T) {
	tr, host := newTestTransport(t)

	tr.OnRequest("test/double", func(_ context.Context, params json.RawMessage) (any, error) {
		var n int
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, err
		}
		return n * 2, nil
	})

	go host.send(map[string]any{"jsonrpc": "2.0", "id": 7, "method": "test/double", "params": 21})

	msg, err := host.read()
	if err != nil {
		t.Fatalf("read() error = %v", err)
	}
	if string(msg["id"]) != "7" || string(msg["result"]) != "42" {
		t.Errorf("response = id %s result %s", msg["id"], msg["result"])
	}
}

func TestTransport_UnknownRequest(t *testing.T) {
	_, host := newTestTransport(t)

	go host.send(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "test/missing"})

	msg, err := host.read()
	if err != nil {
		t.Fatalf("read() error = %v", err)
	}
	var rpcErr RPCError
	if err := json.Unmarshal(msg["error"], &rpcErr); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if rpcErr.Code != CodeMethodNotFound {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeMethodNotFound)
	}
}

func TestTransport_Closed(t *testing.T) {
	tr, _ := newTestTransport(t)
	tr.Close()

	if !tr.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if err := tr.Call(context.Background(), "x", nil, nil); !errors.Is(err, ErrShutdown) {
		t.Errorf("Call() after Close error = %v, want ErrShutdown", err)
	}
	if err := tr.Notify(context.Background(), "x", nil); !errors.Is(err, ErrShutdown) {
		t.Errorf("Notify() after Close error = %v, want ErrShutdown", err)
	}
	select {
	case <-tr.Done():
	default:
		t.Error("Done() not closed")
	}
}

func TestTransport_PeerEOF(t *testing.T) {
	toHost := newMockPipe()
	fromHost := newMockPipe()
	tr := NewTransport(fromHost.reader, toHost.writer, nil, nil)
	tr.Start(context.Background())

	fromHost.writer.Close()

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("transport did not close on EOF")
	}
}
