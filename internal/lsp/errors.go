package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the request pipeline.
var (
	// ErrShutdown indicates the transport has been shut down.
	ErrShutdown = errors.New("lsp transport shut down")

	// ErrClosed indicates the registry or bridge has been closed.
	ErrClosed = errors.New("lsp registry closed")

	// ErrNoBridge indicates no provider bridge is attached.
	ErrNoBridge = errors.New("no provider bridge")

	// ErrDecode indicates a malformed bridge reply.
	ErrDecode = errors.New("malformed reply")
)

// DecodeError describes a reply that could not be decoded.
// It matches ErrDecode with errors.Is.
type DecodeError struct {
	Channel string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("decode reply on %s: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("decode reply: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// RPCError represents a JSON-RPC error from the host.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeRequestCancelled = -32800
)

// ProviderError wraps a failure raised by a bridge call.
type ProviderError struct {
	Channel string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s on %s: %v", e.Op, e.Channel, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
