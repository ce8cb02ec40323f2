package luasrc

import "errors"

var (
	// ErrClosed is returned after the bridge or a script is closed.
	ErrClosed = errors.New("luasrc: closed")

	// ErrUnknownReply is returned by Pull for a reply that was never
	// announced as multipart or has been discarded.
	ErrUnknownReply = errors.New("luasrc: unknown multipart reply")
)
