// Package luasrc runs third-party completion sources written in Lua.
//
// Each script is loaded into its own sandboxed gopher-lua state and may
// define two global functions:
//
//	function complete(cursor, line) ... end -- completion items
//	function inline(cursor, line) ... end   -- inline suggestions
//
// cursor is {row, byte, utf16, utf32} and line is the full cursor line.
// Either function returns an array of LSP-shaped item tables, a completion
// list table, or nil. Bridge exposes the scripts to the request multiplexer
// on the third-party channels.
package luasrc

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultTimeout bounds one script call.
const DefaultTimeout = 2 * time.Second

// state is a sandboxed Lua state. gopher-lua states are not goroutine-safe;
// every access goes through mu.
type state struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

func newState() *state {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// No io, os, debug or package. Strip loaders from base as well.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	return &state{L: L}
}

// doString runs a chunk, typically the script body.
func (s *state) doString(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return recovered(func() error { return s.L.DoString(code) })
}

// has reports whether the script defines the global function fn.
func (s *state) has(fn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.L.GetGlobal(fn).Type() == lua.LTFunction
}

// call invokes the global function fn with Go arguments and returns its
// first result converted to Go values. ctx interrupts a runaway script.
func (s *state) call(ctx context.Context, fn string, args ...any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f := s.L.GetGlobal(fn)
	if f.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%q is not a function (got %s)", fn, f.Type())
	}

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	top := s.L.GetTop()
	var out any
	err := recovered(func() error {
		s.L.Push(f)
		for _, a := range args {
			s.L.Push(toLua(s.L, a))
		}
		if err := s.L.PCall(len(args), 1, nil); err != nil {
			return err
		}
		out = toGo(s.L.Get(-1))
		return nil
	})
	s.L.SetTop(top)
	return out, err
}

func (s *state) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.Close()
		s.closed = true
	}
}

func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
