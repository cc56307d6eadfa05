// Package luahook compiles Lua scripts into channel hooks, letting
// validation and transformation rules live in preset files instead of
// compiled code.
//
// A script sees the published value as the global `value` and returns
// its result:
//
//	validate:  "return type(value) == 'number' and value >= 0"
//	transform: "return value * 2"
//
// Each Hook owns a private, sandboxed Lua state guarded by a mutex, so
// a compiled hook is safe to call from any goroutine. Script errors
// panic; the bus recovers and logs them like any other hook failure.
package luahook

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/statebus"
)

// Hook is a compiled Lua script usable as a channel or listener hook.
type Hook struct {
	mu  sync.Mutex
	ls  *lua.LState
	fn  *lua.LFunction
	src string
}

// Compile parses src into a reusable hook. The script must return a
// value.
func Compile(src string) (*Hook, error) {
	ls := lua.NewState()
	sandbox(ls)

	fn, err := ls.LoadString(src)
	if err != nil {
		ls.Close()
		return nil, fmt.Errorf("luahook: compiling script: %w", err)
	}
	return &Hook{ls: ls, fn: fn, src: src}, nil
}

// Source returns the script the hook was compiled from.
func (h *Hook) Source() string {
	return h.src
}

// Close releases the hook's Lua state. A closed hook must not be
// called again.
func (h *Hook) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ls.Close()
}

// Validator adapts the hook to a validate function. The script's
// result is truthy-tested the Lua way: false and nil reject, anything
// else accepts.
func (h *Hook) Validator() statebus.ValidateFunc {
	return func(v any) bool {
		ret := h.call(v)
		return lua.LVAsBool(ret)
	}
}

// Transformer adapts the hook to a transform function.
func (h *Hook) Transformer() statebus.TransformFunc {
	return func(v any) any {
		return toGo(h.call(v))
	}
}

// call runs the compiled chunk with value bound, returning its first
// result. Errors panic for the bus to recover.
func (h *Hook) call(v any) lua.LValue {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ls.SetGlobal("value", toLua(h.ls, v))
	h.ls.Push(h.fn)
	if err := h.ls.PCall(0, 1, nil); err != nil {
		panic(fmt.Errorf("luahook: %w", err))
	}
	ret := h.ls.Get(-1)
	h.ls.Pop(1)
	return ret
}

// sandbox strips the state down to pure computation: no filesystem,
// no shell, no dynamic code loading.
func sandbox(ls *lua.LState) {
	for _, name := range []string{
		"dofile",
		"loadfile",
		"load",
		"loadstring",
		"io",
		"os",
		"debug",
	} {
		ls.SetGlobal(name, lua.LNil)
	}
}

// toLua converts a Go value for the script.
func toLua(ls *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		t := ls.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, toLua(ls, item))
		}
		return t
	case map[string]any:
		t := ls.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(ls, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// toGo converts a script result back to a Go value. Integral numbers
// come back as int64, everything else as float64.
func toGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		return tableToGo(v)
	default:
		return nil
	}
}

// tableToGo converts a table to a slice when its keys are the
// contiguous integers from 1, and to a map otherwise.
func tableToGo(t *lua.LTable) any {
	maxN := 0
	count := 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		kn, ok := k.(lua.LNumber)
		if !ok || float64(kn) != float64(int(kn)) || int(kn) < 1 {
			isArray = false
			return
		}
		if int(kn) > maxN {
			maxN = int(kn)
		}
	})

	if isArray && maxN == count && maxN > 0 {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = toGo(t.RawGetInt(i))
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = toGo(v)
	})
	return m
}
