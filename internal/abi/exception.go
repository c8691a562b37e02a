package abi

import (
	"runtime"
	"strconv"
	"sync"
)

// exceptionState mirrors the thread-local {message, type, stack_trace} slot
// generated code throws into and queries. Go has no goroutine-local storage
// in the standard library, so this emulates one keyed by the calling
// goroutine's ID (parsed from runtime.Stack's header line) — a known,
// if unofficial, substitute for true TLS. Each goroutine's slot is
// independent, matching "thread-local" in spirit: one goroutine's thrown
// exception is invisible to another's query.
type exceptionState struct {
	message    string
	typ        string
	stackTrace string
	has        bool
}

var (
	exceptionsMu sync.Mutex
	exceptions   = make(map[uint64]*exceptionState)
)

func goroutineID() uint64 {
	var buf [64]byte

	n := runtime.Stack(buf[:], false)
	// The header line looks like "goroutine 123 [running]:".
	line := buf[:n]

	start := 0
	for start < len(line) && line[start] != ' ' {
		start++
	}
	start++

	end := start
	for end < len(line) && line[end] != ' ' {
		end++
	}

	id, err := strconv.ParseUint(string(line[start:end]), 10, 64)
	if err != nil {
		return 0
	}

	return id
}

func currentException() *exceptionState {
	id := goroutineID()

	exceptionsMu.Lock()
	defer exceptionsMu.Unlock()

	state, ok := exceptions[id]
	if !ok {
		state = &exceptionState{}
		exceptions[id] = state
	}

	return state
}

//export otter_throw_exception
func otter_throw_exception(msg string) {
	state := currentException()
	state.message = msg
	state.typ = ""
	state.stackTrace = string(capturedStack())
	state.has = true
}

//export otter_throw_typed_exception
func otter_throw_typed_exception(msg, typ string) {
	state := currentException()
	state.message = msg
	state.typ = typ
	state.stackTrace = string(capturedStack())
	state.has = true
}

//export otter_has_exception
func otter_has_exception() bool {
	return currentException().has
}

//export otter_get_exception_message
func otter_get_exception_message() string {
	state := currentException()
	if !state.has {
		return ""
	}

	return state.message
}

//export otter_get_exception_type
func otter_get_exception_type() string {
	state := currentException()
	if !state.has {
		return ""
	}

	return state.typ
}

//export otter_get_exception_stack_trace
func otter_get_exception_stack_trace() string {
	state := currentException()
	if !state.has {
		return ""
	}

	return state.stackTrace
}

//export otter_clear_exception
func otter_clear_exception() {
	id := goroutineID()

	exceptionsMu.Lock()
	delete(exceptions, id)
	exceptionsMu.Unlock()
}

func capturedStack() []byte {
	buf := make([]byte, 4096)

	n := runtime.Stack(buf, false)

	return buf[:n]
}
