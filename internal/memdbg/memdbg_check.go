//go:build memcheck

package memdbg

import (
	"fmt"
	"sync"
	"unsafe"
)

// Enabled reports whether the access-state registry is compiled in.
const Enabled = true

type state uint8

const (
	stateNoAccess state = iota
	stateUndefined
	stateDefined
)

var (
	mu sync.Mutex
	// per-byte access state, keyed by address; bytes the pool never
	// touched have no entry
	states = map[uintptr]state{}
)

// NoAccess marks b as inaccessible. Panics if any byte of b is already
// inaccessible (a double free).
func NoAccess(b []byte) { set(b, stateNoAccess) }

// Undefined marks b as allocated but not yet written. Panics if any byte
// of b is already undefined or defined (allocating over live memory).
func Undefined(b []byte) { set(b, stateUndefined) }

// Defined marks b as readable and writable. Used for the free-list link
// word, which is legitimately touched while its block is unallocated.
func Defined(b []byte) { set(b, stateDefined) }

func set(b []byte, st state) {
	if len(b) == 0 {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	addr := uintptr(unsafe.Pointer(&b[0]))
	for i := range b {
		cur, known := states[addr+uintptr(i)]
		if known {
			switch {
			case st == stateNoAccess && cur == stateNoAccess:
				panic(fmt.Sprintf("memdbg: byte %#x marked inaccessible twice", addr+uintptr(i)))
			case st == stateUndefined && cur != stateNoAccess:
				panic(fmt.Sprintf("memdbg: byte %#x allocated while still live", addr+uintptr(i)))
			}
		}
		states[addr+uintptr(i)] = st
	}
}

// Forget drops all state for b. Called when a region is returned to the
// operating system; without this, a later mapping at the same address
// would inherit stale states.
func Forget(b []byte) {
	if len(b) == 0 {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	addr := uintptr(unsafe.Pointer(&b[0]))
	for i := range b {
		delete(states, addr+uintptr(i))
	}
}
