// Package memdbg centralises the memory-debugger hooks used by the
// secure memory pool.
//
// The pool maintains a strict access protocol over the pinned regions it
// manages: freshly acquired memory is inaccessible, an allocated range is
// undefined (writable, readable once written), a freed range is
// inaccessible again, and the 8-byte free-list link word inside an unused
// block is defined only for the duration of a single read or write.
//
// In the default build every function here is a no-op and compiles away.
// Building with the `memcheck` tag swaps in a byte-granular state
// registry that panics as soon as the protocol is violated - allocating
// over live memory, freeing memory twice, or touching a range the pool
// never handed out. Tests use it to catch bookkeeping bugs the happy
// path would silently survive.
package memdbg
