// Package pagealloc obtains page-aligned regions of memory that are
// pinned in physical memory, so the operating system never writes their
// contents to swap.
//
// The package is a thin wrapper over the platform primitives: anonymous
// mmap plus mlock on POSIX systems, VirtualAlloc plus VirtualLock on
// Windows. The page size and the pin quota are read once and cached for
// the process lifetime. The quota is advisory only - on POSIX it is the
// soft RLIMIT_MEMLOCK, on Windows a heuristic derived from the minimum
// working-set size - and the authoritative signal remains a failure from
// Acquire.
package pagealloc

import "fmt"

// Provider hands out pinned, page-aligned memory regions.
//
// The production implementation is returned by New. Tests substitute a
// provider backed by ordinary memory so quota exhaustion and pin
// failures can be exercised deterministically.
type Provider interface {
	// Acquire returns n bytes of page-aligned memory whose pages are
	// pinned. n must be a positive multiple of PageSize. The region is
	// marked inaccessible for memory-debugging purposes.
	Acquire(n int) ([]byte, error)

	// Release unpins and releases a region previously returned by
	// Acquire. b must be the exact slice Acquire returned. Underlying
	// errors are ignored; the caller has no recourse.
	Release(b []byte)

	// PageSize is the granularity at which pinning operates.
	PageSize() int

	// Quota is an advisory upper bound, in bytes, on how much memory
	// this process may pin.
	Quota() int
}

// PinError reports that pages were allocated but could not be pinned,
// typically because the pin quota would be exceeded or a permission
// check failed.
type PinError struct {
	Call string // the OS call that failed: "mlock" or "VirtualLock"
	Err  error
}

func (e *PinError) Error() string {
	return fmt.Sprintf("pagealloc: failed to lock memory using %s(): %v", e.Call, e.Err)
}

func (e *PinError) Unwrap() error { return e.Err }
