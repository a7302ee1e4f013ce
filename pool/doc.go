// Package pool implements a process-wide allocator for memory that is
// pinned in physical memory, intended for passwords, key material and
// other secrets whose presence in a swap file would be unacceptable.
//
// # Overview
//
// The pool has two tiers. A fixed-block tier holds up to eight one-page
// buckets with block sizes 8, 16, ..., 64 bytes, each guarded by its own
// mutex; it is the fast path for the common case of many small secrets.
// Requests that are larger, or that find their size class full, fall
// through to a large tier: a growing pool of buckets that serve runs of
// contiguous 8-byte blocks under a single mutex.
//
// Every bucket is one page-aligned pinned region carved into equal
// blocks. Fixed-block buckets track free blocks with an intrusive LIFO
// list threaded through the unused blocks themselves; contiguous-blocks
// buckets track occupancy with a bitmap held in ordinary, unpinned
// memory.
//
// # Usage
//
//	buf, err := pool.Allocate(32)
//	if err != nil {
//	    return err
//	}
//	// ... keep the secret in buf ...
//	pool.Deallocate(buf)
//
// The pool does not wipe memory on Deallocate; callers must overwrite
// sensitive contents first. The secure package layers that on top.
//
// # Failure semantics
//
// Allocation fails only when the operating system refuses to provide or
// pin another region, surfaced as ErrOutOfMemory or a
// pagealloc.PinError. The pin quota is typically exhausted long before
// the general heap, so such a failure does not mean the process is out
// of memory. Internal state stays consistent across failures; callers
// may retry or propagate.
//
// # Thread safety
//
// All operations are safe for concurrent use. Operations on one size
// class are linearisable under that class's mutex, operations on the
// large tier under the pool mutex; there is no ordering between the two.
package pool
