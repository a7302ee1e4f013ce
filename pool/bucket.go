package pool

import (
	"unsafe"

	"github.com/joshuapare/securemem/internal/memdbg"
	"github.com/joshuapare/securemem/internal/pagealloc"
)

// strategy manages which blocks of a bucket are in use. It is bound to
// one bucket at construction and never changes. Implementations are not
// safe for concurrent use; the enclosing bucket's owner serialises
// access.
type strategy interface {
	// allocateBlocks finds count adjacent free blocks, marks them in
	// use and returns the byte offset of the first one. ok is false
	// when no such run exists.
	allocateBlocks(count int) (offset int, ok bool)

	// deallocateBlocks marks the count blocks starting at offset free.
	deallocateBlocks(offset, count int)
}

// bucket is a single page-aligned pinned region carved into blockCount
// equally sized blocks. Bucket identity is the address of its backing
// region, which is unique while the bucket is alive and never changes.
type bucket struct {
	mem  []byte
	base uintptr

	size       int // total bytes, a multiple of the page size
	blockSize  int
	blockCount int
	freeBlocks int

	strat strategy
}

// newBucket acquires a pinned region of size bytes from the provider
// and initialises the allocation strategy over it. size must be a
// positive multiple of the provider's page size, and blockSize must be
// at least linkWordSize so the fixed-block free list fits in a block.
func newBucket(provider pagealloc.Provider, size, blockSize int, mkStrategy func(*bucket) strategy) (*bucket, error) {
	if blockSize < linkWordSize {
		panic("securemem: block size is too small to hold a free-list link")
	}

	mem, err := provider.Acquire(size)
	if err != nil {
		return nil, err
	}

	b := &bucket{
		mem:        mem,
		base:       uintptr(unsafe.Pointer(&mem[0])),
		size:       size,
		blockSize:  blockSize,
		blockCount: size / blockSize,
	}
	b.freeBlocks = b.blockCount
	b.strat = mkStrategy(b)
	return b, nil
}

// release returns the backing region to the provider. The bucket must
// not be used afterwards.
func (b *bucket) release(provider pagealloc.Provider) {
	provider.Release(b.mem)
	b.mem = nil
}

// contains reports whether addr lies within the backing region.
func (b *bucket) contains(addr uintptr) bool {
	return addr >= b.base && addr < b.base+uintptr(b.size)
}

func (b *bucket) isEmpty() bool { return b.freeBlocks == b.blockCount }

func (b *bucket) isFull() bool { return b.freeBlocks == 0 }

// allocate serves n bytes, rounded up to a whole number of blocks. The
// returned slice has length n and capacity equal to the rounded size.
// ok is false when the bucket cannot serve the request.
func (b *bucket) allocate(n int) ([]byte, bool) {
	count := ceilDiv(n, b.blockSize)
	if count > b.freeBlocks {
		return nil, false
	}

	off, ok := b.strat.allocateBlocks(count)
	if !ok {
		return nil, false
	}

	b.freeBlocks -= count
	buf := b.mem[off : off+n : off+count*b.blockSize]
	memdbg.Undefined(buf)
	return buf, true
}

// deallocate returns buf to the bucket. buf must have been returned by
// allocate on this bucket, with its original length.
func (b *bucket) deallocate(buf []byte) {
	off := int(uintptr(unsafe.Pointer(&buf[0])) - b.base)
	count := ceilDiv(len(buf), b.blockSize)

	// Mark exactly the bytes allocate marked undefined. The tail of the
	// last block was never handed out and is still inaccessible.
	memdbg.NoAccess(buf)

	b.strat.deallocateBlocks(off, count)
	b.freeBlocks += count
}

// ceilDiv rounds up the quotient of n divided by unit. n must be
// positive.
func ceilDiv(n, unit int) int {
	return 1 + (n-1)/unit
}
