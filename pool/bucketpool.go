package pool

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/joshuapare/securemem/internal/pagealloc"
)

// bucketPool holds a growing collection of contiguous-blocks buckets
// that share a block size. Buckets are created on demand when no live
// bucket can serve a request and released when they become empty, except
// that one empty bucket is kept cached to damp create/release churn for
// workloads oscillating near their capacity limit.
type bucketPool struct {
	provider  pagealloc.Provider
	pageSize  int
	blockSize int

	mu sync.Mutex

	// buckets with at least one free block
	available map[*bucket]struct{}
	// buckets with no free blocks
	full map[*bucket]struct{}
	// every page-aligned address within every live bucket, mapped to
	// the owning bucket; deallocate uses it to find the owner in O(1)
	memory map[uintptr]*bucket
	// the at-most-one cached empty bucket, always in available
	empty *bucket
}

// newBucketPool creates the pool with a single empty one-page bucket,
// which starts out as the cached empty bucket.
func newBucketPool(provider pagealloc.Provider, pageSize, blockSize int) (*bucketPool, error) {
	p := &bucketPool{
		provider:  provider,
		pageSize:  pageSize,
		blockSize: blockSize,
		available: make(map[*bucket]struct{}),
		full:      make(map[*bucket]struct{}),
		memory:    make(map[uintptr]*bucket),
	}

	b, err := p.addBucket(pageSize)
	if err != nil {
		return nil, err
	}
	p.empty = b

	return p, nil
}

func (p *bucketPool) allocate(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for b := range p.available {
		if buf, ok := p.tryAllocate(b, n); ok {
			return buf, nil
		}
	}

	b, err := p.addBucket(n)
	if err != nil {
		return nil, err
	}

	buf, ok := p.tryAllocate(b, n)
	if !ok {
		// the new bucket was sized to exceed n
		panic("securemem: fresh bucket cannot serve the request that created it")
	}
	return buf, nil
}

// tryAllocate serves n bytes from b and keeps the pool collections
// consistent with b's new occupancy. Callers must hold p.mu.
func (p *bucketPool) tryAllocate(b *bucket, n int) ([]byte, bool) {
	buf, ok := b.allocate(n)
	if !ok {
		return nil, false
	}

	if p.empty == b {
		p.empty = nil
	}
	if b.isFull() {
		delete(p.available, b)
		p.full[b] = struct{}{}
	}
	return buf, true
}

func (p *bucketPool) deallocate(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.findBucket(uintptr(unsafe.Pointer(&buf[0])))

	if _, ok := p.full[b]; ok {
		// about to have free blocks again
		delete(p.full, b)
		p.available[b] = struct{}{}
	}

	b.deallocate(buf)

	if b.isEmpty() {
		if p.empty != nil {
			p.removeBucket(b)
		} else {
			p.empty = b
		}
	}
}

// addBucket creates a bucket large enough for a request of size bytes:
// the size is rounded up to a whole number of pages and, when rounding
// occurred, one further page of slack is added so the bucket strictly
// exceeds the request. Callers must hold p.mu.
func (p *bucketPool) addBucket(size int) (*bucket, error) {
	if rounded := size / p.pageSize * p.pageSize; rounded != size {
		size = rounded + p.pageSize
	}

	b, err := newBucket(p.provider, size, p.blockSize, newContiguousBlocks)
	if err != nil {
		var pinErr *pagealloc.PinError
		if errors.As(err, &pinErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}

	p.available[b] = struct{}{}
	for addr := b.base; b.contains(addr); addr += uintptr(p.pageSize) {
		p.memory[addr] = b
	}
	return b, nil
}

// removeBucket drops b from every collection and releases its backing
// region. Callers must hold p.mu.
func (p *bucketPool) removeBucket(b *bucket) {
	for addr := b.base; b.contains(addr); addr += uintptr(p.pageSize) {
		delete(p.memory, addr)
	}
	delete(p.available, b)
	if p.empty == b {
		p.empty = nil
	}
	b.release(p.provider)
}

// findBucket locates the bucket owning addr by rounding it down to the
// page size. Callers must hold p.mu.
func (p *bucketPool) findBucket(addr uintptr) *bucket {
	b, ok := p.memory[addr&^(uintptr(p.pageSize)-1)]
	if !ok {
		panic("securemem: pointer was not allocated by this pool")
	}
	return b
}

// stats snapshots the pool's occupancy.
func (p *bucketPool) stats() LargePoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := LargePoolStats{
		Buckets:     len(p.available) + len(p.full),
		FullBuckets: len(p.full),
		CachedEmpty: p.empty != nil,
	}
	for b := range p.available {
		s.TotalBlocks += b.blockCount
		s.FreeBlocks += b.freeBlocks
	}
	for b := range p.full {
		s.TotalBlocks += b.blockCount
	}
	return s
}
