package pool

import (
	"encoding/binary"

	"github.com/joshuapare/securemem/internal/memdbg"
)

const (
	// linkWordSize is the number of bytes of an unused block that hold
	// the free-list link. Every block size must be at least this large.
	linkWordSize = 8

	// freeEnd terminates the intrusive free list.
	freeEnd = ^uint64(0)
)

// fixedBlock serves exactly one block per allocation. Unused blocks form
// an intrusive LIFO free list threaded through the blocks themselves:
// the first 8 bytes of each unused block hold the offset of the next
// unused block, or freeEnd for the last one. The link word is borrowed
// memory, valid only while its block is unallocated, so it is marked
// defined just around each access and inaccessible again afterwards.
type fixedBlock struct {
	b *bucket

	// offset of the first unused block, -1 when none remain
	head int
}

// newFixedBlock threads every block of the bucket in address order.
func newFixedBlock(b *bucket) strategy {
	f := &fixedBlock{b: b}

	last := (b.blockCount - 1) * b.blockSize
	for off := 0; off < last; off += b.blockSize {
		f.setLink(off, uint64(off+b.blockSize))
	}
	f.setLink(last, freeEnd)

	return f
}

func (f *fixedBlock) link(off int) uint64 {
	w := f.b.mem[off : off+linkWordSize]
	memdbg.Defined(w)
	next := binary.LittleEndian.Uint64(w)
	memdbg.NoAccess(w)
	return next
}

func (f *fixedBlock) setLink(off int, next uint64) {
	w := f.b.mem[off : off+linkWordSize]
	memdbg.Defined(w)
	binary.LittleEndian.PutUint64(w, next)
	memdbg.NoAccess(w)
}

func (f *fixedBlock) allocateBlocks(count int) (int, bool) {
	if count != 1 {
		panic("securemem: fixed-block bucket asked for more than one block")
	}

	// The bucket checks the free count before delegating, so the list
	// is never empty here.
	off := f.head
	if next := f.link(off); next == freeEnd {
		f.head = -1
	} else {
		f.head = int(next)
	}
	return off, true
}

func (f *fixedBlock) deallocateBlocks(off, count int) {
	if count != 1 {
		panic("securemem: fixed-block bucket released more than one block")
	}

	if f.head < 0 {
		f.setLink(off, freeEnd)
	} else {
		f.setLink(off, uint64(f.head))
	}
	f.head = off
}
