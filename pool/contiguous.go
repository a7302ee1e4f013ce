package pool

import "math/bits"

// contiguousBlocks serves runs of one or more adjacent blocks. Occupancy
// lives in a bit-packed index held in ordinary, unpinned memory: one bit
// per block, set while the block is in use.
type contiguousBlocks struct {
	b     *bucket
	index []byte
}

func newContiguousBlocks(b *bucket) strategy {
	return &contiguousBlocks{
		b:     b,
		index: make([]byte, ceilDiv(b.blockCount, 8)),
	}
}

func (c *contiguousBlocks) allocateBlocks(count int) (int, bool) {
	idx := c.findRun(count)
	if idx == c.b.blockCount {
		return 0, false
	}

	c.setInUse(idx, count)
	return idx * c.b.blockSize, true
}

func (c *contiguousBlocks) deallocateBlocks(off, count int) {
	c.setFree(off/c.b.blockSize, count)
}

// findRun locates the lowest-index run of count adjacent free blocks.
// The scan walks the index a byte at a time: trailing-ones counts skip
// over used runs, trailing-zeros counts extend free runs. Returns
// blockCount when no run is long enough.
func (c *contiguousBlocks) findRun(count int) int {
	blockCount := c.b.blockCount

	// cursor over the index: pos is the current byte, cur its not yet
	// consumed bits (shifted so the cursor is at bit zero)
	pos := -1
	var cur byte
	bitsLeft := 0

	nextByte := func() {
		pos++
		cur = c.index[pos]
		bitsLeft = 8
	}
	nextByte()

	index := 0
	for index < blockCount {
		// skip the run of used blocks in front of the cursor
		for index < blockCount {
			n := bits.TrailingZeros8(^cur)
			index += n
			cur >>= n
			bitsLeft -= n

			if bitsLeft > 0 {
				// found an unused block
				break
			} else if index < blockCount {
				nextByte()
			}
		}

		// count the consecutive unused blocks from here
		run := 0
		for index+run < blockCount {
			n := min(bits.TrailingZeros8(cur), bitsLeft)
			run += n
			if run >= count {
				return index
			}

			cur >>= n
			bitsLeft -= n

			if bitsLeft > 0 {
				// hit a used block before the run was long enough
				break
			} else if index+run < blockCount {
				nextByte()
			}
		}

		index += run
	}

	return index
}

// setInUse sets the count bits starting at block index.
func (c *contiguousBlocks) setInUse(index, count int) {
	pos := index / 8
	bit := index % 8

	for count > 0 {
		n := min(8-bit, count)
		c.index[pos] |= byte(1<<n-1) << bit

		pos++
		count -= n
		bit = 0
	}
}

// setFree clears the count bits starting at block index.
func (c *contiguousBlocks) setFree(index, count int) {
	pos := index / 8
	bit := index % 8

	for count > 0 {
		n := min(8-bit, count)
		c.index[pos] &^= byte(1<<n-1) << bit

		pos++
		count -= n
		bit = 0
	}
}
