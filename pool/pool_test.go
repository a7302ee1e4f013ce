package pool

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/securemem/internal/pagealloc"
)

// newTestPool builds a pool with the full eight fixed-block classes
// over the deterministic test provider.
func newTestPool(t *testing.T) (*Pool, *testProvider) {
	t.Helper()
	provider := newTestProvider(1 << 24)
	p, err := New(provider)
	require.NoError(t, err)
	require.Len(t, p.fixed, maxFixedClasses)
	return p, provider
}

func TestNewSizesFixedTierFromQuota(t *testing.T) {
	// Half the quota, in pages, capped at eight classes.
	p, err := New(newTestProvider(6 * testPageSize))
	require.NoError(t, err)
	require.Len(t, p.fixed, 3)

	for i, b := range p.fixed {
		require.Equal(t, (i+1)*blockUnit, b.blockSize)
		require.Equal(t, testPageSize, b.size)
	}

	// A tiny quota leaves no fixed tier at all; everything routes to
	// the large pool.
	p, err = New(newTestProvider(testPageSize))
	require.NoError(t, err)
	require.Empty(t, p.fixed)

	buf, err := p.Allocate(8)
	require.NoError(t, err)
	p.Deallocate(buf)
}

func TestAllocateRoutesSmallSizesToFixedClasses(t *testing.T) {
	p, _ := newTestPool(t)

	before := p.Stats()
	bufs := make([][]byte, 0, 3)
	for _, size := range []int{8, 16, 24} {
		buf, err := p.Allocate(size)
		require.NoError(t, err)
		require.Len(t, buf, size)
		require.Zero(t, sliceAddr(buf)%blockUnit)
		bufs = append(bufs, buf)
	}

	require.NotEqual(t, sliceAddr(bufs[0]), sliceAddr(bufs[1]))
	require.NotEqual(t, sliceAddr(bufs[1]), sliceAddr(bufs[2]))

	after := p.Stats()
	for i := 0; i < 3; i++ {
		require.Equal(t, before.FixedClasses[i].FreeBlocks-1, after.FixedClasses[i].FreeBlocks,
			"size %d must come from class %d", (i+1)*blockUnit, i)
	}
	require.Equal(t, before.Large, after.Large)

	for _, buf := range bufs {
		p.Deallocate(buf)
	}
}

func TestFixedTierReusesLastFreedBlock(t *testing.T) {
	p, _ := newTestPool(t)

	buf, err := p.Allocate(8)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = 0xA5
	}
	for i := range buf {
		require.Equal(t, byte(0xA5), buf[i])
	}

	addr := sliceAddr(buf)
	p.Deallocate(buf)

	// LIFO free list hands the same block back. Its contents are
	// unspecified - there is no zero-on-free.
	again, err := p.Allocate(8)
	require.NoError(t, err)
	require.Equal(t, addr, sliceAddr(again))
	p.Deallocate(again)
}

func TestOversizeRequestFallsThroughToLargePool(t *testing.T) {
	p, _ := newTestPool(t)

	before := p.Stats()

	// 65 exceeds the largest fixed class (8 * 8 = 64 bytes).
	buf, err := p.Allocate(65)
	require.NoError(t, err)

	after := p.Stats()
	require.Equal(t, before.FixedClasses, after.FixedClasses)
	require.Equal(t, before.Large.FreeBlocks-ceilDiv(65, blockUnit), after.Large.FreeBlocks)

	p.Deallocate(buf)
	require.Equal(t, before, p.Stats())
}

func TestClassBoundaryRouting(t *testing.T) {
	p, _ := newTestPool(t)

	// Exactly N*B takes the last fixed class.
	buf, err := p.Allocate(maxFixedClasses * blockUnit)
	require.NoError(t, err)
	s := p.Stats()
	last := maxFixedClasses - 1
	require.Equal(t, s.FixedClasses[last].BlockCount-1, s.FixedClasses[last].FreeBlocks)
	p.Deallocate(buf)

	// One byte more falls through.
	buf, err = p.Allocate(maxFixedClasses*blockUnit + 1)
	require.NoError(t, err)
	s = p.Stats()
	for _, c := range s.FixedClasses {
		require.Equal(t, c.BlockCount, c.FreeBlocks)
	}
	p.Deallocate(buf)
}

func TestAllocateSingleByte(t *testing.T) {
	p, _ := newTestPool(t)

	buf, err := p.Allocate(1)
	require.NoError(t, err)
	require.Len(t, buf, 1)
	require.Zero(t, sliceAddr(buf)%blockUnit)
	p.Deallocate(buf)
}

func TestDeallocateNilIsNoOp(t *testing.T) {
	p, _ := newTestPool(t)
	p.Deallocate(nil)
	p.Deallocate([]byte{})
	Deallocate(nil)
}

func TestAllocatePanicsOnNonPositiveSize(t *testing.T) {
	p, _ := newTestPool(t)
	require.Panics(t, func() { _, _ = p.Allocate(0) })
	require.Panics(t, func() { _, _ = p.Allocate(-3) })
}

func TestDeallocatePanicsOnForeignPointer(t *testing.T) {
	p, _ := newTestPool(t)
	foreign := make([]byte, 100)
	require.Panics(t, func() { p.Deallocate(foreign) })
}

func TestRoundTripLeavesPoolIndistinguishable(t *testing.T) {
	p, _ := newTestPool(t)

	before := p.Stats()
	for _, size := range []int{1, 8, 63, 64, 65, 100, 4000, testPageSize, 3*testPageSize + 17} {
		buf, err := p.Allocate(size)
		require.NoError(t, err)
		p.Deallocate(buf)
		require.Equal(t, before, p.Stats(), "after round trip of %d bytes", size)
	}
}

func TestFullFixedClassOverflowsToLargePool(t *testing.T) {
	p, _ := newTestPool(t)

	blockCount := p.fixed[0].blockCount
	bufs := make([][]byte, 0, blockCount+1)
	for i := 0; i < blockCount; i++ {
		buf, err := p.Allocate(8)
		require.NoError(t, err)
		bufs = append(bufs, buf)
	}

	s := p.Stats()
	require.Zero(t, s.FixedClasses[0].FreeBlocks)
	largeFree := s.Large.FreeBlocks

	// The class is full; the same size now comes from the large pool.
	buf, err := p.Allocate(8)
	require.NoError(t, err)
	require.Equal(t, largeFree-1, p.Stats().Large.FreeBlocks)
	bufs = append(bufs, buf)

	for _, b := range bufs {
		p.Deallocate(b)
	}
	s = p.Stats()
	require.Equal(t, s.FixedClasses[0].BlockCount, s.FixedClasses[0].FreeBlocks)
	require.Equal(t, s.Large.TotalBlocks, s.Large.FreeBlocks)
}

func TestLargePoolGrowthAndShrink(t *testing.T) {
	p, provider := newTestPool(t)

	acquiresBefore, _ := provider.counts()

	// Repeated page-sized allocations force new buckets.
	var bufs [][]byte
	for i := 0; i < 4; i++ {
		buf, err := p.Allocate(testPageSize)
		require.NoError(t, err)
		bufs = append(bufs, buf)
	}

	acquires, _ := provider.counts()
	require.Greater(t, acquires, acquiresBefore)
	require.Zero(t, sliceAddr(provider.lastAcquire)%testPageSize)
	require.GreaterOrEqual(t, p.Stats().Large.Buckets, 4)

	for _, buf := range bufs {
		p.Deallocate(buf)
	}

	// Everything freed: at most the cached empty bucket survives.
	s := p.Stats().Large
	require.Equal(t, 1, s.Buckets)
	require.True(t, s.CachedEmpty)
	require.Equal(t, s.TotalBlocks, s.FreeBlocks)
}

func TestQuotaExhaustionIsReportedAndRecoverable(t *testing.T) {
	// Construction pins seven pages (six fixed classes plus the large
	// pool's initial bucket), leaving room for five more.
	provider := newTestProvider(12 * testPageSize)
	p, err := New(provider)
	require.NoError(t, err)
	require.Len(t, p.fixed, 6) // 12 pages / 2

	var live [][]byte
	var allocErr error
	for i := 0; i < 16; i++ {
		buf, err := p.Allocate(testPageSize)
		if err != nil {
			allocErr = err
			break
		}
		live = append(live, buf)
	}

	var pinErr *pagealloc.PinError
	require.ErrorAs(t, allocErr, &pinErr)

	// The pool stays consistent and previously returned memory can
	// still be freed.
	for _, buf := range live {
		p.Deallocate(buf)
	}
	s := p.Stats().Large
	require.Equal(t, s.TotalBlocks, s.FreeBlocks)
	require.LessOrEqual(t, s.Buckets, 1)
}

func TestProviderAllocationFailureMapsToOutOfMemory(t *testing.T) {
	p, provider := newTestPool(t)

	provider.injectFailure(errors.New("mmap failed"))
	_, err := p.Allocate(8 * testPageSize)
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestConcurrentHoldersAndChurners(t *testing.T) {
	p, _ := newTestPool(t)

	const holders = 500
	const churns = 1000

	var wg sync.WaitGroup
	held := make([][]byte, holders)

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range held {
			buf, err := p.Allocate(16)
			if err != nil {
				t.Error(err)
				return
			}
			for j := range buf {
				buf[j] = byte(i)
			}
			held[i] = buf
		}
	}()
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		live := make([][]byte, 0, churns)
		for i := 0; i < churns; i++ {
			buf, err := p.Allocate(40)
			if err != nil {
				t.Error(err)
				return
			}
			for j := range buf {
				buf[j] = 0xC3
			}
			live = append(live, buf)

			if rng.Intn(2) == 0 && len(live) > 0 {
				k := rng.Intn(len(live))
				for j := range live[k] {
					if live[k][j] != 0xC3 {
						t.Errorf("byte %d of churned buffer corrupted", j)
						return
					}
				}
				p.Deallocate(live[k])
				live[k] = live[len(live)-1]
				live = live[:len(live)-1]
			}
		}
		for _, buf := range live {
			p.Deallocate(buf)
		}
	}()
	wg.Wait()

	// The holder's buffers are disjoint and intact.
	seen := make(map[uintptr]bool, holders)
	for i, buf := range held {
		require.False(t, seen[sliceAddr(buf)], "overlapping allocation")
		seen[sliceAddr(buf)] = true
		for j := range buf {
			require.Equal(t, byte(i), buf[j])
		}
		p.Deallocate(buf)
	}

	s := p.Stats()
	for _, c := range s.FixedClasses {
		require.Equal(t, c.BlockCount, c.FreeBlocks)
	}
	require.LessOrEqual(t, s.Large.Buckets, 1)
	require.Equal(t, s.Large.TotalBlocks, s.Large.FreeBlocks)
}

func TestConcurrentRandomSoak(t *testing.T) {
	p, _ := newTestPool(t)

	const workers = 4
	const ops = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			fill := byte(seed)

			type alloc struct{ buf []byte }
			var live []alloc
			for i := 0; i < ops; i++ {
				if len(live) > 0 && rng.Intn(2) == 0 {
					k := rng.Intn(len(live))
					for _, got := range live[k].buf {
						if got != fill {
							t.Errorf("buffer corrupted: got %#x, want %#x", got, fill)
							return
						}
					}
					p.Deallocate(live[k].buf)
					live[k] = live[len(live)-1]
					live = live[:len(live)-1]
					continue
				}

				buf, err := p.Allocate(1 + rng.Intn(100))
				if err != nil {
					t.Error(err)
					return
				}
				for j := range buf {
					buf[j] = fill
				}
				live = append(live, alloc{buf: buf})
			}
			for _, a := range live {
				p.Deallocate(a.buf)
			}
		}(int64(w + 1))
	}
	wg.Wait()

	s := p.Stats()
	for _, c := range s.FixedClasses {
		require.Equal(t, c.BlockCount, c.FreeBlocks)
	}
	require.LessOrEqual(t, s.Large.Buckets, 1)
}

func TestGetReturnsProcessWideSingleton(t *testing.T) {
	p1, err := Get()
	if err != nil {
		var pinErr *pagealloc.PinError
		if errors.As(err, &pinErr) {
			t.Skipf("cannot pin memory here: %v", err)
		}
		t.Fatal(err)
	}

	p2, err := Get()
	require.NoError(t, err)
	require.Same(t, p1, p2)

	buf, err := Allocate(24)
	require.NoError(t, err)
	require.Len(t, buf, 24)
	Deallocate(buf)
}
