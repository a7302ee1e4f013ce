package pool

import (
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/joshuapare/securemem/internal/pagealloc"
)

const (
	// blockUnit is the sizing granularity of the pool. Block sizes of
	// the fixed tier are multiples of it, and it is the block size of
	// the large tier. It must be at least linkWordSize.
	blockUnit = 8

	// maxFixedClasses caps the number of fixed-block size classes.
	maxFixedClasses = 8
)

// Runtime trace flag for allocation logging, controlled by the
// SECUREMEM_LOG_ALLOC env var.
var logAlloc = os.Getenv("SECUREMEM_LOG_ALLOC") != ""

// Pool is a two-tier allocator over pinned memory. See the package
// documentation for the design. Use Get for the process-wide instance;
// New exists so tests and diagnostics can run a pool over their own
// backing-page provider.
type Pool struct {
	provider pagealloc.Provider

	// fixed-block tier: fixed[i] serves sizes in (i*blockUnit,
	// (i+1)*blockUnit], guarded by fixedMu[i]
	fixed   []*bucket
	fixedMu []sync.Mutex

	// large tier for everything else
	large *bucketPool
}

// Get returns the process-wide pool, constructing it over the OS
// backing-page provider on first use. The outcome is sticky: every
// caller sees the same pool, or the same construction error.
var Get = sync.OnceValues(func() (*Pool, error) {
	return New(pagealloc.New())
})

// New constructs a pool over the given provider. The fixed tier gets
// min(quota/pageSize/2, 8) one-page buckets - half the advisory pin
// quota, capped at eight size classes - and the large tier starts with
// its single cached empty bucket.
func New(provider pagealloc.Provider) (*Pool, error) {
	pageSize := provider.PageSize()
	classes := min(provider.Quota()/pageSize/2, maxFixedClasses)

	p := &Pool{
		provider: provider,
		fixedMu:  make([]sync.Mutex, classes),
	}

	for i := 1; i <= classes; i++ {
		b, err := newBucket(provider, pageSize, i*blockUnit, newFixedBlock)
		if err != nil {
			p.releaseFixed()
			return nil, err
		}
		p.fixed = append(p.fixed, b)
	}

	large, err := newBucketPool(provider, pageSize, blockUnit)
	if err != nil {
		p.releaseFixed()
		return nil, err
	}
	p.large = large

	return p, nil
}

// releaseFixed undoes a partial construction.
func (p *Pool) releaseFixed() {
	for _, b := range p.fixed {
		b.release(p.provider)
	}
	p.fixed = nil
}

// Allocate returns size bytes of pinned memory. size must be positive.
// The returned slice is aligned to at least blockUnit bytes and its
// contents are unspecified. Fails only when the operating system cannot
// provide or pin another region.
func (p *Pool) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		panic("securemem: allocation size must be positive")
	}

	if i := (size - 1) / blockUnit; i < len(p.fixed) {
		p.fixedMu[i].Lock()
		buf, ok := p.fixed[i].allocate(size)
		p.fixedMu[i].Unlock()

		if ok {
			if logAlloc {
				slog.Debug("securemem: allocate", "size", size, "tier", "fixed", "class", i)
			}
			return buf, nil
		}
	}

	buf, err := p.large.allocate(size)
	if err != nil {
		return nil, err
	}
	if logAlloc {
		slog.Debug("securemem: allocate", "size", size, "tier", "large")
	}
	return buf, nil
}

// Deallocate returns buf to the pool. buf must be a slice returned by
// Allocate with its original length; passing a different length is
// undefined behaviour. A nil or empty buf is a no-op and takes no lock.
// The pool does not wipe the contents; callers holding secrets must
// overwrite them first.
func (p *Pool) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}

	if i := (len(buf) - 1) / blockUnit; i < len(p.fixed) {
		p.fixedMu[i].Lock()
		if b := p.fixed[i]; b.contains(uintptr(unsafe.Pointer(&buf[0]))) {
			b.deallocate(buf)
			p.fixedMu[i].Unlock()
			return
		}
		p.fixedMu[i].Unlock()
	}

	p.large.deallocate(buf)
}

// Allocate draws size bytes of pinned memory from the process-wide
// pool.
func Allocate(size int) ([]byte, error) {
	p, err := Get()
	if err != nil {
		return nil, err
	}
	return p.Allocate(size)
}

// Deallocate returns buf, previously obtained from Allocate, to the
// process-wide pool. A nil buf is a no-op.
func Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}
	p, err := Get()
	if err != nil {
		return
	}
	p.Deallocate(buf)
}
