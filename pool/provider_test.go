package pool

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/joshuapare/securemem/internal/memdbg"
	"github.com/joshuapare/securemem/internal/pagealloc"
)

// testPageSize keeps the test geometry deterministic regardless of the
// host's real page size.
const testPageSize = 4096

// testProvider is a backing-page provider over ordinary heap memory,
// manually aligned to testPageSize. It enforces a configurable pin
// quota and can inject failures, so bucket growth and quota exhaustion
// are testable without touching mlock.
type testProvider struct {
	quota int

	mu          sync.Mutex
	pinned      int
	acquires    int
	releases    int
	failNext    error
	lastAcquire []byte
}

func newTestProvider(quota int) *testProvider {
	return &testProvider{quota: quota}
}

func (p *testProvider) PageSize() int { return testPageSize }

func (p *testProvider) Quota() int { return p.quota }

func (p *testProvider) Acquire(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n <= 0 || n%testPageSize != 0 {
		return nil, fmt.Errorf("testProvider: %d is not a positive multiple of the page size", n)
	}
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return nil, err
	}
	if p.pinned+n > p.quota {
		return nil, &pagealloc.PinError{Call: "mlock", Err: errors.New("cannot allocate memory")}
	}

	raw := make([]byte, n+testPageSize)
	off := 0
	if rem := uintptr(unsafe.Pointer(&raw[0])) % testPageSize; rem != 0 {
		off = testPageSize - int(rem)
	}
	b := raw[off : off+n : off+n]

	// Honour the Provider contract: fresh regions start inaccessible.
	// Heap addresses recycle without a Release in between, so drop any
	// stale state a previous region at this address left behind first.
	memdbg.Forget(b)
	memdbg.NoAccess(b)

	p.pinned += n
	p.acquires++
	p.lastAcquire = b
	return b, nil
}

func (p *testProvider) Release(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	memdbg.Forget(b)

	p.pinned -= len(b)
	p.releases++
}

func (p *testProvider) pinnedBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pinned
}

func (p *testProvider) counts() (acquires, releases int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquires, p.releases
}

func (p *testProvider) injectFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

func sliceAddr(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }
