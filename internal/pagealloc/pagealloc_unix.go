//go:build unix

package pagealloc

import (
	"fmt"
	"math"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/securemem/internal/memdbg"
)

type osProvider struct {
	pageSize int
	quota    int
}

// New returns the OS-backed provider. Page size and pin quota are read
// once, here, and cached.
func New() Provider {
	return &osProvider{
		pageSize: syscall.Getpagesize(),
		quota:    memlockQuota(),
	}
}

// memlockQuota reads the soft RLIMIT_MEMLOCK. An unlimited or
// unrepresentable limit is clamped to the largest int.
func memlockQuota() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlim); err != nil {
		return 0
	}
	if uint64(rlim.Cur) == uint64(unix.RLIM_INFINITY) || uint64(rlim.Cur) > uint64(math.MaxInt) {
		return math.MaxInt
	}
	return int(rlim.Cur)
}

func (p *osProvider) PageSize() int { return p.pageSize }

func (p *osProvider) Quota() int { return p.quota }

func (p *osProvider) Acquire(n int) ([]byte, error) {
	if n <= 0 || n%p.pageSize != 0 {
		return nil, fmt.Errorf("pagealloc: %d is not a positive multiple of the page size %d", n, p.pageSize)
	}

	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("pagealloc: mmap of %d bytes failed: %w", n, err)
	}

	if err := unix.Mlock(b); err != nil {
		_ = unix.Munmap(b)
		return nil, &PinError{Call: "mlock", Err: err}
	}

	memdbg.NoAccess(b)
	return b, nil
}

func (p *osProvider) Release(b []byte) {
	if len(b) == 0 {
		return
	}

	memdbg.Forget(b)

	// Munlock can only fail for arguments that were not a locked
	// mapping; there is nothing useful to do with either error here.
	_ = unix.Munlock(b)
	_ = unix.Munmap(b)
}
