//go:build !unix && !windows

package pagealloc

import (
	"fmt"
	"runtime"
	"syscall"
)

type osProvider struct {
	pageSize int
}

// New returns a provider that refuses every acquisition: this platform
// has no supported way to pin memory.
func New() Provider {
	return &osProvider{pageSize: syscall.Getpagesize()}
}

func (p *osProvider) PageSize() int { return p.pageSize }

func (p *osProvider) Quota() int { return 0 }

func (p *osProvider) Acquire(n int) ([]byte, error) {
	return nil, fmt.Errorf("pagealloc: pinned memory is not supported on %s", runtime.GOOS)
}

func (p *osProvider) Release(b []byte) {}
