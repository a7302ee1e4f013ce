//go:build windows

package pagealloc

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/joshuapare/securemem/internal/memdbg"
)

type osProvider struct {
	pageSize int
	quota    int
}

// New returns the OS-backed provider. Page size and pin quota are read
// once, here, and cached.
func New() Provider {
	pageSize := syscall.Getpagesize()
	return &osProvider{
		pageSize: pageSize,
		quota:    workingSetQuota(pageSize),
	}
}

// workingSetQuota derives the pin quota from the minimum working-set
// size: a process may lock at most the pages of its minimum working set
// minus a small overhead, so the quota is that size less one byte,
// rounded down to a page boundary.
func workingSetQuota(pageSize int) int {
	var minimum, maximum uintptr
	var flags uint32
	err := windows.GetProcessWorkingSetSizeEx(windows.CurrentProcess(), &minimum, &maximum, &flags)
	if err != nil {
		return 0
	}
	return int((minimum - 1) / uintptr(pageSize) * uintptr(pageSize))
}

func (p *osProvider) PageSize() int { return p.pageSize }

func (p *osProvider) Quota() int { return p.quota }

func (p *osProvider) Acquire(n int) ([]byte, error) {
	if n <= 0 || n%p.pageSize != 0 {
		return nil, fmt.Errorf("pagealloc: %d is not a positive multiple of the page size %d", n, p.pageSize)
	}

	addr, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("pagealloc: VirtualAlloc of %d bytes failed: %w", n, err)
	}

	if err := windows.VirtualLock(addr, uintptr(n)); err != nil {
		_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
		return nil, &PinError{Call: "VirtualLock", Err: err}
	}

	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	memdbg.NoAccess(b)
	return b, nil
}

func (p *osProvider) Release(b []byte) {
	if len(b) == 0 {
		return
	}

	memdbg.Forget(b)

	addr := uintptr(unsafe.Pointer(&b[0]))
	_ = windows.VirtualUnlock(addr, uintptr(len(b)))
	_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}
