package pool

import "errors"

var (
	// ErrOutOfMemory indicates that the backing-page provider could not
	// allocate another pinned region.
	ErrOutOfMemory = errors.New("securemem: out of pinned memory")
)
