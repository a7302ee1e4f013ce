package secure

import "github.com/joshuapare/securemem/pool"

// Buffer is a byte buffer held in pinned memory. The zero value is an
// empty buffer; non-empty buffers are created with NewBuffer or Capture
// and must be released with Free.
type Buffer struct {
	buf []byte
}

// NewBuffer allocates an n-byte buffer from the process-wide pool. The
// contents start zeroed.
func NewBuffer(n int) (*Buffer, error) {
	if n == 0 {
		return &Buffer{}, nil
	}

	buf, err := pool.Allocate(n)
	if err != nil {
		return nil, err
	}
	Wipe(buf)
	return &Buffer{buf: buf}, nil
}

// Capture moves src into pinned memory: it copies the bytes and then
// wipes src, so the secret no longer lives in the caller's allocation.
// src is wiped even when allocation fails.
func Capture(src []byte) (*Buffer, error) {
	b, err := NewBuffer(len(src))
	if err != nil {
		Wipe(src)
		return nil, err
	}
	copy(b.buf, src)
	Wipe(src)
	return b, nil
}

// Bytes returns the underlying storage. The slice is invalidated by
// Free; callers must not retain it past the buffer's lifetime.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.buf
}

// Len returns the buffer length in bytes.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.buf)
}

// Clone returns an independent pinned copy of the buffer.
func (b *Buffer) Clone() (*Buffer, error) {
	c, err := NewBuffer(b.Len())
	if err != nil {
		return nil, err
	}
	copy(c.buf, b.buf)
	return c, nil
}

// Free wipes the contents and returns the storage to the pool. Safe on
// nil and on an already-freed buffer.
func (b *Buffer) Free() {
	if b == nil || b.buf == nil {
		return
	}
	Wipe(b.buf)
	pool.Deallocate(b.buf)
	b.buf = nil
}
