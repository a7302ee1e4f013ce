// Package secure provides containers for secret material backed by the
// pinned-memory pool. A Buffer or String keeps its payload out of
// swappable heap memory and zeroizes it on Free; the plain Wipe helper
// does the same for byte slices the caller manages itself.
package secure

import (
	"crypto/subtle"
	"runtime"
)

// Wipe overwrites b with zeros. The constant-time self-compare and the
// KeepAlive keep the compiler from proving the stores dead and eliding
// them.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	if subtle.ConstantTimeCompare(b[:1], b[:1]) != 1 {
		panic("secure: wipe verification failed")
	}
	runtime.KeepAlive(&b[0])
}
