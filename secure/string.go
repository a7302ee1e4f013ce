package secure

import "crypto/subtle"

// String is a credential held in pinned memory. It is immutable after
// construction; Reveal exposes the bytes for the duration of a call and
// Free destroys them. The zero value is an empty string.
type String struct {
	b *Buffer
}

// CaptureString moves src into pinned memory and wipes src, mirroring
// Capture. Go strings are immutable so there is no constructor taking a
// string; callers holding a secret in a string have already lost
// control of its backing array and should switch to []byte upstream.
func CaptureString(src []byte) (*String, error) {
	b, err := Capture(src)
	if err != nil {
		return nil, err
	}
	return &String{b: b}, nil
}

// Reveal returns the secret bytes. The slice aliases pinned storage and
// is invalidated by Free; do not copy it into unpinned memory.
func (s *String) Reveal() []byte {
	if s == nil {
		return nil
	}
	return s.b.Bytes()
}

// Len returns the secret's length in bytes.
func (s *String) Len() int {
	if s == nil {
		return 0
	}
	return s.b.Len()
}

// Equal compares two secrets in constant time.
func (s *String) Equal(other *String) bool {
	return subtle.ConstantTimeCompare(s.Reveal(), other.Reveal()) == 1
}

// Free wipes the secret and returns its storage to the pool. Safe on
// nil and on an already-freed string.
func (s *String) Free() {
	if s == nil {
		return
	}
	s.b.Free()
}
