package util

// CopyBytes returns a fresh copy of src. A nil src yields an empty,
// non-nil slice so callers can wipe the result unconditionally.
func CopyBytes(src []byte) []byte {
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

// WipeBytes best-effort zeroes the provided byte slice in place.
// Safe to call with nil.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
