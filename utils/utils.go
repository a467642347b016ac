package utils

import (
	"os"
	"unsafe"
)

///////////////////////////////////////////////////////////////////////////////
// Conversion Utilities: Zero-Alloc Casts
///////////////////////////////////////////////////////////////////////////////

// B2s converts a []byte to a string **without** allocation.
// ⚠️ Caller must ensure the input slice remains valid and unchanged.
//
//go:nosplit
//go:inline
func B2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

///////////////////////////////////////////////////////////////////////////////
// Number Formatting: For Cold-Path Diagnostics
///////////////////////////////////////////////////////////////////////////////

// Itoa renders a signed integer in decimal without going through fmt.
//
//go:nosplit
func Itoa(n int) string {
	if n < 0 {
		return "-" + Utoa(uint64(-n))
	}
	return Utoa(uint64(n))
}

// Utoa renders an unsigned integer in decimal.
//
//go:nosplit
func Utoa(u uint64) string {
	if u == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

// Hex32 renders a 32-bit word as 0x-prefixed, zero-padded hex (keys, masks).
//
//go:nosplit
func Hex32(v uint32) string {
	const digits = "0123456789abcdef"
	var buf [10]byte
	buf[0], buf[1] = '0', 'x'
	for i := 9; i >= 2; i-- {
		buf[i] = digits[v&0xF]
		v >>= 4
	}
	return string(buf[:])
}

///////////////////////////////////////////////////////////////////////////////
// Output: Unbuffered stderr Writes
///////////////////////////////////////////////////////////////////////////////

// PrintWarning writes msg straight to stderr. Errors are dropped: there is
// nowhere left to report them.
func PrintWarning(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}

///////////////////////////////////////////////////////////////////////////////
// Hash & Mixers: For Key Indexing
///////////////////////////////////////////////////////////////////////////////

// Mix64 applies a Murmur3-style avalanche to a 64-bit value.
//
//go:nosplit
//go:inline
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// Mix32 folds Mix64 down to 32 bits. Spike keys cluster in their low bits
// (neuron ids) so they must be mixed before masking into a table slot.
//
//go:nosplit
//go:inline
func Mix32(x uint32) uint32 {
	return uint32(Mix64(uint64(x)))
}
