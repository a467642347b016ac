// Package wire decodes and encodes the little-endian word streams that every
// SDRAM region in the chip image is made of. A Reader is a bounds-checked
// cursor: running off the end of a region is an error, never a panic, and
// never a silent read of the neighbouring region.
package wire

import (
	"errors"
	"fmt"
)

var (
	ErrShortRead  = errors.New("wire: read past end of region")
	ErrShortWrite = errors.New("wire: write past end of region")
	ErrBadCount   = errors.New("wire: record count exceeds region")
)

// Reader walks a byte slice one little-endian word at a time.
type Reader struct {
	buf  []byte
	off  int
	base uint32 // address of buf[0], for error reports and write-back
}

// NewReader wraps buf, which starts at SDRAM address base.
func NewReader(buf []byte, base uint32) *Reader {
	return &Reader{buf: buf, base: base}
}

// U32 reads one word.
//
//go:nosplit
func (r *Reader) U32() (uint32, error) {
	if len(r.buf)-r.off < 4 {
		return 0, r.short()
	}
	b := r.buf[r.off : r.off+4 : r.off+4]
	r.off += 4
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// Words reads n words into dst[:n]. dst must have room for them.
func (r *Reader) Words(dst []uint32, n int) error {
	if n < 0 || n > len(dst) || len(r.buf)-r.off < 4*n {
		return r.short()
	}
	for i := 0; i < n; i++ {
		dst[i], _ = r.U32()
	}
	return nil
}

// Count reads a record count and rejects it if the remaining bytes cannot
// hold that many records of at least minWords words each.
func (r *Reader) Count(minWords int) (int, error) {
	n, err := r.U32()
	if err != nil {
		return 0, err
	}
	if minWords > 0 && uint64(n)*uint64(minWords)*4 > uint64(r.Remaining()) {
		return 0, fmt.Errorf("%w: count %d at %#x", ErrBadCount, n, r.Addr())
	}
	return int(n), nil
}

// Skip advances n words.
func (r *Reader) Skip(n int) error {
	if n < 0 || len(r.buf)-r.off < 4*n {
		return r.short()
	}
	r.off += 4 * n
	return nil
}

// Addr is the SDRAM address of the next word.
func (r *Reader) Addr() uint32 { return r.base + uint32(r.off) }

// Offset is the byte offset of the next word inside the region.
func (r *Reader) Offset() int { return r.off }

// Remaining bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) short() error {
	return fmt.Errorf("%w at %#x", ErrShortRead, r.Addr())
}

// ============================================================================
// WRITER
// ============================================================================

// Writer appends little-endian words into a fixed buffer.
type Writer struct {
	buf []byte
	off int
}

// NewWriter writes into buf; it never grows it.
func NewWriter(buf []byte) *Writer { return &Writer{buf: buf} }

// U32 appends one word.
//
//go:nosplit
func (w *Writer) U32(v uint32) error {
	if len(w.buf)-w.off < 4 {
		return ErrShortWrite
	}
	PutU32(w.buf[w.off:], v)
	w.off += 4
	return nil
}

// Words appends every word of src.
func (w *Writer) Words(src []uint32) error {
	if len(w.buf)-w.off < 4*len(src) {
		return ErrShortWrite
	}
	for _, v := range src {
		PutU32(w.buf[w.off:], v)
		w.off += 4
	}
	return nil
}

// Len is the number of bytes written.
func (w *Writer) Len() int { return w.off }

// Bytes returns the written prefix.
func (w *Writer) Bytes() []byte { return w.buf[:w.off] }

// ============================================================================
// RAW WORD ACCESS
// ============================================================================

// PutU32 stores v little-endian at b[0:4].
//
//go:nosplit
//go:inline
func PutU32(b []byte, v uint32) {
	_ = b[3] // bounds check hint
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

// U32 loads a little-endian word from b[0:4].
//
//go:nosplit
//go:inline
func U32(b []byte) uint32 {
	_ = b[3] // bounds check hint
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Encode packs words into a fresh little-endian byte slice.
func Encode(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, v := range words {
		PutU32(out[4*i:], v)
	}
	return out
}
