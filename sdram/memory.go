// ════════════════════════════════════════════════════════════════════════════════════════════════
// SDRAM IMAGE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Shared SDRAM model
//
// Description:
//   Byte-addressed view of the chip's shared SDRAM. Every region the compressor consumes
//   (router table, bitfield regions, key→atom maps, region-address table, heap descriptor)
//   lives here at a 32-bit address, exactly as the per-core expanders left it.
//
// Design Principles:
//   - All access is bounds-checked against the image; addresses outside it are errors
//   - Words are little-endian, matching the ARM968 cores
//   - Place is a bump allocator used only while building an image (host side, tests)
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package sdram

import (
	"errors"
	"fmt"

	"rtcompress/constants"
	"rtcompress/wire"
)

var (
	ErrOutOfRange = errors.New("sdram: address outside image")
	ErrImageFull  = errors.New("sdram: image full")
	ErrUnaligned  = errors.New("sdram: unaligned word address")
)

// Memory is a flat SDRAM image starting at Base.
type Memory struct {
	buf  []byte
	base uint32
	top  uint32 // next free byte offset for Place
}

// NewMemory allocates a zeroed image of size bytes at the SDRAM base.
func NewMemory(size int) *Memory {
	return &Memory{buf: make([]byte, size), base: constants.SDRAMBase}
}

// Base address of the image.
func (m *Memory) Base() uint32 { return m.base }

// Size in bytes.
func (m *Memory) Size() int { return len(m.buf) }

func (m *Memory) offset(addr uint32, n int) (int, error) {
	if addr < m.base || n < 0 || uint64(addr-m.base)+uint64(n) > uint64(len(m.buf)) {
		return 0, fmt.Errorf("%w: %#x+%d", ErrOutOfRange, addr, n)
	}
	return int(addr - m.base), nil
}

// Bytes returns the n bytes at addr, aliasing the image.
func (m *Memory) Bytes(addr uint32, n int) ([]byte, error) {
	off, err := m.offset(addr, n)
	if err != nil {
		return nil, err
	}
	return m.buf[off : off+n : off+n], nil
}

// Reader returns a cursor from addr to the end of the image.
func (m *Memory) Reader(addr uint32) (*wire.Reader, error) {
	off, err := m.offset(addr, 0)
	if err != nil {
		return nil, err
	}
	return wire.NewReader(m.buf[off:], addr), nil
}

// Word loads the word at addr.
func (m *Memory) Word(addr uint32) (uint32, error) {
	if addr&3 != 0 {
		return 0, fmt.Errorf("%w: %#x", ErrUnaligned, addr)
	}
	off, err := m.offset(addr, 4)
	if err != nil {
		return 0, err
	}
	return wire.U32(m.buf[off:]), nil
}

// SetWord stores v at addr.
func (m *Memory) SetWord(addr, v uint32) error {
	if addr&3 != 0 {
		return fmt.Errorf("%w: %#x", ErrUnaligned, addr)
	}
	off, err := m.offset(addr, 4)
	if err != nil {
		return err
	}
	wire.PutU32(m.buf[off:], v)
	return nil
}

// Place copies data into the next free word-aligned slot and returns its
// address. Only image builders call it.
func (m *Memory) Place(data []byte) (uint32, error) {
	start := (m.top + 3) &^ 3
	if uint64(start)+uint64(len(data)) > uint64(len(m.buf)) {
		return 0, fmt.Errorf("%w: need %d bytes", ErrImageFull, len(data))
	}
	copy(m.buf[start:], data)
	m.top = start + uint32(len(data))
	return m.base + start, nil
}

// PlaceWords is Place for a word list.
func (m *Memory) PlaceWords(words ...uint32) (uint32, error) {
	return m.Place(wire.Encode(words...))
}

// Reserve claims n zeroed bytes without writing them.
func (m *Memory) Reserve(n int) (uint32, error) {
	start := (m.top + 3) &^ 3
	if uint64(start)+uint64(n) > uint64(len(m.buf)) {
		return 0, fmt.Errorf("%w: need %d bytes", ErrImageFull, n)
	}
	m.top = start + uint32(n)
	return m.base + start, nil
}
