// ════════════════════════════════════════════════════════════════════════════════════════════════
// FAKE HEAP
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: SDRAM word arena
//
// Description:
//   The simulation kernel owns the real heap, so the compressor carves its working memory out
//   of the usable-SDRAM blocks the host left over. The arena is a bump allocator over those
//   blocks with stack-style marks: a compression attempt takes a mark on entry and rewinds
//   to it on every return path, so repeated binary-search probes never leak.
//
// Design Principles:
//   - Fixed capacity: exhaustion is a sizing bug upstream and always fatal to the run
//   - Blocks are used in descriptor order; an allocation never spans two blocks
//   - Returned slices alias SDRAM and are zeroed on allocation
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package sdram

import (
	"errors"
	"fmt"
	"unsafe"

	"rtcompress/constants"
	"rtcompress/wire"
)

var ErrExhausted = errors.New("sdram: fake heap exhausted")

// Block is one contiguous run of usable SDRAM.
type Block struct {
	Addr uint32
	Size uint32 // bytes
}

// ParseHeapDescriptor decodes `n_blocks` then `{addr, size}` pairs.
func ParseHeapDescriptor(r *wire.Reader) ([]Block, error) {
	n, err := r.Count(2)
	if err != nil {
		return nil, fmt.Errorf("heap descriptor: %w", err)
	}
	blocks := make([]Block, n)
	for i := range blocks {
		if blocks[i].Addr, err = r.U32(); err != nil {
			return nil, err
		}
		if blocks[i].Size, err = r.U32(); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

// Mark is an arena position Rewind can return to.
type Mark struct {
	block int
	off   int
}

type region struct {
	words []uint32
}

// Arena hands out zeroed word slices from SDRAM blocks.
type Arena struct {
	blocks []region
	cur    Mark
	peak   int
}

// NewArena aliases every block in mem. Blocks must be word aligned.
func NewArena(mem *Memory, blocks []Block) (*Arena, error) {
	a := &Arena{blocks: make([]region, 0, len(blocks))}
	for _, b := range blocks {
		if b.Addr&3 != 0 {
			return nil, fmt.Errorf("%w: heap block %#x", ErrUnaligned, b.Addr)
		}
		n := int(b.Size / 4)
		if n == 0 {
			continue
		}
		raw, err := mem.Bytes(b.Addr, n*4)
		if err != nil {
			return nil, fmt.Errorf("heap block: %w", err)
		}
		a.blocks = append(a.blocks, region{words: unsafe.Slice((*uint32)(unsafe.Pointer(&raw[0])), n)})
	}
	return a, nil
}

// NewHeapArena is an arena over private memory of nWords words, for cores
// (and tests) that have no shared image.
func NewHeapArena(nWords int) *Arena {
	return &Arena{blocks: []region{{words: make([]uint32, nWords)}}}
}

// Alloc returns n zeroed words. n == 0 returns an empty, non-nil slice.
func (a *Arena) Alloc(n int) ([]uint32, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative request", ErrExhausted)
	}
	if n == 0 {
		return []uint32{}, nil
	}
	want := n
	n = (n + constants.HeapAlignWords - 1) &^ (constants.HeapAlignWords - 1)
	for b := a.cur.block; b < len(a.blocks); b++ {
		off := 0
		if b == a.cur.block {
			off = a.cur.off
		}
		blk := &a.blocks[b]
		if len(blk.words)-off < n {
			continue
		}
		s := blk.words[off : off+want : off+want]
		clear(s)
		a.cur = Mark{block: b, off: off + n}
		if u := a.Used(); u > a.peak {
			a.peak = u
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %d words requested, %d in use", ErrExhausted, n, a.Used())
}

// Mark records the current position.
func (a *Arena) Mark() Mark { return a.cur }

// Rewind frees everything allocated since m.
func (a *Arena) Rewind(m Mark) {
	if m.block > a.cur.block || (m.block == a.cur.block && m.off > a.cur.off) {
		return
	}
	a.cur = m
}

// Reset frees everything; called when a run ends.
func (a *Arena) Reset() {
	a.cur = Mark{}
}

// Used words currently allocated. Tails skipped when an allocation moved on
// to the next block count as used, as on the chip.
func (a *Arena) Used() int {
	n := a.cur.off
	for b := 0; b < a.cur.block && b < len(a.blocks); b++ {
		n += len(a.blocks[b].words)
	}
	return n
}

// Peak is the high-water mark in words.
func (a *Arena) Peak() int { return a.peak }

// Capacity is the total word count across blocks.
func (a *Arena) Capacity() int {
	n := 0
	for i := range a.blocks {
		n += len(a.blocks[i].words)
	}
	return n
}
