package bitfield

import (
	"fmt"

	"rtcompress/constants"
	"rtcompress/sdram"
)

// Store is the run's view of every core's filters, in processor order then
// region order. Flat indices are stable for the life of the run.
type Store struct {
	regions []Region
	offsets []int // offsets[i] = flat index of regions[i].Filters[0]
	total   int
}

// NewStore indexes regions in the order given (region-address table order).
func NewStore(regions []Region) *Store {
	s := &Store{regions: regions, offsets: make([]int, len(regions))}
	for i := range regions {
		s.offsets[i] = s.total
		s.total += len(regions[i].Filters)
	}
	return s
}

// Len is the total filter count.
func (s *Store) Len() int { return s.total }

// Regions returns the per-core regions.
func (s *Store) Regions() []Region { return s.regions }

// At returns the filter at flat index i.
func (s *Store) At(i int) *Filter {
	for r := len(s.offsets) - 1; r >= 0; r-- {
		if i >= s.offsets[r] {
			return &s.regions[r].Filters[i-s.offsets[r]]
		}
	}
	return nil
}

// Each visits every filter with its flat index.
func (s *Store) Each(fn func(i int, f *Filter)) {
	i := 0
	for r := range s.regions {
		fs := s.regions[r].Filters
		for j := range fs {
			fn(i, &fs[j])
			i++
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// REDUNDANCY SCANNER
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Scan counts, for every filter, the packets it would eliminate if merged:
// n_atoms − popcount(data). One pass; the result array is sized from the
// declared filter counts and taken from arena. AllOnes is refreshed.
func Scan(s *Store, arena *sdram.Arena) ([]uint32, error) {
	counts, err := arena.Alloc(s.Len())
	if err != nil {
		return nil, fmt.Errorf("redundancy scan: %w", err)
	}
	s.Each(func(i int, f *Filter) {
		c := f.RedundantPackets()
		f.AllOnes = c == 0
		counts[i] = c
	})
	return counts, nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WRITE-BACK
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// WordStore is the SDRAM word access write-back needs.
type WordStore interface {
	Word(addr uint32) (uint32, error)
	SetWord(addr, v uint32) error
}

// MarkMerged flags f as folded into the routing table and persists the flag
// in bit 31 of its record's n_words word, the layout the expander re-reads.
func MarkMerged(mem WordStore, f *Filter) error {
	f.Merged = true
	if f.addr == 0 {
		return nil
	}
	w, err := mem.Word(f.addr)
	if err != nil {
		return fmt.Errorf("mark merged key %#x core %d: %w", f.Key, f.ProcessorID, err)
	}
	return mem.SetWord(f.addr, w|constants.MergedFlag)
}
