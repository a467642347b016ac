// Package prioritize orders bitfields by how many packets merging them
// would save. Filters that save the same number of packets form one
// CoverageGroup; groups are emitted most-redundant first, and inside a group
// filters keep their store order (processor encounter order, then region
// order).
package prioritize

import (
	"errors"
	"fmt"

	"rtcompress/bitfield"
	"rtcompress/sdram"
)

var ErrCountMismatch = errors.New("prioritize: count array does not match store")

// Ref names one filter and the core that owns it.
type Ref struct {
	ProcessorID uint32
	Filter      *bitfield.Filter
}

// CoverageGroup is every candidate filter with the same redundancy.
type CoverageGroup struct {
	NRedundantPackets uint32
	BitFields         []Ref
}

// Sorted is the flat merge order the search driver cuts.
// len(Filters) == len(ProcessorIDs).
type Sorted struct {
	Filters      []*bitfield.Filter
	ProcessorIDs []uint32
	Groups       []CoverageGroup
}

// Len is the number of candidate filters.
func (s Sorted) Len() int { return len(s.Filters) }

// Candidate reports whether f may be offered for merging at all.
//
//go:nosplit
//go:inline
func Candidate(f *bitfield.Filter) bool { return !f.Merged && !f.AllOnes }

// Prioritize builds the merge order from a scan of store. The distinct-count
// table is carved from arena and released before returning.
func Prioritize(store *bitfield.Store, counts []uint32, arena *sdram.Arena) (Sorted, error) {
	if len(counts) != store.Len() {
		return Sorted{}, fmt.Errorf("%w: %d counts for %d filters", ErrCountMismatch, len(counts), store.Len())
	}
	mark := arena.Mark()
	defer arena.Rewind(mark)

	distinct, err := arena.Alloc(len(counts))
	if err != nil {
		return Sorted{}, fmt.Errorf("prioritize: %w", err)
	}
	nDistinct := 0
	nCandidates := 0
	store.Each(func(i int, f *bitfield.Filter) {
		if !Candidate(f) {
			return
		}
		nCandidates++
		nDistinct = insertDescending(distinct, nDistinct, counts[i])
	})

	out := Sorted{
		Filters:      make([]*bitfield.Filter, 0, nCandidates),
		ProcessorIDs: make([]uint32, 0, nCandidates),
		Groups:       make([]CoverageGroup, nDistinct),
	}
	for g := range out.Groups {
		out.Groups[g].NRedundantPackets = distinct[g]
	}
	store.Each(func(i int, f *bitfield.Filter) {
		if !Candidate(f) {
			return
		}
		g := groupOf(distinct[:nDistinct], counts[i])
		out.Groups[g].BitFields = append(out.Groups[g].BitFields, Ref{ProcessorID: f.ProcessorID, Filter: f})
	})
	for _, grp := range out.Groups {
		for _, ref := range grp.BitFields {
			out.Filters = append(out.Filters, ref.Filter)
			out.ProcessorIDs = append(out.ProcessorIDs, ref.ProcessorID)
		}
	}
	return out, nil
}

// insertDescending adds v to the sorted distinct prefix d[:n] if absent.
func insertDescending(d []uint32, n int, v uint32) int {
	i := 0
	for i < n && d[i] > v {
		i++
	}
	if i < n && d[i] == v {
		return n
	}
	copy(d[i+1:n+1], d[i:n])
	d[i] = v
	return n + 1
}

// groupOf finds v in the descending distinct table.
func groupOf(d []uint32, v uint32) int {
	lo, hi := 0, len(d)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if d[mid] > v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
