package search

import (
	"errors"
	"fmt"

	"rtcompress/bitfield"
	"rtcompress/keyidx"
	"rtcompress/routing"
)

var ErrNoRoute = errors.New("search: bitfield key has no routing entry")

// Synthesis is a working table with the filters behind each entry.
type Synthesis struct {
	Table   routing.Table
	Sources [][]*bitfield.Filter // Sources[i] shaped Table[i]; nil for untouched entries
}

// population is every selected filter sharing one key, and so one atom layout.
type population struct {
	layout  *bitfield.Filter
	members []*bitfield.Filter
}

type atom struct {
	key, route uint32
	pop        int
}

// Synthesize folds filters into original. Every entry that first-matches an
// atom key of a selected population is replaced by one exact entry per atom,
// whose route drops each selected core whose bit for that atom is clear. The
// original entry follows its atoms only when it matches keys beyond them.
func Synthesize(original routing.Table, filters []*bitfield.Filter) (Synthesis, error) {
	if len(filters) == 0 {
		return Synthesis{Table: original.Clone(), Sources: make([][]*bitfield.Filter, len(original))}, nil
	}

	pops, err := groupPopulations(filters)
	if err != nil {
		return Synthesis{}, err
	}

	totalAtoms := 0
	for _, p := range pops {
		if _, _, ok := original.Lookup(p.layout.Key); !ok {
			return Synthesis{}, fmt.Errorf("%w: key %#x of core %d", ErrNoRoute, p.layout.Key, p.layout.ProcessorID)
		}
		totalAtoms += int(p.layout.NAtoms)
	}

	perEntry := make([][]atom, len(original))
	seen := keyidx.New(totalAtoms)
	id := uint32(0)
	for pi, p := range pops {
		for n := uint32(0); n < p.layout.NAtoms; n++ {
			k := p.layout.AtomKey(n)
			if v, _ := seen.Put(k, id); v != id {
				continue
			}
			id++
			e, at, ok := original.Lookup(k)
			if !ok {
				continue
			}
			route := e.Route
			for _, f := range p.members {
				if !f.Bit(n) {
					route &^= routing.ProcessorBit(f.ProcessorID)
				}
			}
			perEntry[at] = append(perEntry[at], atom{key: k, route: route, pop: pi})
		}
	}

	out := Synthesis{
		Table:   make(routing.Table, 0, len(original)+totalAtoms),
		Sources: make([][]*bitfield.Filter, 0, len(original)+totalAtoms),
	}
	for i, e := range original {
		atoms := perEntry[i]
		if len(atoms) == 0 {
			out.Table = append(out.Table, e)
			out.Sources = append(out.Sources, nil)
			continue
		}
		wide := widerThan(e, len(atoms))
		var all []*bitfield.Filter
		lastPop := -1
		for _, a := range atoms {
			src := pops[a.pop].members
			if a.pop != lastPop {
				all = append(all, src...)
				lastPop = a.pop
			}
			if wide && a.route == e.Route {
				continue
			}
			out.Table = append(out.Table, routing.Entry{Key: a.key, Mask: 0xFFFFFFFF, Route: a.route, Source: e.Source})
			out.Sources = append(out.Sources, src)
		}
		if wide {
			out.Table = append(out.Table, e)
			out.Sources = append(out.Sources, all)
		}
	}
	return out, nil
}

// groupPopulations buckets filters by key in first-appearance order.
func groupPopulations(filters []*bitfield.Filter) ([]population, error) {
	idx := keyidx.New(len(filters))
	var pops []population
	for _, f := range filters {
		pi, ok := idx.Put(f.Key, uint32(len(pops)))
		if !ok {
			return nil, fmt.Errorf("search: key index full at %d filters", len(filters))
		}
		if int(pi) == len(pops) {
			pops = append(pops, population{layout: f})
		}
		p := &pops[pi]
		if f.NAtoms != p.layout.NAtoms {
			return nil, fmt.Errorf("%w: key %#x has %d atoms on core %d, %d on core %d",
				bitfield.ErrCorruptRegion, f.Key, f.NAtoms, f.ProcessorID, p.layout.NAtoms, p.layout.ProcessorID)
		}
		p.members = append(p.members, f)
	}
	return pops, nil
}

// widerThan reports whether e matches more than n keys.
func widerThan(e routing.Entry, n int) bool {
	g := e.Generality()
	return g >= 32 || uint64(n) < uint64(1)<<g
}
