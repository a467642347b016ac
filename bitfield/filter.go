// ════════════════════════════════════════════════════════════════════════════════════════════════
// BITFIELD STORE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Per-core redundancy bitfields
//
// Description:
//   Each simulation core's bit-field expander leaves one bitfield per incoming key in its SDRAM
//   region: bit n set means neuron n of that key's population has a live synapse on the core,
//   bit clear means packets for neuron n are provably useless there. The store decodes those
//   regions once per run into typed Filters whose payload words live in the fake heap.
//
// Wire formats:
//   key→atom map : n_pairs, then {key, n_atoms, core_shift, n_atoms_per_core}
//   region       : n_filters, then {key, n_words | merged<<31, data[n_words]}
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package bitfield

import (
	"errors"
	"fmt"
	"math/bits"

	"rtcompress/constants"
	"rtcompress/keyidx"
	"rtcompress/sdram"
	"rtcompress/wire"
)

var (
	ErrUnknownKey    = errors.New("bitfield: key missing from key-to-atom map")
	ErrCorruptRegion = errors.New("bitfield: corrupt bitfield region")
)

// AtomInfoWords is the record size of the key→atom map.
const AtomInfoWords = 4

// AtomInfo sizes the population behind one key.
type AtomInfo struct {
	Key           uint32
	NAtoms        uint32
	CoreShift     uint32
	NAtomsPerCore uint32
}

// KeyAtomMap resolves keys to their population size.
type KeyAtomMap struct {
	infos []AtomInfo
	idx   *keyidx.Hash
}

// ParseKeyAtomMap decodes one core's key→atom map.
func ParseKeyAtomMap(r *wire.Reader) (*KeyAtomMap, error) {
	n, err := r.Count(AtomInfoWords)
	if err != nil {
		return nil, fmt.Errorf("key-atom map: %w", err)
	}
	m := &KeyAtomMap{infos: make([]AtomInfo, n), idx: keyidx.New(n)}
	for i := range m.infos {
		a := &m.infos[i]
		if a.Key, err = r.U32(); err != nil {
			return nil, err
		}
		if a.NAtoms, err = r.U32(); err != nil {
			return nil, err
		}
		if a.CoreShift, err = r.U32(); err != nil {
			return nil, err
		}
		if a.NAtomsPerCore, err = r.U32(); err != nil {
			return nil, err
		}
		if a.CoreShift >= 32 {
			return nil, fmt.Errorf("%w: key %#x core shift %d", ErrCorruptRegion, a.Key, a.CoreShift)
		}
		m.idx.Put(a.Key, uint32(i))
	}
	return m, nil
}

// Lookup returns the atom info for key. A miss is fatal to the run: the
// routing table and the expander disagree about which keys exist.
func (m *KeyAtomMap) Lookup(key uint32) (AtomInfo, error) {
	i, ok := m.idx.Get(key)
	if !ok {
		return AtomInfo{}, fmt.Errorf("%w: %#x", ErrUnknownKey, key)
	}
	return m.infos[i], nil
}

// Len is the number of keys in the map.
func (m *KeyAtomMap) Len() int { return len(m.infos) }

// EncodeKeyAtomMap lays infos out in the SDRAM format.
func EncodeKeyAtomMap(infos []AtomInfo) []byte {
	words := make([]uint32, 0, 1+AtomInfoWords*len(infos))
	words = append(words, uint32(len(infos)))
	for _, a := range infos {
		words = append(words, a.Key, a.NAtoms, a.CoreShift, a.NAtomsPerCore)
	}
	return wire.Encode(words...)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// FILTER
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Filter is one decoded bitfield.
type Filter struct {
	Key           uint32
	NAtoms        uint32
	CoreShift     uint32
	NAtomsPerCore uint32
	AllOnes       bool
	Merged        bool
	ProcessorID   uint32
	Data          []uint32

	addr uint32 // SDRAM address of the record's n_words word; 0 if not from SDRAM
}

// WordsFor is ceil(nAtoms/32).
//
//go:nosplit
//go:inline
func WordsFor(nAtoms uint32) uint32 {
	return (nAtoms + constants.BitsPerWord - 1) / constants.BitsPerWord
}

// Bit reports whether neuron n has a live target on the filter's core.
//
//go:nosplit
//go:inline
func (f *Filter) Bit(n uint32) bool {
	return f.Data[n>>5]&(1<<(n&31)) != 0
}

// Ones counts live neurons, ignoring padding bits past NAtoms.
func (f *Filter) Ones() uint32 {
	full := f.NAtoms / constants.BitsPerWord
	ones := 0
	for _, w := range f.Data[:full] {
		ones += bits.OnesCount32(w)
	}
	if rem := f.NAtoms % constants.BitsPerWord; rem != 0 {
		ones += bits.OnesCount32(f.Data[full] & (1<<rem - 1))
	}
	return uint32(ones)
}

// RedundantPackets is the number of neurons whose packets the core drops.
func (f *Filter) RedundantPackets() uint32 { return f.NAtoms - f.Ones() }

// AtomKey is the spike key neuron n of the population is sent with.
//
//go:nosplit
//go:inline
func (f *Filter) AtomKey(n uint32) uint32 {
	if f.CoreShift == 0 || f.NAtomsPerCore == 0 {
		return f.Key + n
	}
	return f.Key + (n/f.NAtomsPerCore)<<f.CoreShift + n%f.NAtomsPerCore
}

// Addr is the SDRAM address the filter's header word was read from.
func (f *Filter) Addr() uint32 { return f.addr }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// REGION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Region is every filter one core contributed.
type Region struct {
	ProcessorID uint32
	Filters     []Filter
}

// ParseRegion decodes a bitfield region. Payload words come from arena;
// exhaustion is returned as sdram.ErrExhausted and is fatal.
func ParseRegion(r *wire.Reader, processorID uint32, atoms *KeyAtomMap, arena *sdram.Arena) (Region, error) {
	n, err := r.Count(2)
	if err != nil {
		return Region{}, fmt.Errorf("bitfield region of core %d: %w", processorID, err)
	}
	reg := Region{ProcessorID: processorID, Filters: make([]Filter, n)}
	for i := range reg.Filters {
		f := &reg.Filters[i]
		f.ProcessorID = processorID
		if f.Key, err = r.U32(); err != nil {
			return Region{}, err
		}
		f.addr = r.Addr()
		header, err := r.U32()
		if err != nil {
			return Region{}, err
		}
		f.Merged = header&constants.MergedFlag != 0
		nWords := header &^ constants.MergedFlag

		info, err := atoms.Lookup(f.Key)
		if err != nil {
			return Region{}, err
		}
		f.NAtoms, f.CoreShift, f.NAtomsPerCore = info.NAtoms, info.CoreShift, info.NAtomsPerCore
		if nWords != WordsFor(f.NAtoms) {
			return Region{}, fmt.Errorf("%w: core %d key %#x has %d words for %d atoms",
				ErrCorruptRegion, processorID, f.Key, nWords, f.NAtoms)
		}
		if f.Data, err = arena.Alloc(int(nWords)); err != nil {
			return Region{}, err
		}
		if err = r.Words(f.Data, int(nWords)); err != nil {
			return Region{}, err
		}
	}
	return reg, nil
}

// RawFilter is the host-side description of one record, for image builders.
type RawFilter struct {
	Key    uint32
	Data   []uint32
	Merged bool
}

// EncodeRegion lays filters out in the SDRAM region format.
func EncodeRegion(filters []RawFilter) []byte {
	words := []uint32{uint32(len(filters))}
	for _, f := range filters {
		header := uint32(len(f.Data))
		if f.Merged {
			header |= constants.MergedFlag
		}
		words = append(words, f.Key, header)
		words = append(words, f.Data...)
	}
	return wire.Encode(words...)
}
