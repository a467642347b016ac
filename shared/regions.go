// ════════════════════════════════════════════════════════════════════════════════════════════════
// CHIP IMAGE LAYOUT
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Cross-core coordination shim
//
// Description:
//   Everything the host and the per-core expanders leave for the compressor: four user
//   registers pointing into SDRAM, the region-address table naming each core's bitfield region
//   and key→atom map, and the builder config blob of region ids.
//
// Wire formats:
//   user registers : app pointer table, router table, region-address table, usable SDRAM
//   region table   : n_pairs, {bitfield_region, key_atom_region, processor_id}, time_per_iteration
//   builder config : six region ids, 0xFFFFFFFF = absent
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package shared

import (
	"errors"
	"fmt"

	"rtcompress/constants"
	"rtcompress/wire"
)

var ErrBadRegister = errors.New("shared: user register does not point into SDRAM")

// User register slots.
const (
	RegAppPointerTable = iota
	RegRouterTable
	RegRegionTable
	RegUsableSDRAM
)

// UserRegisters are the searcher core's four user registers.
type UserRegisters [constants.UserRegisters]uint32

// ─────────────────────────── Region-address table ───────────────────────────

// RegionTriple locates one core's bitfield data.
type RegionTriple struct {
	BitfieldRegion uint32
	KeyAtomRegion  uint32
	ProcessorID    uint32
}

// RegionTable lists every contributing core, in processor encounter order.
type RegionTable struct {
	Triples []RegionTriple

	// TimePerIteration is the per-attempt budget in µs; 0 means unbounded.
	TimePerIteration uint32
}

// ParseRegionTable decodes the region-address table.
func ParseRegionTable(r *wire.Reader) (RegionTable, error) {
	n, err := r.Count(3)
	if err != nil {
		return RegionTable{}, fmt.Errorf("region table: %w", err)
	}
	rt := RegionTable{Triples: make([]RegionTriple, n)}
	for i := range rt.Triples {
		tr := &rt.Triples[i]
		if tr.BitfieldRegion, err = r.U32(); err != nil {
			return RegionTable{}, err
		}
		if tr.KeyAtomRegion, err = r.U32(); err != nil {
			return RegionTable{}, err
		}
		if tr.ProcessorID, err = r.U32(); err != nil {
			return RegionTable{}, err
		}
		if tr.ProcessorID >= constants.NumProcessors {
			return RegionTable{}, fmt.Errorf("region table: processor id %d out of range", tr.ProcessorID)
		}
	}
	if rt.TimePerIteration, err = r.U32(); err != nil {
		return RegionTable{}, fmt.Errorf("region table time word: %w", err)
	}
	if rt.TimePerIteration == 0 {
		rt.TimePerIteration = constants.DefaultTimePerIteration
	}
	return rt, nil
}

// EncodeRegionTable lays rt out in SDRAM format.
func EncodeRegionTable(rt RegionTable) []byte {
	words := []uint32{uint32(len(rt.Triples))}
	for _, tr := range rt.Triples {
		words = append(words, tr.BitfieldRegion, tr.KeyAtomRegion, tr.ProcessorID)
	}
	words = append(words, rt.TimePerIteration)
	return wire.Encode(words...)
}

// ───────────────────────────── Builder config ───────────────────────────────

// BuilderConfig names the data-spec regions the bitfield builder used.
type BuilderConfig struct {
	MasterPop        uint32
	SynapticMatrix   uint32
	DirectMatrix     uint32
	BitField         uint32
	BitFieldKeyMap   uint32
	StructuralMatrix uint32
}

// AbsentBuilderConfig has every region absent.
var AbsentBuilderConfig = BuilderConfig{
	MasterPop:        constants.RegionAbsent,
	SynapticMatrix:   constants.RegionAbsent,
	DirectMatrix:     constants.RegionAbsent,
	BitField:         constants.RegionAbsent,
	BitFieldKeyMap:   constants.RegionAbsent,
	StructuralMatrix: constants.RegionAbsent,
}

// ParseBuilderConfig decodes the six-word builder blob.
func ParseBuilderConfig(r *wire.Reader) (BuilderConfig, error) {
	var w [constants.BuilderConfigWords]uint32
	if err := r.Words(w[:], len(w)); err != nil {
		return BuilderConfig{}, fmt.Errorf("builder config: %w", err)
	}
	return BuilderConfig{
		MasterPop:        w[0],
		SynapticMatrix:   w[1],
		DirectMatrix:     w[2],
		BitField:         w[3],
		BitFieldKeyMap:   w[4],
		StructuralMatrix: w[5],
	}, nil
}

// Encode lays c out as its six words.
func (c BuilderConfig) Encode() []byte {
	return wire.Encode(c.MasterPop, c.SynapticMatrix, c.DirectMatrix, c.BitField, c.BitFieldKeyMap, c.StructuralMatrix)
}

// HasBitfields reports whether the builder produced bitfield regions.
func (c BuilderConfig) HasBitfields() bool {
	return c.BitField != constants.RegionAbsent && c.BitFieldKeyMap != constants.RegionAbsent
}
