package shared

import (
	"rtcompress/bitfield"
	"rtcompress/routing"
	"rtcompress/sdram"
	"rtcompress/wire"
)

// CoreImage is one simulation core's contribution to a chip image.
type CoreImage struct {
	ProcessorID uint32
	Atoms       []bitfield.AtomInfo
	Filters     []bitfield.RawFilter
}

// ImageSpec describes a chip image for the host harness and tests.
type ImageSpec struct {
	Table            routing.Table
	Cores            []CoreImage
	TimePerIteration uint32
	HeapWords        int
	HeapBlocks       int            // usable-SDRAM blocks the heap is split over; 0 means 1
	Builder          *BuilderConfig // nil leaves the app pointer register at 0
	SpareWords       int            // left free at the end for host records
}

// BuildImage lays spec out in a fresh SDRAM image and returns the user
// registers pointing into it.
func BuildImage(spec ImageSpec) (*sdram.Memory, UserRegisters, error) {
	var regs UserRegisters
	nBlocks := max(spec.HeapBlocks, 1)
	perBlock := (spec.HeapWords + nBlocks - 1) / nBlocks

	size := len(spec.Table.Encode()) + 4*(nBlocks*(perBlock+2)+1) + 64
	rt := RegionTable{TimePerIteration: spec.TimePerIteration}
	for _, c := range spec.Cores {
		size += len(bitfield.EncodeKeyAtomMap(c.Atoms)) + len(bitfield.EncodeRegion(c.Filters)) + 16
	}
	size += 4 * (2 + 3*len(spec.Cores))
	size += 4 * spec.SpareWords
	mem := sdram.NewMemory(size)

	var err error
	if regs[RegRouterTable], err = mem.Place(spec.Table.Encode()); err != nil {
		return nil, regs, err
	}
	for _, c := range spec.Cores {
		tr := RegionTriple{ProcessorID: c.ProcessorID}
		if tr.KeyAtomRegion, err = mem.Place(bitfield.EncodeKeyAtomMap(c.Atoms)); err != nil {
			return nil, regs, err
		}
		if tr.BitfieldRegion, err = mem.Place(bitfield.EncodeRegion(c.Filters)); err != nil {
			return nil, regs, err
		}
		rt.Triples = append(rt.Triples, tr)
	}
	if regs[RegRegionTable], err = mem.Place(EncodeRegionTable(rt)); err != nil {
		return nil, regs, err
	}
	if spec.Builder != nil {
		if regs[RegAppPointerTable], err = mem.Place(spec.Builder.Encode()); err != nil {
			return nil, regs, err
		}
	}

	desc := []uint32{uint32(nBlocks)}
	for i := 0; i < nBlocks; i++ {
		addr, err := mem.Reserve(4 * perBlock)
		if err != nil {
			return nil, regs, err
		}
		desc = append(desc, addr, uint32(4*perBlock))
	}
	if regs[RegUsableSDRAM], err = mem.Place(wire.Encode(desc...)); err != nil {
		return nil, regs, err
	}
	return mem, regs, nil
}
