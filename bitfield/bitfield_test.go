package bitfield

import (
	"errors"
	"testing"

	"rtcompress/constants"
	"rtcompress/sdram"
	"rtcompress/wire"
)

// ============================================================================
// HELPERS
// ============================================================================

// buildCore places one core's key→atom map and bitfield region into mem.
func buildCore(t *testing.T, mem *sdram.Memory, infos []AtomInfo, filters []RawFilter) (regionAddr, mapAddr uint32) {
	t.Helper()
	var err error
	if mapAddr, err = mem.Place(EncodeKeyAtomMap(infos)); err != nil {
		t.Fatal(err)
	}
	if regionAddr, err = mem.Place(EncodeRegion(filters)); err != nil {
		t.Fatal(err)
	}
	return regionAddr, mapAddr
}

func parseCore(t *testing.T, mem *sdram.Memory, arena *sdram.Arena, regionAddr, mapAddr, proc uint32) Region {
	t.Helper()
	mr, _ := mem.Reader(mapAddr)
	atoms, err := ParseKeyAtomMap(mr)
	if err != nil {
		t.Fatal(err)
	}
	rr, _ := mem.Reader(regionAddr)
	reg, err := ParseRegion(rr, proc, atoms, arena)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

// ============================================================================
// PARSING
// ============================================================================

func TestParseRegion_DecodesFilters(t *testing.T) {
	mem := sdram.NewMemory(4096)
	arena := sdram.NewHeapArena(256)
	ra, ma := buildCore(t, mem,
		[]AtomInfo{{Key: 0x1000, NAtoms: 40}, {Key: 0x2000, NAtoms: 8, CoreShift: 4, NAtomsPerCore: 4}},
		[]RawFilter{
			{Key: 0x1000, Data: []uint32{0xFFFFFFFF, 0x000000F0}},
			{Key: 0x2000, Data: []uint32{0x0F}, Merged: true},
		})
	reg := parseCore(t, mem, arena, ra, ma, 3)
	if len(reg.Filters) != 2 || reg.ProcessorID != 3 {
		t.Fatalf("region = %+v", reg)
	}
	f := reg.Filters[0]
	if f.NAtoms != 40 || f.Merged || f.ProcessorID != 3 {
		t.Fatalf("filter 0 = %+v", f)
	}
	// 32 ones in word 0, bits 4..7 of word 1 are inside the 8 valid bits.
	if got := f.RedundantPackets(); got != 4 {
		t.Fatalf("redundant = %d, want 4", got)
	}
	if !reg.Filters[1].Merged {
		t.Fatal("merged flag must survive the round trip")
	}
	if f.Addr() != ra+8 {
		t.Fatalf("header address %#x, want %#x", f.Addr(), ra+8)
	}
}

func TestParseRegion_ZeroFilters(t *testing.T) {
	mem := sdram.NewMemory(256)
	ra, ma := buildCore(t, mem, nil, nil)
	reg := parseCore(t, mem, sdram.NewHeapArena(8), ra, ma, 0)
	if len(reg.Filters) != 0 {
		t.Fatal("empty region must decode to no filters")
	}
}

func TestParseRegion_UnknownKey(t *testing.T) {
	mem := sdram.NewMemory(256)
	ra, ma := buildCore(t, mem, []AtomInfo{{Key: 1, NAtoms: 1}}, []RawFilter{{Key: 2, Data: []uint32{1}}})
	mr, _ := mem.Reader(ma)
	atoms, _ := ParseKeyAtomMap(mr)
	rr, _ := mem.Reader(ra)
	if _, err := ParseRegion(rr, 0, atoms, sdram.NewHeapArena(8)); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("want ErrUnknownKey, got %v", err)
	}
}

func TestParseRegion_WordCountMismatch(t *testing.T) {
	mem := sdram.NewMemory(256)
	ra, ma := buildCore(t, mem, []AtomInfo{{Key: 1, NAtoms: 64}}, []RawFilter{{Key: 1, Data: []uint32{1}}})
	mr, _ := mem.Reader(ma)
	atoms, _ := ParseKeyAtomMap(mr)
	rr, _ := mem.Reader(ra)
	if _, err := ParseRegion(rr, 0, atoms, sdram.NewHeapArena(8)); !errors.Is(err, ErrCorruptRegion) {
		t.Fatalf("want ErrCorruptRegion, got %v", err)
	}
}

func TestParseRegion_ArenaExhaustionIsFatal(t *testing.T) {
	mem := sdram.NewMemory(1024)
	ra, ma := buildCore(t, mem, []AtomInfo{{Key: 1, NAtoms: 256}}, []RawFilter{{Key: 1, Data: make([]uint32, 8)}})
	mr, _ := mem.Reader(ma)
	atoms, _ := ParseKeyAtomMap(mr)
	rr, _ := mem.Reader(ra)
	if _, err := ParseRegion(rr, 0, atoms, sdram.NewHeapArena(4)); !errors.Is(err, sdram.ErrExhausted) {
		t.Fatalf("want ErrExhausted, got %v", err)
	}
}

func TestParseKeyAtomMap_BadShift(t *testing.T) {
	r := wire.NewReader(EncodeKeyAtomMap([]AtomInfo{{Key: 1, NAtoms: 1, CoreShift: 40}}), 0)
	if _, err := ParseKeyAtomMap(r); !errors.Is(err, ErrCorruptRegion) {
		t.Fatalf("want ErrCorruptRegion, got %v", err)
	}
}

// ============================================================================
// FILTER
// ============================================================================

func TestFilter_AtomKey(t *testing.T) {
	plain := Filter{Key: 0x800}
	if plain.AtomKey(5) != 0x805 {
		t.Fatalf("plain key %#x", plain.AtomKey(5))
	}
	split := Filter{Key: 0x10000, CoreShift: 8, NAtomsPerCore: 100}
	if got := split.AtomKey(205); got != 0x10000+2<<8+5 {
		t.Fatalf("split key %#x", got)
	}
}

func TestFilter_BitAndPadding(t *testing.T) {
	f := Filter{NAtoms: 3, Data: []uint32{0xFFFFFFFA}} // bits 0,1,2 = 0,1,0
	if f.Bit(0) || !f.Bit(1) || f.Bit(2) {
		t.Fatal("bit order must be LSB first")
	}
	if f.RedundantPackets() != 2 {
		t.Fatalf("padding bits must be ignored, got %d", f.RedundantPackets())
	}
}

// ============================================================================
// SCANNER
// ============================================================================

func TestScan_CountsAndIdempotence(t *testing.T) {
	mem := sdram.NewMemory(4096)
	arena := sdram.NewHeapArena(256)
	ra0, ma0 := buildCore(t, mem, []AtomInfo{{Key: 0x100, NAtoms: 32}},
		[]RawFilter{{Key: 0x100, Data: []uint32{0x0000FFFF}}})
	ra1, ma1 := buildCore(t, mem, []AtomInfo{{Key: 0x100, NAtoms: 32}, {Key: 0x200, NAtoms: 10}},
		[]RawFilter{{Key: 0x100, Data: []uint32{0xFFFFFFFF}}, {Key: 0x200, Data: []uint32{0x1}}})
	store := NewStore([]Region{
		parseCore(t, mem, arena, ra0, ma0, 1),
		parseCore(t, mem, arena, ra1, ma1, 2),
	})
	if store.Len() != 3 {
		t.Fatalf("Len = %d", store.Len())
	}
	first, err := Scan(store, arena)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{16, 0, 9}
	for i := range want {
		if first[i] != want[i] {
			t.Fatalf("counts = %v, want %v", first, want)
		}
	}
	if !store.At(1).AllOnes || store.At(0).AllOnes {
		t.Fatal("AllOnes must track zero-redundancy filters")
	}
	second, _ := Scan(store, arena)
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("scan must be idempotent")
		}
	}
	if store.At(0).ProcessorID != 1 || store.At(2).ProcessorID != 2 || store.At(2).Key != 0x200 {
		t.Fatal("flat index mapping broken")
	}
}

func TestScan_EmptyStore(t *testing.T) {
	counts, err := Scan(NewStore(nil), sdram.NewHeapArena(0))
	if err != nil || len(counts) != 0 {
		t.Fatalf("counts=%v err=%v", counts, err)
	}
}

// ============================================================================
// WRITE-BACK
// ============================================================================

func TestMarkMerged_PersistsFlag(t *testing.T) {
	mem := sdram.NewMemory(1024)
	arena := sdram.NewHeapArena(64)
	ra, ma := buildCore(t, mem, []AtomInfo{{Key: 7, NAtoms: 33}}, []RawFilter{{Key: 7, Data: []uint32{1, 0}}})
	reg := parseCore(t, mem, arena, ra, ma, 4)
	if err := MarkMerged(mem, &reg.Filters[0]); err != nil {
		t.Fatal(err)
	}
	if !reg.Filters[0].Merged {
		t.Fatal("in-memory flag not set")
	}
	again := parseCore(t, mem, arena, ra, ma, 4)
	if !again.Filters[0].Merged || again.Filters[0].NAtoms != 33 {
		t.Fatalf("re-read filter = %+v", again.Filters[0])
	}
	if w, _ := mem.Word(ra + 8); w != 2|constants.MergedFlag {
		t.Fatalf("header word = %#x", w)
	}
	var detached Filter
	if err := MarkMerged(mem, &detached); err != nil || !detached.Merged {
		t.Fatal("filters not backed by SDRAM are flagged in memory only")
	}
}
