package search

import (
	"errors"
	"os"
	"testing"

	"rtcompress/bitfield"
	"rtcompress/constants"
	"rtcompress/debug"
	"rtcompress/minimise"
	"rtcompress/router"
	"rtcompress/routing"
	"rtcompress/sdram"
	"rtcompress/shared"
)

func TestMain(m *testing.M) {
	debug.SetQuiet(true)
	os.Exit(m.Run())
}

// ============================================================================
// FIXTURES
// ============================================================================

var (
	r12 = routing.ProcessorBit(1) | routing.ProcessorBit(2)
	r2  = routing.ProcessorBit(2)
)

// threePops is three 16-atom populations routed to cores 1 and 2, with core
// 1 needing only the even neurons of each.
func threePops() shared.ImageSpec {
	keys := []uint32{0x1000, 0x2000, 0x4000}
	core := shared.CoreImage{ProcessorID: 1}
	var table routing.Table
	for _, k := range keys {
		table = append(table, routing.Entry{Key: k, Mask: 0xFFFFFFF0, Route: r12})
		core.Atoms = append(core.Atoms, bitfield.AtomInfo{Key: k, NAtoms: 16})
		core.Filters = append(core.Filters, bitfield.RawFilter{Key: k, Data: []uint32{0x5555}})
	}
	return shared.ImageSpec{Table: table, Cores: []shared.CoreImage{core}, HeapWords: 4096}
}

func newContext(t *testing.T, spec shared.ImageSpec) (*shared.Context, *router.MCRouter) {
	t.Helper()
	mem, regs, err := shared.BuildImage(spec)
	if err != nil {
		t.Fatal(err)
	}
	hw := router.NewMCRouter()
	ctx, err := shared.NewContext(mem, regs, hw, 9)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctx.Close)
	return ctx, hw
}

// recording wraps a compressor, forces every probe above limit to fail and
// samples the driver's floor before each round.
type recording struct {
	inner  Compressor
	limit  int
	driver *Driver
	points []int
	floors []int
}

func (r *recording) Cores() int { return r.inner.Cores() }

func (r *recording) Compress(batch []Attempt) []Outcome {
	if r.driver != nil {
		r.floors = append(r.floors, r.driver.Progress().BestSearchPoint)
	}
	outs := r.inner.Compress(batch)
	for i := range outs {
		r.points = append(r.points, outs[i].Point)
		if outs[i].Point > r.limit {
			outs[i].Err = minimise.ErrDidNotFit
		}
	}
	return outs
}

// ============================================================================
// SYNTHESIS
// ============================================================================

func TestSynthesizeSplitsEntryByAtom(t *testing.T) {
	table := routing.Table{{Key: 0x100, Mask: 0xFFFFFFFC, Route: r12}}
	f := &bitfield.Filter{Key: 0x100, NAtoms: 4, ProcessorID: 1, Data: []uint32{0b0101}}
	syn, err := Synthesize(table, []*bitfield.Filter{f})
	if err != nil {
		t.Fatal(err)
	}
	if len(syn.Table) != 4 {
		t.Fatalf("len = %d, want 4 atoms and no original: %+v", len(syn.Table), syn.Table)
	}
	for n := uint32(0); n < 4; n++ {
		want := r12
		if n%2 == 1 {
			want = r2
		}
		if got := syn.Table.Route(0x100 + n); got != want {
			t.Fatalf("atom %d route %#x, want %#x", n, got, want)
		}
		if len(syn.Sources[n]) != 1 || syn.Sources[n][0] != f {
			t.Fatalf("sources of atom %d = %v", n, syn.Sources[n])
		}
	}
}

func TestSynthesizeKeepsWiderOriginal(t *testing.T) {
	table := routing.Table{{Key: 0x100, Mask: 0xFFFFFF00, Route: r12}}
	f := &bitfield.Filter{Key: 0x100, NAtoms: 4, ProcessorID: 1, Data: []uint32{0b1110}}
	syn, err := Synthesize(table, []*bitfield.Filter{f})
	if err != nil {
		t.Fatal(err)
	}
	// Only atom 0 changes; the original still serves keys 0x101..0x1FF.
	if len(syn.Table) != 2 || syn.Table[1] != table[0] {
		t.Fatalf("table = %+v", syn.Table)
	}
	if syn.Table.Route(0x100) != r2 || syn.Table.Route(0x1F0) != r12 {
		t.Fatal("routes wrong after synthesis")
	}
	if len(syn.Sources[1]) != 1 {
		t.Fatal("kept original must still name the filter folded into it")
	}
}

func TestSynthesizeCombinesCores(t *testing.T) {
	table := routing.Table{{Key: 0x10, Mask: 0xFFFFFFFE, Route: r12 | routing.LinkBit(0)}}
	f1 := &bitfield.Filter{Key: 0x10, NAtoms: 2, ProcessorID: 1, Data: []uint32{0b10}}
	f2 := &bitfield.Filter{Key: 0x10, NAtoms: 2, ProcessorID: 2, Data: []uint32{0b01}}
	syn, err := Synthesize(table, []*bitfield.Filter{f1, f2})
	if err != nil {
		t.Fatal(err)
	}
	if got := syn.Table.Route(0x10); got != routing.ProcessorBit(2)|routing.LinkBit(0) {
		t.Fatalf("atom 0 route %#x", got)
	}
	if got := syn.Table.Route(0x11); got != routing.ProcessorBit(1)|routing.LinkBit(0) {
		t.Fatalf("atom 1 route %#x", got)
	}
}

func TestSynthesizeWithoutFiltersIsIdentity(t *testing.T) {
	table := routing.Table{{Key: 1, Mask: 0xFFFFFFFF, Route: 1}}
	syn, err := Synthesize(table, nil)
	if err != nil || len(syn.Table) != 1 || len(syn.Sources) != 1 || syn.Sources[0] != nil {
		t.Fatalf("syn=%+v err=%v", syn, err)
	}
}

func TestSynthesizeUnroutedKeyIsFatal(t *testing.T) {
	table := routing.Table{{Key: 1, Mask: 0xFFFFFFFF, Route: 1}}
	f := &bitfield.Filter{Key: 0x500, NAtoms: 1, Data: []uint32{0}}
	if _, err := Synthesize(table, []*bitfield.Filter{f}); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("want ErrNoRoute, got %v", err)
	}
}

// ============================================================================
// PROBE POINTS
// ============================================================================

func TestProbePoints(t *testing.T) {
	cases := []struct {
		lo, hi, k int
		want      []int
	}{
		{0, 10, 1, []int{5}},
		{0, 0, 4, []int{0}},
		{0, 10, 3, []int{2, 5, 8}},
		{3, 4, 4, []int{3, 4}},
	}
	for _, c := range cases {
		got := probePoints(c.lo, c.hi, c.k)
		if len(got) != len(c.want) {
			t.Fatalf("probePoints(%d,%d,%d) = %v, want %v", c.lo, c.hi, c.k, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("probePoints(%d,%d,%d) = %v, want %v", c.lo, c.hi, c.k, got, c.want)
			}
		}
	}
}

// ============================================================================
// RUNS
// ============================================================================

func TestRunWithoutBitfields(t *testing.T) {
	table := routing.Table{
		{Key: 0x10, Mask: 0xFFFFFFFF, Route: 1},
		{Key: 0x11, Mask: 0xFFFFFFFF, Route: 1},
		{Key: 0x20, Mask: 0xFFFFFFFF, Route: 2},
	}
	ctx, hw := newContext(t, shared.ImageSpec{Table: table, Cores: []shared.CoreImage{{ProcessorID: 3}}, HeapWords: 256})
	d := NewDriver(ctx, nil)
	rep, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	if rep.State != Done || rep.BestSearchPoint != 0 || rep.Attempts != 1 || rep.Regenerated {
		t.Fatalf("report = %+v", rep)
	}
	if ctx.Status.Code() != constants.ExitedCleanly {
		t.Fatalf("status %s", shared.CodeName(ctx.Status.Code()))
	}
	// Already inside the router: the minimiser stops at its target untouched.
	if rep.LoadedEntries != 3 || hw.Used() != 3 {
		t.Fatalf("loaded %d entries, router holds %d", rep.LoadedEntries, hw.Used())
	}
	for _, k := range []uint32{0x10, 0x11, 0x20} {
		got, ok := hw.Lookup(k)
		if !ok || got&constants.RouteMask != table.Route(k) || got>>constants.AppIDShift != 9 {
			t.Fatalf("key %#x routed %#x", k, got)
		}
	}
}

func TestRunRegeneratesBestAfterFailedProbe(t *testing.T) {
	ctx, hw := newContext(t, threePops())
	d := NewDriver(ctx, nil)
	d.Capacity = 4
	rep, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	if rep.BestSearchPoint != 1 || !rep.Regenerated || rep.Rounds != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.LoadedEntries > 4 || hw.Used() != rep.LoadedEntries {
		t.Fatalf("loaded %d entries, router holds %d", rep.LoadedEntries, hw.Used())
	}
	if rep.MergedFilters != 1 || rep.RedundantPackets != 8 {
		t.Fatalf("merged %d filters saving %d packets", rep.MergedFilters, rep.RedundantPackets)
	}
	if ctx.Status.Code() != constants.ExitedCleanly || ctx.Status.Detail() != 1 {
		t.Fatalf("status %d/%d", ctx.Status.Code(), ctx.Status.Detail())
	}
	if d.Progress().LastSearchPoint != 1 || len(d.Progress().BestTable) != rep.LoadedEntries {
		t.Fatalf("progress = %+v", d.Progress())
	}
}

func TestRunMergedFiltersAreSound(t *testing.T) {
	spec := threePops()
	ctx, hw := newContext(t, spec)
	if _, err := NewDriver(ctx, nil).Run(); err != nil {
		t.Fatal(err)
	}
	store, err := ctx.Bitfields()
	if err != nil {
		t.Fatal(err)
	}
	merged := 0
	store.Each(func(_ int, f *bitfield.Filter) {
		if !f.Merged {
			return
		}
		merged++
		for n := uint32(0); n < f.NAtoms; n++ {
			k := f.AtomKey(n)
			got, _ := hw.Lookup(k)
			toCore := got&routing.ProcessorBit(f.ProcessorID) != 0
			if toCore != f.Bit(n) {
				t.Fatalf("key %#x: delivered to core %d = %v, bit = %v", k, f.ProcessorID, toCore, f.Bit(n))
			}
			if got&r2 == 0 {
				t.Fatalf("key %#x lost its other destination", k)
			}
		}
	})
	if merged != 3 {
		t.Fatalf("%d filters marked merged on re-read, want 3", merged)
	}
}

func TestRunFloorNeverDrops(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		ctx, _ := newContext(t, threePops())
		rec := &recording{inner: &wide{Local: &Local{Arena: ctx.Arena}, k: k}, limit: 2}
		d := NewDriver(ctx, rec)
		rec.driver = d
		rep, err := d.Run()
		if err != nil {
			t.Fatal(err)
		}
		for i := 1; i < len(rec.floors); i++ {
			if rec.floors[i] < rec.floors[i-1] {
				t.Fatalf("k=%d floor dropped: %v", k, rec.floors)
			}
		}
		if rep.BestSearchPoint != 2 {
			t.Fatalf("k=%d best %d, want 2 (probes %v)", k, rep.BestSearchPoint, rec.points)
		}
		if rep.LoadedEntries > constants.RouterCapacity {
			t.Fatal("committed table larger than the router")
		}
	}
}

// wide pretends to have k cores while running locally.
type wide struct {
	*Local
	k int
}

func (w *wide) Cores() int { return w.k }

func TestRunFailsOverToStrippedTable(t *testing.T) {
	table := routing.Table{
		{Key: 1, Mask: 0xFFFFFFFF, Route: routing.LinkBit(3), Source: routing.LinkBit(0)},
		{Key: 2, Mask: 0xFFFFFFFF, Route: routing.LinkBit(4), Source: routing.LinkBit(1)},
		{Key: 4, Mask: 0xFFFFFFFF, Route: routing.ProcessorBit(1)},
		{Key: 8, Mask: 0xFFFFFFFF, Route: routing.ProcessorBit(2)},
	}
	ctx, hw := newContext(t, shared.ImageSpec{Table: table, HeapWords: 256})
	d := NewDriver(ctx, nil)
	d.Capacity = 2
	rep, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	if d.State() != Failed || rep.State != Failed || ctx.Status.Code() != constants.ExitFail {
		t.Fatalf("state %s status %s", d.State(), shared.CodeName(ctx.Status.Code()))
	}
	if rep.LoadedEntries != 2 || hw.Used() != 2 {
		t.Fatalf("loaded %d", rep.LoadedEntries)
	}
	if _, ok := hw.Lookup(1); ok {
		t.Fatal("default-routable entry should have been stripped")
	}
}

func TestRunFailsOverToOriginalTable(t *testing.T) {
	table := routing.Table{
		{Key: 1, Mask: 0xFFFFFFFF, Route: 1},
		{Key: 2, Mask: 0xFFFFFFFF, Route: 2},
		{Key: 4, Mask: 0xFFFFFFFF, Route: 4},
	}
	ctx, hw := newContext(t, shared.ImageSpec{Table: table, HeapWords: 256})
	d := NewDriver(ctx, nil)
	d.Capacity = 2
	rep, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	if rep.State != Failed || rep.LoadedEntries != 3 || hw.Used() != 3 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRunCorruptRegionIsSoftwareError(t *testing.T) {
	spec := threePops()
	spec.Cores[0].Filters[0].Data = []uint32{1, 2} // 16 atoms need 1 word
	ctx, _ := newContext(t, spec)
	_, err := NewDriver(ctx, nil).Run()
	if !errors.Is(err, bitfield.ErrCorruptRegion) {
		t.Fatalf("want ErrCorruptRegion, got %v", err)
	}
	if ctx.Status.Code() != constants.ExitSwErr {
		t.Fatalf("status %s", shared.CodeName(ctx.Status.Code()))
	}
}

func TestRunHeapExhaustionIsMallocError(t *testing.T) {
	spec := threePops()
	spec.HeapWords = 8
	ctx, _ := newContext(t, spec)
	_, err := NewDriver(ctx, nil).Run()
	if !errors.Is(err, sdram.ErrExhausted) {
		t.Fatalf("want ErrExhausted, got %v", err)
	}
	if ctx.Status.Code() != constants.ExitMalloc {
		t.Fatalf("status %s", shared.CodeName(ctx.Status.Code()))
	}
}

func TestRunOnCorePool(t *testing.T) {
	ctx, hw := newContext(t, threePops())
	pool := NewCorePool(2, 0, 4096)
	defer pool.Close()
	d := NewDriver(ctx, pool)
	d.Capacity = 4
	rep, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	if rep.BestSearchPoint != 1 || hw.Used() != rep.LoadedEntries {
		t.Fatalf("report = %+v", rep)
	}
}

func TestStateNames(t *testing.T) {
	for s, want := range map[State]string{
		Searching: "SEARCHING", RegeneratingBest: "REGENERATING_BEST", Loading: "LOADING",
		Done: "DONE", Failed: "FAILED", State(99): "UNKNOWN",
	} {
		if s.String() != want {
			t.Fatalf("%d.String() = %q", s, s.String())
		}
	}
}
