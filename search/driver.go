// ════════════════════════════════════════════════════════════════════════════════════════════════
// BINARY-SEARCH DRIVER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Bitfield cut-point search
//
// Description:
//   Finds the longest prefix of the priority-sorted bitfields whose synthesized table still
//   minimises into the router. Each probe m folds filters[:m] into the original table and runs
//   the minimiser under the per-attempt budget; a probe that fits raises the floor, any other
//   lowers the ceiling. With K compressor cores a round probes up to K points at once.
//
// State machine:
//   Searching → RegeneratingBest → Loading → Done
//   Searching → Failed (not even m = 0 fitted; the uncompressed table is loaded)
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package search

import (
	"errors"
	"fmt"

	"rtcompress/bitfield"
	"rtcompress/constants"
	"rtcompress/debug"
	"rtcompress/minimise"
	"rtcompress/prioritize"
	"rtcompress/router"
	"rtcompress/routing"
	"rtcompress/sdram"
	"rtcompress/shared"
	"rtcompress/utils"
)

// State is the driver's position in the run.
type State uint8

const (
	Searching State = iota
	RegeneratingBest
	Loading
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Searching:
		return "SEARCHING"
	case RegeneratingBest:
		return "REGENERATING_BEST"
	case Loading:
		return "LOADING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Progress is the search bookkeeping. BestSearchPoint only advances on a
// probe that fitted in budget and in the router.
type Progress struct {
	BestSearchPoint int
	LastSearchPoint int
	BestTable       routing.Table
}

// Report summarises one run for provenance.
type Report struct {
	State            State
	BestSearchPoint  int
	Filters          int // filters in the store
	Candidates       int // filters offered to the search
	Rounds           int
	Attempts         int
	FailedAttempts   int
	TimedOut         int
	Regenerated      bool
	OriginalEntries  int
	LoadedEntries    int
	MergedFilters    int
	RedundantPackets uint64
	Fingerprint      [32]byte
	ArenaPeak        int
	Merged           []FilterSummary
}

// FilterSummary identifies one filter folded into the committed table.
type FilterSummary struct {
	ProcessorID      uint32
	Key              uint32
	NAtoms           uint32
	RedundantPackets uint32
}

// Driver runs one compression.
type Driver struct {
	Ctx        *shared.Context
	Compressor Compressor

	// Capacity the committed table must fit; 0 means the router's.
	Capacity int

	state    State
	progress Progress
}

// NewDriver compresses on the calling core when comp is nil.
func NewDriver(ctx *shared.Context, comp Compressor) *Driver {
	if comp == nil {
		comp = &Local{Arena: ctx.Arena}
	}
	return &Driver{Ctx: ctx, Compressor: comp}
}

// State is the current state.
func (d *Driver) State() State { return d.state }

// Progress returns the search bookkeeping.
func (d *Driver) Progress() Progress { return d.progress }

func (d *Driver) capacity() int {
	if d.Capacity > 0 {
		return d.Capacity
	}
	return constants.RouterCapacity
}

func (d *Driver) enter(s State) {
	d.state = s
	debug.DropMessage("search", "state "+s.String()+" best="+utils.Itoa(d.progress.BestSearchPoint))
}

// abort publishes a fatal status for err.
func (d *Driver) abort(rep Report, err error) (Report, error) {
	code := uint32(constants.ExitSwErr)
	if errors.Is(err, sdram.ErrExhausted) {
		code = constants.ExitMalloc
	}
	d.Ctx.Status.Set(code, uint32(d.state))
	debug.DropError("search "+d.state.String(), err)
	rep.State = d.state
	rep.ArenaPeak = d.Ctx.Arena.Peak()
	return rep, err
}

// negative reports whether err is a failed probe rather than a fatal error.
func negative(err error) bool {
	return err == nil || errors.Is(err, minimise.ErrDidNotFit) || errors.Is(err, minimise.ErrOutOfTime)
}

// Run performs the whole search and commits a table. A nil error with
// State() == Failed means the uncompressed table was loaded.
func (d *Driver) Run() (Report, error) {
	ctx := d.Ctx
	rep := Report{}
	d.progress = Progress{BestSearchPoint: -1, LastSearchPoint: -1}
	d.enter(Searching)

	table, err := ctx.Table()
	if err != nil {
		return d.abort(rep, err)
	}
	rep.OriginalEntries = len(table)

	store, err := ctx.Bitfields()
	if err != nil {
		return d.abort(rep, err)
	}
	counts, err := bitfield.Scan(store, ctx.Arena)
	if err != nil {
		return d.abort(rep, err)
	}
	sorted, err := prioritize.Prioritize(store, counts, ctx.Arena)
	if err != nil {
		return d.abort(rep, err)
	}
	rep.Filters, rep.Candidates = store.Len(), sorted.Len()

	best, bestSyn, bestOut, err := d.search(table, sorted, &rep)
	if err != nil {
		return d.abort(rep, err)
	}
	if best < 0 {
		return d.fail(table, rep)
	}

	var res minimise.Result
	if bestOut != nil {
		res = bestOut.Result
	} else {
		d.enter(RegeneratingBest)
		rep.Regenerated = true
		if bestSyn, err = Synthesize(table, sorted.Filters[:best]); err != nil {
			return d.abort(rep, err)
		}
		if res, err = minimise.Minimise(bestSyn.Table, d.capacity(), nil, ctx.Arena); err != nil {
			return d.abort(rep, fmt.Errorf("regenerate point %d: %w", best, err))
		}
		d.progress.LastSearchPoint = best
	}
	d.progress.BestTable = res.Table

	d.enter(Loading)
	if err := router.Load(ctx.Hardware, res.Table, ctx.AppID); err != nil {
		return d.abort(rep, err)
	}
	merged, err := router.RemoveMergedBitfields(ctx.Mem, res.Aliases, bestSyn.Sources)
	if err != nil {
		return d.abort(rep, err)
	}
	for _, f := range sorted.Filters[:best] {
		if !f.Merged {
			continue
		}
		rp := f.RedundantPackets()
		rep.RedundantPackets += uint64(rp)
		rep.Merged = append(rep.Merged, FilterSummary{ProcessorID: f.ProcessorID, Key: f.Key, NAtoms: f.NAtoms, RedundantPackets: rp})
	}

	d.enter(Done)
	rep.State = Done
	rep.BestSearchPoint = best
	rep.LoadedEntries = len(res.Table)
	rep.MergedFilters = merged
	rep.Fingerprint = res.Table.Fingerprint()
	rep.ArenaPeak = ctx.Arena.Peak()
	ctx.Status.Set(constants.ExitedCleanly, uint32(best))
	return rep, nil
}

// search probes cut points until the window closes. It returns the best
// point, and its synthesis and outcome when the final round produced them.
func (d *Driver) search(table routing.Table, sorted prioritize.Sorted, rep *Report) (int, Synthesis, *Outcome, error) {
	ctx := d.Ctx
	lo, hi := 0, sorted.Len()
	best := -1
	var bestSyn Synthesis
	var bestOut *Outcome

	for lo <= hi {
		points := probePoints(lo, hi, d.Compressor.Cores())
		batch := make([]Attempt, len(points))
		syns := make([]Synthesis, len(points))
		for i, m := range points {
			syn, err := Synthesize(table, sorted.Filters[:m])
			if err != nil {
				return best, bestSyn, bestOut, err
			}
			syns[i] = syn
			batch[i] = Attempt{Point: m, Table: syn.Table, Budget: ctx.Regions.TimePerIteration, Target: d.capacity()}
		}
		outs := d.Compressor.Compress(batch)
		rep.Rounds++
		rep.Attempts += len(outs)

		roundBest, bi := -1, -1
		for i, o := range outs {
			if !negative(o.Err) {
				return best, bestSyn, bestOut, fmt.Errorf("probe %d: %w", o.Point, o.Err)
			}
			if errors.Is(o.Err, minimise.ErrOutOfTime) {
				rep.TimedOut++
			}
			if o.Fits(d.capacity()) {
				if o.Point > roundBest {
					roundBest, bi = o.Point, i
				}
			} else {
				rep.FailedAttempts++
			}
		}

		floor := max(best, roundBest)
		for _, o := range outs {
			if !o.Fits(d.capacity()) && o.Point > floor && o.Point-1 < hi {
				hi = o.Point - 1
			}
		}
		if roundBest > best {
			best = roundBest
			bestSyn, bestOut = syns[bi], &outs[bi]
			d.progress.BestSearchPoint = best
			d.progress.LastSearchPoint = best
		} else {
			bestSyn, bestOut = Synthesis{}, nil
			d.progress.LastSearchPoint = points[len(points)-1]
		}
		lo = max(lo, best+1)
		debug.DropMessage("search", "round "+utils.Itoa(rep.Rounds)+" window ["+utils.Itoa(lo)+","+utils.Itoa(hi)+"]")
	}
	return best, bestSyn, bestOut, nil
}

// probePoints spreads up to k distinct points over [lo, hi]. k = 1 is the
// classic midpoint.
func probePoints(lo, hi, k int) []int {
	span := hi - lo + 1
	k = min(max(k, 1), span)
	if k == 1 {
		return []int{(lo + hi) / 2}
	}
	pts := make([]int, 0, k)
	for j := 1; j <= k; j++ {
		p := lo + (j*span)/(k+1)
		if p > hi {
			p = hi
		}
		if len(pts) > 0 && pts[len(pts)-1] >= p {
			p = pts[len(pts)-1] + 1
		}
		if p > hi {
			break
		}
		pts = append(pts, p)
	}
	return pts
}

// fail loads the default-route-stripped table when it fits, else the
// original, and publishes EXIT_FAIL.
func (d *Driver) fail(table routing.Table, rep Report) (Report, error) {
	d.enter(Failed)
	ctx := d.Ctx
	load := table
	if stripped, _ := routing.StripDefaultRoutes(table); len(stripped) <= d.capacity() {
		load = stripped
	}
	rep.State = Failed
	rep.BestSearchPoint = -1
	rep.LoadedEntries = len(load)
	rep.Fingerprint = load.Fingerprint()
	rep.ArenaPeak = ctx.Arena.Peak()
	ctx.Status.Set(constants.ExitFail, uint32(len(load)))
	if err := router.Load(ctx.Hardware, load, ctx.AppID); err != nil {
		debug.DropError("search FAILED", err)
		return rep, err
	}
	return rep, nil
}
