package search

import (
	"rtcompress/control"
	"rtcompress/minimise"
	"rtcompress/routing"
	"rtcompress/sdram"
)

// Attempt is one probe handed to a compressor: a read-only working table
// and the per-attempt budget in µs (0 = unbounded).
type Attempt struct {
	Point  int
	Table  routing.Table
	Budget uint32
	Target int
}

// Outcome is a compressor's answer to an Attempt. Err is nil, a negative
// result (minimise.ErrDidNotFit, minimise.ErrOutOfTime) or a fatal error.
type Outcome struct {
	Point  int
	Result minimise.Result
	Err    error
	Polls  uint64
}

// Fits reports whether the outcome finished in budget with a table of at
// most capacity entries.
func (o Outcome) Fits(capacity int) bool {
	return o.Err == nil && len(o.Result.Table) <= capacity
}

// Compressor runs a batch of attempts. Outcomes come back in batch order.
type Compressor interface {
	Compress(batch []Attempt) []Outcome
	Cores() int
}

// run minimises one attempt against arena.
func run(a Attempt, arena *sdram.Arena) Outcome {
	d := control.ArmMicros(a.Budget)
	defer d.Disarm()
	res, err := minimise.Minimise(a.Table, a.Target, d, arena)
	return Outcome{Point: a.Point, Result: res, Err: err, Polls: d.Polls()}
}

// Local runs attempts one after another on the calling core, sharing the
// run's arena.
type Local struct {
	Arena *sdram.Arena
}

// Compress runs every attempt in order.
func (l *Local) Compress(batch []Attempt) []Outcome {
	out := make([]Outcome, len(batch))
	for i, a := range batch {
		out[i] = run(a, l.Arena)
	}
	return out
}

// Cores is always 1.
func (l *Local) Cores() int { return 1 }
