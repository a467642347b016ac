// ════════════════════════════════════════════════════════════════════════════════════════════════
// ORDERED-COVERING MINIMISER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Routing table minimisation
//
// Description:
//   Shrinks a first-match routing table by merging entries with equal routes while keeping the
//   route of every key identical. Entries keep their table positions; a generality-ordered
//   bucket queue decides which entry gets to absorb its neighbours first, so broad entries
//   swallow narrow ones before narrow ones pair up.
//
// Merge moves:
//   absorb : A covers B, same route. Remove B.
//   pair   : same mask and route, keys differ in one cared bit. Clear the bit, remove one.
//
// Legality:
//   Moving a key-space past other entries is only allowed when no live entry in between has
//   a different route and intersects the moved key-space. The union of merged key-spaces is
//   always exact: no key that matched nothing before matches something after.
//
// Cancellation:
//   The deadline is polled once per outer pass. An expired deadline returns the partial
//   table, which is still route-equivalent to the input.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package minimise

import (
	"errors"
	"fmt"
	"math/bits"

	"rtcompress/bucketqueue"
	"rtcompress/constants"
	"rtcompress/control"
	"rtcompress/routing"
	"rtcompress/sdram"
)

var (
	ErrDidNotFit = errors.New("minimise: fixed point above target length")
	ErrOutOfTime = errors.New("minimise: deadline expired")
)

const nilLink = ^uint32(0)

// Result is a minimised table and its alias table.
type Result struct {
	Table   routing.Table
	Aliases *AliasTable
	Passes  int
	Merges  int
}

// work is one minimisation's state. Alias chains live in arena words.
type work struct {
	ents []routing.Entry
	live int

	head []uint32 // first original index per position, nilLink once dead
	tail []uint32
	next []uint32 // chain link per original index

	q *bucketqueue.Queue
}

//go:nosplit
//go:inline
func tickOf(e routing.Entry) int { return 32 - e.Generality() }

//go:nosplit
//go:inline
func (w *work) alive(i int) bool { return w.head[i] != nilLink }

// Minimise merges table entries until the live count is at most target, or
// until no move applies when target is 0. Partial results come back with
// ErrDidNotFit or ErrOutOfTime; any other error is fatal.
func Minimise(table routing.Table, target int, deadline *control.Deadline, arena *sdram.Arena) (Result, error) {
	n := len(table)
	if n == 0 || (target > 0 && n <= target) {
		return Result{Table: table.Clone(), Aliases: Identity(n)}, nil
	}

	mark := arena.Mark()
	defer arena.Rewind(mark)

	w := &work{ents: table.Clone(), live: n}
	var err error
	if w.head, err = arena.Alloc(n); err != nil {
		return Result{}, fmt.Errorf("minimise: %w", err)
	}
	if w.tail, err = arena.Alloc(n); err != nil {
		return Result{}, fmt.Errorf("minimise: %w", err)
	}
	if w.next, err = arena.Alloc(n); err != nil {
		return Result{}, fmt.Errorf("minimise: %w", err)
	}
	for i := 0; i < n; i++ {
		w.head[i], w.tail[i], w.next[i] = uint32(i), uint32(i), nilLink
	}
	w.q = bucketqueue.New(constants.GeneralityLevels, n)

	res := Result{}
	for {
		if deadline.Expired() {
			return w.result(res), ErrOutOfTime
		}
		res.Passes++
		merged, done := w.pass(target)
		res.Merges += merged
		if done {
			return w.result(res), nil
		}
		if merged == 0 {
			break
		}
	}
	res = w.result(res)
	if target > 0 && w.live > target {
		return res, ErrDidNotFit
	}
	return res, nil
}

// pass offers every live entry, most general first, the chance to absorb
// or pair with others. done reports that target was reached.
func (w *work) pass(target int) (merged int, done bool) {
	w.q.Clear()
	// LIFO buckets: push back to front so equal generality pops in table order.
	for i := len(w.ents) - 1; i >= 0; i-- {
		if !w.alive(i) {
			continue
		}
		h, _ := w.q.Borrow()
		_ = w.q.Push(tickOf(w.ents[i]), h, int32(i))
	}
	for !w.q.Empty() {
		_, _, v := w.q.PopMin()
		a := int(v)
		if !w.alive(a) {
			continue
		}
		merged += w.absorbAll(a)
		if target > 0 && w.live <= target {
			return merged, true
		}
		if p, ok := w.pairOnce(a); ok {
			merged++
			if target > 0 && w.live <= target {
				return merged, true
			}
			h, _ := w.q.Borrow()
			_ = w.q.Push(tickOf(w.ents[p]), h, int32(p))
		}
	}
	return merged, false
}

// absorbAll removes every live entry a covers that it may legally replace.
func (w *work) absorbAll(a int) int {
	A := w.ents[a]
	n := 0
	for b := range w.ents {
		if b == a || !w.alive(b) {
			continue
		}
		B := w.ents[b]
		if B.Route != A.Route || !A.Covers(B) {
			continue
		}
		// An earlier cover already shadows B completely.
		if a < b || w.clearBetween(b, a, B) {
			w.fold(a, b)
			n++
		}
	}
	return n
}

// pairOnce merges a with one sibling and returns the surviving position.
func (w *work) pairOnce(a int) (int, bool) {
	A := w.ents[a]
	for b := range w.ents {
		if b == a || !w.alive(b) {
			continue
		}
		B := w.ents[b]
		if B.Mask != A.Mask || B.Route != A.Route {
			continue
		}
		diff := A.Key ^ B.Key
		if bits.OnesCount32(diff) != 1 {
			continue
		}
		lo, hi := min(a, b), max(a, b)
		switch {
		case w.clearBetween(lo, hi, w.ents[hi]):
			w.widen(lo, diff)
			w.fold(lo, hi)
			return lo, true
		case w.clearBetween(lo, hi, w.ents[lo]):
			w.widen(hi, diff)
			w.fold(hi, lo)
			return hi, true
		}
	}
	return 0, false
}

// clearBetween reports whether no live entry strictly between lo and hi
// would route part of victim differently.
func (w *work) clearBetween(lo, hi int, victim routing.Entry) bool {
	for k := lo + 1; k < hi; k++ {
		if !w.alive(k) {
			continue
		}
		e := w.ents[k]
		if e.Route != victim.Route && e.Intersects(victim) {
			return false
		}
	}
	return true
}

//go:nosplit
//go:inline
func (w *work) widen(i int, bit uint32) {
	w.ents[i].Mask &^= bit
	w.ents[i].Key &^= bit
}

// fold kills position dead and merges its alias chain into keep's.
func (w *work) fold(keep, dead int) {
	w.head[keep], w.tail[keep] = w.mergeChains(w.head[keep], w.head[dead])
	w.head[dead], w.tail[dead] = nilLink, nilLink
	w.live--
}

// mergeChains merges two ascending chains.
func (w *work) mergeChains(x, y uint32) (head, tail uint32) {
	head, tail = nilLink, nilLink
	for x != nilLink || y != nilLink {
		var take uint32
		if y == nilLink || (x != nilLink && x < y) {
			take, x = x, w.next[x]
		} else {
			take, y = y, w.next[y]
		}
		if tail == nilLink {
			head = take
		} else {
			w.next[tail] = take
		}
		tail = take
	}
	if tail != nilLink {
		w.next[tail] = nilLink
	}
	return head, tail
}

// result compacts the live entries and copies alias chains off the arena.
func (w *work) result(res Result) Result {
	n := len(w.ents)
	at := &AliasTable{
		start: make([]int32, 1, w.live+1),
		idx:   make([]int32, 0, n),
		owner: make([]int32, n),
	}
	res.Table = make(routing.Table, 0, w.live)
	for i := range w.ents {
		if !w.alive(i) {
			continue
		}
		s := int32(len(res.Table))
		res.Table = append(res.Table, w.ents[i])
		for o := w.head[i]; o != nilLink; o = w.next[o] {
			at.idx = append(at.idx, int32(o))
			at.owner[o] = s
		}
		at.start = append(at.start, int32(len(at.idx)))
	}
	res.Aliases = at
	return res
}
