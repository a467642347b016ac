// Package bucketqueue is a zero-alloc-after-New bucket priority queue. Two-level
// bitmaps give O(1) PopMin. The minimizer uses it with one bucket per
// generality level so the most general routing entries come out first; the
// bucket count is fixed at construction and ticks are absolute (no window).
package bucketqueue

import (
	"errors"
	"math/bits"
)

const (
	groupSize       = 64
	maxBuckets      = groupSize * groupSize
	nilIdx    idx32 = ^idx32(0)
)

type idx32 uint32

type node struct {
	next, prev idx32
	tick       int32
	count      uint32
	data       int32
}

// Queue holds up to capItems handles spread over numBuckets ticks.
type Queue struct {
	arena     []node
	freeHead  idx32
	buckets   []idx32
	size      int
	summary   uint64
	groupBits [groupSize]uint64
}

var (
	ErrFull         = errors.New("bucketqueue: no free handles")
	ErrEmpty        = errors.New("bucketqueue: empty queue")
	ErrPastWindow   = errors.New("bucketqueue: tick below zero")
	ErrBeyondWindow = errors.New("bucketqueue: tick beyond last bucket")
	ErrItemNotFound = errors.New("bucketqueue: invalid handle")
)

// Handle names one queue node.
type Handle idx32

// New builds a queue with numBuckets ticks (at most 4096) and capItems handles.
func New(numBuckets, capItems int) *Queue {
	if numBuckets <= 0 || numBuckets > maxBuckets {
		panic("bucketqueue: bucket count out of range")
	}
	if capItems <= 0 {
		capItems = 1
	}
	q := &Queue{
		arena:   make([]node, capItems),
		buckets: make([]idx32, numBuckets),
	}
	q.Clear()
	return q
}

// Clear returns every handle and empties every bucket.
func (q *Queue) Clear() {
	n := len(q.arena)
	for i := n - 1; i > 0; i-- {
		q.arena[i-1].next = idx32(i)
	}
	q.arena[n-1].next = nilIdx
	q.freeHead = 0
	for i := range q.buckets {
		q.buckets[i] = nilIdx
	}
	q.groupBits = [groupSize]uint64{}
	q.summary = 0
	q.size = 0
}

// Borrow takes a free handle.
func (q *Queue) Borrow() (Handle, error) {
	if q.freeHead == nilIdx {
		return Handle(nilIdx), ErrFull
	}
	h := q.freeHead
	n := &q.arena[h]
	q.freeHead = n.next
	n.next, n.prev, n.count = nilIdx, nilIdx, 0
	return Handle(h), nil
}

// Return gives a handle back. The handle must not be queued.
func (q *Queue) Return(h Handle) error {
	if int(h) >= len(q.arena) {
		return ErrItemNotFound
	}
	q.release(idx32(h))
	return nil
}

func (q *Queue) release(h idx32) {
	n := &q.arena[h]
	n.next = q.freeHead
	n.prev = nilIdx
	n.count = 0
	n.data = 0
	q.freeHead = h
}

func (q *Queue) unlink(idx idx32) {
	n := &q.arena[idx]
	b := uint32(n.tick)
	if n.prev != nilIdx {
		q.arena[n.prev].next = n.next
	} else {
		q.buckets[b] = n.next
	}
	if n.next != nilIdx {
		q.arena[n.next].prev = n.prev
	}
	q.size -= int(n.count)
	if q.buckets[b] == nilIdx {
		g := b >> 6
		q.groupBits[g] &^= 1 << (b & 63)
		if q.groupBits[g] == 0 {
			q.summary &^= 1 << g
		}
	}
	n.next, n.prev, n.count = nilIdx, nilIdx, 0
}

// Push files handle h with payload val under tick. Pushing an already queued
// handle at the same tick counts it twice; at another tick it moves it.
//
//go:nosplit
func (q *Queue) Push(tick int, h Handle, val int32) error {
	if int(h) >= len(q.arena) {
		return ErrItemNotFound
	}
	switch {
	case tick < 0:
		return ErrPastWindow
	case tick >= len(q.buckets):
		return ErrBeyondWindow
	}
	idx := idx32(h)
	n := &q.arena[idx]
	if n.count != 0 && int(n.tick) == tick {
		n.count++
		q.size++
		return nil
	}
	if n.count != 0 {
		q.unlink(idx)
	}
	bkt := uint32(tick)
	n.next, n.prev = q.buckets[bkt], nilIdx
	if n.next != nilIdx {
		q.arena[n.next].prev = idx
	}
	q.buckets[bkt] = idx
	n.tick, n.count, n.data = int32(tick), 1, val
	g := bkt >> 6
	q.groupBits[g] |= 1 << (bkt & 63)
	q.summary |= 1 << g
	q.size++
	return nil
}

// Update moves a queued handle to a new tick.
func (q *Queue) Update(tick int, h Handle, val int32) error {
	if int(h) >= len(q.arena) {
		return ErrItemNotFound
	}
	if q.arena[idx32(h)].count == 0 {
		return ErrItemNotFound
	}
	q.unlink(idx32(h))
	return q.Push(tick, h, val)
}

// PeepMin returns the lowest-tick handle without removing it.
//
//go:nosplit
func (q *Queue) PeepMin() (Handle, int, int32) {
	if q.size == 0 || q.summary == 0 {
		return Handle(nilIdx), 0, 0
	}
	g := bits.TrailingZeros64(q.summary)
	b := bits.TrailingZeros64(q.groupBits[g])
	h := q.buckets[g<<6|b]
	n := &q.arena[h]
	return Handle(h), int(n.tick), n.data
}

// PopMin removes the lowest-tick handle. Within a bucket the most recently
// pushed handle comes out first.
//
//go:nosplit
func (q *Queue) PopMin() (Handle, int, int32) {
	if q.size == 0 || q.summary == 0 {
		return Handle(nilIdx), 0, 0
	}
	g := bits.TrailingZeros64(q.summary)
	b := bits.TrailingZeros64(q.groupBits[g])
	bkt := g<<6 | b
	h := q.buckets[bkt]
	n := &q.arena[h]
	tick, data := int(n.tick), n.data
	if n.count > 1 {
		n.count--
		q.size--
		return Handle(h), tick, data
	}
	q.buckets[bkt] = n.next
	if n.next != nilIdx {
		q.arena[n.next].prev = nilIdx
	}
	q.size--
	if q.buckets[bkt] == nilIdx {
		q.groupBits[g] &^= 1 << (uint(bkt) & 63)
		if q.groupBits[g] == 0 {
			q.summary &^= 1 << g
		}
	}
	q.release(h)
	return Handle(h), tick, data
}

// Size counts queued pushes.
func (q *Queue) Size() int { return q.size }

// Empty reports whether nothing is queued.
func (q *Queue) Empty() bool { return q.size == 0 }
