// ring.go
//
// Lock-free single-producer/single-consumer ring buffer. The searcher is the
// only producer of compression attempts for a compressor core and that core
// is the only consumer; replies travel back on a second ring the other way.
// Producer and consumer cursors sit on separate cache-lines, and each slot
// carries a sequence number so Push/Pop never need more than one atomic each.

package ring

import (
	"runtime"
	"sync/atomic"
)

// slot couples a payload with its sequence stamp.
type slot[T any] struct {
	seq atomic.Uint64 // position in the sequence space
	val T
}

// Ring is a fixed-capacity circular buffer dedicated to one producer and
// one consumer.
type Ring[T any] struct {
	_    [64]byte // consumer head isolated on its own cache-line
	head uint64
	//lint:ignore U1000 padding to keep head & tail on different cache-lines
	_pad1 [64]byte
	tail  uint64
	//lint:ignore U1000 padding to keep hot fields from colliding with metadata
	_pad2 [64]byte
	mask  uint64
	buf   []slot[T]
}

// New allocates a ring whose size must be a power-of-two; otherwise it
// panics so that the bit-masking arithmetic stays valid.
func New[T any](size int) *Ring[T] {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be >0 and a power of two")
	}
	r := &Ring[T]{
		mask: uint64(size - 1),
		buf:  make([]slot[T], size),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r
}

// Push enqueues v, returning false if the buffer is full.
func (r *Ring[T]) Push(v T) bool {
	t := r.tail
	s := &r.buf[t&r.mask]
	if s.seq.Load() != t {
		return false // consumer has not yet reclaimed the slot
	}
	s.val = v
	s.seq.Store(t + 1)
	r.tail = t + 1
	return true
}

// Pop dequeues one value; ok is false if the buffer is empty.
func (r *Ring[T]) Pop() (v T, ok bool) {
	h := r.head
	s := &r.buf[h&r.mask]
	if s.seq.Load() != h+1 {
		return v, false // producer has not yet published to the slot
	}
	v = s.val
	var zero T
	s.val = zero
	s.seq.Store(h + uint64(len(r.buf)))
	r.head = h + 1
	return v, true
}

// PopWait spins until an item becomes available.
func (r *Ring[T]) PopWait() T {
	for {
		if v, ok := r.Pop(); ok {
			return v
		}
		cpuRelax()
	}
}

// Cap is the slot count.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// cpuRelax yields the processor between polls.
func cpuRelax() { runtime.Gosched() }
