// pool.go: Compressor cores fed over SPSC rings
//
// Each compressor core is a PinnedConsumer draining its own attempt ring and
// answering on its own reply ring. The searcher is the single producer of
// every attempt ring and the single consumer of every reply ring, so no ring
// ever sees two writers. Cores own private heaps sized for one attempt.

package search

import (
	"runtime"

	"rtcompress/constants"
	"rtcompress/control"
	"rtcompress/ring"
	"rtcompress/sdram"
)

type core struct {
	attempts *ring.Ring[Attempt]
	replies  *ring.Ring[Outcome]
	arena    *sdram.Arena
	done     chan struct{}
}

// CorePool farms attempts out to K pinned compressor cores.
type CorePool struct {
	cores   []core
	signals control.Signals
}

// NewCorePool starts k cores (clamped to 1..MaxCompressorCores), pinned from
// firstCPU upwards, each with a heapWords-word private heap.
func NewCorePool(k, firstCPU, heapWords int) *CorePool {
	k = min(max(k, 1), constants.MaxCompressorCores)
	p := &CorePool{cores: make([]core, k)}
	stop, hot := p.signals.Flags()
	for i := range p.cores {
		c := &p.cores[i]
		c.attempts = ring.New[Attempt](constants.AttemptRingSize)
		c.replies = ring.New[Outcome](constants.AttemptRingSize)
		c.arena = sdram.NewHeapArena(heapWords)
		c.done = make(chan struct{})
		ring.PinnedConsumer(firstCPU+i, c.attempts, stop, hot, func(a Attempt) {
			out := run(a, c.arena)
			c.arena.Reset()
			for !c.replies.Push(out) {
				if p.signals.Stopping() {
					return
				}
			}
		}, c.done)
	}
	return p
}

// Cores is the pool width.
func (p *CorePool) Cores() int { return len(p.cores) }

// Compress deals the batch round-robin and waits for every reply.
func (p *CorePool) Compress(batch []Attempt) []Outcome {
	out := make([]Outcome, len(batch))
	p.signals.SignalActivity()
	defer p.signals.Idle()

	for start := 0; start < len(batch); start += len(p.cores) {
		end := min(start+len(p.cores), len(batch))
		for i := start; i < end; i++ {
			c := &p.cores[i-start]
			for !c.attempts.Push(batch[i]) {
				runtime.Gosched()
			}
		}
		for i := start; i < end; i++ {
			out[i] = p.cores[i-start].replies.PopWait()
		}
	}
	return out
}

// Close stops every core and waits for it to exit.
func (p *CorePool) Close() {
	p.signals.Shutdown()
	for i := range p.cores {
		<-p.cores[i].done
	}
}
