// pinned_consumer.go
//
// SPSC consumer for compressor cores.
//
//   • Dedicated OS thread pinned to `core`.
//   • Stays in **hot-spin** while new work arrived within hotTimeout or the
//     producer keeps the hot flag at 1 (attempts in flight).
//   • After the grace window, and once hot == 0, it drops to cold-spin:
//     cpuRelax every iteration and a short sleep after spinBudget misses.
//   • Exits only when *stop == 1 and closes `done` exactly once.
//
// hot flag contract:
//     Producer             Consumer
//     --------             ------------------------------
//     Store 1  ─────────▶  read (wake / stay hot-spin)
//     ...push attempts…
//     Store 0  ◀─ consumer never writes

package ring

import (
	"runtime"
	"sync/atomic"
	"time"
)

const (
	spinBudget = 256                   // polls before cold back-off
	hotTimeout = 50 * time.Millisecond // hot-spin grace
	coldSleep  = 200 * time.Microsecond
)

// PinnedConsumer drains r until *stop is set.
func PinnedConsumer[T any](
	core int,
	r *Ring[T],
	stop, hot *uint32,
	fn func(T),
	done chan<- struct{},
) {
	go func() {
		// ── thread & affinity ─────────────────────────────
		runtime.LockOSThread()
		setAffinity(core) // stub on non-Linux
		defer func() {
			runtime.UnlockOSThread()
			close(done)
		}()

		last := time.Now() // last time Pop delivered
		miss := 0

		// ── main loop ─────────────────────────────────────
		for {
			if v, ok := r.Pop(); ok {
				fn(v)
				last, miss = time.Now(), 0
				continue
			}

			if atomic.LoadUint32(stop) != 0 {
				return
			}

			hotSpin := atomic.LoadUint32(hot) != 0 ||
				time.Since(last) <= hotTimeout
			if hotSpin {
				cpuRelax()
				continue
			}

			if miss++; miss >= spinBudget {
				miss = 0
				time.Sleep(coldSleep)
			}
			cpuRelax()
		}
	}()
}
