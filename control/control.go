// control.go: Cooperative cancellation and core signalling
// ============================================================================
// COMPRESSION CONTROL
// ============================================================================
//
// Control provides the only cancellation mechanism the compressor has: a
// timer-set flag that the minimizer polls between merge passes. Nothing is
// ever preempted; a compression attempt notices the flag at its next poll and
// returns what it has.
//
// Architecture overview:
//   • Deadline: one per compression attempt, armed with the configured time
//     per compression iteration; a runtime timer flips the flag
//   • Signals: stop/hot flags shared between the searcher and its
//     compressor cores
//
// Threading model:
//   • The timer goroutine is the only writer of a Deadline's flag
//   • Compressor cores poll Signals; the searcher is the only writer

package control

import (
	"sync/atomic"
	"time"
)

// ============================================================================
// ATTEMPT DEADLINE
// ============================================================================

// Deadline is a polled cancellation token. A nil *Deadline never expires,
// which is what regeneration and "compress as much as possible" runs use.
type Deadline struct {
	expired atomic.Uint32 // 1 once the budget elapsed or Expire was called
	polls   atomic.Uint64 // number of Expired calls, for provenance
	timer   *time.Timer
}

// Arm starts a deadline that expires after budget. A zero budget returns a
// deadline that only expires through Expire.
func Arm(budget time.Duration) *Deadline {
	d := &Deadline{}
	if budget > 0 {
		d.timer = time.AfterFunc(budget, d.Expire)
	}
	return d
}

// ArmMicros arms a deadline from the region table's microsecond budget.
func ArmMicros(us uint32) *Deadline {
	return Arm(time.Duration(us) * time.Microsecond)
}

// Expired polls the flag. It never blocks.
//
//go:norace
//go:nosplit
//go:inline
func (d *Deadline) Expired() bool {
	if d == nil {
		return false
	}
	d.polls.Add(1)
	return d.expired.Load() != 0
}

// Expire sets the flag; the timer calls this, tests may too.
func (d *Deadline) Expire() {
	if d != nil {
		d.expired.Store(1)
	}
}

// Disarm stops the timer. The flag keeps whatever value it had.
func (d *Deadline) Disarm() {
	if d != nil && d.timer != nil {
		d.timer.Stop()
	}
}

// Polls reports how many times the flag was checked.
func (d *Deadline) Polls() uint64 {
	if d == nil {
		return 0
	}
	return d.polls.Load()
}

// ============================================================================
// CORE SIGNALS
// ============================================================================

// Signals carries the stop/hot flags handed to pinned compressor cores.
type Signals struct {
	stop uint32 // 1 = cores must exit
	hot  uint32 // 1 = attempts are in flight, keep hot-spinning
}

// Flags returns stable pointers for ring.PinnedConsumer.
//
//go:norace
//go:nosplit
//go:inline
func (s *Signals) Flags() (*uint32, *uint32) {
	return &s.stop, &s.hot
}

// SignalActivity marks attempts as in flight.
func (s *Signals) SignalActivity() { atomic.StoreUint32(&s.hot, 1) }

// Idle lets cores drop back to cold spinning.
func (s *Signals) Idle() { atomic.StoreUint32(&s.hot, 0) }

// Shutdown asks every core to exit.
func (s *Signals) Shutdown() { atomic.StoreUint32(&s.stop, 1) }

// Stopping reports whether Shutdown was called.
func (s *Signals) Stopping() bool { return atomic.LoadUint32(&s.stop) != 0 }
