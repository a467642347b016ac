// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ SPIKE-KEY INDEX
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Fixed-Capacity Robin Hood Map (uint32 key → uint32 slot)
//
// Description:
//   Maps routing keys to their position in the key→atom map and in the bitfield store. Keys
//   are sized once from the declared record counts and never grow, matching the fixed-arena
//   model of the compressor.
//
// Design Principles:
//   - Power-of-2 sizing with 2× headroom
//   - Robin Hood displacement keeps probe lengths short
//   - Any key is legal, including 0: occupancy lives in the value (stored +1)
//   - Keys are mixed before masking; population keys share their low bits
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package keyidx

import "rtcompress/utils"

// Hash is a fixed-capacity Robin Hood map. The zero value is unusable; call New.
type Hash struct {
	keys []uint32
	vals []uint32 // value+1; 0 marks an empty slot
	mask uint32
	n    int
}

// nextPow2 returns the smallest power of two ≥ n (minimum 1).
//
//go:nosplit
//go:inline
func nextPow2(n int) uint32 {
	s := uint32(1)
	for s < uint32(n) {
		s <<= 1
	}
	return s
}

// New sizes the table for capacity keys.
func New(capacity int) *Hash {
	sz := nextPow2(capacity * 2)
	if sz < 2 {
		sz = 2
	}
	return &Hash{
		keys: make([]uint32, sz),
		vals: make([]uint32, sz),
		mask: sz - 1,
	}
}

//go:nosplit
//go:inline
func (h *Hash) home(key uint32) uint32 { return utils.Mix32(key) & h.mask }

// Put inserts key→val unless key is present, and returns the stored value.
// Inserting more than the constructor capacity is a caller bug; Put refuses
// rather than loop once the table is full.
func (h *Hash) Put(key, val uint32) (uint32, bool) {
	if h.n >= len(h.keys) {
		if v, ok := h.Get(key); ok {
			return v, true
		}
		return 0, false
	}
	i := h.home(key)
	dist := uint32(0)
	stored := val + 1
	for {
		if h.vals[i] == 0 {
			h.keys[i], h.vals[i] = key, stored
			h.n++
			return val, true
		}
		if h.keys[i] == key {
			return h.vals[i] - 1, true
		}
		// Displace an occupant that is closer to its home than we are.
		kDist := (i + h.mask + 1 - h.home(h.keys[i])) & h.mask
		if kDist < dist {
			key, h.keys[i] = h.keys[i], key
			stored, h.vals[i] = h.vals[i], stored
			dist = kDist
		}
		i = (i + 1) & h.mask
		dist++
	}
}

// Get looks key up, stopping early under the Robin Hood invariant.
func (h *Hash) Get(key uint32) (uint32, bool) {
	i := h.home(key)
	dist := uint32(0)
	for {
		if h.vals[i] == 0 {
			return 0, false
		}
		if h.keys[i] == key {
			return h.vals[i] - 1, true
		}
		kDist := (i + h.mask + 1 - h.home(h.keys[i])) & h.mask
		if kDist < dist || dist > h.mask {
			return 0, false
		}
		i = (i + 1) & h.mask
		dist++
	}
}

// Len is the number of keys stored.
func (h *Hash) Len() int { return h.n }
