// Package routing models multicast routing entries as ternary (key, mask)
// patterns and the first-match tables built from them.
//
// An entry matches a spike key k when k&Mask == Key. Bits clear in the mask
// are "don't care"; the number of them is the entry's generality. Route
// words carry links in bits 0..5 and processors in bits 6..23; the top byte
// is the owning application id and is only OR-ed in by the router loader.
package routing

import (
	"math/bits"

	"rtcompress/constants"
)

// Entry is one routing table row.
type Entry struct {
	Key    uint32
	Mask   uint32
	Route  uint32
	Source uint32 // arrival links, used only to spot default routes
}

// Matches reports whether key is routed by e.
//
//go:nosplit
//go:inline
func (e Entry) Matches(key uint32) bool { return key&e.Mask == e.Key }

// Generality is the number of don't-care bits.
//
//go:nosplit
//go:inline
func (e Entry) Generality() int { return 32 - bits.OnesCount32(e.Mask) }

// Covers reports whether every key matched by o is also matched by e.
//
//go:nosplit
//go:inline
func (e Entry) Covers(o Entry) bool {
	return e.Mask&^o.Mask == 0 && o.Key&e.Mask == e.Key
}

// Intersects reports whether some key is matched by both.
//
//go:nosplit
//go:inline
func (e Entry) Intersects(o Entry) bool {
	return (e.Key^o.Key)&e.Mask&o.Mask == 0
}

// Valid reports whether the key has no bits outside the mask; such an
// entry can never match anything.
func (e Entry) Valid() bool { return e.Key&^e.Mask == 0 }

// ───────────────────────────── Route words ─────────────────────────────────

// ProcessorBit is the route bit for core p.
//
//go:nosplit
//go:inline
func ProcessorBit(p uint32) uint32 { return 1 << (constants.ProcessorShift + p) }

// LinkBit is the route bit for link l.
//
//go:nosplit
//go:inline
func LinkBit(l uint32) uint32 { return 1 << l }

// OppositeLink is the link a packet leaves by when travelling straight
// through a chip it entered on l.
//
//go:nosplit
//go:inline
func OppositeLink(l uint32) uint32 { return (l + constants.NumLinks/2) % constants.NumLinks }

// Tag stamps the application id into the top byte of a route word.
//
//go:nosplit
//go:inline
func Tag(route, appID uint32) uint32 {
	return route&constants.RouteMask | appID<<constants.AppIDShift
}

// singleLink returns the link index when route is exactly one link and no
// processor.
func singleLink(route uint32) (uint32, bool) {
	route &= constants.RouteMask
	if route == 0 || route&constants.ProcessorMask != 0 || route&(route-1) != 0 {
		return 0, false
	}
	return uint32(bits.TrailingZeros32(route)), true
}

// DefaultRoutable reports whether the router would forward the packet the
// same way with no entry at all: it arrives on one link and leaves by the
// opposite one.
func (e Entry) DefaultRoutable() bool {
	out, ok := singleLink(e.Route)
	if !ok {
		return false
	}
	in, ok := singleLink(e.Source)
	return ok && OppositeLink(in) == out
}
