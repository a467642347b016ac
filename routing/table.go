package routing

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"rtcompress/wire"
)

// EntryWords is the on-SDRAM size of one uncompressed entry.
const EntryWords = 4

var ErrInvalidEntry = errors.New("routing: key has bits outside its mask")

// Table is an ordered, first-match routing table.
type Table []Entry

// Lookup returns the first entry matching key and its position.
func (t Table) Lookup(key uint32) (Entry, int, bool) {
	for i, e := range t {
		if e.Matches(key) {
			return e, i, true
		}
	}
	return Entry{}, -1, false
}

// Route returns the route a key is delivered on, or 0 when no entry matches
// (the router then default-routes or drops it).
func (t Table) Route(key uint32) uint32 {
	e, _, ok := t.Lookup(key)
	if !ok {
		return 0
	}
	return e.Route
}

// Clone returns an independent copy.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// Fingerprint is a SHA3-256 digest of (key, mask, route) in table order;
// provenance uses it to identify the committed table.
func (t Table) Fingerprint() [32]byte {
	h := sha3.New256()
	var w [12]byte
	for _, e := range t {
		wire.PutU32(w[0:], e.Key)
		wire.PutU32(w[4:], e.Mask)
		wire.PutU32(w[8:], e.Route)
		h.Write(w[:])
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// ParseTable decodes `n_entries` then `{key, mask, route, source}` records.
func ParseTable(r *wire.Reader) (Table, error) {
	n, err := r.Count(EntryWords)
	if err != nil {
		return nil, fmt.Errorf("router table: %w", err)
	}
	t := make(Table, n)
	for i := range t {
		e := &t[i]
		if e.Key, err = r.U32(); err != nil {
			return nil, err
		}
		if e.Mask, err = r.U32(); err != nil {
			return nil, err
		}
		if e.Route, err = r.U32(); err != nil {
			return nil, err
		}
		if e.Source, err = r.U32(); err != nil {
			return nil, err
		}
		if !e.Valid() {
			return nil, fmt.Errorf("%w: entry %d key %#x mask %#x", ErrInvalidEntry, i, e.Key, e.Mask)
		}
	}
	return t, nil
}

// Encode lays the table out in the uncompressed SDRAM format.
func (t Table) Encode() []byte {
	words := make([]uint32, 0, 1+EntryWords*len(t))
	words = append(words, uint32(len(t)))
	for _, e := range t {
		words = append(words, e.Key, e.Mask, e.Route, e.Source)
	}
	return wire.Encode(words...)
}

// StripDefaultRoutes drops every default-routable entry whose key-space no
// other entry touches; the router's default routing then delivers those
// packets unchanged. origin[i] is the index in t of the i-th kept entry.
func StripDefaultRoutes(t Table) (kept Table, origin []int) {
	kept = make(Table, 0, len(t))
	origin = make([]int, 0, len(t))
	for i, e := range t {
		if e.DefaultRoutable() && !overlapsOthers(t, i) {
			continue
		}
		kept = append(kept, e)
		origin = append(origin, i)
	}
	return kept, origin
}

func overlapsOthers(t Table, i int) bool {
	for j := range t {
		if j != i && t[j].Intersects(t[i]) {
			return true
		}
	}
	return false
}
