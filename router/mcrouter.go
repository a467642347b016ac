package router

import (
	"errors"
	"fmt"

	"rtcompress/constants"
)

var (
	ErrRouterFull = errors.New("router: cannot allocate entries")
	ErrBadIndex   = errors.New("router: entry outside an allocated block")
)

// Hardware is the router as the compressor sees it.
type Hardware interface {
	// Alloc reserves size consecutive entries for appID and returns the
	// first index.
	Alloc(size int, appID uint32) (uint32, error)
	// Write programs one entry. route already carries the application tag.
	Write(index, key, mask, route uint32) error
}

type tcamEntry struct {
	key, mask, route uint32
	valid            bool
}

type block struct {
	base, size uint32
	appID      uint32
}

// MCRouter models the multicast TCAM.
type MCRouter struct {
	entries [constants.RouterEntries]tcamEntry
	blocks  []block // sorted by base
}

// NewMCRouter returns an empty router with the monitor's entries reserved.
func NewMCRouter() *MCRouter {
	return &MCRouter{}
}

// Alloc places a block first-fit above the reserved entries.
func (m *MCRouter) Alloc(size int, appID uint32) (uint32, error) {
	if size <= 0 || size > constants.RouterCapacity {
		return 0, fmt.Errorf("%w: %d entries for app %d", ErrRouterFull, size, appID)
	}
	want := uint32(size)
	base := uint32(constants.RouterReserved)
	at := 0
	for ; at < len(m.blocks); at++ {
		b := m.blocks[at]
		if b.base-base >= want {
			break
		}
		base = b.base + b.size
	}
	if base+want > constants.RouterEntries {
		return 0, fmt.Errorf("%w: %d entries for app %d, %d free", ErrRouterFull, size, appID, m.Free())
	}
	m.blocks = append(m.blocks, block{})
	copy(m.blocks[at+1:], m.blocks[at:])
	m.blocks[at] = block{base: base, size: want, appID: appID}
	return base, nil
}

// Write programs entry index, which must lie inside an allocated block.
func (m *MCRouter) Write(index, key, mask, route uint32) error {
	if !m.allocated(index) {
		return fmt.Errorf("%w: %d", ErrBadIndex, index)
	}
	m.entries[index] = tcamEntry{key: key, mask: mask, route: route, valid: true}
	return nil
}

func (m *MCRouter) allocated(index uint32) bool {
	for _, b := range m.blocks {
		if index >= b.base && index < b.base+b.size {
			return true
		}
	}
	return false
}

// Lookup returns the route word of the lowest-index valid entry matching key.
func (m *MCRouter) Lookup(key uint32) (uint32, bool) {
	for i := range m.entries {
		e := &m.entries[i]
		if e.valid && key&e.mask == e.key {
			return e.route, true
		}
	}
	return 0, false
}

// Release frees every block owned by appID and invalidates its entries.
// It returns the number of entries released.
func (m *MCRouter) Release(appID uint32) int {
	n := 0
	kept := m.blocks[:0]
	for _, b := range m.blocks {
		if b.appID != appID {
			kept = append(kept, b)
			continue
		}
		for i := b.base; i < b.base+b.size; i++ {
			m.entries[i] = tcamEntry{}
		}
		n += int(b.size)
	}
	m.blocks = kept
	return n
}

// Used counts allocated entries.
func (m *MCRouter) Used() int {
	n := 0
	for _, b := range m.blocks {
		n += int(b.size)
	}
	return n
}

// Free counts entries an application could still be given.
func (m *MCRouter) Free() int { return constants.RouterCapacity - m.Used() }
