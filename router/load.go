package router

import (
	"fmt"

	"rtcompress/bitfield"
	"rtcompress/debug"
	"rtcompress/minimise"
	"rtcompress/routing"
	"rtcompress/utils"
)

// Load commits table for appID: one block allocation, then one write per
// entry with the application id stamped into the route's top byte. An empty
// table allocates nothing.
func Load(hw Hardware, table routing.Table, appID uint32) error {
	if len(table) == 0 {
		return nil
	}
	base, err := hw.Alloc(len(table), appID)
	if err != nil {
		return fmt.Errorf("load %d entries: %w", len(table), err)
	}
	for i, e := range table {
		if err := hw.Write(base+uint32(i), e.Key, e.Mask, routing.Tag(e.Route, appID)); err != nil {
			return fmt.Errorf("load entry %d: %w", i, err)
		}
	}
	debug.DropMessage("router", utils.Itoa(len(table))+" entries at "+utils.Itoa(int(base))+" for app "+utils.Hex32(appID))
	return nil
}

// RemoveMergedBitfields marks every filter that shaped an entry of the
// committed table as merged. sources[o] lists the filters behind original
// entry o of the table the aliases were built from. It returns the number
// of filters newly marked.
func RemoveMergedBitfields(mem bitfield.WordStore, aliases *minimise.AliasTable, sources [][]*bitfield.Filter) (int, error) {
	n := 0
	for s := 0; s < aliases.Len(); s++ {
		for _, o := range aliases.Of(s) {
			if int(o) >= len(sources) {
				continue
			}
			for _, f := range sources[o] {
				if f.Merged {
					continue
				}
				if err := bitfield.MarkMerged(mem, f); err != nil {
					return n, err
				}
				n++
			}
		}
	}
	return n, nil
}
