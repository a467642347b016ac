package shared

import (
	"fmt"

	"rtcompress/bitfield"
	"rtcompress/router"
	"rtcompress/routing"
	"rtcompress/sdram"
	"rtcompress/wire"
)

// Context is everything one compression run owns. It is built once from the
// user registers and torn down with Close.
type Context struct {
	Regs     UserRegisters
	Mem      *sdram.Memory
	Arena    *sdram.Arena
	Hardware router.Hardware
	AppID    uint32
	Status   *Status
	Regions  RegionTable
	Builder  BuilderConfig
}

// NewContext decodes the heap descriptor, region table and builder config
// the registers point at. A zero app pointer register means no builder
// config was written.
func NewContext(mem *sdram.Memory, regs UserRegisters, hw router.Hardware, appID uint32) (*Context, error) {
	c := &Context{Regs: regs, Mem: mem, Hardware: hw, AppID: appID, Status: NewStatus(), Builder: AbsentBuilderConfig}

	r, err := c.reader(RegUsableSDRAM)
	if err != nil {
		return nil, err
	}
	blocks, err := sdram.ParseHeapDescriptor(r)
	if err != nil {
		return nil, err
	}
	if c.Arena, err = sdram.NewArena(mem, blocks); err != nil {
		return nil, err
	}

	if r, err = c.reader(RegRegionTable); err != nil {
		return nil, err
	}
	if c.Regions, err = ParseRegionTable(r); err != nil {
		return nil, err
	}

	if regs[RegAppPointerTable] != 0 {
		if r, err = c.reader(RegAppPointerTable); err != nil {
			return nil, err
		}
		if c.Builder, err = ParseBuilderConfig(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Context) reader(reg int) (*wire.Reader, error) {
	r, err := c.Mem.Reader(c.Regs[reg])
	if err != nil {
		return nil, fmt.Errorf("%w: register %d = %#x: %w", ErrBadRegister, reg, c.Regs[reg], err)
	}
	return r, nil
}

// Table decodes the uncompressed routing table.
func (c *Context) Table() (routing.Table, error) {
	r, err := c.reader(RegRouterTable)
	if err != nil {
		return nil, err
	}
	return routing.ParseTable(r)
}

// Bitfields decodes every core's bitfield region into a store. Payload words
// come from the arena. When the builder config marks bitfields absent the
// store is empty.
func (c *Context) Bitfields() (*bitfield.Store, error) {
	if c.Regs[RegAppPointerTable] != 0 && !c.Builder.HasBitfields() {
		return bitfield.NewStore(nil), nil
	}
	regions := make([]bitfield.Region, 0, len(c.Regions.Triples))
	for _, tr := range c.Regions.Triples {
		mr, err := c.Mem.Reader(tr.KeyAtomRegion)
		if err != nil {
			return nil, fmt.Errorf("key-atom map of core %d: %w", tr.ProcessorID, err)
		}
		atoms, err := bitfield.ParseKeyAtomMap(mr)
		if err != nil {
			return nil, fmt.Errorf("core %d: %w", tr.ProcessorID, err)
		}
		br, err := c.Mem.Reader(tr.BitfieldRegion)
		if err != nil {
			return nil, fmt.Errorf("bitfield region of core %d: %w", tr.ProcessorID, err)
		}
		reg, err := bitfield.ParseRegion(br, tr.ProcessorID, atoms, c.Arena)
		if err != nil {
			return nil, err
		}
		regions = append(regions, reg)
	}
	return bitfield.NewStore(regions), nil
}

// Close resets the fake heap. The context must not be used afterwards.
func (c *Context) Close() {
	if c.Arena != nil {
		c.Arena.Reset()
	}
}
