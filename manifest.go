package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sugawarayuuta/sonnet"

	"rtcompress/bitfield"
	"rtcompress/constants"
	"rtcompress/provenance"
	"rtcompress/routing"
	"rtcompress/shared"
)

var errEmptyManifest = errors.New("manifest: no routing table")

// Manifest is a host-side description of one chip: the uncompressed table,
// every simulation core's bitfields and the run settings.
type Manifest struct {
	Label            string          `json:"label"`
	AppID            uint32          `json:"app_id"`
	TimePerIteration uint32          `json:"time_per_iteration_us"`
	HeapWords        int             `json:"heap_words"`
	HeapBlocks       int             `json:"heap_blocks"`
	CompressorCores  int             `json:"compressor_cores"`
	FirstCPU         int             `json:"first_cpu"`
	History          string          `json:"history"`
	Bitfields        *bool           `json:"bitfields"` // nil: no builder config is written
	Table            []manifestEntry `json:"table"`
	Cores            []manifestCore  `json:"cores"`
}

type manifestEntry struct {
	Key    uint32 `json:"key"`
	Mask   uint32 `json:"mask"`
	Route  uint32 `json:"route"`
	Source uint32 `json:"source"`
}

type manifestCore struct {
	ProcessorID uint32           `json:"processor_id"`
	Atoms       []manifestAtoms  `json:"atoms"`
	Filters     []manifestFilter `json:"filters"`
}

type manifestAtoms struct {
	Key           uint32 `json:"key"`
	NAtoms        uint32 `json:"n_atoms"`
	CoreShift     uint32 `json:"core_shift"`
	NAtomsPerCore uint32 `json:"n_atoms_per_core"`
}

type manifestFilter struct {
	Key    uint32   `json:"key"`
	Words  []uint32 `json:"words"`
	Merged bool     `json:"merged"`
}

// loadManifest reads and decodes path.
func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseManifest(data)
}

func parseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := sonnet.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if len(m.Table) == 0 {
		return nil, errEmptyManifest
	}
	if m.HeapWords <= 0 {
		m.HeapWords = 1 << 16
	}
	if m.CompressorCores <= 0 {
		m.CompressorCores = 1
	}
	if m.TimePerIteration == 0 {
		m.TimePerIteration = constants.DefaultTimePerIteration
	}
	if m.Label == "" {
		m.Label = "run"
	}
	return m, nil
}

// imageSpec converts m into the chip image layout.
func (m *Manifest) imageSpec() shared.ImageSpec {
	spec := shared.ImageSpec{
		TimePerIteration: m.TimePerIteration,
		HeapWords:        m.HeapWords,
		HeapBlocks:       m.HeapBlocks,
		SpareWords:       provenance.BlobWords,
	}
	spec.Table = make(routing.Table, len(m.Table))
	for i, e := range m.Table {
		spec.Table[i] = routing.Entry{Key: e.Key, Mask: e.Mask, Route: e.Route, Source: e.Source}
	}
	for _, c := range m.Cores {
		ci := shared.CoreImage{ProcessorID: c.ProcessorID}
		for _, a := range c.Atoms {
			ci.Atoms = append(ci.Atoms, bitfield.AtomInfo{Key: a.Key, NAtoms: a.NAtoms, CoreShift: a.CoreShift, NAtomsPerCore: a.NAtomsPerCore})
		}
		for _, f := range c.Filters {
			ci.Filters = append(ci.Filters, bitfield.RawFilter{Key: f.Key, Data: f.Words, Merged: f.Merged})
		}
		spec.Cores = append(spec.Cores, ci)
	}
	if m.Bitfields != nil {
		cfg := shared.AbsentBuilderConfig
		if *m.Bitfields {
			// Region ids as the builder numbers them.
			cfg = shared.BuilderConfig{MasterPop: 2, SynapticMatrix: 3, DirectMatrix: 10, BitField: 12, BitFieldKeyMap: 13, StructuralMatrix: 11}
		}
		spec.Builder = &cfg
	}
	return spec
}
