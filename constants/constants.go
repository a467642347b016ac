// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go - Router, SDRAM & compressor tunables
//
// Purpose:
//   - Defines the multicast router geometry and route-word bit layout.
//   - Fixes the SDRAM/fake-heap addressing and status-word codes.
//   - Holds the compressor search defaults used when the chip image is silent.
//
// Notes:
//   - Values mirror the SpiNNaker1 router: 1024 TCAM entries, entry 0 owned
//     by the monitor, 6 inter-chip links and 18 processors per route word.
//
// ⚠️ No runtime logic here: all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

// ─────────────────────────── Router geometry ────────────────────────────────

const (
	// RouterEntries is the physical size of the multicast TCAM.
	RouterEntries = 1024

	// RouterReserved entries at the bottom of the table belong to the monitor
	// and are never handed out by Alloc.
	RouterReserved = 1

	// RouterCapacity is the number of entries one application may occupy.
	RouterCapacity = RouterEntries - RouterReserved
)

// ─────────────────────────── Route word layout ──────────────────────────────

const (
	// NumLinks inter-chip links occupy route bits 0..5.
	NumLinks = 6

	// NumProcessors cores occupy route bits 6..23.
	NumProcessors = 18

	// ProcessorShift is the route bit of processor 0.
	ProcessorShift = NumLinks

	// LinkMask selects the link bits of a route word.
	LinkMask = 1<<NumLinks - 1

	// ProcessorMask selects the processor bits of a route word.
	ProcessorMask = (1<<NumProcessors - 1) << ProcessorShift

	// RouteMask strips the application tag from a route word.
	RouteMask = LinkMask | ProcessorMask

	// AppIDShift places the owning application id in the top byte.
	AppIDShift = 24
)

// ───────────────────────── Data-spec conventions ────────────────────────────

const (
	// RegionAbsent marks an unused region id in the builder config blob.
	RegionAbsent = 0xFFFFFFFF

	// BuilderConfigWords is the word count of the builder config blob.
	BuilderConfigWords = 6

	// MergedFlag is persisted in bit 31 of a bitfield record's n_words word.
	MergedFlag = 1 << 31

	// BitsPerWord of bitfield payload.
	BitsPerWord = 32
)

// ─────────────────────────────── SDRAM ──────────────────────────────────────

const (
	// SDRAMBase is the buffered SDRAM base address seen by every core.
	SDRAMBase = 0x60000000

	// UserRegisters exposed by the searcher core.
	UserRegisters = 4

	// HeapAlignWords aligns every fake-heap block.
	HeapAlignWords = 2
)

// ───────────────────────────── Status words ─────────────────────────────────

const (
	// ExitedCleanly: compression finished and the best table is loaded.
	ExitedCleanly = 0

	// ExitFail: no compressed table fitted; the uncompressed table is loaded.
	ExitFail = 1

	// ExitMalloc: the fake heap was exhausted; the run aborted.
	ExitMalloc = 2

	// ExitSwErr: corrupt input or router allocation failure.
	ExitSwErr = 3

	// StatusRunning is reported while a run is in flight.
	StatusRunning = 0xFFFFFFFF
)

// ───────────────────────────── Search tuning ────────────────────────────────

const (
	// DefaultTimePerIteration (µs) when the region table carries 0.
	// Zero means unbounded.
	DefaultTimePerIteration = 0

	// MaxCompressorCores a single searcher farms attempts out to.
	MaxCompressorCores = 16

	// AttemptRingSize is the per-core SPSC ring length (power of two).
	AttemptRingSize = 4

	// GeneralityLevels: a 32-bit mask has 0..32 don't-care bits.
	GeneralityLevels = 33
)
