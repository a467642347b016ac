// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go - cold-path diagnostic logging (zero-alloc-ish)
//
// Purpose:
//   - Logs search state transitions, run summaries and fatal errors.
//   - Never called per entry or per merge.
//
// Notes:
//   - Avoids fmt to keep the compressor's footprint flat.
//   - Quiet silences everything (tests, benchmarks).
//
// ⚠️ Never invoke in hot loops: use only in failure diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"sync/atomic"

	"rtcompress/utils"
)

var quiet atomic.Bool

// SetQuiet toggles all diagnostic output.
func SetQuiet(q bool) { quiet.Store(q) }

// Quiet reports whether diagnostic output is suppressed.
func Quiet() bool { return quiet.Load() }

// DropError logs "<prefix>: <err>", or just the prefix when err is nil.
//
//go:nosplit
//go:inline
//go:registerparams
func DropError(prefix string, err error) {
	if quiet.Load() {
		return
	}
	if err != nil {
		utils.PrintWarning(prefix + ": " + err.Error() + "\n")
		return
	}
	utils.PrintWarning(prefix + "\n")
}

// DropMessage logs "<prefix>: <message>".
//
//go:nosplit
//go:inline
//go:registerparams
func DropMessage(prefix, message string) {
	if quiet.Load() {
		return
	}
	utils.PrintWarning(prefix + ": " + message + "\n")
}
