// ════════════════════════════════════════════════════════════════════════════════════════════════
// Routing Table Compressor - Host Harness
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Main Entry Point
//
// Description:
//   Runs one bitfield-aware routing-table compression against a chip image described by a
//   JSON manifest. Manifest → SDRAM image → search driver → router load → provenance.
//
// Usage:
//   rtcompress <manifest.json>
//   rtcompress -history <history.db> [n]
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"rtcompress/debug"
	"rtcompress/provenance"
	"rtcompress/router"
	"rtcompress/search"
	"rtcompress/shared"
	"rtcompress/utils"
)

func main() {
	if len(os.Args) < 2 {
		utils.PrintWarning("usage: rtcompress <manifest.json> | rtcompress -history <db> [n]\n")
		os.Exit(2)
	}
	if os.Args[1] == "-history" {
		os.Exit(showHistory(os.Args[2:]))
	}

	m, err := loadManifest(os.Args[1])
	if err != nil {
		debug.DropError("MANIFEST", err)
		os.Exit(2)
	}
	os.Exit(int(compress(m)))
}

// compress runs the whole pipeline for m and returns the process exit code.
func compress(m *Manifest) uint32 {
	debug.DropMessage("INIT", m.Label+": "+utils.Itoa(len(m.Table))+" entries, "+utils.Itoa(len(m.Cores))+" cores")

	mem, regs, err := shared.BuildImage(m.imageSpec())
	if err != nil {
		debug.DropError("IMAGE", err)
		return 2
	}
	hw := router.NewMCRouter()
	ctx, err := shared.NewContext(mem, regs, hw, m.AppID)
	if err != nil {
		debug.DropError("CONTEXT", err)
		return 2
	}
	defer ctx.Close()

	var comp search.Compressor
	if m.CompressorCores > 1 {
		pool := search.NewCorePool(m.CompressorCores, m.FirstCPU, m.HeapWords)
		defer pool.Close()
		setupSignalHandling(pool)
		comp = pool
	}

	rep, runErr := search.NewDriver(ctx, comp).Run()
	stats := provenance.FromReport(rep, ctx.Status)
	debug.DropMessage("STATUS", stats.StatusName+" detail="+utils.Utoa(uint64(ctx.Status.Detail())))
	debug.DropMessage("RESULT", utils.Itoa(stats.OriginalEntries)+" → "+utils.Itoa(stats.LoadedEntries)+
		" entries, "+utils.Itoa(stats.MergedFilters)+" filters merged, router "+utils.Itoa(hw.Used())+" used")
	if runErr != nil {
		debug.DropError("RUN", runErr)
	}

	if addr, err := mem.Reserve(4 * provenance.BlobWords); err != nil {
		debug.DropError("PROVENANCE", err)
	} else if err := provenance.WriteBlob(mem, addr, stats); err != nil {
		debug.DropError("PROVENANCE", err)
	}

	if js, err := stats.JSON(); err == nil {
		os.Stdout.WriteString(utils.B2s(js) + "\n")
	}

	if m.History != "" {
		rec, err := provenance.Open(m.History)
		if err != nil {
			debug.DropError("HISTORY", err)
		} else {
			if _, err := rec.Record(m.Label, stats); err != nil {
				debug.DropError("HISTORY", err)
			}
			rec.Close()
		}
	}
	return ctx.Status.Code()
}

// showHistory prints the newest runs of a history database as JSON lines.
func showHistory(args []string) int {
	if len(args) == 0 {
		utils.PrintWarning("usage: rtcompress -history <db> [n]\n")
		return 2
	}
	n := 10
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v <= 0 {
			utils.PrintWarning("history: bad count " + args[1] + "\n")
			return 2
		}
		n = v
	}
	rec, err := provenance.Open(args[0])
	if err != nil {
		debug.DropError("HISTORY", err)
		return 1
	}
	defer rec.Close()
	runs, err := rec.Runs(n)
	if err != nil {
		debug.DropError("HISTORY", err)
		return 1
	}
	for _, r := range runs {
		js, err := r.Stats.JSON()
		if err != nil {
			continue
		}
		os.Stdout.WriteString(utils.Itoa(int(r.ID)) + " " + r.UUID + " " + r.Label + " " +
			r.CreatedAt.Format("2006-01-02T15:04:05") + " " + utils.B2s(js) + "\n")
	}
	return 0
}

// setupSignalHandling stops the compressor cores on SIGINT/SIGTERM.
func setupSignalHandling(pool *search.CorePool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		debug.DropMessage("SIGNAL", "Received interrupt, shutting down...")
		pool.Close()
		os.Exit(130)
	}()
}
